package admin

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	typWhatsApp "github.com/gdbrns/go-whatsapp-gateway/internal/types"
	"github.com/gdbrns/go-whatsapp-gateway/pkg/auth"
	"github.com/gdbrns/go-whatsapp-gateway/pkg/log"
	"github.com/gdbrns/go-whatsapp-gateway/pkg/router"
	pkgWhatsApp "github.com/gdbrns/go-whatsapp-gateway/pkg/whatsapp"
)

const defaultHistoryLimit = 20

// SessionLister reports the device identifiers that have stored credentials.
type SessionLister interface {
	List() ([]string, error)
}

type Controller struct {
	sessions typWhatsApp.Sessions
	stored   SessionLister
	journal  pkgWhatsApp.StatusJournal
	version  *pkgWhatsApp.VersionRefresher
}

func New(sessions typWhatsApp.Sessions, stored SessionLister, journal pkgWhatsApp.StatusJournal, version *pkgWhatsApp.VersionRefresher) *Controller {
	return &Controller{
		sessions: sessions,
		stored:   stored,
		journal:  journal,
		version:  version,
	}
}

// IssueToken
// @Summary     Issue Device Token
// @Description Signs a bearer token for one device, or for every device with deviceId "*"
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Param       X-Admin-Secret header string                        true "Admin secret key"
// @Param       body           body   typWhatsApp.RequestIssueToken true "Token request"
// @Success     201
// @Failure     400
// @Failure     401
// @Failure     500
// @Router      /admin/tokens [post]
func (ctl *Controller) IssueToken(c *fiber.Ctx) error {
	var reqToken typWhatsApp.RequestIssueToken
	if err := c.BodyParser(&reqToken); err != nil {
		return router.ResponseBadRequest(c, "Invalid request body")
	}
	if reqToken.DeviceID != auth.AllDevices {
		if err := pkgWhatsApp.ValidateDeviceID(reqToken.DeviceID); err != nil {
			return router.ResponseError(c, err)
		}
	}
	if reqToken.TTLSeconds < 0 {
		return router.ResponseBadRequest(c, "ttlSeconds must not be negative")
	}

	token, expiresAt, err := auth.GenerateDeviceToken(reqToken.DeviceID, time.Duration(reqToken.TTLSeconds)*time.Second)
	if err != nil {
		if errors.Is(err, auth.ErrJWTNotConfigured) {
			return router.ResponseInternalError(c, "JWT secret key not configured")
		}
		return router.ResponseInternalError(c, "Failed to sign token: "+err.Error())
	}

	log.Print(c).WithField("device_id", reqToken.DeviceID).Info("Device token issued")
	return router.ResponseCreatedWithData(c, "Token issued", typWhatsApp.ResponseToken{
		DeviceID:  reqToken.DeviceID,
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// Health
// @Summary     Gateway Health
// @Description Registry summary by status, stored session count and journal backend
// @Tags        Admin
// @Produce     json
// @Param       X-Admin-Secret header string true "Admin secret key"
// @Success     200
// @Failure     401
// @Router      /admin/health [get]
func (ctl *Controller) Health(c *fiber.Ctx) error {
	devices := ctl.sessions.ListDevices()

	resHealth := typWhatsApp.ResponseHealth{
		Devices:  len(devices),
		ByStatus: make(map[pkgWhatsApp.Status]int),
		Journal:  ctl.journal.Backend(),
	}
	for _, d := range devices {
		resHealth.ByStatus[d.Status]++
	}
	if ctl.version != nil {
		resHealth.WhatsAppWeb = ctl.version.Status()
	}

	stored, err := ctl.stored.List()
	if err != nil {
		log.Print(c).WithError(err).Warn("Failed to list stored sessions")
	}
	resHealth.StoredSessions = len(stored)

	return router.ResponseSuccessWithData(c, "Gateway health", resHealth)
}

// History
// @Summary     Device Status History
// @Description Most recent lifecycle transitions of a device, newest first
// @Tags        Admin
// @Produce     json
// @Param       X-Admin-Secret header string true  "Admin secret key"
// @Param       deviceId       path   string true  "Device ID"
// @Param       limit          query  int    false "Maximum entries (default 20, max 50)"
// @Success     200
// @Failure     400
// @Failure     401
// @Router      /admin/devices/{deviceId}/history [get]
func (ctl *Controller) History(c *fiber.Ctx) error {
	deviceID := c.Params("deviceId")
	if err := pkgWhatsApp.ValidateDeviceID(deviceID); err != nil {
		return router.ResponseError(c, err)
	}

	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	entries, err := ctl.journal.History(c.UserContext(), deviceID, limit)
	if err != nil {
		return router.ResponseInternalError(c, "Failed to read status history: "+err.Error())
	}

	return router.ResponseSuccessWithData(c, "Device status history", entries)
}

// Version
// @Summary     WhatsApp Web Version
// @Tags        Admin
// @Produce     json
// @Param       X-Admin-Secret header string true "Admin secret key"
// @Success     200
// @Router      /admin/whatsapp/version [get]
func (ctl *Controller) Version(c *fiber.Ctx) error {
	return router.ResponseSuccessWithData(c, "WhatsApp Web version", ctl.version.Status())
}

// RefreshVersion
// @Summary     Refresh WhatsApp Web Version
// @Description Fetches the latest version now; later connections advertise it
// @Tags        Admin
// @Produce     json
// @Param       X-Admin-Secret header string true "Admin secret key"
// @Success     200
// @Failure     502
// @Router      /admin/whatsapp/version/refresh [post]
func (ctl *Controller) RefreshVersion(c *fiber.Ctx) error {
	status, _, err := ctl.version.Refresh(c.UserContext(), true)
	if err != nil {
		return router.ResponseBadGateway(c, "Failed to refresh WhatsApp Web version: "+err.Error())
	}
	return router.ResponseSuccessWithData(c, "WhatsApp Web version refreshed", status)
}
