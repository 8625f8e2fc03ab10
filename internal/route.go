package internal

import (
	"github.com/gofiber/fiber/v2"
	swagger "github.com/gofiber/swagger"

	"github.com/gdbrns/go-whatsapp-gateway/pkg/auth"
	"github.com/gdbrns/go-whatsapp-gateway/pkg/router"
	pkgWhatsApp "github.com/gdbrns/go-whatsapp-gateway/pkg/whatsapp"

	ctlAdmin "github.com/gdbrns/go-whatsapp-gateway/internal/admin"
	ctlDevice "github.com/gdbrns/go-whatsapp-gateway/internal/device"
	ctlGroups "github.com/gdbrns/go-whatsapp-gateway/internal/groups"
	ctlIndex "github.com/gdbrns/go-whatsapp-gateway/internal/index"
	ctlMessage "github.com/gdbrns/go-whatsapp-gateway/internal/message"
	ctlMessaging "github.com/gdbrns/go-whatsapp-gateway/internal/messaging"
)

// Dependencies are the long-lived objects built by the composition root and
// shared by the HTTP layer and the background routines.
type Dependencies struct {
	Manager     *pkgWhatsApp.Manager
	Credentials *pkgWhatsApp.CredentialStore
	Journal     pkgWhatsApp.StatusJournal
	Version     *pkgWhatsApp.VersionRefresher
	SendLimiter *router.RateLimiter
}

func Routes(app *fiber.App, deps Dependencies) {
	// Configure OpenAPI / Swagger
	specURL := router.BaseURL + "/docs/swagger.json"
	swaggerHandler := swagger.New(swagger.Config{
		URL: specURL,
	})

	// Route for Index
	// ---------------------------------------------
	if router.BaseURL == "" {
		app.Get("/", ctlIndex.Index)
	} else {
		app.Get(router.BaseURL, ctlIndex.Index)
		app.Get(router.BaseURL+"/", ctlIndex.Index)
	}

	// Route for OpenAPI / Swagger
	// ---------------------------------------------
	app.Get(router.BaseURL+"/docs/swagger.json", func(c *fiber.Ctx) error {
		return c.SendFile("docs/swagger.json")
	})
	app.Get(router.BaseURL+"/docs/*", swaggerHandler)

	// ============================================================
	// ADMIN ROUTES (X-Admin-Secret authentication)
	// ============================================================
	adminMiddleware := auth.AdminAuth()
	admin := ctlAdmin.New(deps.Manager, deps.Credentials, deps.Journal, deps.Version)

	app.Post(router.BaseURL+"/admin/tokens", adminMiddleware, admin.IssueToken)
	app.Get(router.BaseURL+"/admin/health", adminMiddleware, admin.Health)
	app.Get(router.BaseURL+"/admin/devices/:deviceId/history", adminMiddleware, admin.History)
	app.Get(router.BaseURL+"/admin/whatsapp/version", adminMiddleware, admin.Version)
	app.Post(router.BaseURL+"/admin/whatsapp/version/refresh", adminMiddleware, admin.RefreshVersion)

	// ============================================================
	// DEVICE OPERATIONS (JWT Bearer token when JWT_SECRET_KEY is set)
	// ============================================================
	deviceAuthMiddleware := auth.DeviceAuth()
	sendLimit := router.HttpRateLimitByParam(deps.SendLimiter, "deviceId")
	cached := router.HttpCacheInMemory(router.CacheTTLSeconds)

	device := ctlDevice.New(deps.Manager)
	message := ctlMessage.New(deps.Manager)
	groups := ctlGroups.New(deps.Manager)
	messaging := ctlMessaging.New(deps.Manager)

	// Device lifecycle
	app.Get(router.BaseURL+"/devices", deviceAuthMiddleware, device.Devices)
	app.Get(router.BaseURL+"/qr/:deviceId", deviceAuthMiddleware, device.QR)
	app.Get(router.BaseURL+"/status/:deviceId", deviceAuthMiddleware, device.Status)
	app.Get(router.BaseURL+"/reconnect/:deviceId", deviceAuthMiddleware, device.Reconnect)
	app.Get(router.BaseURL+"/disconnect/:deviceId", deviceAuthMiddleware, device.Disconnect)

	// Message routes
	app.Post(router.BaseURL+"/send-message/:deviceId", deviceAuthMiddleware, sendLimit, message.SendMessage)
	app.Post(router.BaseURL+"/send-button-image/:deviceId", deviceAuthMiddleware, sendLimit, message.SendButtonImage)
	app.Post(router.BaseURL+"/send-reaction/:deviceId", deviceAuthMiddleware, sendLimit, message.SendReaction)

	// Group routes
	app.Post(router.BaseURL+"/create-group/:deviceId", deviceAuthMiddleware, sendLimit, groups.Create)
	app.Post(router.BaseURL+"/add-group-participant/:deviceId", deviceAuthMiddleware, sendLimit, groups.AddParticipants)
	app.Post(router.BaseURL+"/remove-group-participant/:deviceId", deviceAuthMiddleware, sendLimit, groups.RemoveParticipants)
	app.Get(router.BaseURL+"/group-info/:deviceId/:groupId", deviceAuthMiddleware, cached, groups.Info)
	app.Post(router.BaseURL+"/leave-group/:deviceId", deviceAuthMiddleware, sendLimit, groups.Leave)
	app.Get(router.BaseURL+"/list-groups/:deviceId", deviceAuthMiddleware, cached, groups.List)

	// Chat routes
	app.Get(router.BaseURL+"/list-chats/:deviceId", deviceAuthMiddleware, cached, messaging.ListChats)
	app.Get(router.BaseURL+"/getall/chat/:deviceId", deviceAuthMiddleware, cached, messaging.ListChats)
}
