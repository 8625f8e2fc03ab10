package device

import (
	"html/template"
	"strings"

	"github.com/gofiber/fiber/v2"

	typWhatsApp "github.com/gdbrns/go-whatsapp-gateway/internal/types"
	"github.com/gdbrns/go-whatsapp-gateway/pkg/log"
	"github.com/gdbrns/go-whatsapp-gateway/pkg/router"
	pkgWhatsApp "github.com/gdbrns/go-whatsapp-gateway/pkg/whatsapp"
)

var qrPage = template.Must(template.New("qr").Parse(`<html>
	<head>
		<title>WhatsApp Multi-Device Login</title>
		<meta name="viewport" content="width=device-width, initial-scale=1, shrink-to-fit=no" />
	</head>
	<body>
		<img src="{{.QRCode}}" />
		<p>
			<b>QR Code Scan</b>
			<br/>
			Device {{.DeviceID}}
		</p>
	</body>
</html>
`))

type Controller struct {
	sessions typWhatsApp.Sessions
}

func New(sessions typWhatsApp.Sessions) *Controller {
	return &Controller{sessions: sessions}
}

// QR
// @Summary     Generate QR Code for Pairing
// @Description Connects the device if needed and waits for its pairing QR code
// @Tags        Device
// @Produce     json,html
// @Param       deviceId path  string true  "Device ID"
// @Param       output   query string false "json (default) or html"
// @Success     200
// @Failure     400
// @Failure     404
// @Router      /qr/{deviceId} [get]
func (ctl *Controller) QR(c *fiber.Ctx) error {
	deviceID := c.Params("deviceId")

	code, err := ctl.sessions.WaitForQR(c.UserContext(), deviceID)
	if err != nil {
		return router.ResponseError(c, err)
	}

	qrCode, err := pkgWhatsApp.QRDataURL(code)
	if err != nil {
		return router.ResponseInternalError(c, "Error generating QR code")
	}

	resQR := typWhatsApp.ResponseQR{DeviceID: deviceID, QRCode: qrCode}

	if strings.EqualFold(strings.TrimSpace(c.Query("output")), "html") {
		page := struct {
			DeviceID string
			QRCode   template.URL
		}{deviceID, template.URL(qrCode)}

		var sb strings.Builder
		if err := qrPage.Execute(&sb, page); err != nil {
			return router.ResponseInternalError(c, err.Error())
		}
		return router.ResponseSuccessWithHTML(c, sb.String())
	}

	return router.ResponseSuccessWithData(c, "Success Generate QR Code", resQR)
}

// Status
// @Summary     Get Device Status
// @Tags        Device
// @Produce     json
// @Param       deviceId path string true "Device ID"
// @Success     200
// @Failure     404
// @Router      /status/{deviceId} [get]
func (ctl *Controller) Status(c *fiber.Ctx) error {
	deviceID := c.Params("deviceId")

	status, ok := ctl.sessions.GetStatus(deviceID)
	if !ok {
		return router.ResponseError(c, pkgWhatsApp.ErrDeviceNotFound)
	}

	return router.ResponseSuccessWithData(c, "Device status", typWhatsApp.ResponseStatus{
		DeviceID:    deviceID,
		Status:      status,
		IsConnected: status == pkgWhatsApp.StatusConnected,
	})
}

// Devices
// @Summary     List Devices
// @Description Lists every device known to the registry and which of them are connected
// @Tags        Device
// @Produce     json
// @Success     200
// @Router      /devices [get]
func (ctl *Controller) Devices(c *fiber.Ctx) error {
	devices := ctl.sessions.ListDevices()

	resDevices := typWhatsApp.ResponseDevices{
		ConnectedDevices: make([]string, 0, len(devices)),
		Devices:          devices,
	}
	for _, d := range devices {
		if d.IsConnected {
			resDevices.ConnectedDevices = append(resDevices.ConnectedDevices, d.DeviceID)
		}
	}

	return router.ResponseSuccessWithData(c, "Success get device list", resDevices)
}

// Reconnect
// @Summary     Reconnect Device
// @Description Closes the live connection and connects again with the stored credentials
// @Tags        Device
// @Produce     json
// @Param       deviceId path string true "Device ID"
// @Success     200
// @Failure     404
// @Router      /reconnect/{deviceId} [get]
func (ctl *Controller) Reconnect(c *fiber.Ctx) error {
	deviceID := c.Params("deviceId")

	if _, err := ctl.sessions.Reconnect(c.UserContext(), deviceID); err != nil {
		return router.ResponseError(c, err)
	}

	return router.ResponseSuccess(c, "Reconnecting device "+deviceID+"...")
}

// Disconnect
// @Summary     Disconnect Device
// @Description Logs the device out and deletes its stored credentials
// @Tags        Device
// @Produce     json
// @Param       deviceId path string true "Device ID"
// @Success     200
// @Failure     404
// @Router      /disconnect/{deviceId} [get]
func (ctl *Controller) Disconnect(c *fiber.Ctx) error {
	deviceID := c.Params("deviceId")

	if err := ctl.sessions.Disconnect(c.UserContext(), deviceID); err != nil {
		return router.ResponseError(c, err)
	}

	log.Print(c).WithField("device_id", deviceID).Info("Device logged out by request")
	return router.ResponseSuccess(c, "Device "+deviceID+" disconnected")
}
