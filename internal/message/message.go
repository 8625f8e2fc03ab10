package message

import (
	"github.com/gofiber/fiber/v2"

	typWhatsApp "github.com/gdbrns/go-whatsapp-gateway/internal/types"
	"github.com/gdbrns/go-whatsapp-gateway/pkg/log"
	"github.com/gdbrns/go-whatsapp-gateway/pkg/router"
	"github.com/gdbrns/go-whatsapp-gateway/pkg/validation"
	pkgWhatsApp "github.com/gdbrns/go-whatsapp-gateway/pkg/whatsapp"
)

type Controller struct {
	sessions typWhatsApp.Sessions
}

func New(sessions typWhatsApp.Sessions) *Controller {
	return &Controller{sessions: sessions}
}

// SendMessage
// @Summary     Send Text Message
// @Tags        Message
// @Accept      json
// @Produce     json
// @Param       deviceId path string                         true "Device ID"
// @Param       body     body typWhatsApp.RequestSendMessage true "Recipient and text"
// @Success     200
// @Failure     400
// @Failure     500
// @Router      /send-message/{deviceId} [post]
func (ctl *Controller) SendMessage(c *fiber.Ctx) error {
	deviceID := c.Params("deviceId")

	handle, err := ctl.sessions.GetHandle(deviceID)
	if err != nil {
		return router.ResponseError(c, err)
	}

	var reqSendMessage typWhatsApp.RequestSendMessage
	if err := c.BodyParser(&reqSendMessage); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}
	if err := validation.ValidatePhone(reqSendMessage.Number); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	if err := validation.ValidateText("message", reqSendMessage.Message); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	msgID, err := handle.SendText(c.UserContext(), reqSendMessage.Number, reqSendMessage.Message)
	if err != nil {
		log.Op(deviceID, "SendMessage").WithError(err).Error("Failed to send message")
		return router.ResponseError(c, err)
	}

	return router.ResponseSuccessWithData(c, "Message sent successfully", typWhatsApp.ResponseSent{MessageID: msgID})
}

// SendButtonImage
// @Summary     Send Image With Buttons
// @Description Sends an image fetched from imageUrl with the caption, footer and buttons rendered under it
// @Tags        Message
// @Accept      json
// @Produce     json
// @Param       deviceId path string                             true "Device ID"
// @Param       body     body typWhatsApp.RequestSendButtonImage true "Image message"
// @Success     200
// @Failure     400
// @Failure     500
// @Router      /send-button-image/{deviceId} [post]
func (ctl *Controller) SendButtonImage(c *fiber.Ctx) error {
	deviceID := c.Params("deviceId")

	handle, err := ctl.sessions.GetHandle(deviceID)
	if err != nil {
		return router.ResponseError(c, err)
	}

	var reqSendImage typWhatsApp.RequestSendButtonImage
	if err := c.BodyParser(&reqSendImage); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}
	if err := validation.ValidatePhone(reqSendImage.Number); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	if err := validation.ValidateURL(reqSendImage.ImageURL); err != nil {
		return router.ResponseBadRequest(c, "imageUrl: "+err.Error())
	}

	buttons := make([]pkgWhatsApp.Button, 0, len(reqSendImage.Buttons))
	for _, b := range reqSendImage.Buttons {
		buttons = append(buttons, b.Button())
	}
	buttons, err = pkgWhatsApp.ValidateButtons(buttons)
	if err != nil {
		return router.ResponseError(c, err)
	}

	msgID, err := handle.SendMedia(c.UserContext(), reqSendImage.Number, pkgWhatsApp.MediaMessage{
		ImageURL: reqSendImage.ImageURL,
		Caption:  reqSendImage.Message,
		Footer:   reqSendImage.Footer,
		Buttons:  buttons,
	})
	if err != nil {
		log.Op(deviceID, "SendButtonImage").WithError(err).Error("Failed to send image message")
		return router.ResponseError(c, err)
	}

	return router.ResponseSuccessWithData(c, "Message with image and buttons sent successfully", typWhatsApp.ResponseSent{MessageID: msgID})
}

// SendReaction
// @Summary     React To Message
// @Description Sends an emoji reaction to a message; an empty emoji removes the reaction
// @Tags        Message
// @Accept      json
// @Produce     json
// @Param       deviceId path string                          true "Device ID"
// @Param       body     body typWhatsApp.RequestSendReaction true "Reaction"
// @Success     200
// @Failure     400
// @Failure     500
// @Router      /send-reaction/{deviceId} [post]
func (ctl *Controller) SendReaction(c *fiber.Ctx) error {
	deviceID := c.Params("deviceId")

	handle, err := ctl.sessions.GetHandle(deviceID)
	if err != nil {
		return router.ResponseError(c, err)
	}

	var reqReaction typWhatsApp.RequestSendReaction
	if err := c.BodyParser(&reqReaction); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}
	if err := validation.ValidatePhone(reqReaction.Number); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	if err := validation.ValidateRequired("messageId", reqReaction.MessageID); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	if err := pkgWhatsApp.ValidateReactionEmoji(reqReaction.Emoji); err != nil {
		return router.ResponseError(c, err)
	}

	msgID, err := handle.SendReaction(c.UserContext(), reqReaction.Number, reqReaction.MessageID, reqReaction.Emoji)
	if err != nil {
		log.Op(deviceID, "SendReaction").WithError(err).Error("Failed to send reaction")
		return router.ResponseError(c, err)
	}

	return router.ResponseSuccessWithData(c, "Reaction sent successfully", typWhatsApp.ResponseSent{MessageID: msgID})
}
