package messaging

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	typWhatsApp "github.com/gdbrns/go-whatsapp-gateway/internal/types"
	"github.com/gdbrns/go-whatsapp-gateway/pkg/log"
	"github.com/gdbrns/go-whatsapp-gateway/pkg/router"
)

type Controller struct {
	sessions typWhatsApp.Sessions
}

func New(sessions typWhatsApp.Sessions) *Controller {
	return &Controller{sessions: sessions}
}

// ListChats
// @Summary     List Chats
// @Description Lists the joined groups and stored contacts of a device
// @Tags        Chat
// @Produce     json
// @Param       deviceId path  string false "Device ID"
// @Param       groups   query bool   false "Only return group chats"
// @Success     200
// @Failure     400
// @Failure     500
// @Router      /list-chats/{deviceId} [get]
// @Router      /getall/chat/{deviceId} [get]
func (ctl *Controller) ListChats(c *fiber.Ctx) error {
	deviceID := c.Params("deviceId")

	handle, err := ctl.sessions.GetHandle(deviceID)
	if err != nil {
		return router.ResponseError(c, err)
	}

	chats, err := handle.ListChats(c.UserContext())
	if err != nil {
		log.Op(deviceID, "ListChats").WithError(err).Error("Failed to list chats")
		return router.ResponseError(c, err)
	}

	if c.QueryBool("groups", false) {
		groupsOnly := chats[:0]
		for _, chat := range chats {
			if chat.IsGroup {
				groupsOnly = append(groupsOnly, chat)
			}
		}
		chats = groupsOnly
	}

	return router.ResponseSuccessWithData(c, fmt.Sprintf("Success get %d chats", len(chats)), chats)
}
