package groups

import (
	"fmt"
	"time"

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

// Create
// @Summary     Create Group
// @Tags        Group
// @Accept      json
// @Produce     json
// @Param       deviceId path string                         true "Device ID"
// @Param       body     body typWhatsApp.RequestCreateGroup true "Group name and participants"
// @Success     200
// @Failure     400
// @Failure     500
// @Router      /create-group/{deviceId} [post]
func (ctl *Controller) Create(c *fiber.Ctx) error {
	deviceID := c.Params("deviceId")

	handle, err := ctl.sessions.GetHandle(deviceID)
	if err != nil {
		return router.ResponseError(c, err)
	}

	var reqCreate typWhatsApp.RequestCreateGroup
	if err := c.BodyParser(&reqCreate); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}
	if err := validation.ValidateRequired("groupName", reqCreate.GroupName); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	if err := validation.ValidatePhones("participants", reqCreate.Participants); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	group, err := handle.GroupCreate(c.UserContext(), reqCreate.GroupName, reqCreate.Participants)
	if err != nil {
		log.Op(deviceID, "CreateGroup").WithError(err).Error("Failed to create group")
		return router.ResponseError(c, err)
	}

	log.Op(deviceID, "CreateGroup").WithField("group_id", group.ID).Info("Group created")
	return router.ResponseSuccessWithData(c, "Group created", typWhatsApp.ResponseGroupCreated{
		GroupID: group.ID,
		Group:   group,
	})
}

func (ctl *Controller) updateParticipants(c *fiber.Ctx, action pkgWhatsApp.ParticipantAction, message string) error {
	deviceID := c.Params("deviceId")

	handle, err := ctl.sessions.GetHandle(deviceID)
	if err != nil {
		return router.ResponseError(c, err)
	}

	var reqParticipants typWhatsApp.RequestGroupParticipants
	if err := c.BodyParser(&reqParticipants); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}
	if err := validation.ValidateRequired("groupId", reqParticipants.GroupID); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	if err := validation.ValidatePhones("participants", reqParticipants.Participants); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	results, err := handle.GroupUpdateParticipants(c.UserContext(), reqParticipants.GroupID, reqParticipants.Participants, action)
	if err != nil {
		log.Op(deviceID, "UpdateGroupParticipants").WithField("action", action).WithError(err).Error("Failed to update participants")
		return router.ResponseError(c, err)
	}

	return router.ResponseSuccessWithData(c, message, typWhatsApp.ResponseParticipants{
		GroupID:      reqParticipants.GroupID,
		Participants: results,
	})
}

// AddParticipants
// @Summary     Add Group Participants
// @Tags        Group
// @Accept      json
// @Produce     json
// @Param       deviceId path string                               true "Device ID"
// @Param       body     body typWhatsApp.RequestGroupParticipants true "Group and participants"
// @Success     200
// @Failure     400
// @Failure     500
// @Router      /add-group-participant/{deviceId} [post]
func (ctl *Controller) AddParticipants(c *fiber.Ctx) error {
	return ctl.updateParticipants(c, pkgWhatsApp.ParticipantAdd, "Participants added")
}

// RemoveParticipants
// @Summary     Remove Group Participants
// @Tags        Group
// @Accept      json
// @Produce     json
// @Param       deviceId path string                               true "Device ID"
// @Param       body     body typWhatsApp.RequestGroupParticipants true "Group and participants"
// @Success     200
// @Failure     400
// @Failure     500
// @Router      /remove-group-participant/{deviceId} [post]
func (ctl *Controller) RemoveParticipants(c *fiber.Ctx) error {
	return ctl.updateParticipants(c, pkgWhatsApp.ParticipantRemove, "Participants removed")
}

// Info
// @Summary     Get Group Info
// @Tags        Group
// @Produce     json
// @Param       deviceId path string true "Device ID"
// @Param       groupId  path string true "Group ID, bare or with @g.us"
// @Success     200
// @Failure     400
// @Failure     500
// @Router      /group-info/{deviceId}/{groupId} [get]
func (ctl *Controller) Info(c *fiber.Ctx) error {
	deviceID := c.Params("deviceId")

	handle, err := ctl.sessions.GetHandle(deviceID)
	if err != nil {
		return router.ResponseError(c, err)
	}

	group, err := handle.GroupMetadata(c.UserContext(), c.Params("groupId"))
	if err != nil {
		return router.ResponseError(c, err)
	}

	return router.ResponseSuccessWithData(c, "Success get group info", group)
}

// Leave
// @Summary     Leave Group
// @Tags        Group
// @Accept      json
// @Produce     json
// @Param       deviceId path string                        true "Device ID"
// @Param       body     body typWhatsApp.RequestLeaveGroup true "Group"
// @Success     200
// @Failure     400
// @Failure     500
// @Router      /leave-group/{deviceId} [post]
func (ctl *Controller) Leave(c *fiber.Ctx) error {
	deviceID := c.Params("deviceId")

	handle, err := ctl.sessions.GetHandle(deviceID)
	if err != nil {
		return router.ResponseError(c, err)
	}

	var reqLeave typWhatsApp.RequestLeaveGroup
	if err := c.BodyParser(&reqLeave); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}
	if err := validation.ValidateRequired("groupId", reqLeave.GroupID); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	if err := handle.GroupLeave(c.UserContext(), reqLeave.GroupID); err != nil {
		log.Op(deviceID, "LeaveGroup").WithError(err).Error("Failed to leave group")
		return router.ResponseError(c, err)
	}

	return router.ResponseSuccess(c, "Left the group")
}

// List
// @Summary     List Joined Groups
// @Tags        Group
// @Produce     json
// @Param       deviceId path string true "Device ID"
// @Success     200
// @Failure     400
// @Failure     500
// @Router      /list-groups/{deviceId} [get]
func (ctl *Controller) List(c *fiber.Ctx) error {
	start := time.Now()
	deviceID := c.Params("deviceId")

	handle, err := ctl.sessions.GetHandle(deviceID)
	if err != nil {
		return router.ResponseError(c, err)
	}

	groups, err := handle.ListGroups(c.UserContext())
	if err != nil {
		log.Op(deviceID, "ListGroups").WithError(err).Error("Failed to list groups")
		return router.ResponseError(c, err)
	}

	log.Op(deviceID, "ListGroups").
		WithField("group_count", len(groups)).
		WithField("duration_ms", time.Since(start).Milliseconds()).
		Debug("Groups listed")
	return router.ResponseSuccessWithData(c, fmt.Sprintf("Success get %d groups", len(groups)), groups)
}
