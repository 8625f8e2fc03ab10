package router

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-gateway/pkg/whatsapp"
)

type statusMapping struct {
	err     error
	code    int
	message string
}

var errorStatuses = []statusMapping{
	{whatsapp.ErrNotConnected, http.StatusBadRequest, "Device not connected"},
	{whatsapp.ErrAlreadyConnected, http.StatusBadRequest, "Device already connected"},
	{whatsapp.ErrQRTimeout, http.StatusNotFound, "QR not available or already connected"},
	{whatsapp.ErrDeviceNotFound, http.StatusNotFound, "Device not found"},
	{whatsapp.ErrInvalidDeviceID, http.StatusBadRequest, ""},
	{whatsapp.ErrInvalidNumber, http.StatusBadRequest, ""},
	{whatsapp.ErrInvalidGroupID, http.StatusBadRequest, ""},
	{whatsapp.ErrInvalidEmoji, http.StatusBadRequest, ""},
	{whatsapp.ErrInvalidButton, http.StatusBadRequest, ""},
	{whatsapp.ErrMediaTooLarge, http.StatusRequestEntityTooLarge, ""},
	{whatsapp.ErrMediaURLNotAllowed, http.StatusBadRequest, ""},
	{whatsapp.ErrManagerClosed, http.StatusServiceUnavailable, ""},
}

// ErrorResponse builds the envelope for err. Upstream failures keep their
// cause in Details.
func ErrorResponse(err error) Response {
	resp := Response{
		Status:  false,
		Code:    http.StatusInternalServerError,
		Message: err.Error(),
	}

	var fiberErr *fiber.Error
	var upstreamErr *whatsapp.UpstreamError
	switch {
	case errors.As(err, &fiberErr):
		resp.Code = fiberErr.Code
		resp.Message = fiberErr.Message
	case errors.As(err, &upstreamErr):
		resp.Message = "Failed to " + upstreamErr.Op
		resp.Details = upstreamErr.Err.Error()
	default:
		for _, m := range errorStatuses {
			if errors.Is(err, m.err) {
				resp.Code = m.code
				if m.message != "" {
					resp.Message = m.message
				}
				break
			}
		}
	}

	resp.Error = resp.Message
	return resp
}

func HttpErrorHandler(c *fiber.Ctx, err error) error {
	response := ErrorResponse(err)
	logError(c, response.Code, fmt.Sprintf("%v", err))
	return c.Status(response.Code).JSON(response)
}

// ResponseError writes the mapped error envelope for err.
func ResponseError(c *fiber.Ctx, err error) error {
	return HttpErrorHandler(c, err)
}
