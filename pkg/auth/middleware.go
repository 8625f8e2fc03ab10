package auth

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-gateway/pkg/router"
)

// AdminAuth validates the X-Admin-Secret header for admin endpoints.
func AdminAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		adminSecret := c.Get("X-Admin-Secret")
		if adminSecret == "" {
			return router.ResponseUnauthorized(c, "Missing X-Admin-Secret header")
		}

		if AdminSecretKey == "" {
			return router.ResponseInternalError(c, "Admin secret key not configured")
		}

		if subtle.ConstantTimeCompare([]byte(adminSecret), []byte(AdminSecretKey)) != 1 {
			return router.ResponseUnauthorized(c, "Invalid admin secret")
		}

		return c.Next()
	}
}

// DeviceAuth requires "Authorization: Bearer <token>" whose device_id claim
// covers the :deviceId route param. Routes without that param need a "*"
// token. It is a pass-through while no JWT secret is configured.
func DeviceAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if JWTSecretKey == "" {
			return c.Next()
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return router.ResponseUnauthorized(c, "Missing Authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
			return router.ResponseUnauthorized(c, "Invalid Authorization header format. Use: Bearer <token>")
		}

		claims, err := ValidateDeviceToken(strings.TrimSpace(parts[1]))
		if err != nil {
			return router.ResponseUnauthorized(c, "Invalid or expired token")
		}
		if !claims.Allows(c.Params("deviceId")) {
			return router.ResponseUnauthorized(c, "Token is not valid for this device")
		}

		c.Locals("token_device_id", claims.DeviceID)
		return c.Next()
	}
}
