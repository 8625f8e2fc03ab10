package auth

import (
	"github.com/gdbrns/go-whatsapp-gateway/pkg/env"
)

// AdminSecretKey guards /admin/*. Admin routes refuse to serve when empty.
var AdminSecretKey string

// JWTSecretKey signs device tokens. Device routes are open when empty.
var JWTSecretKey string

func init() {
	AdminSecretKey = env.GetEnvStringOrDefault("ADMIN_SECRET_KEY", "")
	JWTSecretKey = env.GetEnvStringOrDefault("JWT_SECRET_KEY", "")
}
