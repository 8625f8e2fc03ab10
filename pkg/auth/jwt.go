package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AllDevices as the device_id claim grants access to every device.
const AllDevices = "*"

var ErrJWTNotConfigured = errors.New("JWT_SECRET_KEY not configured")

type DeviceTokenClaims struct {
	DeviceID string `json:"device_id"`
	jwt.RegisteredClaims
}

// Allows reports whether the token may act on deviceID.
func (c *DeviceTokenClaims) Allows(deviceID string) bool {
	return c.DeviceID == AllDevices || c.DeviceID == deviceID
}

// GenerateDeviceToken signs a token scoped to deviceID. A zero ttl yields a
// token without expiry.
func GenerateDeviceToken(deviceID string, ttl time.Duration) (string, *time.Time, error) {
	if JWTSecretKey == "" {
		return "", nil, ErrJWTNotConfigured
	}

	now := time.Now()
	claims := DeviceTokenClaims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   deviceID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	var expiresAt *time.Time
	if ttl > 0 {
		exp := now.Add(ttl)
		expiresAt = &exp
		claims.ExpiresAt = jwt.NewNumericDate(exp)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(JWTSecretKey))
	if err != nil {
		return "", nil, err
	}
	return signed, expiresAt, nil
}

func ValidateDeviceToken(tokenString string) (*DeviceTokenClaims, error) {
	if JWTSecretKey == "" {
		return nil, ErrJWTNotConfigured
	}

	token, err := jwt.ParseWithClaims(tokenString, &DeviceTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(JWTSecretKey), nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*DeviceTokenClaims); ok && token.Valid && claims.DeviceID != "" {
		return claims, nil
	}
	return nil, errors.New("invalid token claims")
}
