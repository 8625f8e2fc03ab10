package log

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/gdbrns/go-whatsapp-gateway/pkg/env"
)

var logger = logrus.New()

func init() {
	level, err := logrus.ParseLevel(env.GetEnvStringOrDefault("LOG_LEVEL", "info"))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(env.GetEnvStringOrDefault("LOG_FORMAT", "text"), "json") {
		logger.Formatter = &logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		}
		return
	}
	logger.Formatter = &logrus.TextFormatter{
		TimestampFormat: time.RFC3339,
		FullTimestamp:   true,
		ForceColors:     true,
	}
}

// Logger exposes the process logger for wiring third-party sinks.
func Logger() *logrus.Logger {
	return logger
}

func Print(c *fiber.Ctx) *logrus.Entry {
	if c == nil {
		return logger.WithFields(logrus.Fields{})
	}

	remoteIP := c.IP()
	if v, ok := c.Locals("remote_ip").(string); ok && v != "" {
		remoteIP = v
	}
	fields := logrus.Fields{
		"remote_ip": remoteIP,
		"method":    c.Method(),
		"uri":       c.OriginalURL(),
	}
	if v, ok := c.Locals("request_id").(string); ok && v != "" {
		fields["request_id"] = v
	}
	return logger.WithFields(fields)
}

// Device returns an entry tagged with the device identifier.
func Device(deviceID string) *logrus.Entry {
	return logger.WithField("device_id", deviceID)
}

// Op tags an entry with the device and the operation being delegated to it.
func Op(deviceID string, op string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"device_id": deviceID,
		"op":        op,
	})
}
