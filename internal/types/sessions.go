package types

import (
	"context"

	pkgWhatsApp "github.com/gdbrns/go-whatsapp-gateway/pkg/whatsapp"
)

// Sessions is the slice of the lifecycle manager the HTTP controllers use.
// *whatsapp.Manager satisfies it.
type Sessions interface {
	WaitForQR(ctx context.Context, deviceID string) (string, error)
	GetStatus(deviceID string) (pkgWhatsApp.Status, bool)
	GetHandle(deviceID string) (pkgWhatsApp.Handle, error)
	ListDevices() []pkgWhatsApp.DeviceInfo
	Reconnect(ctx context.Context, deviceID string) (pkgWhatsApp.Handle, error)
	Disconnect(ctx context.Context, deviceID string) error
}

var _ Sessions = (*pkgWhatsApp.Manager)(nil)
