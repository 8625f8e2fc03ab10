package internal

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/gdbrns/go-whatsapp-gateway/pkg/env"
	"github.com/gdbrns/go-whatsapp-gateway/pkg/log"
	pkgWhatsApp "github.com/gdbrns/go-whatsapp-gateway/pkg/whatsapp"
)

func jitterSleep(ctx context.Context, max time.Duration) {
	if max <= 0 {
		return
	}
	d := time.Duration(rand.Int64N(int64(max) + 1))
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// Startup reconnects every device with stored credentials. A device that
// fails to connect is logged and skipped.
func Startup(ctx context.Context, deps Dependencies) pkgWhatsApp.RecoveryReport {
	log.Print(nil).Info("Running Startup Tasks")

	jitterSleep(ctx, env.GetEnvDurationOrDefault("WHATSAPP_STARTUP_JITTER_MAX", 0))

	report := deps.Manager.AutoRecoverOnStartup(ctx)
	log.Print(nil).
		WithField("found", report.Found).
		WithField("recovered", len(report.Recovered)).
		WithField("failed", len(report.Failed)).
		Info("Startup reconnect pass complete")
	return report
}
