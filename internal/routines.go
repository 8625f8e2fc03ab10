package internal

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gdbrns/go-whatsapp-gateway/pkg/env"
	"github.com/gdbrns/go-whatsapp-gateway/pkg/log"
	pkgWhatsApp "github.com/gdbrns/go-whatsapp-gateway/pkg/whatsapp"
)

const limiterIdleTTL = 30 * time.Minute

// HealthReport is the outcome of one health check pass.
type HealthReport struct {
	Checked int
	Stale   []string
}

// CheckHealth flags devices marked connected whose transport has gone away.
// The lifecycle manager resolves those through its own close events; this
// only makes them visible in the logs.
func CheckHealth(manager *pkgWhatsApp.Manager) HealthReport {
	var report HealthReport
	for _, rec := range manager.Registry().Records() {
		report.Checked++
		entry := log.Device(rec.DeviceID).WithField("status", rec.Status)
		if rec.IsConnected && !rec.Handle.IsOpen() {
			report.Stale = append(report.Stale, rec.DeviceID)
			entry.Warn("Client unhealthy: marked connected but transport is closed")
			continue
		}
		entry.Debug("Client checked")
	}
	return report
}

func Routines(c *cron.Cron, deps Dependencies) {
	log.Print(nil).Info("Running Routine Tasks")

	if env.GetEnvBoolOrDefault("WHATSAPP_ENABLE_HEALTH_CHECK_CRON", true) {
		spec := env.GetEnvStringOrDefault("WHATSAPP_HEALTH_CHECK_CRON_SPEC", "0 */1 * * * *")
		_, err := c.AddFunc(spec, func() {
			report := CheckHealth(deps.Manager)
			pruned := 0
			if deps.SendLimiter != nil {
				pruned = deps.SendLimiter.Prune(limiterIdleTTL)
			}
			if report.Checked == 0 && pruned == 0 {
				return
			}
			log.Print(nil).
				WithField("checked", report.Checked).
				WithField("stale", len(report.Stale)).
				WithField("limiters_pruned", pruned).
				Info("Health check completed")
		})
		if err != nil {
			log.Print(nil).WithField("error", err.Error()).Error("Failed to add health check cron job")
		}
	} else {
		log.Print(nil).Info("Health check cron disabled; relying on connection events")
	}

	if env.GetEnvBoolOrDefault("WHATSAPP_ENABLE_WAVERSION_REFRESH_CRON", false) && deps.Version != nil {
		spec := env.GetEnvStringOrDefault("WHATSAPP_WAVERSION_REFRESH_CRON_SPEC", "0 0 3 * * *")
		force := env.GetEnvBoolOrDefault("WHATSAPP_WAVERSION_REFRESH_CRON_FORCE", false)
		_, err := c.AddFunc(spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			status, refreshed, err := deps.Version.Refresh(ctx, force)
			if err != nil {
				log.Print(nil).WithField("version", status.CurrentVersion).WithField("force", force).Error("WA Web version refresh failed: " + err.Error())
				return
			}
			log.Print(nil).WithField("version", status.CurrentVersion).WithField("refreshed", refreshed).WithField("force", force).Info("WA Web version refresh completed")
		})
		if err != nil {
			log.Print(nil).WithField("error", err.Error()).Error("Failed to add WA Web version refresh cron job")
		} else {
			log.Print(nil).WithField("spec", spec).WithField("force", force).Info("WA Web version refresh cron enabled")
		}
	}

	c.Start()
}
