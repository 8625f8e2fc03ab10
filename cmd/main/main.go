package main

// @title Go WhatsApp Multi-Device Gateway
// @version 2.0.0
// @description Multi-tenant WhatsApp gateway. Each device is an independent WhatsApp session paired by QR code and recovered from its stored credentials on restart.

// @contact.name gdbrns
// @contact.url https://github.com/gdbrns/go-whatsapp-gateway

// @license.name MIT
// @license.url https://github.com/gdbrns/go-whatsapp-gateway/blob/main/LICENSE

// @host localhost:3000
// @BasePath /

// @securityDefinitions.apikey AdminAuth
// @in header
// @name X-Admin-Secret
// @description Admin secret key for issuing device tokens

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token scoped to a device, enforced when JWT_SECRET_KEY is set

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	cron "github.com/robfig/cron/v3"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"

	"github.com/gdbrns/go-whatsapp-gateway/pkg/env"
	"github.com/gdbrns/go-whatsapp-gateway/pkg/log"
	"github.com/gdbrns/go-whatsapp-gateway/pkg/router"
	pkgWhatsApp "github.com/gdbrns/go-whatsapp-gateway/pkg/whatsapp"

	"github.com/gdbrns/go-whatsapp-gateway/internal"
	"github.com/gdbrns/go-whatsapp-gateway/internal/webhook"
)

type Server struct {
	Address string
	Port    string
}

func openJournal(ctx context.Context) pkgWhatsApp.StatusJournal {
	var journal pkgWhatsApp.StatusJournal = pkgWhatsApp.NewMemoryJournal(0)

	if dsn := env.GetEnvStringOrDefault("DATABASE_URL", ""); dsn != "" {
		pgJournal, err := pkgWhatsApp.OpenPostgresJournal(ctx, dsn)
		if err != nil {
			log.Print(nil).WithError(err).Error("Failed to open status journal, falling back to memory")
		} else {
			journal = pgJournal
		}
	}

	cfg := webhook.ConfigFromEnv()
	if cfg.URL == "" {
		return journal
	}
	engine, err := webhook.NewEngine(cfg)
	if err != nil {
		log.Print(nil).WithError(err).Error("Status webhook disabled")
		return journal
	}
	log.Print(nil).WithField("workers", cfg.Workers).Info("Status webhook enabled")
	return webhook.NewJournal(journal, engine)
}

func main() {
	var err error

	ctxStartup, cancelStartup := context.WithCancel(context.Background())
	defer cancelStartup()

	// Initialize Credential Store
	creds, err := pkgWhatsApp.NewCredentialStore(env.GetEnvStringOrDefault("WHATSAPP_AUTH_DIR", "auth"))
	if err != nil {
		log.Print(nil).Fatal("Failed to prepare credential directory: " + err.Error())
	}

	// Initialize Lifecycle Manager
	journal := openJournal(ctxStartup)
	dialer := pkgWhatsApp.NewWhatsmeowDialer(pkgWhatsApp.ClientConfig{
		LogLevel:          env.GetEnvStringOrDefault("WHATSAPP_LOG_LEVEL", "WARN"),
		ProxyURL:          env.GetEnvStringOrDefault("WHATSAPP_PROXY_URL", ""),
		MediaFetchTimeout: env.GetEnvDurationOrDefault("WHATSAPP_MEDIA_FETCH_TIMEOUT", 30*time.Second),
		MediaMaxBytes:     int64(env.GetEnvSizeOrDefault("WHATSAPP_MEDIA_MAX_BYTES", 16<<20)),

		MediaAllowPrivateNetwork: env.GetEnvBoolOrDefault("WHATSAPP_MEDIA_ALLOW_PRIVATE_NETWORK", false),
	})
	manager := pkgWhatsApp.NewManager(pkgWhatsApp.ManagerConfig{
		ReconnectDelay:      env.GetEnvDurationOrDefault("WHATSAPP_RECONNECT_DELAY", pkgWhatsApp.DefaultReconnectDelay),
		QRPollInterval:      env.GetEnvDurationOrDefault("WHATSAPP_QR_POLL_INTERVAL", pkgWhatsApp.DefaultQRPollInterval),
		QRPollAttempts:      env.GetEnvIntOrDefault("WHATSAPP_QR_POLL_ATTEMPTS", pkgWhatsApp.DefaultQRPollAttempts),
		RecoveryConcurrency: env.GetEnvIntOrDefault("WHATSAPP_STARTUP_RECOVERY_CONCURRENCY", pkgWhatsApp.DefaultRecoveryConcurrency),
	}, pkgWhatsApp.NewRegistry(), creds, dialer, journal)

	deps := internal.Dependencies{
		Manager:     manager,
		Credentials: creds,
		Journal:     journal,
		Version:     pkgWhatsApp.NewVersionRefresher(env.GetEnvDurationOrDefault("WHATSAPP_WAVERSION_REFRESH_MIN_INTERVAL", 10*time.Minute)),
		SendLimiter: router.NewRateLimiter(
			env.GetEnvIntOrDefault("WHATSAPP_SEND_RATE_PER_MINUTE", 60),
			env.GetEnvIntOrDefault("WHATSAPP_SEND_RATE_BURST", 10),
		),
	}

	// Intialize Cron
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DiscardLogger),
	), cron.WithSeconds())

	// Initialize Fiber
	app := fiber.New(fiber.Config{
		ErrorHandler:   router.HttpErrorHandler,
		BodyLimit:      router.BodyLimitBytes(),
		ReadBufferSize: 8192, // JWT bearer tokens push headers past the 4096 default
	})

	// Request ID + panic recovery (structured JSON)
	app.Use(router.HttpRequestID())
	app.Use(router.RecoveryMiddleware())

	// Router Compression
	app.Use(compress.New(compress.Config{
		Level: compress.Level(router.GZipLevel),
		Next: func(c *fiber.Ctx) bool {
			return strings.Contains(c.Path(), "docs")
		},
	}))

	// Router CORS
	app.Use(cors.New(cors.Config{
		AllowOrigins: router.CORSOrigin,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Admin-Secret, X-Request-ID",
		AllowMethods: "GET,POST",
	}))

	// Router Security
	app.Use(helmet.New(helmet.Config{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
	}))

	// Router RealIP + request context enrichment
	app.Use(router.HttpRealIP())

	// Router Default Handler
	app.Get("/favicon.ico", router.ResponseNoContent)

	// Load Internal Routes
	internal.Routes(app, deps)

	// Running Startup Tasks
	go internal.Startup(ctxStartup, deps)

	// Running Routines Tasks
	internal.Routines(c, deps)

	// Get Server Configuration with defaults
	var serverConfig Server

	// SERVER_ADDRESS: default "0.0.0.0" (all interfaces)
	serverConfig.Address = env.GetEnvStringOrDefault("SERVER_ADDRESS", "0.0.0.0")

	// SERVER_PORT: default "3000"
	serverConfig.Port = env.GetEnvStringOrDefault("SERVER_PORT", "3000")

	// Start Server
	go func() {
		if err := app.Listen(serverConfig.Address + ":" + serverConfig.Port); err != nil {
			log.Print(nil).Fatal(err.Error())
		}
	}()

	// Watch for Shutdown Signal
	sigShutdown := make(chan os.Signal, 1)
	signal.Notify(sigShutdown, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-sigShutdown
	cancelStartup()

	// Wait 5 Seconds Before Graceful Shutdown
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	// Try To Shutdown Server
	err = app.ShutdownWithContext(ctxShutdown)
	if err != nil {
		log.Print(nil).Error(err.Error())
	}

	// Try To Shutdown Cron
	<-c.Stop().Done()

	// Close Device Connections, keeping their credentials for the next start
	if err := manager.Shutdown(ctxShutdown); err != nil {
		log.Print(nil).WithError(err).Warn("Device connections did not close in time")
	}

	if err := journal.Close(); err != nil {
		log.Print(nil).WithError(err).Warn("Failed to close status journal")
	}
}
