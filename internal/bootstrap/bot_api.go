package bootstrap

import (
	"context"
	"time"

	"calendar_bot/adapter/in/http"
	"calendar_bot/config"
	"calendar_bot/infra/middleware"
	"calendar_bot/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
)

// webhookBodyLimit bounds a single WhatsApp delivery.
const webhookBodyLimit = 256 * 1024

func NewAPI(ctx context.Context, cfg *config.Config) (*fiber.App, func(), error) {
	deps, cleanup, err := NewDependencies(ctx, cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize dependencies")
		return nil, nil, err
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := deps.HealthCheck(checkCtx); err != nil {
		logger.WithError(err).Warn("Startup health check failed")
	}
	cancel()

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ServerHeader:          "",
		// Dispatch waits on the LLM, the calendar and WhatsApp in sequence.
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2*cfg.LLMTimeout() + 4*cfg.ExternalTimeout(),
		IdleTimeout:  60 * time.Second,
	})

	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.RequestLogger())

	healthHandler := http.NewHealthHandler(deps.Metrics).
		AddBreakers(deps.OpenAIGuard, deps.CalendarGuard, deps.WhatsAppGuard)
	if deps.SQLDB != nil {
		healthHandler.AddCheck("postgres", deps.DispatchLog)
	} else {
		healthHandler.AddCheck("postgres", nil)
	}
	if deps.Redis != nil {
		healthHandler.AddCheck("redis", deps.DedupStore)
	} else {
		healthHandler.AddCheck("redis", nil)
	}
	healthHandler.Register(app)

	app.Use("/webhook", middleware.MaxBodySize(webhookBodyLimit))
	app.Use("/api/webhook", middleware.MaxBodySize(webhookBodyLimit))

	webhookHandler := http.NewWebhookHandler(
		deps.Dispatcher,
		deps.DedupStore,
		deps.DispatchLog,
		deps.Metrics,
		http.WebhookConfig{
			VerifyToken: cfg.WhatsAppVerifyToken,
			AppSecret:   cfg.WhatsAppAppSecret,
			DedupTTL:    cfg.DedupTTL(),
		},
	)
	webhookHandler.Register(app)

	logger.Info("Routes registered: /webhook, /api/webhook, /health, /ready, /metrics")

	return app, cleanup, nil
}
