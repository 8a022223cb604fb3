package bootstrap

import (
	"context"
	"time"

	"calendar_bot/adapter/out/persistence"
	"calendar_bot/adapter/out/provider"
	"calendar_bot/config"
	"calendar_bot/core/agent/llm"
	"calendar_bot/core/service/dispatch"
	"calendar_bot/infra/database"
	"calendar_bot/pkg/logger"
	"calendar_bot/pkg/metrics"
	"calendar_bot/pkg/resilience"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

type Dependencies struct {
	Config *config.Config
	SQLDB  *sqlx.DB
	Redis  *redis.Client

	// Guards
	OpenAIGuard   *resilience.Guard
	CalendarGuard *resilience.Guard
	WhatsAppGuard *resilience.Guard

	// Adapters
	LLMClient        *llm.Client
	CalendarProvider *provider.GoogleCalendarAdapter
	WhatsApp         *provider.WhatsAppAdapter
	DedupStore       *persistence.DedupAdapter
	DispatchLog      *persistence.DispatchLogAdapter

	// Services
	Dispatcher *dispatch.Dispatcher

	Metrics *metrics.WebhookMetrics
}

func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{
		Config:  cfg,
		Metrics: metrics.NewWebhookMetrics(),
	}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// Postgres audit log (optional)
	if cfg.DatabaseURL != "" {
		sqlDB, err := database.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			logger.Warn("Postgres connection failed, dispatch audit log disabled: %v", err)
		} else {
			deps.SQLDB = sqlDB
			cleanups = append(cleanups, func() { sqlDB.Close() })
			logger.Info("Postgres connected (dispatch audit log enabled)")
		}
	}
	deps.DispatchLog = persistence.NewDispatchLogAdapter(deps.SQLDB)
	if deps.SQLDB != nil {
		if err := deps.DispatchLog.EnsureSchema(ctx); err != nil {
			logger.WithError(err).Warn("Failed to ensure dispatch_log schema")
		}
	}

	// Redis webhook dedup (optional)
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedis(cfg.RedisURL)
		if err != nil {
			logger.Warn("Redis connection failed, webhook dedup disabled: %v", err)
		} else {
			deps.Redis = redisClient
			cleanups = append(cleanups, func() { redisClient.Close() })
			logger.Info("Redis connected (webhook dedup enabled, ttl=%v)", cfg.DedupTTL())
		}
	}
	deps.DedupStore = persistence.NewDedupAdapter(deps.Redis)

	// Guards
	deps.OpenAIGuard = newGuard("openai", cfg.LLMTimeout(), cfg.ExternalMaxRetries)
	deps.CalendarGuard = newGuard("google_calendar", cfg.ExternalTimeout(), cfg.ExternalMaxRetries)
	deps.WhatsAppGuard = newGuard("whatsapp", cfg.ExternalTimeout(), cfg.ExternalMaxRetries)

	// LLM
	deps.LLMClient = llm.NewClientWithConfig(llm.ClientConfig{
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.LLMModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
		Location:    cfg.Location(),
		Guard:       deps.OpenAIGuard,
	})
	logger.Info("LLM client initialized (model=%s)", cfg.LLMModel)

	// Google Calendar
	oauthCfg, err := provider.LoadOAuthConfig(cfg.GoogleCredentialsFile)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	tok, err := provider.LoadToken(cfg.GoogleTokenFile)
	if err != nil {
		cleanup()
		logger.Error("No usable Google token at %s; run cmd/authorize first", cfg.GoogleTokenFile)
		return nil, nil, err
	}
	calendarSvc, err := provider.NewCalendarService(ctx, oauthCfg, tok)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.CalendarProvider = provider.NewGoogleCalendarAdapter(calendarSvc, provider.GoogleCalendarConfig{
		CalendarID: cfg.CalendarID,
		Location:   cfg.Location(),
		Guard:      deps.CalendarGuard,
	})
	logger.Info("Google Calendar adapter initialized (calendar=%s)", cfg.CalendarID)

	// WhatsApp
	deps.WhatsApp = provider.NewWhatsAppAdapter(provider.WhatsAppConfig{
		Token:         cfg.WhatsAppToken,
		PhoneNumberID: cfg.WhatsAppPhoneNumberID,
		BaseURL:       cfg.WhatsAppAPIBase,
		APIVersion:    cfg.WhatsAppAPIVersion,
		Guard:         deps.WhatsAppGuard,
	})

	// Dispatcher
	deps.Dispatcher = dispatch.NewDispatcher(
		deps.LLMClient,
		deps.LLMClient,
		deps.CalendarProvider,
		deps.WhatsApp,
		dispatch.Config{Location: cfg.Location()},
	)

	return deps, cleanup, nil
}

func newGuard(name string, timeout time.Duration, maxRetries int) *resilience.Guard {
	gc := resilience.DefaultGuardConfig(name)
	gc.Timeout = timeout
	gc.MaxRetries = maxRetries
	return resilience.NewGuard(gc)
}

// HealthCheck pings the optional backends that are configured.
func (d *Dependencies) HealthCheck(ctx context.Context) error {
	if d.SQLDB != nil {
		if err := d.DispatchLog.Ping(ctx); err != nil {
			return err
		}
	}
	if d.Redis != nil {
		if err := d.DedupStore.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}
