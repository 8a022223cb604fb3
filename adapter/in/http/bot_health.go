package http

import (
	"context"
	"time"

	"calendar_bot/pkg/metrics"

	"github.com/gofiber/fiber/v2"
)

type HealthChecker interface {
	Ping(ctx context.Context) error
}

// BreakerReporter exposes a circuit breaker's current state.
type BreakerReporter interface {
	Name() string
	State() string
}

type HealthHandler struct {
	checks   map[string]HealthChecker
	metrics  *metrics.WebhookMetrics
	breakers []BreakerReporter
}

func NewHealthHandler(m *metrics.WebhookMetrics) *HealthHandler {
	return &HealthHandler{
		checks:  make(map[string]HealthChecker),
		metrics: m,
	}
}

// AddCheck registers a dependency for /ready. A nil checker is reported as
// not configured.
func (h *HealthHandler) AddCheck(name string, checker HealthChecker) *HealthHandler {
	h.checks[name] = checker
	return h
}

func (h *HealthHandler) AddBreakers(breakers ...BreakerReporter) *HealthHandler {
	h.breakers = append(h.breakers, breakers...)
	return h
}

func (h *HealthHandler) Register(app *fiber.App) {
	app.Get("/health", h.Health)
	app.Get("/ready", h.Ready)
	app.Get("/metrics", h.Metrics)
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.checks))
	allHealthy := true

	for name, checker := range h.checks {
		if checker == nil {
			checks[name] = "not configured"
			continue
		}
		if err := checker.Ping(ctx); err != nil {
			checks[name] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			checks[name] = "healthy"
		}
	}

	status := "ready"
	statusCode := fiber.StatusOK
	if !allHealthy {
		status = "not ready"
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) Metrics(c *fiber.Ctx) error {
	body := fiber.Map{}
	if h.metrics != nil {
		body["webhook"] = h.metrics.Snapshot()
	}
	breakers := make(map[string]string, len(h.breakers))
	for _, b := range h.breakers {
		breakers[b.Name()] = b.State()
	}
	body["breakers"] = breakers
	return c.JSON(body)
}
