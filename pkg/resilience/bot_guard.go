// Package resilience provides fault tolerance patterns for external service calls.
package resilience

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"calendar_bot/pkg/apperr"
	"calendar_bot/pkg/logger"

	"github.com/sony/gobreaker"
)

// GuardConfig holds configuration for a Guard.
type GuardConfig struct {
	Name        string        // Name for logging/metrics
	Timeout     time.Duration // Per-attempt timeout (default: 15s)
	MaxRetries  int           // Extra attempts for transient failures in Retry (default: 0)
	BaseBackoff time.Duration // First backoff step, doubled per retry (default: 200ms)
}

// DefaultGuardConfig returns sensible defaults.
func DefaultGuardConfig(name string) GuardConfig {
	return GuardConfig{
		Name:        name,
		Timeout:     15 * time.Second,
		MaxRetries:  2,
		BaseBackoff: 200 * time.Millisecond,
	}
}

// Guard wraps calls to one upstream with a circuit breaker and a per-attempt
// timeout. Retry adds bounded exponential backoff for transient failures and
// must only be used for idempotent operations.
type Guard struct {
	name        string
	cb          *gobreaker.CircuitBreaker
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
}

// NewGuard creates a guard with the breaker settings used for every upstream.
func NewGuard(cfg GuardConfig) *Guard {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 200 * time.Millisecond
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 3,                // requests allowed while half-open
		Interval:    60 * time.Second, // closed-state counter reset
		Timeout:     30 * time.Second, // open-state duration before half-open
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
		// A caller giving up is not an upstream failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}

	return &Guard{
		name:        cfg.Name,
		cb:          gobreaker.NewCircuitBreaker(settings),
		timeout:     cfg.Timeout,
		maxRetries:  cfg.MaxRetries,
		baseBackoff: cfg.BaseBackoff,
	}
}

// Name returns the guard name.
func (g *Guard) Name() string {
	return g.name
}

// State returns the breaker state as "closed", "half-open" or "open".
func (g *Guard) State() string {
	return g.cb.State().String()
}

// Do runs fn once under the breaker and the per-attempt timeout.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := g.cb.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		err := fn(callCtx)
		if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, apperr.Timeout(g.name).WithError(err)
		}
		return nil, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperr.Unavailable(g.name, err)
	}
	return err
}

// Retry runs fn like Do, retrying transient failures with exponential backoff
// and jitter up to the configured number of extra attempts.
func (g *Guard) Retry(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = g.Do(ctx, fn)
		if err == nil || attempt >= g.maxRetries || !IsTransient(err) {
			return err
		}

		backoff := g.baseBackoff*time.Duration(1<<attempt) +
			time.Duration(rand.Int63n(int64(g.baseBackoff/2)+1))
		logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"upstream": g.name,
			"attempt":  attempt + 1,
		}).Warn("transient failure, retrying in %s", backoff)

		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff):
		}
	}
}

// IsTransient reports whether err is worth retrying: timeouts, upstream
// unavailability and rate limiting. An open breaker is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if apperr.HasCode(err, apperr.CodeTimeout) || apperr.HasCode(err, apperr.CodeUnavailable) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "502")
}
