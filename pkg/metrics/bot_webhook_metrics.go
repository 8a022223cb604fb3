package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Reasons a webhook delivery is acknowledged without dispatching.
const (
	IgnoreMalformed    = "malformed"
	IgnoreNoMessage    = "no_message"
	IgnoreNonText      = "non_text"
	IgnoreSelf         = "self"
	IgnoreDuplicate    = "duplicate"
	IgnoreBadSignature = "bad_signature"
)

// WebhookMetrics counts webhook deliveries and dispatch outcomes.
type WebhookMetrics struct {
	Received     atomic.Int64
	Dispatched   atomic.Int64
	Failed       atomic.Int64
	SendFailures atomic.Int64

	mu      sync.Mutex
	ignored map[string]int64
	actions map[string]int64

	latency *LatencyRegistry
	started time.Time
}

// NewWebhookMetrics creates an empty metrics set.
func NewWebhookMetrics() *WebhookMetrics {
	return &WebhookMetrics{
		ignored: make(map[string]int64),
		actions: make(map[string]int64),
		latency: NewLatencyRegistry(500),
		started: time.Now(),
	}
}

// Ignore counts a delivery that was acknowledged without dispatching.
func (m *WebhookMetrics) Ignore(reason string) {
	m.mu.Lock()
	m.ignored[reason]++
	m.mu.Unlock()
}

// ObserveDispatch records one finished dispatch.
func (m *WebhookMetrics) ObserveDispatch(intent, action string, d time.Duration, failed, sendFailed bool) {
	m.Dispatched.Add(1)
	if failed {
		m.Failed.Add(1)
	}
	if sendFailed {
		m.SendFailures.Add(1)
	}
	m.mu.Lock()
	m.actions[action]++
	m.mu.Unlock()
	m.latency.Record(intent, d)
}

// Snapshot renders all counters for the /metrics endpoint.
func (m *WebhookMetrics) Snapshot() map[string]any {
	m.mu.Lock()
	ignored := make(map[string]int64, len(m.ignored))
	for k, v := range m.ignored {
		ignored[k] = v
	}
	actions := make(map[string]int64, len(m.actions))
	for k, v := range m.actions {
		actions[k] = v
	}
	m.mu.Unlock()

	latency := make(map[string]any)
	for intent, stats := range m.latency.AllStats() {
		latency[intent] = stats.ToMap()
	}

	return map[string]any{
		"uptime_seconds": int64(time.Since(m.started).Seconds()),
		"received":       m.Received.Load(),
		"dispatched":     m.Dispatched.Load(),
		"failed":         m.Failed.Load(),
		"send_failures":  m.SendFailures.Load(),
		"ignored":        ignored,
		"actions":        actions,
		"latency":        latency,
	}
}
