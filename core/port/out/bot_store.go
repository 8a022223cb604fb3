package out

import (
	"context"
	"time"

	"calendar_bot/core/domain"
)

// DedupStore remembers webhook message ids for a bounded time.
type DedupStore interface {
	// MarkSeen records id and reports whether this is its first delivery.
	MarkSeen(ctx context.Context, id string, ttl time.Duration) (bool, error)
}

// AuditLog appends one record per dispatched message.
type AuditLog interface {
	Record(ctx context.Context, outcome *domain.DispatchOutcome) error
}
