package persistence

import (
	"context"
	"time"

	"calendar_bot/core/port/out"
	"calendar_bot/pkg/apperr"

	"github.com/redis/go-redis/v9"
)

const dedupKeyPrefix = "webhook:wa:"

// DedupAdapter implements out.DedupStore with Redis SETNX. A nil client
// treats every delivery as new.
type DedupAdapter struct {
	client *redis.Client
}

var _ out.DedupStore = (*DedupAdapter)(nil)

// NewDedupAdapter creates a new dedup adapter.
func NewDedupAdapter(client *redis.Client) *DedupAdapter {
	return &DedupAdapter{client: client}
}

// MarkSeen records id for ttl and reports whether it was not seen before.
func (a *DedupAdapter) MarkSeen(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	if a.client == nil || id == "" {
		return true, nil
	}
	first, err := a.client.SetNX(ctx, dedupKey(id), "1", ttl).Result()
	if err != nil {
		return true, apperr.Unavailable("redis", err)
	}
	return first, nil
}

// Ping reports whether Redis is reachable.
func (a *DedupAdapter) Ping(ctx context.Context) error {
	if a.client == nil {
		return nil
	}
	return a.client.Ping(ctx).Err()
}

func dedupKey(id string) string {
	return dedupKeyPrefix + id
}
