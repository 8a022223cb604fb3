package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"calendar_bot/core/domain"
)

func TestNewDispatchLogRow(t *testing.T) {
	start := time.Date(2025, 6, 25, 9, 15, 0, 0, time.UTC)
	outcome := &domain.DispatchOutcome{
		MessageID: "wamid.1",
		Sender:    "3247",
		Kind:      domain.IntentBook,
		Action:    domain.ActionSuggested,
		Reply:     "not available",
		Conflicts: []domain.TimeInterval{{Start: start, End: start.Add(30 * time.Minute)}},
		Duration:  1500 * time.Millisecond,
		SendErr:   errors.New("graph down"),
	}
	now := time.Date(2025, 6, 24, 0, 0, 0, 0, time.UTC)

	row := newDispatchLogRow(outcome, now)

	if row.Intent != "book" || row.Action != "suggested" {
		t.Errorf("unexpected intent/action %s/%s", row.Intent, row.Action)
	}
	if row.EventID.Valid {
		t.Error("event id should be NULL when no event was touched")
	}
	if len(row.Conflicts) != 1 || row.Conflicts[0] != "2025-06-25T09:15:00Z-2025-06-25T09:45:00Z" {
		t.Errorf("unexpected conflicts %v", row.Conflicts)
	}
	if row.Error.Valid {
		t.Error("error should be NULL")
	}
	if !row.SendError.Valid || row.SendError.String != "graph down" {
		t.Errorf("unexpected send error %+v", row.SendError)
	}
	if row.DurationMS != 1500 {
		t.Errorf("expected 1500ms, got %d", row.DurationMS)
	}
	if !row.CreatedAt.Equal(now) {
		t.Errorf("unexpected created_at %s", row.CreatedAt)
	}
}

func TestNilBackendsAreNoOps(t *testing.T) {
	ctx := context.Background()

	audit := NewDispatchLogAdapter(nil)
	if err := audit.EnsureSchema(ctx); err != nil {
		t.Errorf("EnsureSchema: %v", err)
	}
	if err := audit.Record(ctx, &domain.DispatchOutcome{}); err != nil {
		t.Errorf("Record: %v", err)
	}

	dedup := NewDedupAdapter(nil)
	for i := 0; i < 2; i++ {
		first, err := dedup.MarkSeen(ctx, "wamid.1", time.Minute)
		if err != nil || !first {
			t.Errorf("expected every delivery to be new without redis, got %v %v", first, err)
		}
	}
}

func TestDedupKey(t *testing.T) {
	if got := dedupKey("wamid.ABC"); got != "webhook:wa:wamid.ABC" {
		t.Errorf("unexpected key %s", got)
	}
}
