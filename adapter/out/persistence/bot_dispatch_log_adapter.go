package persistence

import (
	"context"
	"database/sql"
	"time"

	"calendar_bot/core/domain"
	"calendar_bot/core/port/out"
	"calendar_bot/pkg/apperr"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const dispatchLogSchema = `
	CREATE TABLE IF NOT EXISTS dispatch_log (
		id          UUID PRIMARY KEY,
		sender      TEXT NOT NULL,
		message_id  TEXT NOT NULL,
		intent      TEXT NOT NULL,
		action      TEXT NOT NULL,
		event_id    TEXT,
		conflicts   TEXT[] NOT NULL DEFAULT '{}',
		reply       TEXT NOT NULL,
		error       TEXT,
		send_error  TEXT,
		duration_ms BIGINT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_dispatch_log_sender_created ON dispatch_log (sender, created_at DESC);
`

// DispatchLogAdapter implements out.AuditLog using PostgreSQL. A nil database
// turns every call into a no-op.
type DispatchLogAdapter struct {
	db *sqlx.DB
}

var _ out.AuditLog = (*DispatchLogAdapter)(nil)

// NewDispatchLogAdapter creates a new dispatch log adapter.
func NewDispatchLogAdapter(db *sqlx.DB) *DispatchLogAdapter {
	return &DispatchLogAdapter{db: db}
}

// dispatchLogRow represents the database row.
type dispatchLogRow struct {
	ID         uuid.UUID      `db:"id"`
	Sender     string         `db:"sender"`
	MessageID  string         `db:"message_id"`
	Intent     string         `db:"intent"`
	Action     string         `db:"action"`
	EventID    sql.NullString `db:"event_id"`
	Conflicts  pq.StringArray `db:"conflicts"`
	Reply      string         `db:"reply"`
	Error      sql.NullString `db:"error"`
	SendError  sql.NullString `db:"send_error"`
	DurationMS int64          `db:"duration_ms"`
	CreatedAt  time.Time      `db:"created_at"`
}

func newDispatchLogRow(o *domain.DispatchOutcome, now time.Time) *dispatchLogRow {
	row := &dispatchLogRow{
		ID:         uuid.New(),
		Sender:     o.Sender,
		MessageID:  o.MessageID,
		Intent:     string(o.Kind),
		Action:     o.Action,
		Conflicts:  pq.StringArray{},
		Reply:      o.Reply,
		DurationMS: o.Duration.Milliseconds(),
		CreatedAt:  now,
	}
	if o.EventID != "" {
		row.EventID = sql.NullString{String: o.EventID, Valid: true}
	}
	for _, c := range o.Conflicts {
		row.Conflicts = append(row.Conflicts, c.String())
	}
	if o.Err != nil {
		row.Error = sql.NullString{String: o.Err.Error(), Valid: true}
	}
	if o.SendErr != nil {
		row.SendError = sql.NullString{String: o.SendErr.Error(), Valid: true}
	}
	return row
}

// EnsureSchema creates the dispatch_log table if it does not exist.
func (a *DispatchLogAdapter) EnsureSchema(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	if _, err := a.db.ExecContext(ctx, dispatchLogSchema); err != nil {
		return apperr.DatabaseError("create dispatch_log", err)
	}
	return nil
}

// Record appends one row for a finished dispatch.
func (a *DispatchLogAdapter) Record(ctx context.Context, outcome *domain.DispatchOutcome) error {
	if a.db == nil || outcome == nil {
		return nil
	}

	query := `
		INSERT INTO dispatch_log (
			id, sender, message_id, intent, action, event_id, conflicts,
			reply, error, send_error, duration_ms, created_at
		) VALUES (
			:id, :sender, :message_id, :intent, :action, :event_id, :conflicts,
			:reply, :error, :send_error, :duration_ms, :created_at
		)
	`
	if _, err := a.db.NamedExecContext(ctx, query, newDispatchLogRow(outcome, time.Now().UTC())); err != nil {
		return apperr.DatabaseError("insert dispatch_log", err)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (a *DispatchLogAdapter) Ping(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.PingContext(ctx)
}
