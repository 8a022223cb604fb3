// Package out defines outbound ports (driven ports) for the application.
package out

import (
	"context"
	"time"

	"calendar_bot/core/domain"
)

// =============================================================================
// Calendar Provider Port (Google Calendar)
// =============================================================================

// CalendarPort is the calendar the bot books into. Implementations are bound
// to a single calendar and carry their own credentials.
type CalendarPort interface {
	// Event operations
	CreateEvent(ctx context.Context, appt *domain.CandidateAppointment) (*domain.CalendarEvent, error)
	ListUpcoming(ctx context.Context, limit int) ([]*domain.CalendarEvent, error)
	DeleteEvent(ctx context.Context, eventID string) error
	PatchEventTime(ctx context.Context, eventID string, start, end time.Time) (*domain.CalendarEvent, error)

	// Free/Busy
	QueryBusy(ctx context.Context, from, to time.Time) ([]domain.BusyPeriod, error)
}
