package domain

import (
	"fmt"
	"time"
)

const (
	// AppointmentDuration is the fixed length of every booked or moved appointment.
	AppointmentDuration = 30 * time.Minute
	// UpcomingLimit bounds the upcoming-events lookup for cancel and reschedule.
	UpcomingLimit = 5
	// BusyWindowDays is how far past the requested day busy periods are fetched.
	BusyWindowDays = 6
	// SuggestionCount is the number of alternatives offered on a conflict.
	SuggestionCount = 3
)

// TimeInterval is a half-open interval [Start, End).
type TimeInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewAppointmentInterval returns [start, start+AppointmentDuration).
func NewAppointmentInterval(start time.Time) TimeInterval {
	return TimeInterval{Start: start, End: start.Add(AppointmentDuration)}
}

// Valid reports whether both bounds are set and Start < End.
func (i TimeInterval) Valid() bool {
	return !i.Start.IsZero() && !i.End.IsZero() && i.Start.Before(i.End)
}

func (i TimeInterval) String() string {
	return fmt.Sprintf("%s-%s", i.Start.Format(time.RFC3339), i.End.Format(time.RFC3339))
}

// BusyPeriod is an existing commitment reported by the calendar's free/busy
// query. A zero Start or End means the provider sent an unusable value.
type BusyPeriod struct {
	TimeInterval
}

// CandidateAppointment is the appointment a user asked for, before the
// calendar assigns it an id.
type CandidateAppointment struct {
	Start       time.Time
	End         time.Time
	Summary     string
	Description string
	Requester   string
}

func (c *CandidateAppointment) Interval() TimeInterval {
	return TimeInterval{Start: c.Start, End: c.End}
}

// ConflictReport is the result of an availability check.
type ConflictReport struct {
	IsAvailable bool           `json:"is_available"`
	Conflicts   []TimeInterval `json:"conflicts"`
	// Skipped lists busy entries that were ignored because they were malformed.
	Skipped []BusyPeriod `json:"skipped,omitempty"`
}

// CalendarEvent is an event as returned by the calendar provider.
type CalendarEvent struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Link        string    `json:"link,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// EarliestEvent returns the event with the smallest Start, keeping list order
// on ties. Events without a Start only win when no event has one, in which
// case the first of them is returned. It returns nil for an empty list.
func EarliestEvent(events []*CalendarEvent) *CalendarEvent {
	var earliest, undated *CalendarEvent
	for _, ev := range events {
		if ev == nil {
			continue
		}
		if ev.Start.IsZero() {
			if undated == nil {
				undated = ev
			}
			continue
		}
		if earliest == nil || ev.Start.Before(earliest.Start) {
			earliest = ev
		}
	}
	if earliest == nil {
		return undated
	}
	return earliest
}

// StartOfDay returns midnight of t's date in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
