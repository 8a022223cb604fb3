package provider

import (
	"context"
	"errors"
	"net/http"
	"time"

	"calendar_bot/core/domain"
	"calendar_bot/core/port/out"
	"calendar_bot/pkg/apperr"
	"calendar_bot/pkg/logger"
	"calendar_bot/pkg/resilience"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
)

const googleCalendarService = "google_calendar"

// GoogleCalendarConfig binds the adapter to one calendar.
type GoogleCalendarConfig struct {
	CalendarID string
	Location   *time.Location
	Guard      *resilience.Guard
}

// GoogleCalendarAdapter implements out.CalendarPort for Google Calendar.
type GoogleCalendarAdapter struct {
	svc        *calendar.Service
	calendarID string
	loc        *time.Location
	guard      *resilience.Guard
	now        func() time.Time
}

var _ out.CalendarPort = (*GoogleCalendarAdapter)(nil)

// NewGoogleCalendarAdapter creates a new Google Calendar adapter.
func NewGoogleCalendarAdapter(svc *calendar.Service, cfg GoogleCalendarConfig) *GoogleCalendarAdapter {
	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Guard == nil {
		cfg.Guard = resilience.NewGuard(resilience.DefaultGuardConfig(googleCalendarService))
	}
	return &GoogleCalendarAdapter{
		svc:        svc,
		calendarID: cfg.CalendarID,
		loc:        cfg.Location,
		guard:      cfg.Guard,
		now:        time.Now,
	}
}

// =============================================================================
// Event Operations
// =============================================================================

// CreateEvent inserts the appointment. Inserts are not retried.
func (a *GoogleCalendarAdapter) CreateEvent(ctx context.Context, appt *domain.CandidateAppointment) (*domain.CalendarEvent, error) {
	event := &calendar.Event{
		Summary:     appt.Summary,
		Description: appt.Description,
		Start:       a.eventTime(appt.Start),
		End:         a.eventTime(appt.End),
	}

	var created *calendar.Event
	err := a.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		created, err = a.svc.Events.Insert(a.calendarID, event).Context(ctx).Do()
		return wrapGoogleError(err)
	})
	if err != nil {
		return nil, err
	}
	return a.convertEvent(created), nil
}

// ListUpcoming lists up to limit single events starting from now, soonest first.
func (a *GoogleCalendarAdapter) ListUpcoming(ctx context.Context, limit int) ([]*domain.CalendarEvent, error) {
	if limit <= 0 {
		limit = domain.UpcomingLimit
	}

	var resp *calendar.Events
	err := a.guard.Retry(ctx, func(ctx context.Context) error {
		var err error
		resp, err = a.svc.Events.List(a.calendarID).
			TimeMin(a.now().Format(time.RFC3339)).
			MaxResults(int64(limit)).
			SingleEvents(true).
			OrderBy("startTime").
			TimeZone(a.loc.String()).
			Context(ctx).Do()
		return wrapGoogleError(err)
	})
	if err != nil {
		return nil, err
	}

	events := make([]*domain.CalendarEvent, 0, len(resp.Items))
	for _, item := range resp.Items {
		events = append(events, a.convertEvent(item))
	}
	return events, nil
}

// DeleteEvent deletes an event.
func (a *GoogleCalendarAdapter) DeleteEvent(ctx context.Context, eventID string) error {
	return a.guard.Do(ctx, func(ctx context.Context) error {
		return wrapGoogleError(a.svc.Events.Delete(a.calendarID, eventID).Context(ctx).Do())
	})
}

// PatchEventTime moves an event, leaving every other field untouched.
func (a *GoogleCalendarAdapter) PatchEventTime(ctx context.Context, eventID string, start, end time.Time) (*domain.CalendarEvent, error) {
	patch := &calendar.Event{
		Start: a.eventTime(start),
		End:   a.eventTime(end),
	}

	var updated *calendar.Event
	err := a.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		updated, err = a.svc.Events.Patch(a.calendarID, eventID, patch).Context(ctx).Do()
		return wrapGoogleError(err)
	})
	if err != nil {
		return nil, err
	}
	return a.convertEvent(updated), nil
}

// =============================================================================
// Free/Busy
// =============================================================================

// QueryBusy returns the calendar's busy periods in [from, to). Entries whose
// bounds cannot be parsed come back with zero times.
func (a *GoogleCalendarAdapter) QueryBusy(ctx context.Context, from, to time.Time) ([]domain.BusyPeriod, error) {
	req := &calendar.FreeBusyRequest{
		TimeMin:  from.Format(time.RFC3339),
		TimeMax:  to.Format(time.RFC3339),
		TimeZone: a.loc.String(),
		Items:    []*calendar.FreeBusyRequestItem{{Id: a.calendarID}},
	}

	var resp *calendar.FreeBusyResponse
	err := a.guard.Retry(ctx, func(ctx context.Context) error {
		var err error
		resp, err = a.svc.Freebusy.Query(req).Context(ctx).Do()
		return wrapGoogleError(err)
	})
	if err != nil {
		return nil, err
	}

	calData, ok := resp.Calendars[a.calendarID]
	if !ok {
		logger.WithContext(ctx).WithField("calendar_id", a.calendarID).Warn("free/busy response has no entry for calendar")
		return nil, nil
	}
	if len(calData.Errors) > 0 {
		return nil, apperr.ExternalError(googleCalendarService, errors.New(calData.Errors[0].Reason)).
			WithDetail("domain", calData.Errors[0].Domain)
	}

	periods := make([]domain.BusyPeriod, 0, len(calData.Busy))
	for _, busy := range calData.Busy {
		if busy == nil {
			continue
		}
		start, _ := time.Parse(time.RFC3339, busy.Start)
		end, _ := time.Parse(time.RFC3339, busy.End)
		periods = append(periods, domain.BusyPeriod{TimeInterval: domain.TimeInterval{Start: start, End: end}})
	}
	return periods, nil
}

// =============================================================================
// Helper Functions
// =============================================================================

func (a *GoogleCalendarAdapter) eventTime(t time.Time) *calendar.EventDateTime {
	return &calendar.EventDateTime{
		DateTime: t.In(a.loc).Format(time.RFC3339),
		TimeZone: a.loc.String(),
	}
}

func (a *GoogleCalendarAdapter) convertEvent(event *calendar.Event) *domain.CalendarEvent {
	result := &domain.CalendarEvent{
		ID:          event.Id,
		Summary:     event.Summary,
		Description: event.Description,
		Link:        event.HtmlLink,
	}
	result.Start = a.parseEventTime(event.Start)
	result.End = a.parseEventTime(event.End)
	return result
}

// parseEventTime reads a timed or all-day boundary; all-day dates are
// midnight in the configured zone.
func (a *GoogleCalendarAdapter) parseEventTime(edt *calendar.EventDateTime) time.Time {
	if edt == nil {
		return time.Time{}
	}
	if edt.DateTime != "" {
		t, _ := time.Parse(time.RFC3339, edt.DateTime)
		return t
	}
	if edt.Date != "" {
		t, _ := time.ParseInLocation("2006-01-02", edt.Date, a.loc)
		return t
	}
	return time.Time{}
}

// wrapGoogleError marks throttling and server errors as unavailable so reads
// are retried.
func wrapGoogleError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError {
			return apperr.Unavailable(googleCalendarService, err).WithDetail("status", apiErr.Code)
		}
		return apperr.ExternalError(googleCalendarService, err).WithDetail("status", apiErr.Code)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return apperr.ExternalError(googleCalendarService, err)
}
