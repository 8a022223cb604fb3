// Package dispatch routes a classified chat message to the calendar action
// it asks for and sends exactly one reply.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"calendar_bot/core/domain"
	"calendar_bot/core/port/in"
	"calendar_bot/core/port/out"
	"calendar_bot/core/service/availability"
	"calendar_bot/pkg/logger"
)

// User-facing replies.
const (
	ReplyApology          = "Sorry, I couldn't process your request right now."
	ReplyInvalidDate      = "Invalid date format. Please provide a valid date and time."
	ReplyNothingToCancel  = "There are no upcoming appointments to cancel."
	ReplyNothingToMove    = "There are no upcoming appointments to reschedule."
	ReplyBooked           = "Your appointment is booked."
	ReplyNotUnderstood    = "Sorry, I didn't understand that. You can ask me to book, cancel or reschedule an appointment."
	DefaultSummary        = "appointment via WhatsApp"
	descriptionTemplate   = "Appointment via WhatsApp with phone number: %s"
	rescheduledTimeLayout = "Mon Jan 2, 2006 15:04 MST"
	conflictReplyTemplate = "The requested time is not available. Here are %d alternative times you can book: %s. Please reply with one of these times to confirm your appointment or provide a new date and time."
)

// Config holds the dispatcher's non-credential settings.
type Config struct {
	Location       *time.Location
	DefaultSummary string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Dispatcher implements in.DispatchService.
type Dispatcher struct {
	classifier out.IntentClassifier
	suggester  out.TimeSuggester
	calendar   out.CalendarPort
	messenger  out.MessengerPort

	loc            *time.Location
	defaultSummary string
	now            func() time.Time
}

var _ in.DispatchService = (*Dispatcher)(nil)

// NewDispatcher wires a dispatcher to its collaborators.
func NewDispatcher(
	classifier out.IntentClassifier,
	suggester out.TimeSuggester,
	calendar out.CalendarPort,
	messenger out.MessengerPort,
	cfg Config,
) *Dispatcher {
	d := &Dispatcher{
		classifier:     classifier,
		suggester:      suggester,
		calendar:       calendar,
		messenger:      messenger,
		loc:            cfg.Location,
		defaultSummary: cfg.DefaultSummary,
		now:            cfg.Now,
	}
	if d.loc == nil {
		d.loc = time.UTC
	}
	if d.defaultSummary == "" {
		d.defaultSummary = DefaultSummary
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Dispatch classifies msg, performs the matching calendar action and sends
// one reply to the sender. Every failure ends in a reply; nothing panics.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *domain.InboundMessage) *domain.DispatchOutcome {
	started := d.now()
	outcome := &domain.DispatchOutcome{
		MessageID: msg.ID,
		Sender:    msg.From,
		Kind:      domain.IntentUnknown,
		Action:    domain.ActionNone,
	}
	outcome.Enter(domain.StateReceived)

	log := logger.WithContext(logger.ContextWithSender(ctx, msg.From)).WithField("message_id", msg.ID)

	intent, err := d.classifier.ClassifyIntent(ctx, msg.Text)
	if err != nil {
		log.WithError(err).Error("intent classification failed")
		d.fail(outcome, err)
	} else {
		outcome.Kind = intent.Kind
		outcome.Enter(domain.StateClassified)
		log = log.WithField("intent", string(intent.Kind))
		log.Debug("classified message")

		switch intent.Kind {
		case domain.IntentBook:
			outcome.Enter(domain.StateBooking)
			d.book(ctx, log, msg, intent, outcome)
		case domain.IntentCancel:
			outcome.Enter(domain.StateCancelling)
			d.cancel(ctx, log, outcome)
		case domain.IntentReschedule:
			outcome.Enter(domain.StateRescheduling)
			d.reschedule(ctx, log, intent, outcome)
		default:
			outcome.Reply = classifierReply(intent)
		}
	}

	outcome.Enter(domain.StateReplying)
	if err := d.messenger.SendText(ctx, msg.From, outcome.Reply); err != nil {
		log.WithError(err).Error("failed to send reply")
		outcome.SendErr = err
	}
	outcome.Enter(domain.StateDone)
	outcome.Duration = d.now().Sub(started)

	log.WithFields(map[string]any{
		"action":   outcome.Action,
		"event_id": outcome.EventID,
	}).WithDuration(outcome.Duration).Info("dispatch finished")

	return outcome
}

func (d *Dispatcher) book(ctx context.Context, log *logger.Logger, msg *domain.InboundMessage, intent *domain.Intent, outcome *domain.DispatchOutcome) {
	start, ok := d.requestedTime(intent, outcome)
	if !ok {
		return
	}

	candidate := domain.NewAppointmentInterval(start)
	from := domain.StartOfDay(start, d.loc)
	busy, err := d.calendar.QueryBusy(ctx, from, from.AddDate(0, 0, domain.BusyWindowDays))
	if err != nil {
		log.WithError(err).Error("free/busy query failed")
		d.fail(outcome, err)
		return
	}

	report := availability.CheckAvailability(busy, candidate)
	for _, skipped := range report.Skipped {
		log.WithField("busy", skipped.String()).Warn("skipping malformed busy period")
	}

	if !report.IsAvailable {
		outcome.Conflicts = report.Conflicts
		suggestions, err := d.suggester.SuggestAlternatives(ctx, busy, candidate, domain.SuggestionCount)
		if err != nil {
			log.WithError(err).Error("alternative time suggestion failed")
			d.fail(outcome, err)
			return
		}
		outcome.Action = domain.ActionSuggested
		outcome.Reply = fmt.Sprintf(conflictReplyTemplate, len(suggestions), strings.Join(suggestions, ", "))
		return
	}

	summary := strings.TrimSpace(intent.Summary)
	if summary == "" {
		summary = d.defaultSummary
	}
	event, err := d.calendar.CreateEvent(ctx, &domain.CandidateAppointment{
		Start:       candidate.Start,
		End:         candidate.End,
		Summary:     summary,
		Description: Description(msg.From),
		Requester:   msg.From,
	})
	if err != nil {
		log.WithError(err).Error("event creation failed")
		d.fail(outcome, err)
		return
	}

	outcome.Action = domain.ActionCreated
	outcome.EventID = event.ID
	confirmation := strings.TrimSpace(intent.Reply)
	if confirmation == "" {
		confirmation = ReplyBooked
	}
	outcome.Reply = fmt.Sprintf("%s Details: %s", confirmation, event.Link)
}

func (d *Dispatcher) cancel(ctx context.Context, log *logger.Logger, outcome *domain.DispatchOutcome) {
	target, ok := d.earliestUpcoming(ctx, log, outcome, ReplyNothingToCancel)
	if !ok {
		return
	}

	if err := d.calendar.DeleteEvent(ctx, target.ID); err != nil {
		log.WithError(err).WithField("event_id", target.ID).Error("event deletion failed")
		d.fail(outcome, err)
		return
	}

	outcome.Action = domain.ActionCancelled
	outcome.EventID = target.ID
	outcome.Reply = "Appointment cancelled: " + target.Summary
}

func (d *Dispatcher) reschedule(ctx context.Context, log *logger.Logger, intent *domain.Intent, outcome *domain.DispatchOutcome) {
	start, ok := d.requestedTime(intent, outcome)
	if !ok {
		return
	}

	target, ok := d.earliestUpcoming(ctx, log, outcome, ReplyNothingToMove)
	if !ok {
		return
	}

	slot := domain.NewAppointmentInterval(start)
	event, err := d.calendar.PatchEventTime(ctx, target.ID, slot.Start, slot.End)
	if err != nil {
		log.WithError(err).WithField("event_id", target.ID).Error("event update failed")
		d.fail(outcome, err)
		return
	}

	outcome.Action = domain.ActionRescheduled
	outcome.EventID = event.ID
	outcome.Reply = fmt.Sprintf("Appointment moved to %s. Details: %s",
		slot.Start.In(d.loc).Format(rescheduledTimeLayout), event.Link)
}

// requestedTime extracts the intent's date-time, setting the clarification
// reply when it is missing or unparseable.
func (d *Dispatcher) requestedTime(intent *domain.Intent, outcome *domain.DispatchOutcome) (time.Time, bool) {
	if strings.TrimSpace(intent.DateTime) == "" {
		outcome.Action = domain.ActionClarified
		outcome.Reply = classifierReply(intent)
		return time.Time{}, false
	}
	start, ok := domain.ParseDateTime(intent.DateTime, d.loc)
	if !ok {
		outcome.Action = domain.ActionClarified
		outcome.Reply = ReplyInvalidDate
		return time.Time{}, false
	}
	return start, true
}

func (d *Dispatcher) earliestUpcoming(ctx context.Context, log *logger.Logger, outcome *domain.DispatchOutcome, emptyReply string) (*domain.CalendarEvent, bool) {
	events, err := d.calendar.ListUpcoming(ctx, domain.UpcomingLimit)
	if err != nil {
		log.WithError(err).Error("listing upcoming events failed")
		d.fail(outcome, err)
		return nil, false
	}

	target := domain.EarliestEvent(events)
	if target == nil {
		outcome.Reply = emptyReply
		return nil, false
	}
	return target, true
}

func (d *Dispatcher) fail(outcome *domain.DispatchOutcome, err error) {
	outcome.Err = err
	outcome.Action = domain.ActionFailed
	outcome.Reply = ReplyApology
}

// Description is the event description recorded for an appointment booked
// by phone.
func Description(phone string) string {
	return fmt.Sprintf(descriptionTemplate, phone)
}

func classifierReply(intent *domain.Intent) string {
	if reply := strings.TrimSpace(intent.Reply); reply != "" {
		return reply
	}
	return ReplyNotUnderstood
}
