package domain

import (
	"strings"
	"time"
)

// IntentKind is the classified purpose of a chat message.
type IntentKind string

const (
	IntentBook       IntentKind = "book"
	IntentCancel     IntentKind = "cancel"
	IntentReschedule IntentKind = "reschedule"
	IntentSmallTalk  IntentKind = "smalltalk"
	IntentUnknown    IntentKind = "unknown"
)

// ParseIntentKind maps a classifier label to a known kind. Anything it does
// not recognise, including "status", becomes IntentUnknown.
func ParseIntentKind(s string) IntentKind {
	switch IntentKind(strings.ToLower(strings.TrimSpace(s))) {
	case IntentBook:
		return IntentBook
	case IntentCancel:
		return IntentCancel
	case IntentReschedule:
		return IntentReschedule
	case IntentSmallTalk, "small_talk", "small talk":
		return IntentSmallTalk
	default:
		return IntentUnknown
	}
}

// Intent is the validated classifier output for one message.
type Intent struct {
	Kind     IntentKind `json:"intent"`
	DateTime string     `json:"datetime,omitempty"`
	Summary  string     `json:"summary,omitempty"`
	Reply    string     `json:"reply"`
}

// InboundMessage is a text message extracted from a webhook delivery.
type InboundMessage struct {
	ID            string
	From          string
	Text          string
	PhoneNumberID string
	Timestamp     time.Time
}

// DispatchState traces the dispatcher's progress through one message.
type DispatchState string

const (
	StateReceived     DispatchState = "received"
	StateClassified   DispatchState = "classified"
	StateBooking      DispatchState = "booking"
	StateCancelling   DispatchState = "cancelling"
	StateRescheduling DispatchState = "rescheduling"
	StateReplying     DispatchState = "replying"
	StateDone         DispatchState = "done"
)

// Dispatch actions recorded on the outcome.
const (
	ActionNone        = "none"
	ActionCreated     = "created"
	ActionSuggested   = "suggested"
	ActionCancelled   = "cancelled"
	ActionRescheduled = "rescheduled"
	ActionClarified   = "clarified"
	ActionFailed      = "failed"
)

// DispatchOutcome summarises what happened for one message.
type DispatchOutcome struct {
	MessageID string
	Sender    string
	Kind      IntentKind
	States    []DispatchState
	Action    string
	Reply     string
	EventID   string
	Conflicts []TimeInterval
	Err       error
	// SendErr is set when the reply itself could not be delivered.
	SendErr  error
	Duration time.Duration
}

func (o *DispatchOutcome) Enter(s DispatchState) {
	o.States = append(o.States, s)
}

// State returns the last state entered.
func (o *DispatchOutcome) State() DispatchState {
	if len(o.States) == 0 {
		return ""
	}
	return o.States[len(o.States)-1]
}

var zonelessLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDateTime parses an ISO 8601 date-time. Values without an offset are
// read in loc, and a bare date is midnight of that day in loc.
func ParseDateTime(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	for _, layout := range zonelessLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
