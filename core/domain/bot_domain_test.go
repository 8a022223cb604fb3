package domain

import (
	"testing"
	"time"
)

func TestParseDateTime(t *testing.T) {
	brussels, err := time.LoadLocation("Europe/Brussels")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	tests := []struct {
		name string
		in   string
		ok   bool
		want time.Time
	}{
		{"zoneless seconds", "2025-06-25T15:00:00", true, time.Date(2025, 6, 25, 15, 0, 0, 0, brussels)},
		{"zoneless minutes", "2025-06-25T15:00", true, time.Date(2025, 6, 25, 15, 0, 0, 0, brussels)},
		{"space separated", "2025-06-25 09:30", true, time.Date(2025, 6, 25, 9, 30, 0, 0, brussels)},
		{"date only", "2025-06-25", true, time.Date(2025, 6, 25, 0, 0, 0, 0, brussels)},
		{"rfc3339 keeps offset", "2025-06-25T15:00:00Z", true, time.Date(2025, 6, 25, 15, 0, 0, 0, time.UTC)},
		{"garbage", "not-a-date", false, time.Time{}},
		{"empty", "   ", false, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDateTime(tt.in, brussels)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseIntentKind(t *testing.T) {
	tests := map[string]IntentKind{
		"book":       IntentBook,
		" Cancel ":   IntentCancel,
		"RESCHEDULE": IntentReschedule,
		"smalltalk":  IntentSmallTalk,
		"status":     IntentUnknown,
		"":           IntentUnknown,
		"delete-all": IntentUnknown,
	}
	for in, want := range tests {
		if got := ParseIntentKind(in); got != want {
			t.Errorf("ParseIntentKind(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestEarliestEvent(t *testing.T) {
	base := time.Date(2025, 6, 25, 9, 0, 0, 0, time.UTC)
	later := &CalendarEvent{ID: "later", Start: base.Add(2 * time.Hour)}
	first := &CalendarEvent{ID: "first", Start: base}
	tie := &CalendarEvent{ID: "tie", Start: base}

	if got := EarliestEvent([]*CalendarEvent{later, first, tie}); got != first {
		t.Errorf("expected first, got %v", got)
	}
	if got := EarliestEvent(nil); got != nil {
		t.Errorf("expected nil for empty list, got %v", got)
	}
}

func TestEarliestEventSkipsMissingStart(t *testing.T) {
	dated := &CalendarEvent{ID: "a", Start: time.Date(2025, 6, 25, 9, 0, 0, 0, time.UTC)}
	undated := &CalendarEvent{ID: "b"}
	other := &CalendarEvent{ID: "c"}

	if got := EarliestEvent([]*CalendarEvent{dated, undated}); got != dated {
		t.Errorf("expected a, got %v", got)
	}
	if got := EarliestEvent([]*CalendarEvent{undated, dated}); got != dated {
		t.Errorf("expected a, got %v", got)
	}
	if got := EarliestEvent([]*CalendarEvent{undated, other}); got != undated {
		t.Errorf("expected b when no event has a start, got %v", got)
	}
}

func TestTimeIntervalValid(t *testing.T) {
	start := time.Date(2025, 6, 25, 9, 0, 0, 0, time.UTC)

	if !NewAppointmentInterval(start).Valid() {
		t.Error("appointment interval should be valid")
	}
	if (TimeInterval{Start: start, End: start}).Valid() {
		t.Error("empty interval should be invalid")
	}
	if (TimeInterval{End: start}).Valid() {
		t.Error("missing start should be invalid")
	}
	if got := NewAppointmentInterval(start).End.Sub(start); got != AppointmentDuration {
		t.Errorf("expected 30m duration, got %s", got)
	}
}

func TestStartOfDay(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	// 23:30 UTC is already the next day at UTC+2.
	in := time.Date(2025, 6, 25, 23, 30, 0, 0, time.UTC)
	got := StartOfDay(in, loc)
	want := time.Date(2025, 6, 26, 0, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("got %s, want %s", got, want)
	}
}
