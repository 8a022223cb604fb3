package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"calendar_bot/core/domain"
	"calendar_bot/core/port/out"
	"calendar_bot/pkg/apperr"
)

var errNoSuggestions = errors.New("no alternative times suggested")

var _ out.TimeSuggester = (*Client)(nil)

const suggestPrompt = `You are a scheduling assistant. A user asked for an appointment that clashes with existing commitments.
Appointments last %d minutes. All times are in the %s time zone.

Respond only with JSON in this format:
{"suggestions": ["Wed Jun 25, 10:00", "Wed Jun 25, 14:30", "Thu Jun 26, 09:00"]}

Rules:
- Give exactly %d suggestions, as short human-readable date and time strings.
- Never overlap a busy period. Stay close to the requested time, during normal working hours.`

type busySlot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// SuggestAlternatives asks the model for n free slots near requested.
func (c *Client) SuggestAlternatives(ctx context.Context, busy []domain.BusyPeriod, requested domain.TimeInterval, n int) ([]string, error) {
	if n <= 0 {
		n = domain.SuggestionCount
	}

	slots := make([]busySlot, 0, len(busy))
	for _, b := range busy {
		if !b.Valid() {
			continue
		}
		slots = append(slots, busySlot{
			Start: b.Start.In(c.loc).Format("2006-01-02T15:04"),
			End:   b.End.In(c.loc).Format("2006-01-02T15:04"),
		})
	}
	busyJSON, err := json.Marshal(slots)
	if err != nil {
		return nil, apperr.InternalWithError(err)
	}

	systemPrompt := fmt.Sprintf(suggestPrompt, int(domain.AppointmentDuration.Minutes()), c.loc, n)
	userPrompt := fmt.Sprintf("Requested: %s (%s)\nBusy periods: %s",
		requested.Start.In(c.loc).Format("2006-01-02T15:04"),
		requested.Start.In(c.loc).Weekday(),
		busyJSON)

	resp, err := c.CompleteJSONWithSystem(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}
	return parseSuggestions(resp, n)
}

// parseSuggestions accepts {"suggestions": [...]} or a bare array and keeps
// at most n non-empty entries.
func parseSuggestions(raw string, n int) ([]string, error) {
	raw = cleanJSONResponse(raw)

	var items []string
	var wrapped struct {
		Suggestions []string `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapped); err == nil {
		items = wrapped.Suggestions
	} else if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, apperr.MalformedResponse("openai", err)
	}

	suggestions := make([]string, 0, n)
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			suggestions = append(suggestions, s)
		}
		if len(suggestions) == n {
			break
		}
	}
	if len(suggestions) == 0 {
		return nil, apperr.MalformedResponse("openai", errNoSuggestions)
	}
	return suggestions, nil
}
