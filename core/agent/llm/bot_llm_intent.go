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

// ErrMalformedClassification is returned when the model's answer is not the
// JSON object the classification prompt asks for.
var ErrMalformedClassification = errors.New("malformed intent classification")

var _ out.IntentClassifier = (*Client)(nil)

const classifyPrompt = `You are a scheduling assistant for appointments booked over WhatsApp.
The current date and time is %s (%s, time zone %s).

When a user messages you, respond only in this JSON format:

{
  "intent": "book" | "reschedule" | "cancel" | "smalltalk" | "unknown",
  "datetime": "2025-06-25T15:00:00",
  "summary": "Physio appointment with John Doe",
  "reply": "Your appointment is booked!"
}

Rules:
- Always include "intent" and "reply". "reply" is a short, friendly message for the user.
- Include "datetime" and "summary" only when the intent is book or reschedule.
- "datetime" is ISO 8601 local time in %s without an offset. Resolve relative dates such as "tomorrow at 3pm" against the current date.
- If the user wants to book or reschedule but gives no usable time, omit "datetime" and ask for one in "reply".`

// ClassifyIntent classifies a chat message into a structured intent.
func (c *Client) ClassifyIntent(ctx context.Context, text string) (*domain.Intent, error) {
	now := c.now().In(c.loc)
	systemPrompt := fmt.Sprintf(classifyPrompt,
		now.Format("2006-01-02T15:04:05"), now.Weekday(), c.loc, c.loc)

	resp, err := c.CompleteJSONWithSystem(ctx, systemPrompt, text)
	if err != nil {
		return nil, err
	}
	return parseIntent(resp)
}

type intentResponse struct {
	Intent   string `json:"intent"`
	DateTime string `json:"datetime"`
	Summary  string `json:"summary"`
	Reply    string `json:"reply"`
}

// parseIntent validates a raw classifier answer. Unknown intent labels map to
// domain.IntentUnknown; anything that is not a JSON object is malformed.
func parseIntent(raw string) (*domain.Intent, error) {
	raw = cleanJSONResponse(raw)
	if raw == "" {
		return nil, apperr.MalformedResponse("openai", ErrMalformedClassification)
	}

	var resp intentResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, apperr.MalformedResponse("openai", fmt.Errorf("%w: %v", ErrMalformedClassification, err))
	}

	intent := &domain.Intent{
		Kind:  domain.ParseIntentKind(resp.Intent),
		Reply: strings.TrimSpace(resp.Reply),
	}
	if intent.Kind == domain.IntentBook || intent.Kind == domain.IntentReschedule {
		intent.DateTime = strings.TrimSpace(resp.DateTime)
		intent.Summary = strings.TrimSpace(resp.Summary)
	}
	return intent, nil
}

func cleanJSONResponse(resp string) string {
	resp = strings.TrimSpace(resp)
	resp = strings.TrimPrefix(resp, "```json")
	resp = strings.TrimPrefix(resp, "```")
	resp = strings.TrimSuffix(resp, "```")
	return strings.TrimSpace(resp)
}
