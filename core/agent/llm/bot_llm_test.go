package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"calendar_bot/core/domain"
	"calendar_bot/pkg/apperr"
	"calendar_bot/pkg/resilience"
)

func TestCleanJSONResponse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"whitespace", "  {\"a\":1}\n", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanJSONResponse(tt.input); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestParseIntent(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		kind     domain.IntentKind
		datetime string
		summary  string
		reply    string
	}{
		{
			name:     "book",
			raw:      `{"intent":"book","datetime":"2025-06-25T15:00:00","summary":"Physio","reply":"Booked!"}`,
			kind:     domain.IntentBook,
			datetime: "2025-06-25T15:00:00",
			summary:  "Physio",
			reply:    "Booked!",
		},
		{
			name:  "fenced cancel",
			raw:   "```json\n{\"intent\":\"cancel\",\"reply\":\"Cancelling\"}\n```",
			kind:  domain.IntentCancel,
			reply: "Cancelling",
		},
		{
			name:  "unknown label",
			raw:   `{"intent":"status","reply":"Let me check"}`,
			kind:  domain.IntentUnknown,
			reply: "Let me check",
		},
		{
			name:  "datetime dropped for smalltalk",
			raw:   `{"intent":"smalltalk","datetime":"2025-06-25T15:00:00","reply":"Hi"}`,
			kind:  domain.IntentSmallTalk,
			reply: "Hi",
		},
		{
			name: "missing intent",
			raw:  `{"reply":""}`,
			kind: domain.IntentUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent, err := parseIntent(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if intent.Kind != tt.kind {
				t.Errorf("expected kind %s, got %s", tt.kind, intent.Kind)
			}
			if intent.DateTime != tt.datetime {
				t.Errorf("expected datetime %q, got %q", tt.datetime, intent.DateTime)
			}
			if intent.Summary != tt.summary {
				t.Errorf("expected summary %q, got %q", tt.summary, intent.Summary)
			}
			if intent.Reply != tt.reply {
				t.Errorf("expected reply %q, got %q", tt.reply, intent.Reply)
			}
		})
	}
}

func TestParseIntentMalformed(t *testing.T) {
	for _, raw := range []string{"", "not json", `["book"]`, `{"intent":`} {
		_, err := parseIntent(raw)
		if !errors.Is(err, ErrMalformedClassification) {
			t.Errorf("parseIntent(%q): expected ErrMalformedClassification, got %v", raw, err)
		}
		if !apperr.HasCode(err, apperr.CodeMalformedResponse) {
			t.Errorf("parseIntent(%q): expected malformed response code", raw)
		}
	}
}

func TestParseSuggestions(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		n       int
		want    []string
		wantErr bool
	}{
		{"wrapped", `{"suggestions":["10:00","11:00","12:00"]}`, 3, []string{"10:00", "11:00", "12:00"}, false},
		{"bare array", `["10:00","11:00"]`, 3, []string{"10:00", "11:00"}, false},
		{"capped", `{"suggestions":["a","b","c","d"]}`, 3, []string{"a", "b", "c"}, false},
		{"blank entries", `{"suggestions":[" ","a",""]}`, 3, []string{"a"}, false},
		{"empty", `{"suggestions":[]}`, 3, nil, true},
		{"garbage", `nope`, 3, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSuggestions(tt.raw, tt.n)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

// =============================================================================
// Against a stub OpenAI server
// =============================================================================

func chatCompletion(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   DefaultModel,
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	})
	return string(body)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClientWithConfig(ClientConfig{
		APIKey:     "sk-test",
		BaseURL:    srv.URL + "/v1",
		HTTPClient: srv.Client(),
		Guard: resilience.NewGuard(resilience.GuardConfig{
			Name:        "openai-test",
			Timeout:     2 * time.Second,
			MaxRetries:  2,
			BaseBackoff: time.Millisecond,
		}),
	})
	c.now = func() time.Time { return time.Date(2025, 6, 24, 10, 0, 0, 0, time.UTC) }
	return c
}

func TestClassifyIntentRequest(t *testing.T) {
	var captured map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, chatCompletion(`{"intent":"book","datetime":"2025-06-25T15:00:00","reply":"Done"}`))
	})

	intent, err := c.ClassifyIntent(context.Background(), "book me tomorrow at 3pm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if intent.Kind != domain.IntentBook || intent.DateTime != "2025-06-25T15:00:00" {
		t.Errorf("unexpected intent %+v", intent)
	}

	if captured["model"] != DefaultModel {
		t.Errorf("expected model %s, got %v", DefaultModel, captured["model"])
	}
	format, _ := captured["response_format"].(map[string]any)
	if format["type"] != "json_object" {
		t.Errorf("expected json_object response format, got %v", captured["response_format"])
	}
	messages, _ := captured["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("expected system and user messages, got %d", len(messages))
	}
	system, _ := messages[0].(map[string]any)
	if !strings.Contains(fmt.Sprint(system["content"]), "2025-06-24T10:00:00") {
		t.Error("system prompt must carry the current time")
	}
}

func TestClassifyIntentRetriesServerErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
			return
		}
		fmt.Fprint(w, chatCompletion(`{"intent":"cancel","reply":"ok"}`))
	})

	intent, err := c.ClassifyIntent(context.Background(), "cancel please")
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if intent.Kind != domain.IntentCancel {
		t.Errorf("unexpected kind %s", intent.Kind)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestClassifyIntentClientErrorNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	})

	_, err := c.ClassifyIntent(context.Background(), "hi")
	if !apperr.HasCode(err, apperr.CodeExternalError) {
		t.Fatalf("expected external error, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestSuggestAlternatives(t *testing.T) {
	var userPrompt string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) == 2 {
			userPrompt = req.Messages[1].Content
		}
		fmt.Fprint(w, chatCompletion(`{"suggestions":["Wed 10:00","Wed 11:00","Wed 14:00"]}`))
	})

	start := time.Date(2025, 6, 25, 9, 0, 0, 0, time.UTC)
	busy := []domain.BusyPeriod{
		{TimeInterval: domain.TimeInterval{Start: start, End: start.Add(time.Hour)}},
		{TimeInterval: domain.TimeInterval{Start: start}},
	}

	got, err := c.SuggestAlternatives(context.Background(), busy, domain.NewAppointmentInterval(start), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 suggestions, got %v", got)
	}
	if !strings.Contains(userPrompt, "2025-06-25T09:00") || !strings.Contains(userPrompt, "2025-06-25T10:00") {
		t.Errorf("user prompt must list the busy period, got %q", userPrompt)
	}
}
