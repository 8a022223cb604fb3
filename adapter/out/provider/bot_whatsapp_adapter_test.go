package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"calendar_bot/pkg/apperr"
)

func TestWhatsAppSendText(t *testing.T) {
	var (
		gotPath string
		gotAuth string
		gotBody map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		fmt.Fprint(w, `{"messaging_product":"whatsapp","messages":[{"id":"wamid.out"}]}`)
	}))
	defer srv.Close()

	a := NewWhatsAppAdapter(WhatsAppConfig{
		Token:         "wa-token",
		PhoneNumberID: "1234",
		BaseURL:       srv.URL,
		HTTPClient:    srv.Client(),
	})

	if err := a.SendText(context.Background(), "32470000000", "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/v18.0/1234/messages" {
		t.Errorf("unexpected path %s", gotPath)
	}
	if gotAuth != "Bearer wa-token" {
		t.Errorf("unexpected auth %q", gotAuth)
	}
	if gotBody["messaging_product"] != "whatsapp" || gotBody["to"] != "32470000000" || gotBody["type"] != "text" {
		t.Errorf("unexpected body %v", gotBody)
	}
	text, _ := gotBody["text"].(map[string]any)
	if text["body"] != "hello" {
		t.Errorf("unexpected text %v", gotBody["text"])
	}
}

func TestWhatsAppSendTextError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"Recipient phone number not in allowed list","type":"OAuthException","code":131030}}`)
	}))
	defer srv.Close()

	a := NewWhatsAppAdapter(WhatsAppConfig{
		Token:         "wa-token",
		PhoneNumberID: "1234",
		BaseURL:       srv.URL + "/",
		APIVersion:    "v19.0",
		HTTPClient:    srv.Client(),
	})

	err := a.SendText(context.Background(), "1", "hi")
	if !apperr.HasCode(err, apperr.CodeExternalError) {
		t.Fatalf("expected external error, got %v", err)
	}
	if !strings.Contains(err.Error(), "not in allowed list") {
		t.Errorf("error should carry the Graph API message, got %v", err)
	}
	if appErr := apperr.AsAppError(err); appErr.Details["graph_code"] != 131030 {
		t.Errorf("unexpected details %v", appErr.Details)
	}
	if calls != 1 {
		t.Errorf("sends must not be retried, got %d calls", calls)
	}
}
