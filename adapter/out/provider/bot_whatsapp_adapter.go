package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"calendar_bot/core/port/out"
	"calendar_bot/pkg/apperr"
	"calendar_bot/pkg/httputil"
	"calendar_bot/pkg/logger"
	"calendar_bot/pkg/resilience"
)

const (
	whatsappService     = "whatsapp"
	DefaultGraphBaseURL = "https://graph.facebook.com"
	DefaultGraphVersion = "v18.0"
)

// WhatsAppConfig holds WhatsApp Cloud API settings.
type WhatsAppConfig struct {
	Token         string
	PhoneNumberID string
	BaseURL       string
	APIVersion    string
	HTTPClient    *http.Client
	Guard         *resilience.Guard
}

// WhatsAppAdapter implements out.MessengerPort over the WhatsApp Cloud API.
type WhatsAppAdapter struct {
	client   *http.Client
	token    string
	endpoint string
	guard    *resilience.Guard
}

var _ out.MessengerPort = (*WhatsAppAdapter)(nil)

// NewWhatsAppAdapter creates a new WhatsApp adapter.
func NewWhatsAppAdapter(cfg WhatsAppConfig) *WhatsAppAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGraphBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultGraphVersion
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httputil.WhatsAppClient()
	}
	if cfg.Guard == nil {
		cfg.Guard = resilience.NewGuard(resilience.DefaultGuardConfig(whatsappService))
	}
	return &WhatsAppAdapter{
		client:   cfg.HTTPClient,
		token:    cfg.Token,
		endpoint: fmt.Sprintf("%s/%s/%s/messages", strings.TrimRight(cfg.BaseURL, "/"), cfg.APIVersion, cfg.PhoneNumberID),
		guard:    cfg.Guard,
	}
}

type textMessage struct {
	MessagingProduct string      `json:"messaging_product"`
	To               string      `json:"to"`
	Type             string      `json:"type"`
	Text             textContent `json:"text"`
}

type textContent struct {
	Body string `json:"body"`
}

type graphErrorResponse struct {
	Error struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendText sends a plain text message. Sends are never retried so a user
// never receives the same reply twice.
func (a *WhatsAppAdapter) SendText(ctx context.Context, to, body string) error {
	payload, err := json.Marshal(textMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             textContent{Body: body},
	})
	if err != nil {
		return apperr.InternalWithError(err)
	}

	return a.guard.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(payload))
		if err != nil {
			return apperr.InternalWithError(err)
		}
		req.Header.Set("Authorization", "Bearer "+a.token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := a.client.Do(req)
		if err != nil {
			return apperr.ExternalError(whatsappService, err)
		}
		defer resp.Body.Close()

		respBody, _ := io.ReadAll(resp.Body)
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return wrapGraphError(resp.StatusCode, respBody)
		}

		var sent sendResponse
		if err := json.Unmarshal(respBody, &sent); err == nil && len(sent.Messages) > 0 {
			logger.WithContext(ctx).WithField("wamid", sent.Messages[0].ID).Debug("message sent")
		}
		return nil
	})
}

func wrapGraphError(status int, body []byte) error {
	var ge graphErrorResponse
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &ge); err == nil && ge.Error.Message != "" {
		msg = ge.Error.Message
	}

	appErr := apperr.ExternalError(whatsappService, fmt.Errorf("status %d: %s", status, msg)).
		WithDetail("status", status)
	if ge.Error.Code != 0 {
		appErr = appErr.WithDetail("graph_code", ge.Error.Code)
	}
	return appErr
}
