package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"calendar_bot/core/domain"
	"calendar_bot/core/port/in"
	"calendar_bot/core/port/out"
	"calendar_bot/pkg/apperr"
	"calendar_bot/pkg/logger"
	"calendar_bot/pkg/metrics"

	"github.com/gofiber/fiber/v2"
)

const (
	DefaultDedupTTL = time.Hour
	signatureHeader = "X-Hub-Signature-256"
	signaturePrefix = "sha256="
)

// WhatsApp Cloud API webhook payload, reduced to the fields the bot reads.
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []webhookMessage `json:"messages"`
				Metadata struct {
					PhoneNumberID string `json:"phone_number_id"`
				} `json:"metadata"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type webhookMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
}

type WebhookConfig struct {
	VerifyToken string
	// AppSecret enables X-Hub-Signature-256 verification when set.
	AppSecret string
	DedupTTL  time.Duration
}

type WebhookHandler struct {
	dispatcher in.DispatchService
	dedup      out.DedupStore
	audit      out.AuditLog
	metrics    *metrics.WebhookMetrics
	cfg        WebhookConfig
}

// NewWebhookHandler wires the WhatsApp webhook. dedup and audit may be nil.
func NewWebhookHandler(
	dispatcher in.DispatchService,
	dedup out.DedupStore,
	audit out.AuditLog,
	m *metrics.WebhookMetrics,
	cfg WebhookConfig,
) *WebhookHandler {
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = DefaultDedupTTL
	}
	if m == nil {
		m = metrics.NewWebhookMetrics()
	}
	return &WebhookHandler{
		dispatcher: dispatcher,
		dedup:      dedup,
		audit:      audit,
		metrics:    m,
		cfg:        cfg,
	}
}

func (h *WebhookHandler) Register(app *fiber.App) {
	for _, path := range []string{"/webhook", "/api/webhook"} {
		app.Get(path, h.Verify)
		app.Post(path, h.Receive)
		app.All(path, h.MethodNotAllowed)
	}
}

// Verify answers the subscription handshake.
func (h *WebhookHandler) Verify(c *fiber.Ctx) error {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	if mode == "subscribe" && token != "" && token == h.cfg.VerifyToken {
		logger.Info("[Webhook.Verify] subscription verified")
		return c.Status(fiber.StatusOK).SendString(challenge)
	}

	logger.Warn("[Webhook.Verify] verification failed: mode=%q", mode)
	return c.Status(fiber.StatusForbidden).SendString("Verification failed")
}

// Receive handles one delivery. Everything except a bad signature is
// acknowledged with 200 so the platform does not redeliver.
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	h.metrics.Received.Add(1)
	body := c.Body()

	if h.cfg.AppSecret != "" && !validSignature(h.cfg.AppSecret, body, c.Get(signatureHeader)) {
		h.metrics.Ignore(metrics.IgnoreBadSignature)
		return apperr.InvalidSignature()
	}

	msg, reason := extractMessage(body)
	if reason != "" {
		h.metrics.Ignore(reason)
		logger.Debug("[Webhook.Receive] ignored delivery: %s", reason)
		return ack(c)
	}

	ctx := c.UserContext()
	if h.dedup != nil {
		first, err := h.dedup.MarkSeen(ctx, msg.ID, h.cfg.DedupTTL)
		if err != nil {
			logger.WithError(err).Warn("[Webhook.Receive] dedup unavailable, processing %s", msg.ID)
		} else if !first {
			h.metrics.Ignore(metrics.IgnoreDuplicate)
			logger.Info("[Webhook.Receive] duplicate delivery %s", msg.ID)
			return ack(c)
		}
	}

	outcome := h.dispatcher.Dispatch(ctx, msg)

	if h.audit != nil {
		if err := h.audit.Record(ctx, outcome); err != nil {
			logger.WithError(err).Warn("[Webhook.Receive] audit record failed for %s", msg.ID)
		}
	}
	h.metrics.ObserveDispatch(string(outcome.Kind), outcome.Action, outcome.Duration, outcome.Err != nil, outcome.SendErr != nil)

	return ack(c)
}

func (h *WebhookHandler) MethodNotAllowed(c *fiber.Ctx) error {
	c.Set(fiber.HeaderAllow, "GET, POST")
	return c.Status(fiber.StatusMethodNotAllowed).SendString("Method " + c.Method() + " Not Allowed")
}

func ack(c *fiber.Ctx) error {
	c.Status(fiber.StatusOK)
	return nil
}

// extractMessage pulls the first text message out of a delivery. A non-empty
// reason means the delivery carries nothing to dispatch.
func extractMessage(body []byte) (*domain.InboundMessage, string) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, metrics.IgnoreMalformed
	}
	if len(payload.Entry) == 0 || len(payload.Entry[0].Changes) == 0 {
		return nil, metrics.IgnoreNoMessage
	}
	value := payload.Entry[0].Changes[0].Value
	if len(value.Messages) == 0 {
		return nil, metrics.IgnoreNoMessage
	}

	m := value.Messages[0]
	if m.Type != "text" || m.Text == nil {
		return nil, metrics.IgnoreNonText
	}
	if m.From == "" {
		return nil, metrics.IgnoreNoMessage
	}
	phoneNumberID := value.Metadata.PhoneNumberID
	if m.From == phoneNumberID {
		return nil, metrics.IgnoreSelf
	}

	msg := &domain.InboundMessage{
		ID:            m.ID,
		From:          m.From,
		Text:          m.Text.Body,
		PhoneNumberID: phoneNumberID,
	}
	if secs, err := strconv.ParseInt(m.Timestamp, 10, 64); err == nil {
		msg.Timestamp = time.Unix(secs, 0).UTC()
	}
	return msg, ""
}

func validSignature(secret string, body []byte, header string) bool {
	if !strings.HasPrefix(header, signaturePrefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
