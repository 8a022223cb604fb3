package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	"calendar_bot/pkg/apperr"
	"calendar_bot/pkg/httputil"
	"calendar_bot/pkg/resilience"

	openai "github.com/sashabaranov/go-openai"
)

type Client struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	guard       *resilience.Guard
	loc         *time.Location
	now         func() time.Time
}

type ClientConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	// Location is the zone the model is told to answer in.
	Location   *time.Location
	HTTPClient *http.Client
	Guard      *resilience.Guard
}

const (
	DefaultModel       = "gpt-4.1-nano"
	DefaultTemperature = 0.5
	DefaultMaxTokens   = 512
)

func NewClient(apiKey string) *Client {
	return NewClientWithConfig(ClientConfig{APIKey: apiKey})
}

func NewClientWithConfig(cfg ClientConfig) *Client {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = DefaultTemperature
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	guard := cfg.Guard
	if guard == nil {
		guard = resilience.NewGuard(resilience.DefaultGuardConfig("openai"))
	}

	oaCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oaCfg.BaseURL = cfg.BaseURL
	}
	oaCfg.HTTPClient = cfg.HTTPClient
	if oaCfg.HTTPClient == nil {
		oaCfg.HTTPClient = httputil.OpenAIClient()
	}

	return &Client{
		client:      openai.NewClientWithConfig(oaCfg),
		model:       model,
		maxTokens:   maxTokens,
		temperature: float32(temperature),
		guard:       guard,
		loc:         loc,
		now:         time.Now,
	}
}

// CompleteJSONWithSystem asks for a JSON object answer. Completions have no
// side effects, so transient failures are retried.
func (c *Client) CompleteJSONWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var content string
	err := c.guard.Retry(ctx, func(ctx context.Context) error {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: systemPrompt,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: userPrompt,
				},
			},
			MaxTokens:   c.maxTokens,
			Temperature: c.temperature,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
		if err != nil {
			return wrapOpenAIError(err)
		}
		if len(resp.Choices) == 0 {
			content = ""
			return nil
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	return content, err
}

// wrapOpenAIError classifies rate limiting and server errors as unavailable
// so the guard retries them.
func wrapOpenAIError(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
		return apperr.Unavailable("openai", err).WithDetail("status", status)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return apperr.ExternalError("openai", err).WithDetail("status", status)
}
