package out

import (
	"context"

	"calendar_bot/core/domain"
)

// IntentClassifier turns a free-text message into a structured intent.
type IntentClassifier interface {
	ClassifyIntent(ctx context.Context, text string) (*domain.Intent, error)
}

// TimeSuggester proposes alternative slots when a requested time is taken.
type TimeSuggester interface {
	SuggestAlternatives(ctx context.Context, busy []domain.BusyPeriod, requested domain.TimeInterval, n int) ([]string, error)
}
