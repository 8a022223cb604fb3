package in

import (
	"context"

	"calendar_bot/core/domain"
)

// DispatchService handles one inbound chat message end to end. It never
// returns an error; failures are turned into a reply and recorded on the
// outcome.
type DispatchService interface {
	Dispatch(ctx context.Context, msg *domain.InboundMessage) *domain.DispatchOutcome
}
