package out

import "context"

// MessengerPort delivers a plain text reply to a chat user.
type MessengerPort interface {
	SendText(ctx context.Context, to, body string) error
}
