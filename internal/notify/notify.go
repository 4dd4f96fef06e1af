// Package notify delivers fire-and-forget user notifications. The core never
// blocks on delivery and no failure is surfaced upward.
package notify

import "context"

type Payload struct {
	Title string
	Body  string
}

// Dispatcher sends a notification to a device token. Implementations must not
// block the caller beyond handing the message off.
type Dispatcher interface {
	Send(ctx context.Context, token string, payload Payload)
}

// Noop discards every notification. Used when no transport is configured and
// in tests.
type Noop struct{}

func (Noop) Send(ctx context.Context, token string, payload Payload) {}
