// Package transport sends one user message to the conversational agent and
// returns its ordered reply fragments.
package transport

import (
	"context"

	"github.com/pkg/errors"

	"github.com/zhouzirui/rasa-chat/backend/internal/model/chat"
)

var (
	// ErrStatus marks a webhook answer outside the 2xx range.
	ErrStatus = errors.New("agent webhook returned non-success status")
	// ErrMalformed marks a webhook answer that could not be decoded.
	ErrMalformed = errors.New("agent webhook returned malformed payload")
)

// Client performs a single request/response exchange with the agent.
// Zero fragments is a valid successful answer. Implementations never retry.
type Client interface {
	Send(ctx context.Context, senderID, text string) ([]chat.Fragment, error)
}

// Func adapts a plain function to Client.
type Func func(ctx context.Context, senderID, text string) ([]chat.Fragment, error)

// Send calls f.
func (f Func) Send(ctx context.Context, senderID, text string) ([]chat.Fragment, error) {
	return f(ctx, senderID, text)
}
