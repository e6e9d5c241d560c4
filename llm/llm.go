// Package llm wraps the generation backend behind a small message-based
// client contract.
package llm

import (
	"context"
	"errors"
)

// Role identifies the author of a message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation sent to the model
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request carries a completion request. When JSONOutput is set the backend
// is instructed to emit strictly JSON; recovering from violations is the
// caller's responsibility.
type Request struct {
	Messages    []Message
	Temperature float32
	JSONOutput  bool
}

// Client generates a completion for an ordered sequence of messages
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

var (
	// ErrUnavailable means the backend could not be reached or kept failing
	// after retries. Fatal to the calling analysis.
	ErrUnavailable = errors.New("llm backend unavailable")
	// ErrRateLimited means the backend rejected the call with a rate limit.
	// Fatal to the calling analysis.
	ErrRateLimited = errors.New("llm backend rate limited")
)
