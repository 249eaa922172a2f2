// Package llm abstracts the external language-model backend behind a small
// request/response interface. The orchestration core never talks to a
// provider directly; it sees Complete/CompleteWithSystem with bounded
// context timeouts and nothing else.
package llm

import (
	"context"
	"errors"
)

// ErrTimeout indicates a capability call exceeded its deadline.
// Callers treat this as a recoverable rejection, not a fatal error.
var ErrTimeout = errors.New("llm: call timed out")

// ErrUnavailable indicates the backend could not be reached at all.
var ErrUnavailable = errors.New("llm: backend unavailable")

// Client defines the interface for LLM interactions.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// IsTimeout reports whether err represents a deadline or timeout failure.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
