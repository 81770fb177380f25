// Package llm generates assistant replies for text messages through an
// OpenAI-compatible chat completion API, with a cooldown latch that backs
// off after upstream rate limiting.
package llm

import (
	"context"
	"errors"
	"time"
)

// ErrRateLimited is returned by Generate while the rate-limit cooldown is
// active or when the upstream responds with 429.
var ErrRateLimited = errors.New("llm rate limited")

// RateLimitStatus describes the current rate-limit latch.
type RateLimitStatus struct {
	// RateLimited is true while the cooldown is active.
	RateLimited bool

	// Remaining is how long until the cooldown expires. Zero when not
	// rate limited.
	Remaining time.Duration
}

// Client generates replies to user prompts.
type Client interface {
	// Generate returns a completion for the prompt. It returns
	// ErrRateLimited while the cooldown latch is active.
	Generate(ctx context.Context, prompt string) (string, error)

	// Status reports the current rate-limit state.
	Status() RateLimitStatus
}
