// Package llm talks to the external text-generation provider and shields
// callers from its failure modes: rate limits are retried with backoff,
// quota exhaustion and hard errors are classified into domain sentinels.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/embedkit/ragchat/internal/domain"
)

// Provider generates a completion for a composed prompt.
type Provider interface {
	// Enabled reports whether the provider is configured and usable.
	Enabled() bool
	// Generate returns the full completion text.
	Generate(ctx context.Context, msgs []domain.Turn) (string, error)
}

// StreamingProvider additionally delivers the completion incrementally.
// emit is called once per fragment, in generation order.
type StreamingProvider interface {
	Provider
	GenerateStream(ctx context.Context, msgs []domain.Turn, emit func(token string)) error
}

// RateLimitError is a retryable rate-limit failure. RetryAfter carries the
// provider's own hint when one was supplied.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// Disabled is the provider used when no API key is configured. Every call
// fails with ErrProviderDisabled so the orchestrator falls back.
type Disabled struct{}

// NewDisabled creates a disabled provider.
func NewDisabled() Disabled { return Disabled{} }

// Enabled always reports false.
func (Disabled) Enabled() bool { return false }

// Generate always fails with ErrProviderDisabled.
func (Disabled) Generate(context.Context, []domain.Turn) (string, error) {
	return "", domain.ErrProviderDisabled
}

// GenerateStream always fails with ErrProviderDisabled.
func (Disabled) GenerateStream(context.Context, []domain.Turn, func(string)) error {
	return domain.ErrProviderDisabled
}
