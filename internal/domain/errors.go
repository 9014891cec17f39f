package domain

import "errors"

var (
	// ErrProviderDisabled signals that no LLM provider is configured.
	ErrProviderDisabled = errors.New("llm provider disabled")
	// ErrProviderError signals a non-retryable provider failure.
	ErrProviderError = errors.New("llm provider error")
	// ErrQuotaExceeded signals an exhausted provider quota (non-retryable).
	ErrQuotaExceeded = errors.New("llm quota exceeded")
	// ErrRetriesExhausted signals that every rate-limit retry failed.
	ErrRetriesExhausted = errors.New("llm retries exhausted")
	// ErrStreamBusy signals that no streaming slot is free.
	ErrStreamBusy = errors.New("stream capacity exhausted")
	// ErrStreamCancelled signals caller disconnect or timeout mid-stream.
	ErrStreamCancelled = errors.New("stream cancelled")
)
