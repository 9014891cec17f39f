package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/embedkit/ragchat/internal/domain"
	"github.com/embedkit/ragchat/internal/metrics"
)

const (
	// maxAttempts bounds rate-limit retries (initial call included).
	maxAttempts = 4
	// baseBackoff doubles per attempt: 400, 800, 1600ms before attempts 2..4.
	baseBackoff = 400 * time.Millisecond
	// jitterSpan is the symmetric jitter range added to each wait.
	jitterSpan = 100 * time.Millisecond
)

// Resilient wraps a provider with the rate-limit retry state machine.
// Quota exhaustion and non-429 failures propagate immediately; plain rate
// limits are retried with exponential backoff, the provider's Retry-After
// hint, and symmetric jitter.
type Resilient struct {
	next   StreamingProvider
	logger *zap.Logger

	// Injection points for tests.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() time.Duration
}

// NewResilient wraps next with retry behaviour.
func NewResilient(next StreamingProvider, logger *zap.Logger) *Resilient {
	return &Resilient{
		next:   next,
		logger: logger,
		sleep:  sleepCtx,
		jitter: randomJitter,
	}
}

// Enabled reports whether the wrapped provider is usable.
func (r *Resilient) Enabled() bool { return r.next.Enabled() }

// Generate calls the provider, retrying rate-limited attempts.
func (r *Resilient) Generate(ctx context.Context, msgs []domain.Turn) (string, error) {
	var text string
	err := r.attempt(ctx, func(ctx context.Context) error {
		var err error
		text, err = r.next.Generate(ctx, msgs)
		return err
	})
	return text, err
}

// GenerateStream calls the provider's streaming path. Failures are only
// retried while nothing has been emitted yet; once fragments reached the
// caller a retry would duplicate output, so mid-stream errors propagate.
func (r *Resilient) GenerateStream(ctx context.Context, msgs []domain.Turn, emit func(string)) error {
	started := false
	guarded := func(token string) {
		started = true
		emit(token)
	}
	return r.attempt(ctx, func(ctx context.Context) error {
		err := r.next.GenerateStream(ctx, msgs, guarded)
		if err != nil && started {
			return fmt.Errorf("stream interrupted: %w", domain.ErrProviderError)
		}
		return err
	})
}

func (r *Resilient) attempt(ctx context.Context, call func(ctx context.Context) error) error {
	for n := 1; ; n++ {
		err := call(ctx)
		if err == nil {
			return nil
		}

		var rle *RateLimitError
		if !errors.As(err, &rle) {
			// Quota exhaustion and hard errors are terminal.
			return err
		}
		if n == maxAttempts {
			metrics.LLMRetriesTotal.WithLabelValues("exhausted").Inc()
			return fmt.Errorf("%d rate-limited attempts: %w", n, domain.ErrRetriesExhausted)
		}

		wait := max(0, baseBackoff<<(n-1)+rle.RetryAfter+r.jitter())
		r.logger.Debug("rate limited, backing off",
			zap.Int("attempt", n),
			zap.Duration("wait", wait),
			zap.Duration("retry_after", rle.RetryAfter),
		)
		metrics.LLMRetriesTotal.WithLabelValues("rate_limited").Inc()

		if err := r.sleep(ctx, wait); err != nil {
			return fmt.Errorf("backoff interrupted: %w", err)
		}
	}
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func randomJitter() time.Duration {
	return time.Duration(rand.Int63n(int64(2*jitterSpan)+1)) - jitterSpan
}
