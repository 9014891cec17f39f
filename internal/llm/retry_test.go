package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/embedkit/ragchat/internal/domain"
	"github.com/embedkit/ragchat/internal/metrics"
)

func init() {
	metrics.RegisterChatMetrics()
}

// --- Mocks ---

type scriptedProvider struct {
	errs   []error // error per attempt; past the end means success
	text   string
	tokens []string // emitted before the attempt's error (streaming)
	calls  int
}

func (p *scriptedProvider) Enabled() bool { return true }

func (p *scriptedProvider) Generate(_ context.Context, _ []domain.Turn) (string, error) {
	p.calls++
	if p.calls <= len(p.errs) && p.errs[p.calls-1] != nil {
		return "", p.errs[p.calls-1]
	}
	return p.text, nil
}

func (p *scriptedProvider) GenerateStream(_ context.Context, _ []domain.Turn, emit func(string)) error {
	p.calls++
	for _, tok := range p.tokens {
		emit(tok)
	}
	if p.calls <= len(p.errs) && p.errs[p.calls-1] != nil {
		return p.errs[p.calls-1]
	}
	return nil
}

func newTestResilient(next StreamingProvider) (*Resilient, *[]time.Duration) {
	waits := &[]time.Duration{}
	r := NewResilient(next, zap.NewNop())
	r.sleep = func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
	r.jitter = func() time.Duration { return 0 }
	return r, waits
}

func rateLimited(after time.Duration) error {
	return &RateLimitError{RetryAfter: after, Err: errors.New("429")}
}

// --- Tests ---

func TestResilient_SuccessFirstTry(t *testing.T) {
	p := &scriptedProvider{text: "answer"}
	r, waits := newTestResilient(p)

	got, err := r.Generate(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "answer" || p.calls != 1 || len(*waits) != 0 {
		t.Errorf("got %q, calls=%d, waits=%v", got, p.calls, *waits)
	}
}

func TestResilient_BackoffSchedule(t *testing.T) {
	p := &scriptedProvider{
		errs: []error{rateLimited(0), rateLimited(0), rateLimited(0)},
		text: "recovered",
	}
	r, waits := newTestResilient(p)

	got, err := r.Generate(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "recovered" || p.calls != 4 {
		t.Fatalf("got %q after %d calls", got, p.calls)
	}
	want := []time.Duration{400 * time.Millisecond, 800 * time.Millisecond, 1600 * time.Millisecond}
	if len(*waits) != len(want) {
		t.Fatalf("waits = %v, want %v", *waits, want)
	}
	for i := range want {
		if (*waits)[i] != want[i] {
			t.Errorf("wait %d = %v, want %v", i, (*waits)[i], want[i])
		}
	}
}

func TestResilient_RetryAfterHintAdds(t *testing.T) {
	p := &scriptedProvider{
		errs: []error{rateLimited(3 * time.Second)},
		text: "ok",
	}
	r, waits := newTestResilient(p)

	if _, err := r.Generate(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*waits) != 1 || (*waits)[0] != 3400*time.Millisecond {
		t.Errorf("waits = %v, want [3.4s]", *waits)
	}
}

func TestResilient_NegativeJitterClamped(t *testing.T) {
	p := &scriptedProvider{errs: []error{rateLimited(0)}, text: "ok"}
	r, waits := newTestResilient(p)
	r.jitter = func() time.Duration { return -time.Hour }

	if _, err := r.Generate(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*waits) != 1 || (*waits)[0] != 0 {
		t.Errorf("waits = %v, want [0]", *waits)
	}
}

func TestResilient_ExhaustsAfterMaxAttempts(t *testing.T) {
	p := &scriptedProvider{
		errs: []error{rateLimited(0), rateLimited(0), rateLimited(0), rateLimited(0)},
	}
	r, waits := newTestResilient(p)

	_, err := r.Generate(context.Background(), nil)
	if !errors.Is(err, domain.ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	if p.calls != 4 {
		t.Errorf("expected 4 attempts, got %d", p.calls)
	}
	if len(*waits) != 3 {
		t.Errorf("expected 3 backoffs, got %v", *waits)
	}
}

func TestResilient_QuotaNotRetried(t *testing.T) {
	p := &scriptedProvider{errs: []error{domain.ErrQuotaExceeded}}
	r, waits := newTestResilient(p)

	_, err := r.Generate(context.Background(), nil)
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if p.calls != 1 || len(*waits) != 0 {
		t.Errorf("quota error must not be retried: calls=%d waits=%v", p.calls, *waits)
	}
}

func TestResilient_HardErrorNotRetried(t *testing.T) {
	p := &scriptedProvider{errs: []error{domain.ErrProviderError}}
	r, _ := newTestResilient(p)

	_, err := r.Generate(context.Background(), nil)
	if !errors.Is(err, domain.ErrProviderError) {
		t.Fatalf("expected ErrProviderError, got %v", err)
	}
	if p.calls != 1 {
		t.Errorf("hard error must not be retried, got %d calls", p.calls)
	}
}

func TestResilient_SleepCancelled(t *testing.T) {
	p := &scriptedProvider{errs: []error{rateLimited(0), rateLimited(0)}}
	r, _ := newTestResilient(p)
	r.sleep = func(ctx context.Context, _ time.Duration) error { return context.Canceled }

	_, err := r.Generate(context.Background(), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if p.calls != 1 {
		t.Errorf("expected no retry after cancelled backoff, got %d calls", p.calls)
	}
}

func TestResilient_StreamRetriesBeforeFirstToken(t *testing.T) {
	p := &firstFailsThenStreams{tokens: []string{"a", "b"}}
	r, waits := newTestResilient(p)

	var got []string
	err := r.GenerateStream(context.Background(), nil, func(s string) { got = append(got, s) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 tokens, got %v", got)
	}
	if p.calls != 2 || len(*waits) != 1 {
		t.Errorf("expected one retry before first token: calls=%d waits=%v", p.calls, *waits)
	}
}

// firstFailsThenStreams rate-limits the first streaming call without
// emitting, then streams tokens successfully.
type firstFailsThenStreams struct {
	tokens []string
	calls  int
}

func (p *firstFailsThenStreams) Enabled() bool { return true }

func (p *firstFailsThenStreams) Generate(context.Context, []domain.Turn) (string, error) {
	return "", nil
}

func (p *firstFailsThenStreams) GenerateStream(_ context.Context, _ []domain.Turn, emit func(string)) error {
	p.calls++
	if p.calls == 1 {
		return rateLimited(0)
	}
	for _, tok := range p.tokens {
		emit(tok)
	}
	return nil
}

func TestResilient_StreamMidwayFailureNotRetried(t *testing.T) {
	p := &scriptedProvider{
		errs:   []error{rateLimited(0)},
		tokens: []string{"partial"},
	}
	r, waits := newTestResilient(p)

	var got []string
	err := r.GenerateStream(context.Background(), nil, func(s string) { got = append(got, s) })
	if !errors.Is(err, domain.ErrProviderError) {
		t.Fatalf("expected ErrProviderError for mid-stream failure, got %v", err)
	}
	if p.calls != 1 || len(*waits) != 0 {
		t.Errorf("mid-stream failure must not be retried: calls=%d waits=%v", p.calls, *waits)
	}
	if len(got) != 1 || got[0] != "partial" {
		t.Errorf("expected the partial token to reach the caller, got %v", got)
	}
}
