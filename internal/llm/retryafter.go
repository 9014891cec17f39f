package llm

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// retryHint holds the most recent Retry-After value observed on a 429
// response, in milliseconds. take drains it so one hint feeds one retry.
type retryHint struct {
	ms atomic.Int64
}

func (h *retryHint) set(d time.Duration) { h.ms.Store(d.Milliseconds()) }

func (h *retryHint) take() time.Duration {
	return time.Duration(h.ms.Swap(0)) * time.Millisecond
}

// retryAfterTransport records the Retry-After header of 429 responses.
type retryAfterTransport struct {
	base http.RoundTripper
	hint *retryHint
	now  func() time.Time
}

func (t *retryAfterTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		t.hint.set(parseRetryAfter(resp.Header.Get("Retry-After"), t.now()))
	}
	return resp, err
}

// parseRetryAfter converts a Retry-After header into a wait duration.
// Both the integer-seconds form and the HTTP-date form are accepted;
// anything unparseable (or a date in the past) yields zero.
func parseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		return max(0, when.Sub(now))
	}
	return 0
}
