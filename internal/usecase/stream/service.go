// Package stream turns one orchestrated answer into a paced,
// heartbeat-protected, admission-controlled event sequence.
package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/embedkit/ragchat/internal/domain"
	"github.com/embedkit/ragchat/internal/metrics"
)

// Orchestrator produces one answer, natively streamed or monolithic.
type Orchestrator interface {
	Stream(ctx context.Context, botID, message, sessionID string, emit func(token string)) (res domain.Result, streamed bool, err error)
}

// Config tunes delivery behaviour.
type Config struct {
	// MaxConcurrent bounds simultaneously active streaming sessions.
	MaxConcurrent int
	// TokenDelay is the configured per-token pacing delay for synthetic
	// chunking.
	TokenDelay time.Duration
	// TargetDuration caps total synthetic emission time; the effective
	// delay is min(TokenDelay, TargetDuration/answer length).
	TargetDuration time.Duration
	// Heartbeat is the idle interval after which a keep-alive is emitted.
	Heartbeat time.Duration
}

// Service is the streaming delivery engine.
type Service struct {
	chat   Orchestrator
	cfg    Config
	slots  chan struct{}
	logger *zap.Logger
}

// New creates the delivery engine with a fixed admission pool.
func New(chat Orchestrator, cfg Config, logger *zap.Logger) *Service {
	return &Service{
		chat:   chat,
		cfg:    cfg,
		slots:  make(chan struct{}, cfg.MaxConcurrent),
		logger: logger,
	}
}

// Open admits a streaming session and returns its event channel. When no
// slot is free it fails immediately with ErrStreamBusy — sessions are
// never queued. The channel is closed after the terminal event. Cancel
// ctx to stop the session; the admission slot is always released.
func (s *Service) Open(ctx context.Context, botID, message, sessionID string) (<-chan Event, error) {
	select {
	case s.slots <- struct{}{}:
	default:
		metrics.StreamSessionsTotal.WithLabelValues("rejected").Inc()
		return nil, domain.ErrStreamBusy
	}
	metrics.StreamSessionsTotal.WithLabelValues("admitted").Inc()

	sess := newSession()
	go s.run(ctx, sess, botID, message, sessionID)
	return sess.events, nil
}

func (s *Service) run(ctx context.Context, sess *session, botID, message, sessionID string) {
	defer func() { <-s.slots }()

	var wg sync.WaitGroup
	if s.cfg.Heartbeat > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.heartbeatLoop(ctx, sess)
		}()
	}

	s.deliver(ctx, sess, botID, message, sessionID)

	// Terminal was decided; stop heartbeats, then hand the closed channel
	// to the consumer.
	sess.finish()
	wg.Wait()
	close(sess.events)
}

// deliver produces the full event sequence for one session.
func (s *Service) deliver(ctx context.Context, sess *session, botID, message, sessionID string) {
	res, streamed, err := s.chat.Stream(ctx, botID, message, sessionID, func(token string) {
		if sess.send(ctx, Event{Type: EventToken, Token: token}) {
			metrics.StreamTokensTotal.Inc()
		}
	})

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), ctx.Err() != nil:
		metrics.StreamSessionsTotal.WithLabelValues("cancelled").Inc()
		sess.sendBestEffort(Event{Type: EventError, Message: "cancelled"})
		return
	case errors.Is(err, domain.ErrQuotaExceeded):
		sess.send(ctx, Event{Type: EventError, Message: "quota_exceeded"})
		return
	default:
		sess.send(ctx, Event{Type: EventError, Message: "stream_error"})
		return
	}

	if !streamed {
		if !s.emitChunked(ctx, sess, res.Answer) {
			metrics.StreamSessionsTotal.WithLabelValues("cancelled").Inc()
			sess.sendBestEffort(Event{Type: EventError, Message: "cancelled"})
			return
		}
	}

	usage := res.Usage
	if !sess.send(ctx, Event{Type: EventUsage, Usage: &usage}) {
		return
	}
	sess.send(ctx, Event{Type: EventDone})
}

// emitChunked splits a monolithic answer into code-point tokens with
// adaptive pacing. Returns false when the session was cancelled.
func (s *Service) emitChunked(ctx context.Context, sess *session, answer string) bool {
	runes := []rune(answer)
	delay := s.effectiveDelay(len(runes))

	for i, r := range runes {
		if !sess.send(ctx, Event{Type: EventToken, Token: string(r)}) {
			return false
		}
		metrics.StreamTokensTotal.Inc()

		if delay <= 0 || i == len(runes)-1 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
	return true
}

// effectiveDelay caps the configured per-token delay so the whole answer
// fits the target duration: min(D, T/L).
func (s *Service) effectiveDelay(length int) time.Duration {
	d := s.cfg.TokenDelay
	if length <= 0 || s.cfg.TargetDuration <= 0 {
		return d
	}
	return min(d, s.cfg.TargetDuration/time.Duration(length))
}

// heartbeatLoop emits a keep-alive whenever the session has been idle for
// the heartbeat interval. It runs independently of token production so
// heartbeats flow while the orchestrated call is still pending.
func (s *Service) heartbeatLoop(ctx context.Context, sess *session) {
	h := s.cfg.Heartbeat
	timer := time.NewTimer(h)
	defer timer.Stop()

	for {
		select {
		case <-sess.done:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
			idle := time.Since(sess.lastEmission())
			if idle < h {
				timer.Reset(h - idle)
				continue
			}
			if sess.send(ctx, Event{Type: EventHeartbeat}) {
				metrics.StreamHeartbeatsTotal.Inc()
			}
			timer.Reset(h)
		}
	}
}

// session is one live streaming response.
type session struct {
	events     chan Event
	done       chan struct{}
	lastEmit   atomic.Int64 // unix nanos
	finishOnce sync.Once
}

func newSession() *session {
	sess := &session{
		events: make(chan Event, 16),
		done:   make(chan struct{}),
	}
	sess.lastEmit.Store(time.Now().UnixNano())
	return sess
}

// send delivers an event unless the session is finished or cancelled.
func (s *session) send(ctx context.Context, ev Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- ev:
		s.lastEmit.Store(time.Now().UnixNano())
		return true
	case <-ctx.Done():
		return false
	case <-s.done:
		return false
	}
}

// sendBestEffort tries to deliver without blocking; used for the error
// notice after cancellation when the consumer may already be gone.
func (s *session) sendBestEffort(ev Event) {
	select {
	case <-s.done:
	case s.events <- ev:
	default:
	}
}

func (s *session) finish() {
	s.finishOnce.Do(func() { close(s.done) })
}

func (s *session) lastEmission() time.Time {
	return time.Unix(0, s.lastEmit.Load())
}
