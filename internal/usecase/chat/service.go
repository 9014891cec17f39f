// Package chat orchestrates one answer: retrieve context, compose the
// prompt, call the provider, and fall back deterministically so callers
// always receive some answer.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/embedkit/ragchat/internal/domain"
	"github.com/embedkit/ragchat/internal/metrics"
)

// fallbackPrefix marks deterministic fallback answers.
const fallbackPrefix = "Echo: "

// fallbackGreeting answers an empty message on the fallback path.
const fallbackGreeting = "안녕하세요!"

// Service is the response orchestrator.
type Service struct {
	retriever Retriever
	generator Generator
	history   History
	bots      *Registry
	topK      int
	logger    *zap.Logger
}

// New creates the orchestrator. topK bounds context retrieval; zero skips
// retrieval entirely.
func New(retriever Retriever, generator Generator, history History, bots *Registry, topK int, logger *zap.Logger) *Service {
	return &Service{
		retriever: retriever,
		generator: generator,
		history:   history,
		bots:      bots,
		topK:      topK,
		logger:    logger,
	}
}

// Answer handles one non-streaming chat request. Every failure except
// quota exhaustion is absorbed into a fallback answer; quota is surfaced
// so the transport can map it distinctly.
func (s *Service) Answer(ctx context.Context, botID, message, sessionID string) (domain.Result, error) {
	start := time.Now()
	sessionID = s.resolveSessionID(sessionID)

	prompt := s.composePrompt(ctx, botID, message, sessionID)

	answer, err := s.generator.Generate(ctx, prompt)
	switch {
	case err == nil:
		metrics.ChatRequestsTotal.WithLabelValues("llm").Inc()
	case errors.Is(err, domain.ErrQuotaExceeded):
		metrics.ChatRequestsTotal.WithLabelValues("quota").Inc()
		return domain.Result{}, fmt.Errorf("generate: %w", err)
	default:
		s.logger.Warn("generation failed, using fallback",
			zap.String("session_id", sessionID), zap.Error(err))
		metrics.ChatRequestsTotal.WithLabelValues("fallback").Inc()
		answer = Fallback(message)
	}

	s.remember(ctx, botID, sessionID, message, answer)
	return s.result(answer, sessionID, prompt, start), nil
}

// Stream handles one streaming chat request. When the provider streams
// natively, fragments are forwarded through emit and streamed reports
// true; otherwise the full answer comes back in the result for the caller
// to chunk. Quota exhaustion propagates, everything else falls back.
func (s *Service) Stream(ctx context.Context, botID, message, sessionID string, emit func(token string)) (res domain.Result, streamed bool, err error) {
	start := time.Now()
	sessionID = s.resolveSessionID(sessionID)

	prompt := s.composePrompt(ctx, botID, message, sessionID)

	var answer strings.Builder
	streamErr := s.generator.GenerateStream(ctx, prompt, func(token string) {
		streamed = true
		answer.WriteString(token)
		emit(token)
	})

	text := answer.String()
	switch {
	case streamErr == nil:
		metrics.ChatRequestsTotal.WithLabelValues("llm").Inc()
	case errors.Is(streamErr, domain.ErrQuotaExceeded):
		metrics.ChatRequestsTotal.WithLabelValues("quota").Inc()
		return domain.Result{}, streamed, fmt.Errorf("generate stream: %w", streamErr)
	case errors.Is(streamErr, context.Canceled), errors.Is(streamErr, context.DeadlineExceeded):
		return domain.Result{}, streamed, fmt.Errorf("generate stream: %w", streamErr)
	case streamed:
		// Fragments already reached the caller: a fallback would splice
		// two answers together, so keep the partial text.
		s.logger.Warn("stream interrupted mid-answer",
			zap.String("session_id", sessionID), zap.Error(streamErr))
		metrics.ChatRequestsTotal.WithLabelValues("llm").Inc()
	default:
		s.logger.Warn("stream generation failed, using fallback",
			zap.String("session_id", sessionID), zap.Error(streamErr))
		metrics.ChatRequestsTotal.WithLabelValues("fallback").Inc()
		text = Fallback(message)
	}

	s.remember(ctx, botID, sessionID, message, text)
	return s.result(text, sessionID, prompt, start), streamed, nil
}

// Reset drops a session's conversation history.
func (s *Service) Reset(ctx context.Context, sessionID string) error {
	if err := s.history.Reset(ctx, sessionID); err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	return nil
}

// Fallback builds the deterministic provider-independent answer.
func Fallback(message string) string {
	m := strings.TrimSpace(message)
	if m == "" {
		return fallbackGreeting
	}
	return fallbackPrefix + m
}

func (s *Service) resolveSessionID(sessionID string) string {
	if strings.TrimSpace(sessionID) != "" {
		return sessionID
	}
	return uuid.NewString()
}

// composePrompt assembles system instruction, optional retrieved context,
// bounded history, and the user turn.
func (s *Service) composePrompt(ctx context.Context, botID, message, sessionID string) []domain.Turn {
	bot := s.bots.Get(botID)
	msgs := []domain.Turn{{Role: domain.RoleSystem, Content: bot.SystemPrompt}}

	if s.topK > 0 {
		locale := domain.DetectLocale(message)
		if snippets := s.retriever.Retrieve(message, locale, s.topK); len(snippets) > 0 {
			msgs = append(msgs, domain.Turn{
				Role:    domain.RoleSystem,
				Content: "Relevant knowledge base entries:\n" + formatContext(snippets),
			})
		}
	}

	turns, err := s.history.Turns(ctx, sessionID)
	if err != nil {
		s.logger.Warn("history unavailable, continuing without it",
			zap.String("session_id", sessionID), zap.Error(err))
	}
	for _, t := range turns {
		if t.Role == domain.RoleSystem {
			continue
		}
		msgs = append(msgs, t)
	}

	return append(msgs, domain.Turn{Role: domain.RoleUser, Content: message})
}

// remember appends the exchange to history, seeding the bot's system
// prompt on first contact.
func (s *Service) remember(ctx context.Context, botID, sessionID, message, answer string) {
	var toAppend []domain.Turn
	turns, err := s.history.Turns(ctx, sessionID)
	if err == nil && len(turns) == 0 {
		if sys := s.bots.Get(botID).SystemPrompt; sys != "" {
			toAppend = append(toAppend, domain.Turn{Role: domain.RoleSystem, Content: sys})
		}
	}
	toAppend = append(toAppend,
		domain.Turn{Role: domain.RoleUser, Content: message},
		domain.Turn{Role: domain.RoleAssistant, Content: answer},
	)
	if err := s.history.Append(ctx, sessionID, toAppend...); err != nil {
		s.logger.Warn("history append failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (s *Service) result(answer, sessionID string, prompt []domain.Turn, start time.Time) domain.Result {
	var promptChars int
	for _, t := range prompt {
		promptChars += utf8.RuneCountInString(t.Content)
	}
	answerChars := utf8.RuneCountInString(answer)

	return domain.Result{
		Answer:    answer,
		SessionID: sessionID,
		Usage: domain.NewUsage(
			promptChars, answerChars,
			time.Since(start).Milliseconds(), answerChars,
		),
	}
}

func formatContext(snippets []domain.Snippet) string {
	var b strings.Builder
	for _, sn := range snippets {
		b.WriteString("- ")
		b.WriteString(sn.Title)
		if sn.URL != "" {
			b.WriteString(" (")
			b.WriteString(sn.URL)
			b.WriteString(")")
		}
		b.WriteByte('\n')
		b.WriteString(strings.TrimSpace(sn.Text))
		b.WriteString("\n\n")
	}
	return b.String()
}
