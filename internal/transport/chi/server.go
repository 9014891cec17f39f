// Package chi is the REST/SSE surface of the chat service.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/embedkit/ragchat/internal/domain"
	chatuc "github.com/embedkit/ragchat/internal/usecase/chat"
	healthuc "github.com/embedkit/ragchat/internal/usecase/health"
	streamuc "github.com/embedkit/ragchat/internal/usecase/stream"
)

// Request bounds enforced before anything reaches the core.
const (
	maxBotIDLen     = 64
	maxMessageLen   = 4000
	maxSessionIDLen = 128
)

// Server exposes the chat endpoints.
type Server struct {
	chat   *chatuc.Service
	stream *streamuc.Service
	health *healthuc.Service
	logger *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(chat *chatuc.Service, stream *streamuc.Service, health *healthuc.Service, logger *zap.Logger) *Server {
	return &Server{chat: chat, stream: stream, health: health, logger: logger}
}

// Register mounts all routes on the router.
func (s *Server) Register(r chi.Router) {
	r.Post("/v1/chat", s.Chat)
	r.Get("/v1/chat/stream", s.ChatStream)
	r.Post("/v1/session/reset", s.ResetSession)
	r.Get("/health", s.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
}

type chatRequest struct {
	BotID     string `json:"botId"`
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

// validate enforces the request bounds shared by both chat endpoints.
func (c *chatRequest) validate() string {
	switch {
	case c.BotID == "":
		return "botId is required"
	case utf8.RuneCountInString(c.BotID) > maxBotIDLen:
		return "botId too long"
	case c.Message == "":
		return "message is required"
	case utf8.RuneCountInString(c.Message) > maxMessageLen:
		return "message too long"
	case utf8.RuneCountInString(c.SessionID) > maxSessionIDLen:
		return "sessionId too long"
	}
	return ""
}

// Chat handles POST /v1/chat.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, "validation_failed", msg)
		return
	}

	result, err := s.chat.Answer(r.Context(), req.BotID, req.Message, req.SessionID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ResetSession handles POST /v1/session/reset.
func (s *Server) ResetSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "sessionId is required")
		return
	}

	if err := s.chat.Reset(r.Context(), req.SessionID); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status":      string(report.Status),
		"checks":      checks,
		"indexedDocs": report.IndexedDocs,
		"llmEnabled":  report.LLMEnabled,
	})
}

// handleDomainError maps domain sentinels to HTTP statuses.
func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrQuotaExceeded):
		writeError(w, http.StatusPaymentRequired, "quota_exceeded", "llm quota exceeded")
	case errors.Is(err, domain.ErrStreamBusy):
		writeError(w, http.StatusServiceUnavailable, "busy", "too many concurrent streams")
	default:
		s.logger.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}
