package chi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"unicode/utf8"

	"go.uber.org/zap"

	streamuc "github.com/embedkit/ragchat/internal/usecase/stream"
)

// ChatStream handles GET /v1/chat/stream as Server-Sent Events. Wire
// contract: named events token/usage/done/error plus comment-line
// keep-alives, terminated by exactly one of done or error.
func (s *Server) ChatStream(w http.ResponseWriter, r *http.Request) {
	req := chatRequest{
		BotID:     r.URL.Query().Get("botId"),
		Message:   r.URL.Query().Get("message"),
		SessionID: r.URL.Query().Get("sessionId"),
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, "validation_failed", msg)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	// Admission happens before any SSE bytes go out so a busy rejection
	// is still a clean JSON 503.
	events, err := s.stream.Open(r.Context(), req.BotID, req.Message, req.SessionID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		if err := writeSSE(w, ev); err != nil {
			// Client is gone; cancelling the request context stops the
			// engine, which releases the slot and closes the channel.
			s.logger.Debug("stream write failed", zap.Error(err))
			return
		}
		flusher.Flush()
		if ev.Terminal() {
			return
		}
	}
}

// writeSSE encodes one engine event as an SSE frame.
func writeSSE(w http.ResponseWriter, ev streamuc.Event) error {
	switch ev.Type {
	case streamuc.EventToken:
		return writeSSEEvent(w, "token", map[string]string{"token": ev.Token})
	case streamuc.EventUsage:
		return writeSSEEvent(w, "usage", ev.Usage)
	case streamuc.EventDone:
		_, err := fmt.Fprint(w, "event: done\ndata: [DONE]\n\n")
		return err
	case streamuc.EventError:
		return writeSSEEvent(w, "error", map[string]string{"error": ev.Message})
	case streamuc.EventHeartbeat:
		// Comment line: keeps the connection alive without reaching the
		// client's event handlers.
		_, err := fmt.Fprint(w, ": keepalive\n\n")
		return err
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
}

func writeSSEEvent(w http.ResponseWriter, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", name, err)
	}
	if !utf8.Valid(data) {
		return fmt.Errorf("%s event is not valid UTF-8", name)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return fmt.Errorf("write %s event: %w", name, err)
	}
	return nil
}
