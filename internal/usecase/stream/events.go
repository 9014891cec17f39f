package stream

import "github.com/embedkit/ragchat/internal/domain"

// EventType enumerates the signals a streaming session can emit.
type EventType string

// Event types. Per session the sequence is token* usage? (done|error),
// with heartbeats interleaved at any point before the terminal event.
const (
	EventToken     EventType = "token"
	EventUsage     EventType = "usage"
	EventDone      EventType = "done"
	EventError     EventType = "error"
	EventHeartbeat EventType = "heartbeat"
)

// Event is one signal delivered to the transport.
type Event struct {
	Type    EventType
	Token   string
	Usage   *domain.Usage
	Message string // error detail, EventError only
}

// Terminal reports whether the event ends the session.
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}
