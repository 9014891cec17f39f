// Package session stores bounded conversation history keyed by session id.
package session

import (
	"context"
	"sync"

	"github.com/embedkit/ragchat/internal/domain"
)

// Store is the history contract the orchestrator consumes.
type Store interface {
	// Turns returns the history for a session, oldest first.
	Turns(ctx context.Context, sessionID string) ([]domain.Turn, error)
	// Append adds turns and trims the history to its cap.
	Append(ctx context.Context, sessionID string, turns ...domain.Turn) error
	// Reset drops a session's history.
	Reset(ctx context.Context, sessionID string) error
}

// capFor converts a turn count into the stored entry cap: maxTurns
// user/assistant pairs plus one slot for the system turn.
func capFor(maxTurns int) int { return maxTurns*2 + 1 }

// Memory is the in-process history store. Each entry serializes its own
// append/trim sequence; different sessions never contend.
type Memory struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	maxTurns int
}

type entry struct {
	mu    sync.Mutex
	turns []domain.Turn
}

// NewMemory creates an in-process history store keeping at most maxTurns
// conversation pairs per session.
func NewMemory(maxTurns int) *Memory {
	return &Memory{
		entries:  make(map[string]*entry),
		maxTurns: maxTurns,
	}
}

func (m *Memory) entry(sessionID string) *entry {
	m.mu.RLock()
	e, ok := m.entries[sessionID]
	m.mu.RUnlock()
	if ok {
		return e
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok = m.entries[sessionID]; !ok {
		e = &entry{}
		m.entries[sessionID] = e
	}
	return e
}

// Turns implements Store.
func (m *Memory) Turns(_ context.Context, sessionID string) ([]domain.Turn, error) {
	e := m.entry(sessionID)
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Turn, len(e.turns))
	copy(out, e.turns)
	return out, nil
}

// Append implements Store.
func (m *Memory) Append(_ context.Context, sessionID string, turns ...domain.Turn) error {
	e := m.entry(sessionID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.turns = append(e.turns, turns...)
	if over := len(e.turns) - capFor(m.maxTurns); over > 0 {
		e.turns = append([]domain.Turn(nil), e.turns[over:]...)
	}
	return nil
}

// Reset implements Store.
func (m *Memory) Reset(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, sessionID)
	return nil
}
