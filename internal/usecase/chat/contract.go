package chat

import (
	"context"

	"github.com/embedkit/ragchat/internal/domain"
)

// Retriever selects context snippets for a query.
type Retriever interface {
	Retrieve(query, localeHint string, k int) []domain.Snippet
}

// Generator produces completions for a composed prompt.
type Generator interface {
	Enabled() bool
	Generate(ctx context.Context, msgs []domain.Turn) (string, error)
	GenerateStream(ctx context.Context, msgs []domain.Turn, emit func(token string)) error
}

// History reads and appends bounded conversation history.
type History interface {
	Turns(ctx context.Context, sessionID string) ([]domain.Turn, error)
	Append(ctx context.Context, sessionID string, turns ...domain.Turn) error
	Reset(ctx context.Context, sessionID string) error
}
