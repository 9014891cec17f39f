package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/embedkit/ragchat/internal/db"
	"github.com/embedkit/ragchat/internal/domain"
)

const keyPrefix = "ragchat:session:"

// Redis is a history store backed by a db.ListStore, for deployments that
// want histories to survive restarts.
type Redis struct {
	store    db.ListStore
	maxTurns int
}

// NewRedis creates a Redis-backed history store.
func NewRedis(store db.ListStore, maxTurns int) *Redis {
	return &Redis{store: store, maxTurns: maxTurns}
}

// Turns implements Store.
func (r *Redis) Turns(ctx context.Context, sessionID string) ([]domain.Turn, error) {
	items, err := r.store.LRange(ctx, keyPrefix+sessionID)
	if err != nil {
		return nil, fmt.Errorf("session history LRANGE: %w", err)
	}
	turns := make([]domain.Turn, 0, len(items))
	for _, it := range items {
		var t domain.Turn
		if err := json.Unmarshal([]byte(it), &t); err != nil {
			return nil, fmt.Errorf("session history decode: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Append implements Store.
func (r *Redis) Append(ctx context.Context, sessionID string, turns ...domain.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	values := make([]string, 0, len(turns))
	for _, t := range turns {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("session history encode: %w", err)
		}
		values = append(values, string(data))
	}

	key := keyPrefix + sessionID
	if err := r.store.RPush(ctx, key, values...); err != nil {
		return fmt.Errorf("session history RPUSH: %w", err)
	}
	if err := r.store.LTrimLast(ctx, key, capFor(r.maxTurns)); err != nil {
		return fmt.Errorf("session history LTRIM: %w", err)
	}
	return nil
}

// Reset implements Store.
func (r *Redis) Reset(ctx context.Context, sessionID string) error {
	if err := r.store.Del(ctx, keyPrefix+sessionID); err != nil {
		return fmt.Errorf("session history DEL: %w", err)
	}
	return nil
}
