// Package db defines the storage facade used by the session-history
// repository when histories are kept outside the process.
package db

import (
	"context"
	"time"
)

// Store is the database facade for session-history persistence.
type Store interface {
	Pinger
	ListStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ListStore provides ordered-list operations keyed by session.
type ListStore interface {
	RPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string) ([]string, error)
	// LTrimLast keeps only the last n elements of the list.
	LTrimLast(ctx context.Context, key string, n int) error
	Del(ctx context.Context, key string) error
}
