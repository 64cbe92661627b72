package store

import (
	"context"
	"errors"
	"time"
)

// Store is a persistence backend for session snapshots.
// Implementations must be safe for concurrent use.
type Store interface {
	// Load returns the latest snapshot for sessionID.
	// Returns (nil, nil) if the session has never been saved.
	Load(ctx context.Context, sessionID string) ([]byte, error)

	// Save upserts rec. The latest call for a session id wins.
	Save(ctx context.Context, rec Record) error

	// Close releases resources held by the store.
	Close() error
}

// Record is one persisted session row.
type Record struct {
	SessionID    string
	State        []byte
	Hot          bool
	LastActivity time.Time
}

// ErrStoreClosed is returned when operations are attempted on a closed store.
var ErrStoreClosed = errors.New("store: closed")

// ErrEmptySessionID is returned by Save when the record has no session id.
var ErrEmptySessionID = errors.New("store: empty session id")

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
