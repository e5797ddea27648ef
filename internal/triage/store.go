package triage

import (
	"context"
	"time"
)

// Store is the persistence interface for intake sessions.
type Store interface {
	// Get returns a session by ID. The second result is false when the ID
	// is unknown.
	Get(ctx context.Context, id string) (*Session, bool, error)

	// Put inserts or replaces a session.
	Put(ctx context.Context, sess *Session) error

	// ListIdle returns non-terminal sessions whose last patient input is
	// older than the cutoff.
	ListIdle(ctx context.Context, cutoff time.Time) ([]*Session, error)

	// ListRecent returns the most recently created sessions, newest first.
	ListRecent(ctx context.Context, limit int) ([]*Session, error)
}
