// Package store provides durable persistence for interview sessions.
package store

import (
	"context"
	"time"

	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/domain"
)

// Store is the durable store adapter. The durable record is the source of
// truth for every session; the cache layer only mirrors it.
//
// Adapters surface transient I/O failures as domain.ErrStoreUnavailable and
// perform no silent retries; retry policy belongs to the repository.
type Store interface {
	// CreateSession persists a brand-new session record at version 0.
	CreateSession(ctx context.Context, s *domain.Session) error

	// GetSession returns the full record including dialogue history,
	// or domain.ErrNotFound.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// GetSessionByToken resolves a resume token to its session record,
	// or domain.ErrNotFound.
	GetSessionByToken(ctx context.Context, resumeToken string) (*domain.Session, error)

	// UpdateSession writes the session's status, version, and activity
	// timestamp, conditioned on the persisted version still being
	// expectedVersion. When turn is non-nil it is appended to the dialogue
	// in the same transaction, so history and status/version can never
	// diverge. A version mismatch returns domain.ErrStaleWrite.
	UpdateSession(ctx context.Context, s *domain.Session, turn *domain.Turn, expectedVersion int64) error

	// GetIdleSessions returns non-terminal sessions with no activity for
	// at least the given duration.
	GetIdleSessions(ctx context.Context, idle time.Duration) ([]*domain.Session, error)

	// Ping verifies store connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying database.
	Close() error
}
