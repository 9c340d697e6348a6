// Package cache provides a short-TTL mirror of active session state.
//
// The cache is strictly an accelerator: it may be absent, stale-by-TTL, or
// evicted at any time without data loss, because every cache write is paired
// with a durable store write. Its failure changes latency, never outcomes.
package cache

import (
	"context"
	"errors"

	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/domain"
)

// ErrCacheMiss is returned when no entry exists (never present, expired,
// or evicted). Callers fall back to the durable store.
var ErrCacheMiss = errors.New("cache miss")

// Cache mirrors recently-touched session records.
type Cache interface {
	// Put stores the session under its session_id with the configured TTL.
	Put(ctx context.Context, s *domain.Session) error

	// Get returns the cached session or ErrCacheMiss.
	Get(ctx context.Context, sessionID string) (*domain.Session, error)

	// Drop removes the entry if present.
	Drop(ctx context.Context, sessionID string) error

	// Close releases the underlying database.
	Close() error
}
