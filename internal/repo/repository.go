// Package repo implements the session repository: the single gateway through
// which every other component reads or mutates session state. It enforces the
// read-fresh-before-mutate discipline across the durable store and the cache.
package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/cache"
	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/domain"
	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/session"
	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/store"
	"github.com/google/uuid"
)

// Repository is the only component permitted to write to the store or cache.
// Mutations are serialized per session_id and version-checked, so no two
// accepted mutations are ever based on the same prior version.
type Repository struct {
	store  store.Store
	cache  cache.Cache // optional; nil disables caching
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a repository over the given store and optional cache.
func New(st store.Store, c cache.Cache, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		store:  st,
		cache:  c,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// lockSession returns the per-session mutex, locked. Concurrent mutations for
// the same session queue behind the in-flight one; the loser then fails the
// version check instead of interleaving.
func (r *Repository) lockSession(sessionID string) func() {
	r.mu.Lock()
	lock, ok := r.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[sessionID] = lock
	}
	r.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// Create starts a new session in status created at version 0. The session_id
// and the unguessable resume token are both freshly generated UUIDs.
func (r *Repository) Create(ctx context.Context) (*domain.Session, error) {
	now := time.Now()
	s := &domain.Session{
		SessionID:      uuid.NewString(),
		ResumeToken:    uuid.NewString(),
		Status:         domain.StatusCreated,
		Version:        0,
		LastActivityAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := r.store.CreateSession(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	r.cachePut(ctx, s)

	r.logger.Info("session created", "session_id", s.SessionID)
	return s, nil
}

// GetFresh returns the most recent known record. The durable store is always
// consulted (it is the source of truth); the cache is only reconciled, never
// trusted on its own, so a reconnecting client can never see stale status.
func (r *Repository) GetFresh(ctx context.Context, sessionID string) (*domain.Session, error) {
	s, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		cached, cacheErr := r.cache.Get(ctx, sessionID)
		switch {
		case cacheErr != nil:
			// Miss or cache failure: refresh and move on.
			r.cachePut(ctx, s)
		case cached.Version < s.Version:
			r.logger.Debug("cache behind store, refreshing",
				"session_id", sessionID, "cache_version", cached.Version, "store_version", s.Version)
			r.cachePut(ctx, s)
		case cached.Version > s.Version:
			// Should be impossible: every cache write follows a store write.
			r.logger.Warn("cache ahead of store, dropping entry",
				"session_id", sessionID, "cache_version", cached.Version, "store_version", s.Version)
			if dropErr := r.cache.Drop(ctx, sessionID); dropErr != nil {
				r.logger.Warn("failed to drop cache entry", "session_id", sessionID, "error", dropErr)
			}
		}
	}

	return s, nil
}

// Get serves plain reads, cache first. Anything that feeds a decision
// (resume handshakes, mutations) must use GetFresh instead; this path is for
// display reads where a TTL-bounded snapshot is acceptable.
func (r *Repository) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	if r.cache != nil {
		s, err := r.cache.Get(ctx, sessionID)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			r.logger.Warn("cache read failed, falling back to store", "session_id", sessionID, "error", err)
		}
	}
	return r.GetFresh(ctx, sessionID)
}

// AppendTurn records one dialogue turn, conditioned on expectedVersion. The
// first turn of a created session implies the created → active transition.
// Returns the updated record or ErrStaleWrite.
func (r *Repository) AppendTurn(ctx context.Context, sessionID string, turn domain.Turn, expectedVersion int64) (*domain.Session, error) {
	unlock := r.lockSession(sessionID)
	defer unlock()

	s, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Version != expectedVersion {
		return nil, fmt.Errorf("%w: session %s at version %d, caller expected %d",
			domain.ErrStaleWrite, sessionID, s.Version, expectedVersion)
	}

	next := s.Status
	switch s.Status {
	case domain.StatusCreated:
		next, err = session.Apply(s, session.EventFirstTurn)
		if err != nil {
			return nil, err
		}
	case domain.StatusActive:
		// Stays active.
	default:
		return nil, fmt.Errorf("%w: cannot record turn in status %s", domain.ErrIllegalTransition, s.Status)
	}

	now := time.Now()
	if turn.Timestamp.IsZero() {
		turn.Timestamp = now
	}
	turn.Version = expectedVersion + 1

	s.Status = next
	s.Version = expectedVersion + 1
	s.LastActivityAt = now

	if err := r.store.UpdateSession(ctx, s, &turn, expectedVersion); err != nil {
		return nil, err
	}
	s.Dialogue = append(s.Dialogue, turn)
	r.cachePut(ctx, s)

	return s, nil
}

// Transition applies a status-only lifecycle event with the same discipline.
func (r *Repository) Transition(ctx context.Context, sessionID string, event session.Event, expectedVersion int64) (*domain.Session, error) {
	unlock := r.lockSession(sessionID)
	defer unlock()

	s, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Version != expectedVersion {
		return nil, fmt.Errorf("%w: session %s at version %d, caller expected %d",
			domain.ErrStaleWrite, sessionID, s.Version, expectedVersion)
	}

	next, err := session.Apply(s, event)
	if err != nil {
		return nil, err
	}

	s.Status = next
	s.Version = expectedVersion + 1
	s.LastActivityAt = time.Now()

	if err := r.store.UpdateSession(ctx, s, nil, expectedVersion); err != nil {
		return nil, err
	}
	r.cachePut(ctx, s)

	r.logger.Info("session transitioned",
		"session_id", sessionID, "event", string(event), "status", string(next), "version", s.Version)
	return s, nil
}

// Exists resolves a resume token to its session_id without exposing internal
// identifiers to untrusted input. Malformed tokens fail closed with
// ErrInvalidToken before any store lookup.
func (r *Repository) Exists(ctx context.Context, resumeToken string) (string, error) {
	if _, err := uuid.Parse(resumeToken); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}

	s, err := r.store.GetSessionByToken(ctx, resumeToken)
	if err != nil {
		return "", err
	}
	return s.SessionID, nil
}

// IdleSessions returns non-terminal sessions with no activity for at least
// the given duration. Used by the abandonment sweep.
func (r *Repository) IdleSessions(ctx context.Context, idle time.Duration) ([]*domain.Session, error) {
	return r.store.GetIdleSessions(ctx, idle)
}

// cachePut mirrors the record into the cache. Cache failures are logged and
// swallowed: the store write already committed, and the cache must never
// change an outcome.
func (r *Repository) cachePut(ctx context.Context, s *domain.Session) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Put(ctx, s); err != nil {
		r.logger.Warn("cache write failed", "session_id", s.SessionID, "error", err)
	}
}
