package repo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/cache"
	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/domain"
	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/session"
	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/store"
	"github.com/google/uuid"
)

func newTestRepo(t *testing.T) (*Repository, cache.Cache) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Errorf("store Close: %v", err)
		}
	})

	c, err := cache.NewBadger(cache.InMemoryConfig(time.Minute))
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Errorf("cache Close: %v", err)
		}
	})

	return New(st, c, nil), c
}

func candidateTurn(content string) domain.Turn {
	return domain.Turn{Role: domain.RoleCandidate, Content: content}
}

func TestCreate(t *testing.T) {
	r, _ := newTestRepo(t)

	s, err := r.Create(context.Background())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.Status != domain.StatusCreated || s.Version != 0 {
		t.Errorf("got status=%s version=%d, want created/0", s.Status, s.Version)
	}
	if _, err := uuid.Parse(s.SessionID); err != nil {
		t.Errorf("session_id %q is not a UUID: %v", s.SessionID, err)
	}
	if _, err := uuid.Parse(s.ResumeToken); err != nil {
		t.Errorf("resume_token %q is not a UUID: %v", s.ResumeToken, err)
	}
	if s.SessionID == s.ResumeToken {
		t.Error("session_id and resume_token must differ")
	}
}

func TestFirstTurnActivates(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	s, err := r.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := r.AppendTurn(ctx, s.SessionID, candidateTurn("hello"), 0)
	if err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if got.Status != domain.StatusActive {
		t.Errorf("status after first turn = %s, want active", got.Status)
	}
	if got.Version != 1 {
		t.Errorf("version after first turn = %d, want 1", got.Version)
	}
}

func TestNoLostTurns(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	s, err := r.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	const n = 10
	version := int64(0)
	for i := 0; i < n; i++ {
		got, err := r.AppendTurn(ctx, s.SessionID, candidateTurn(fmt.Sprintf("turn %d", i+1)), version)
		if err != nil {
			t.Fatalf("AppendTurn %d: %v", i+1, err)
		}
		version = got.Version
	}

	fresh, err := r.GetFresh(ctx, s.SessionID)
	if err != nil {
		t.Fatalf("GetFresh: %v", err)
	}
	if len(fresh.Dialogue) != n {
		t.Fatalf("dialogue length = %d, want %d", len(fresh.Dialogue), n)
	}
	for i, turn := range fresh.Dialogue {
		want := fmt.Sprintf("turn %d", i+1)
		if turn.Content != want {
			t.Errorf("turn %d content = %q, want %q", i, turn.Content, want)
		}
	}
	if fresh.Version != n {
		t.Errorf("final version = %d, want %d", fresh.Version, n)
	}
}

// TestConcurrentAppendSameVersion verifies the two-writers race: of two
// appends presenting the same expected version, exactly one commits and the
// other observes StaleWrite.
func TestConcurrentAppendSameVersion(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	s, err := r.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := r.AppendTurn(ctx, s.SessionID, candidateTurn("base"), 0); err != nil {
		t.Fatalf("AppendTurn base: %v", err)
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = r.AppendTurn(ctx, s.SessionID, candidateTurn(fmt.Sprintf("racer %d", i)), 1)
		}(i)
	}
	wg.Wait()

	var ok, stale int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrStaleWrite):
			stale++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || stale != 1 {
		t.Errorf("got %d successes and %d stale writes, want exactly 1 of each", ok, stale)
	}

	fresh, err := r.GetFresh(ctx, s.SessionID)
	if err != nil {
		t.Fatalf("GetFresh: %v", err)
	}
	if len(fresh.Dialogue) != 2 {
		t.Errorf("dialogue length = %d, want 2 (base + one winner)", len(fresh.Dialogue))
	}
}

func TestCacheMissTransparency(t *testing.T) {
	r, c := newTestRepo(t)
	ctx := context.Background()

	s, err := r.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := int64(0); i < 3; i++ {
		if _, err := r.AppendTurn(ctx, s.SessionID, candidateTurn(fmt.Sprintf("t%d", i)), i); err != nil {
			t.Fatalf("AppendTurn: %v", err)
		}
	}

	before, err := r.GetFresh(ctx, s.SessionID)
	if err != nil {
		t.Fatalf("GetFresh before eviction: %v", err)
	}

	// Simulate full cache eviction.
	if err := c.Drop(ctx, s.SessionID); err != nil {
		t.Fatalf("Drop: %v", err)
	}

	after, err := r.GetFresh(ctx, s.SessionID)
	if err != nil {
		t.Fatalf("GetFresh after eviction: %v", err)
	}
	if after.Version != before.Version || after.Status != before.Status {
		t.Errorf("eviction changed outcome: before %s/v%d, after %s/v%d",
			before.Status, before.Version, after.Status, after.Version)
	}
	if len(after.Dialogue) != len(before.Dialogue) {
		t.Errorf("eviction changed dialogue length: before %d, after %d",
			len(before.Dialogue), len(after.Dialogue))
	}
}

func TestGetServesCacheHit(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}

	c, err := cache.NewBadger(cache.InMemoryConfig(time.Minute))
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Errorf("cache Close: %v", err)
		}
	})

	r := New(st, c, nil)
	ctx := context.Background()

	s, err := r.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := r.AppendTurn(ctx, s.SessionID, candidateTurn("hello"), 0); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}

	// With the store gone only the cached entry can answer.
	if err := st.Close(); err != nil {
		t.Fatalf("store Close: %v", err)
	}

	got, err := r.Get(ctx, s.SessionID)
	if err != nil {
		t.Fatalf("Get with warm cache: %v", err)
	}
	if got.Version != 1 || got.Status != domain.StatusActive {
		t.Errorf("got status=%s version=%d, want active/1", got.Status, got.Version)
	}

	if _, err := r.GetFresh(ctx, s.SessionID); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("GetFresh with store closed = %v, want ErrStoreUnavailable", err)
	}
}

func TestGetFallsBackToStoreOnMiss(t *testing.T) {
	r, c := newTestRepo(t)
	ctx := context.Background()

	s, err := r.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := c.Drop(ctx, s.SessionID); err != nil {
		t.Fatalf("Drop: %v", err)
	}

	got, err := r.Get(ctx, s.SessionID)
	if err != nil {
		t.Fatalf("Get after eviction: %v", err)
	}
	if got.SessionID != s.SessionID || got.Version != 0 {
		t.Errorf("got %s/v%d, want %s/v0", got.SessionID, got.Version, s.SessionID)
	}
}

func TestRepositoryWorksWithoutCache(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			t.Errorf("store Close: %v", err)
		}
	}()

	r := New(st, nil, nil)
	ctx := context.Background()

	s, err := r.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := r.AppendTurn(ctx, s.SessionID, candidateTurn("no cache"), 0); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	fresh, err := r.GetFresh(ctx, s.SessionID)
	if err != nil {
		t.Fatalf("GetFresh: %v", err)
	}
	if fresh.Version != 1 {
		t.Errorf("version = %d, want 1", fresh.Version)
	}
}

func TestAppendTurnWhilePaused(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	s, err := r.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := r.AppendTurn(ctx, s.SessionID, candidateTurn("hello"), 0); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if _, err := r.Transition(ctx, s.SessionID, session.EventPause, 1); err != nil {
		t.Fatalf("Transition pause: %v", err)
	}

	_, err = r.AppendTurn(ctx, s.SessionID, candidateTurn("while paused"), 2)
	if !errors.Is(err, domain.ErrIllegalTransition) {
		t.Errorf("AppendTurn while paused error = %v, want ErrIllegalTransition", err)
	}
}

func TestTerminalImmutability(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	s, err := r.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := r.AppendTurn(ctx, s.SessionID, candidateTurn("one"), 0); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if _, err := r.Transition(ctx, s.SessionID, session.EventComplete, 1); err != nil {
		t.Fatalf("Transition complete: %v", err)
	}

	if _, err := r.Transition(ctx, s.SessionID, session.EventResume, 2); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Errorf("transition on completed error = %v, want ErrIllegalTransition", err)
	}
	if _, err := r.AppendTurn(ctx, s.SessionID, candidateTurn("late"), 2); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Errorf("append on completed error = %v, want ErrIllegalTransition", err)
	}

	fresh, err := r.GetFresh(ctx, s.SessionID)
	if err != nil {
		t.Fatalf("GetFresh: %v", err)
	}
	if fresh.Status != domain.StatusCompleted || len(fresh.Dialogue) != 1 {
		t.Errorf("failed attempts mutated state: status=%s turns=%d", fresh.Status, len(fresh.Dialogue))
	}
}

func TestExists(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	s, err := r.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	id, err := r.Exists(ctx, s.ResumeToken)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if id != s.SessionID {
		t.Errorf("Exists = %s, want %s", id, s.SessionID)
	}

	if _, err := r.Exists(ctx, "not-a-uuid"); !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("malformed token error = %v, want ErrInvalidToken", err)
	}
	if _, err := r.Exists(ctx, uuid.NewString()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown token error = %v, want ErrNotFound", err)
	}
}

func TestTransitionStaleVersion(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	s, err := r.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := r.AppendTurn(ctx, s.SessionID, candidateTurn("one"), 0); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}

	_, err = r.Transition(ctx, s.SessionID, session.EventPause, 0)
	if !errors.Is(err, domain.ErrStaleWrite) {
		t.Errorf("stale transition error = %v, want ErrStaleWrite", err)
	}
}
