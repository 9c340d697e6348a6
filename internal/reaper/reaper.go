// Package reaper runs the abandonment sweep: sessions with no activity for
// the configured interval are transitioned to abandoned so they stop
// accepting reconnects.
package reaper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/domain"
	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/repo"
	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/session"
)

// Start runs a background goroutine that periodically sweeps for idle
// sessions and abandons them. It stops when ctx is cancelled.
func Start(ctx context.Context, r *repo.Repository, interval, abandonAfter time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("abandonment worker started", "interval", interval, "abandon_after", abandonAfter)

		for {
			select {
			case <-ticker.C:
				Sweep(ctx, r, abandonAfter)
			case <-ctx.Done():
				slog.Info("abandonment worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep abandons every non-terminal session idle past the threshold.
// A StaleWrite just means the session came back to life mid-sweep; it is
// skipped, not retried, and the next sweep re-evaluates it.
func Sweep(ctx context.Context, r *repo.Repository, abandonAfter time.Duration) int {
	idle, err := r.IdleSessions(ctx, abandonAfter)
	if err != nil {
		slog.Error("abandonment sweep failed to list idle sessions", "error", err)
		return 0
	}
	if len(idle) == 0 {
		return 0
	}

	slog.Info("abandonment sweep found idle sessions", "count", len(idle))

	now := time.Now()
	abandoned := 0
	for _, s := range idle {
		// Re-read before the write: a session that saw activity after the
		// scan is skipped here instead of burning a StaleWrite round trip.
		fresh, err := r.GetFresh(ctx, s.SessionID)
		if err != nil {
			slog.Warn("failed to re-read idle session", "session_id", s.SessionID, "error", err)
			continue
		}
		if !fresh.IdleFor(abandonAfter, now) {
			slog.Debug("session active again since scan, skipping", "session_id", s.SessionID)
			continue
		}

		_, err = r.Transition(ctx, s.SessionID, session.EventAbandon, fresh.Version)
		switch {
		case err == nil:
			abandoned++
			slog.Info("session abandoned",
				"session_id", s.SessionID,
				"last_activity_at", s.LastActivityAt)
		case errors.Is(err, domain.ErrStaleWrite):
			slog.Debug("abandonment lost to a live mutation, skipping",
				"session_id", s.SessionID)
		case errors.Is(err, domain.ErrIllegalTransition):
			// Reached a terminal state between the scan and the write.
			slog.Debug("session already terminal, skipping", "session_id", s.SessionID)
		default:
			slog.Warn("failed to abandon session", "session_id", s.SessionID, "error", err)
		}
	}

	if abandoned > 0 {
		slog.Info("abandonment sweep completed", "abandoned", abandoned)
	}
	return abandoned
}
