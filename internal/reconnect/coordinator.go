// Package reconnect implements the server side of the reconnection
// handshake: deciding, from a client's claimed identity and the room's
// membership events, how the client must synchronize with the authoritative
// session record.
package reconnect

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/domain"
	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/repo"
	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/room"
	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/session"
)

// Outcome is the overall result of a reconnection attempt.
type Outcome string

const (
	OutcomeSynced   Outcome = "synced"
	OutcomeRejected Outcome = "rejected"
)

// Action tells the client what to do with its local state.
type Action string

const (
	// ActionNone: client state matches the server; nothing to do.
	ActionNone Action = "none"
	// ActionResume: session is paused; repaint the full transcript and
	// wait for the server to confirm reactivation.
	ActionResume Action = "resume"
	// ActionReplay: client is behind an active session; apply the
	// carried turns as incremental catch-up.
	ActionReplay Action = "replay"
)

// Phase tracks where a single reconnection attempt stands.
type Phase string

const (
	PhaseAwaitingHello Phase = "awaiting_client_hello"
	PhaseVerifying     Phase = "verifying"
	PhaseSynced        Phase = "synced"
	PhaseRejected      Phase = "rejected"
)

// ResumeRequest is the client's hello: its claimed identity and the last
// session version it has applied locally (zero if it has no local state).
type ResumeRequest struct {
	ResumeToken string `json:"resume_token"`
	LastVersion int64  `json:"last_version"`
}

// SyncResponse is the coordinator's reply.
type SyncResponse struct {
	Outcome Outcome       `json:"outcome"`
	Status  domain.Status `json:"status"`
	Version int64         `json:"version"`
	Action  Action        `json:"action"`
	Turns   []domain.Turn `json:"turns,omitempty"`
}

// Coordinator reconciles client-claimed state with the authoritative record.
type Coordinator struct {
	repo   *repo.Repository
	rooms  *room.Hub
	logger *slog.Logger
}

// New creates a coordinator. Register it on the hub so room membership
// events drive the paused/active transitions.
func New(r *repo.Repository, rooms *room.Hub, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{repo: r, rooms: rooms, logger: logger}
}

// Resume runs one reconnection attempt. It never mutates session status:
// a paused session stays paused until the media room confirms the client's
// participant, which arrives as a ParticipantConnected event. Calling Resume
// twice with the same stale client version yields the same payload.
func (c *Coordinator) Resume(ctx context.Context, req ResumeRequest) (*SyncResponse, error) {
	phase := PhaseAwaitingHello
	c.logger.Debug("reconnection attempt", "phase", phase)

	sessionID, err := c.repo.Exists(ctx, req.ResumeToken)
	if err != nil {
		return nil, err
	}

	phase = PhaseVerifying
	s, err := c.repo.GetFresh(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	resp := c.decide(s, req.LastVersion)
	if resp.Outcome == OutcomeRejected {
		phase = PhaseRejected
	} else {
		phase = PhaseSynced
	}
	c.logger.Info("reconnection decided",
		"session_id", sessionID, "phase", string(phase),
		"status", string(resp.Status), "action", string(resp.Action),
		"server_version", resp.Version, "client_version", req.LastVersion)
	return resp, nil
}

func (c *Coordinator) decide(s *domain.Session, clientVersion int64) *SyncResponse {
	resp := &SyncResponse{Status: s.Status, Version: s.Version}

	switch {
	case s.Status.Terminal():
		// Client must not re-enable interaction; carry the terminal
		// status so it can render an unambiguous end state.
		resp.Outcome = OutcomeRejected
		resp.Action = ActionNone

	case clientVersion > s.Version:
		// Client claims a future it cannot have seen; resynchronize it
		// from scratch rather than trusting the claim.
		c.logger.Warn("client version ahead of store, forcing full replay",
			"session_id", s.SessionID, "client_version", clientVersion, "store_version", s.Version)
		resp.Outcome = OutcomeSynced
		resp.Action = ActionReplay
		resp.Turns = s.Dialogue

	case clientVersion < s.Version:
		// Incremental catch-up: only the turns committed after the
		// client's version, never the whole history on every reconnect.
		resp.Outcome = OutcomeSynced
		resp.Action = ActionReplay
		resp.Turns = s.TurnsSince(clientVersion)

	case s.Status == domain.StatusPaused:
		// Client transcript is current; it only needs the explicit
		// resume instruction and the authoritative repaint.
		resp.Outcome = OutcomeSynced
		resp.Action = ActionResume
		resp.Turns = s.Dialogue

	default:
		resp.Outcome = OutcomeSynced
		resp.Action = ActionNone
	}

	return resp
}

// HandleRoomEvent implements room.Consumer. A confirmed participant
// authorizes paused → active; a grace-period expiry forces active → paused.
// Both go through the repository's version check, so losing a race to a live
// mutation just means re-reading and trying once more.
func (c *Coordinator) HandleRoomEvent(ctx context.Context, ev room.Event) {
	switch ev.Kind {
	case room.ParticipantConnected:
		c.applyWithRetry(ctx, ev.SessionID, domain.StatusPaused, session.EventResume)
	case room.GraceElapsed:
		c.applyWithRetry(ctx, ev.SessionID, domain.StatusActive, session.EventPause)
	case room.ParticipantDisconnected:
		// The hub owns the grace timer; nothing to do yet.
	}
}

const transitionAttempts = 3

func (c *Coordinator) applyWithRetry(ctx context.Context, sessionID string, from domain.Status, event session.Event) {
	for attempt := 0; attempt < transitionAttempts; attempt++ {
		s, err := c.repo.GetFresh(ctx, sessionID)
		if err != nil {
			c.logger.Warn("room event: fetch failed", "session_id", sessionID, "event", string(event), "error", err)
			return
		}
		if s.Status != from {
			// Another actor already moved the session; the event is moot.
			return
		}

		_, err = c.repo.Transition(ctx, sessionID, event, s.Version)
		if err == nil {
			return
		}
		if errors.Is(err, domain.ErrStaleWrite) {
			continue
		}
		c.logger.Warn("room event: transition failed", "session_id", sessionID, "event", string(event), "error", err)
		return
	}
	c.logger.Warn("room event: transition kept losing version races, giving up",
		"session_id", sessionID, "event", string(event))
}
