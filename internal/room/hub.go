// Package room tracks media room membership for interview sessions. The core
// never initiates media-layer actions; it only reacts to the membership
// events the external room service emits.
package room

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// EventKind identifies a membership event.
type EventKind string

const (
	// ParticipantConnected fires when the room service reports the
	// session's participant as connected.
	ParticipantConnected EventKind = "participant_connected"
	// ParticipantDisconnected fires when the participant drops.
	ParticipantDisconnected EventKind = "participant_disconnected"
	// GraceElapsed fires when a disconnected participant has not
	// reconnected within the grace period.
	GraceElapsed EventKind = "grace_elapsed"
)

// Event is a discrete membership event for one session.
type Event struct {
	Kind      EventKind
	SessionID string
	At        time.Time
}

// Consumer receives membership events. Dispatch is synchronous; consumers
// must not block indefinitely.
type Consumer interface {
	HandleRoomEvent(ctx context.Context, ev Event)
}

// Hub fans room service events out to consumers and runs the grace timer
// that turns a lost connection into an explicit GraceElapsed event.
type Hub struct {
	grace  time.Duration
	logger *slog.Logger

	mu        sync.Mutex
	connected map[string]bool
	timers    map[string]*time.Timer
	consumers []Consumer
	stopped   bool
}

// NewHub creates a hub with the given disconnect grace period.
func NewHub(grace time.Duration, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		grace:     grace,
		logger:    logger,
		connected: make(map[string]bool),
		timers:    make(map[string]*time.Timer),
	}
}

// AddConsumer registers an event consumer. Not safe to call concurrently
// with event dispatch; wire consumers at startup.
func (h *Hub) AddConsumer(c Consumer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consumers = append(h.consumers, c)
}

// IsConnected reports whether the session's participant is currently in the room.
func (h *Hub) IsConnected(sessionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected[sessionID]
}

// HandleConnected records the participant as present, cancels any pending
// grace timer, and dispatches ParticipantConnected.
func (h *Hub) HandleConnected(ctx context.Context, sessionID string) {
	h.mu.Lock()
	h.connected[sessionID] = true
	if timer, ok := h.timers[sessionID]; ok {
		timer.Stop()
		delete(h.timers, sessionID)
	}
	consumers := h.snapshotConsumersLocked()
	h.mu.Unlock()

	h.logger.Info("participant connected", "session_id", sessionID)
	dispatch(ctx, consumers, Event{Kind: ParticipantConnected, SessionID: sessionID, At: time.Now()})
}

// HandleDisconnected records the participant as gone, dispatches
// ParticipantDisconnected, and arms the grace timer. If the participant does
// not reconnect before the grace period elapses, GraceElapsed is dispatched.
func (h *Hub) HandleDisconnected(ctx context.Context, sessionID string) {
	h.mu.Lock()
	delete(h.connected, sessionID)
	if timer, ok := h.timers[sessionID]; ok {
		timer.Stop()
	}
	h.timers[sessionID] = time.AfterFunc(h.grace, func() {
		h.onGraceElapsed(sessionID)
	})
	consumers := h.snapshotConsumersLocked()
	h.mu.Unlock()

	h.logger.Info("participant disconnected", "session_id", sessionID, "grace", h.grace)
	dispatch(ctx, consumers, Event{Kind: ParticipantDisconnected, SessionID: sessionID, At: time.Now()})
}

func (h *Hub) onGraceElapsed(sessionID string) {
	h.mu.Lock()
	if h.stopped || h.connected[sessionID] {
		h.mu.Unlock()
		return
	}
	delete(h.timers, sessionID)
	consumers := h.snapshotConsumersLocked()
	h.mu.Unlock()

	h.logger.Info("grace period elapsed without reconnect", "session_id", sessionID)

	// The timer fires outside any request; bound the downstream work.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	dispatch(ctx, consumers, Event{Kind: GraceElapsed, SessionID: sessionID, At: time.Now()})
}

// Stop cancels all pending grace timers.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	for id, timer := range h.timers {
		timer.Stop()
		delete(h.timers, id)
	}
}

func (h *Hub) snapshotConsumersLocked() []Consumer {
	out := make([]Consumer, len(h.consumers))
	copy(out, h.consumers)
	return out
}

func dispatch(ctx context.Context, consumers []Consumer, ev Event) {
	for _, c := range consumers {
		c.HandleRoomEvent(ctx, ev)
	}
}
