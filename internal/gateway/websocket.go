// Package gateway exposes the WebSocket endpoint a client holds open for
// the duration of an interview. The socket doubles as the room presence
// signal: accepting the hello marks the participant connected, and the
// socket closing starts the disconnection grace period.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/domain"
	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/interview"
	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/reconnect"
	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/repo"
	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/room"
	"github.com/coder/websocket"
)

// helloDeadline bounds how long a freshly accepted socket may stall before
// sending its hello frame.
const helloDeadline = 10 * time.Second

// WebSocketHandler upgrades connections and runs the per-session message loop.
// It is also a room.Consumer: register it on the hub after the reconnection
// coordinator so the status it relays reflects the coordinator's transition.
type WebSocketHandler struct {
	repo          *repo.Repository
	coord         *reconnect.Coordinator
	rooms         *room.Hub
	generator     interview.Generator
	allowedOrigin string
	isDev         bool

	mu    sync.Mutex
	conns map[string]*websocket.Conn
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(r *repo.Repository, coord *reconnect.Coordinator, rooms *room.Hub, generator interview.Generator, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		repo:          r,
		coord:         coord,
		rooms:         rooms,
		generator:     generator,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
		conns:         make(map[string]*websocket.Conn),
	}
}

// wsMessage is the envelope for every frame in either direction.
type wsMessage struct {
	Type            string                  `json:"type"`
	ResumeToken     string                  `json:"resume_token,omitempty"`
	LastVersion     int64                   `json:"last_version,omitempty"`
	Role            domain.Role             `json:"role,omitempty"`
	Content         string                  `json:"content,omitempty"`
	ExpectedVersion int64                   `json:"expected_version,omitempty"`
	Sync            *reconnect.SyncResponse `json:"sync,omitempty"`
	Turn            *domain.Turn            `json:"turn,omitempty"`
	Status          domain.Status           `json:"status,omitempty"`
	Version         int64                   `json:"version,omitempty"`
	Error           string                  `json:"error,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "ip", r.RemoteAddr)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sessionID, ok := h.handshake(ctx, ws)
	if !ok {
		return
	}

	// Register before announcing presence so the ParticipantConnected
	// dispatch can find this socket and relay the resulting status.
	h.register(sessionID, ws)
	defer h.unregister(sessionID, ws)

	// The open socket is the participant's presence. Connecting cancels any
	// pending grace timer; disconnecting arms one.
	h.rooms.HandleConnected(ctx, sessionID)
	defer h.rooms.HandleDisconnected(context.Background(), sessionID)

	slog.Info("WebSocket session attached", "session_id", sessionID, "ip", r.RemoteAddr)
	h.messageLoop(ctx, ws, sessionID)
	slog.Info("WebSocket session detached", "session_id", sessionID)
}

// handshake reads the hello frame, runs the reconnection decision, and sends
// the sync frame back. A rejected or unverifiable client never reaches the
// message loop.
func (h *WebSocketHandler) handshake(ctx context.Context, ws *websocket.Conn) (string, bool) {
	helloCtx, cancel := context.WithTimeout(ctx, helloDeadline)
	defer cancel()

	_, raw, err := ws.Read(helloCtx)
	if err != nil {
		slog.Warn("WebSocket closed before hello", "error", err)
		return "", false
	}

	var hello wsMessage
	if err := json.Unmarshal(raw, &hello); err != nil || hello.Type != "hello" {
		if err := h.writeJSON(ws, wsMessage{Type: "error", Error: "expected_hello"}); err != nil {
			slog.Debug("Failed to send expected_hello error", "error", err)
		}
		return "", false
	}

	sessionID, err := h.repo.Exists(ctx, hello.ResumeToken)
	if err != nil {
		// Malformed and unknown tokens get the same answer.
		if err := h.writeJSON(ws, wsMessage{Type: "error", Error: "session_not_found"}); err != nil {
			slog.Debug("Failed to send session_not_found error", "error", err)
		}
		return "", false
	}

	sync, err := h.coord.Resume(ctx, reconnect.ResumeRequest{
		ResumeToken: hello.ResumeToken,
		LastVersion: hello.LastVersion,
	})
	if err != nil {
		slog.Error("Reconnection decision failed", "error", err, "session_id", sessionID)
		if err := h.writeJSON(ws, wsMessage{Type: "error", Error: "sync_failed"}); err != nil {
			slog.Debug("Failed to send sync_failed error", "error", err)
		}
		return "", false
	}

	if err := h.writeJSON(ws, wsMessage{Type: "sync", Sync: sync}); err != nil {
		slog.Debug("Failed to send sync frame", "error", err)
		return "", false
	}

	if sync.Outcome == reconnect.OutcomeRejected {
		// Terminal session: the client got its end state, nothing to attach.
		return "", false
	}
	return sessionID, true
}

func (h *WebSocketHandler) messageLoop(ctx context.Context, ws *websocket.Conn, sessionID string) {
	for {
		_, raw, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "session_id", sessionID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "session_id", sessionID)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			if err := h.writeJSON(ws, wsMessage{Type: "error", Error: "malformed_frame"}); err != nil {
				slog.Debug("Failed to send malformed_frame error", "error", err)
			}
			continue
		}

		switch msg.Type {
		case "turn":
			h.handleTurn(ctx, ws, sessionID, msg)
		case "ping":
			if err := h.writeJSON(ws, wsMessage{Type: "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		case "bye":
			slog.Info("Client requested detach", "session_id", sessionID)
			return
		default:
			if err := h.writeJSON(ws, wsMessage{Type: "error", Error: "unknown_frame_type"}); err != nil {
				slog.Debug("Failed to send unknown_frame_type error", "error", err)
			}
		}
	}
}

// handleTurn commits the client's turn, then asks the interviewer backend for
// a follow-up. The follow-up is best effort: a backend failure is reported as
// its own frame and never rolls back the committed turn.
func (h *WebSocketHandler) handleTurn(ctx context.Context, ws *websocket.Conn, sessionID string, msg wsMessage) {
	role := msg.Role
	if role == "" {
		role = domain.RoleCandidate
	}

	s, err := h.repo.AppendTurn(ctx, sessionID, domain.Turn{
		Role:      role,
		Content:   msg.Content,
		Timestamp: time.Now(),
	}, msg.ExpectedVersion)
	if err != nil {
		if err := h.writeJSON(ws, wsMessage{Type: "error", Error: turnErrorCode(err)}); err != nil {
			slog.Debug("Failed to send turn error", "error", err)
		}
		return
	}

	committed := s.Dialogue[len(s.Dialogue)-1]
	if err := h.writeJSON(ws, wsMessage{Type: "turn_ack", Turn: &committed, Status: s.Status, Version: s.Version}); err != nil {
		slog.Debug("Failed to send turn_ack", "error", err)
		return
	}

	if h.generator == nil || role != domain.RoleCandidate {
		return
	}

	next, err := h.generator.GenerateNextTurn(ctx, s.Dialogue)
	if err != nil {
		slog.Warn("Interviewer backend failed, session stays live", "error", err, "session_id", sessionID)
		if err := h.writeJSON(ws, wsMessage{Type: "error", Error: "interviewer_unavailable"}); err != nil {
			slog.Debug("Failed to send interviewer_unavailable error", "error", err)
		}
		return
	}

	s, err = h.repo.AppendTurn(ctx, sessionID, next, s.Version)
	if err != nil {
		slog.Warn("Failed to commit interviewer turn", "error", err, "session_id", sessionID)
		return
	}
	reply := s.Dialogue[len(s.Dialogue)-1]
	if err := h.writeJSON(ws, wsMessage{Type: "turn", Turn: &reply, Status: s.Status, Version: s.Version}); err != nil {
		slog.Debug("Failed to send interviewer turn", "error", err)
	}
}

func (h *WebSocketHandler) register(sessionID string, ws *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[sessionID] = ws
}

func (h *WebSocketHandler) unregister(sessionID string, ws *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	// A reconnect may have replaced the entry already.
	if h.conns[sessionID] == ws {
		delete(h.conns, sessionID)
	}
}

// HandleRoomEvent implements room.Consumer. It relays membership events to
// the session's socket; on ParticipantConnected the frame carries the
// post-transition status so the client knows whether it may re-enable
// interaction.
func (h *WebSocketHandler) HandleRoomEvent(ctx context.Context, ev room.Event) {
	if ev.Kind == room.ParticipantDisconnected {
		// The departing socket is the one that raised this; nothing to tell it.
		return
	}

	h.mu.Lock()
	ws := h.conns[ev.SessionID]
	h.mu.Unlock()
	if ws == nil {
		return
	}

	frame := wsMessage{Type: "room_event", Content: string(ev.Kind)}
	if ev.Kind == room.ParticipantConnected {
		s, err := h.repo.GetFresh(ctx, ev.SessionID)
		if err != nil {
			slog.Warn("Failed to load session for room event relay", "error", err, "session_id", ev.SessionID)
			return
		}
		frame.Status = s.Status
		frame.Version = s.Version
	}
	if err := h.writeJSON(ws, frame); err != nil {
		slog.Debug("Failed to relay room event", "error", err, "session_id", ev.SessionID)
	}
}

func turnErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrStaleWrite):
		return "stale_version"
	case errors.Is(err, domain.ErrIllegalTransition):
		return "illegal_state"
	case errors.Is(err, domain.ErrNotFound):
		return "session_not_found"
	default:
		return "store_unavailable"
	}
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *WebSocketHandler) writeJSON(ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(context.Background(), websocket.MessageText, data)
}
