// Package client implements the reconnection agent that runs on the client
// side of the handshake. It is the reference implementation of the guards
// every client must enforce: capture hardware is never enabled before the
// server has confirmed session state, and a rejected session stays dead.
package client

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/domain"
	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/reconnect"
)

// State is the agent's view of the connection lifecycle.
type State string

const (
	// StateDisconnected: no room connection and no confirmed server state.
	StateDisconnected State = "disconnected"
	// StateAwaitingSync: room may be connected, but the coordinator has
	// not yet confirmed session state. Capture stays off.
	StateAwaitingSync State = "awaiting_sync"
	// StateReady: server confirmed an active session and the participant
	// handle is present; interaction is enabled.
	StateReady State = "ready"
	// StateSuspended: server confirmed a paused session; waiting for the
	// room-confirmed reactivation.
	StateSuspended State = "suspended"
	// StateTerminated: the session ended; interaction is disabled
	// irrevocably for this session.
	StateTerminated State = "terminated"
)

// Participant is the media room's handle for the local client.
type Participant struct {
	ID string
}

// CaptureController abstracts the microphone/capture hardware toggle.
type CaptureController interface {
	EnableCapture() error
	DisableCapture()
}

// Agent reacts to room connectivity events and coordinator responses.
// All methods are safe for concurrent use; room callbacks and handshake
// responses arrive on different goroutines in a real client.
type Agent struct {
	mic    CaptureController
	logger *slog.Logger

	mu             sync.Mutex
	state          State
	participant    *Participant
	lastVersion    int64
	transcript     []domain.Turn
	serverStatus   domain.Status
	terminalStatus domain.Status
}

// New creates an agent around the given capture controller.
func New(mic CaptureController, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{mic: mic, logger: logger, state: StateDisconnected}
}

// Hello builds the resume request from local state. A client with no local
// transcript presents version zero.
func (a *Agent) Hello(resumeToken string) reconnect.ResumeRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return reconnect.ResumeRequest{ResumeToken: resumeToken, LastVersion: a.lastVersion}
}

// OnRoomConnected records the participant handle. A room "connected" event
// never implies "resumed": capture stays off until the coordinator's synced
// response and a confirmed active status both arrive.
func (a *Agent) OnRoomConnected(p *Participant) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateTerminated {
		return
	}
	a.participant = p
	if a.state == StateDisconnected {
		a.state = StateAwaitingSync
	}
	a.maybeEnableCaptureLocked()
}

// OnRoomDisconnected drops the participant handle and disables capture.
func (a *Agent) OnRoomDisconnected() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.participant = nil
	a.mic.DisableCapture()
	if a.state != StateTerminated {
		a.state = StateDisconnected
	}
}

// ApplySync applies a coordinator response. A rejected outcome renders the
// terminal status and disables interaction for good; a synced outcome
// updates the local transcript per the carried action.
func (a *Agent) ApplySync(resp *reconnect.SyncResponse) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateTerminated {
		return fmt.Errorf("session already terminated with status %s", a.terminalStatus)
	}

	if resp.Outcome == reconnect.OutcomeRejected {
		a.state = StateTerminated
		a.terminalStatus = resp.Status
		a.serverStatus = resp.Status
		a.mic.DisableCapture()
		a.logger.Info("session rejected, interaction disabled", "status", string(resp.Status))
		return nil
	}

	switch resp.Action {
	case reconnect.ActionResume:
		// Authoritative repaint.
		a.transcript = append([]domain.Turn(nil), resp.Turns...)
	case reconnect.ActionReplay:
		a.applyReplayLocked(resp.Turns)
	case reconnect.ActionNone:
		// Local transcript already matches.
	}

	a.lastVersion = resp.Version
	a.serverStatus = resp.Status

	switch resp.Status {
	case domain.StatusPaused:
		a.state = StateSuspended
	default:
		a.maybeEnableCaptureLocked()
	}
	return nil
}

// OnStatusChanged handles a server push of a new session status, such as the
// paused → active confirmation after the room reports the participant.
func (a *Agent) OnStatusChanged(status domain.Status, version int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateTerminated {
		return
	}

	a.serverStatus = status
	if version > a.lastVersion {
		a.lastVersion = version
	}

	if status.Terminal() {
		a.state = StateTerminated
		a.terminalStatus = status
		a.mic.DisableCapture()
		return
	}
	if status == domain.StatusPaused {
		a.state = StateSuspended
		a.mic.DisableCapture()
		return
	}
	a.maybeEnableCaptureLocked()
}

// maybeEnableCaptureLocked turns capture on only when every guard holds:
// server state confirmed active, participant handle present, session alive.
// Never issues a capture-enable against a nil participant handle.
func (a *Agent) maybeEnableCaptureLocked() {
	if a.state == StateTerminated {
		return
	}
	if a.serverStatus != domain.StatusActive {
		return
	}
	if a.participant == nil {
		a.logger.Debug("capture withheld: no participant handle yet")
		return
	}
	if err := a.mic.EnableCapture(); err != nil {
		a.logger.Warn("capture enable failed", "error", err)
		return
	}
	a.state = StateReady
}

// applyReplayLocked appends only turns newer than the local transcript, so a
// duplicated replay payload cannot double-record dialogue.
func (a *Agent) applyReplayLocked(turns []domain.Turn) {
	latest := int64(0)
	if n := len(a.transcript); n > 0 {
		latest = a.transcript[n-1].Version
	}
	for _, turn := range turns {
		if turn.Version > latest {
			a.transcript = append(a.transcript, turn)
			latest = turn.Version
		}
	}
}

// State returns the agent's current lifecycle state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// InteractionEnabled reports whether the client may accept user interaction.
func (a *Agent) InteractionEnabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state == StateReady
}

// Transcript returns a copy of the locally applied dialogue.
func (a *Agent) Transcript() []domain.Turn {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.Turn(nil), a.transcript...)
}

// LastVersion returns the last server version applied locally.
func (a *Agent) LastVersion() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastVersion
}
