// Package session defines the interview session state machine: the legal
// lifecycle states, the events that move between them, and the guards that
// reject everything else.
package session

import (
	"fmt"

	"github.com/Oxana-S/Hanc-Project-Agent-Interview-sub001/internal/domain"
)

// Event is a requested lifecycle transition.
type Event string

const (
	// EventFirstTurn is implied by recording the first dialogue turn.
	EventFirstTurn Event = "first_turn"
	// EventPause is a client pause request or a connection lost beyond
	// the grace period.
	EventPause Event = "pause"
	// EventResume is a reconnect with a valid resume token, confirmed by
	// media room membership.
	EventResume Event = "resume"
	// EventComplete concludes the interview.
	EventComplete Event = "complete"
	// EventAbandon fires when the abandonment timeout elapses.
	EventAbandon Event = "abandon"
)

// Apply validates the event against the session's current state and returns
// the resulting status. The session itself is not mutated; persisting the
// result is the repository's job. Terminal states reject every event.
func Apply(s *domain.Session, event Event) (domain.Status, error) {
	if s.Status.Terminal() {
		return "", fmt.Errorf("%w: session %s is %s", domain.ErrIllegalTransition, s.SessionID, s.Status)
	}

	switch event {
	case EventFirstTurn:
		if s.Status != domain.StatusCreated {
			return "", illegal(s, event)
		}
		return domain.StatusActive, nil

	case EventPause:
		if s.Status != domain.StatusActive {
			return "", illegal(s, event)
		}
		if len(s.Dialogue) == 0 {
			return "", fmt.Errorf("%w: cannot pause session %s with empty dialogue", domain.ErrIllegalTransition, s.SessionID)
		}
		return domain.StatusPaused, nil

	case EventResume:
		if s.Status != domain.StatusPaused {
			return "", illegal(s, event)
		}
		return domain.StatusActive, nil

	case EventComplete:
		if s.Status != domain.StatusActive && s.Status != domain.StatusPaused {
			return "", illegal(s, event)
		}
		return domain.StatusCompleted, nil

	case EventAbandon:
		// Any non-terminal state may be abandoned.
		return domain.StatusAbandoned, nil

	default:
		return "", fmt.Errorf("%w: unknown event %q", domain.ErrIllegalTransition, event)
	}
}

func illegal(s *domain.Session, event Event) error {
	return fmt.Errorf("%w: event %q not allowed in status %s", domain.ErrIllegalTransition, event, s.Status)
}
