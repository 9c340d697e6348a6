// Package domain contains core domain types for interview sessions.
package domain

import (
	"time"
)

// Status is the lifecycle state of an interview session.
type Status string

const (
	StatusCreated   Status = "created"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// Valid reports whether the status is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusActive, StatusPaused, StatusCompleted, StatusAbandoned:
		return true
	}
	return false
}

// Role identifies the speaker of a dialogue turn.
type Role string

const (
	RoleInterviewer Role = "interviewer"
	RoleCandidate   Role = "candidate"
	RoleSystem      Role = "system"
)

// Turn is a single utterance in the dialogue history.
// Version records the session version at which the turn was committed,
// so an incremental replay can pick up exactly where a client left off.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Version   int64     `json:"version"`
}

// Session is one interview conversation with its persisted state.
// Dialogue is append-only: turns are never rewritten or reordered.
type Session struct {
	SessionID      string    `json:"session_id"`
	ResumeToken    string    `json:"resume_token"`
	Status         Status    `json:"status"`
	Version        int64     `json:"version"`
	Dialogue       []Turn    `json:"dialogue_history"`
	LastActivityAt time.Time `json:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TurnsSince returns the turns committed after the given session version.
func (s *Session) TurnsSince(version int64) []Turn {
	for i, turn := range s.Dialogue {
		if turn.Version > version {
			return s.Dialogue[i:]
		}
	}
	return nil
}

// IdleFor reports whether the session has seen no activity for at least d.
func (s *Session) IdleFor(d time.Duration, now time.Time) bool {
	return now.Sub(s.LastActivityAt) >= d
}
