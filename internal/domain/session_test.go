package domain

import (
	"testing"
	"time"
)

func TestTurnsSince(t *testing.T) {
	s := &Session{
		Version: 5,
		Dialogue: []Turn{
			{Content: "q1", Version: 1},
			{Content: "a1", Version: 2},
			{Content: "q2", Version: 4},
			{Content: "a2", Version: 5},
		},
	}

	tests := []struct {
		name    string
		version int64
		want    []string
	}{
		{"from zero replays everything", 0, []string{"q1", "a1", "q2", "a2"}},
		{"mid-history", 2, []string{"q2", "a2"}},
		{"version with no turn of its own", 3, []string{"q2", "a2"}},
		{"current", 5, nil},
		{"ahead of history", 9, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.TurnsSince(tt.version)
			if len(got) != len(tt.want) {
				t.Fatalf("TurnsSince(%d) returned %d turns, want %d", tt.version, len(got), len(tt.want))
			}
			for i, turn := range got {
				if turn.Content != tt.want[i] {
					t.Errorf("turn %d = %q, want %q", i, turn.Content, tt.want[i])
				}
			}
		})
	}
}

func TestIdleFor(t *testing.T) {
	now := time.Now()
	s := &Session{LastActivityAt: now.Add(-time.Hour)}

	if !s.IdleFor(time.Hour, now) {
		t.Error("session idle exactly one hour not reported idle for an hour")
	}
	if !s.IdleFor(30*time.Minute, now) {
		t.Error("session idle one hour not reported idle for 30m")
	}
	if s.IdleFor(2*time.Hour, now) {
		t.Error("session idle one hour reported idle for 2h")
	}
}
