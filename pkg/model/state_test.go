package model

import "testing"

func TestThreadStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   ThreadStatus
		terminal bool
	}{
		{ThreadRunning, false},
		{ThreadReady, false},
		{ThreadBlocked, false},
		{ThreadDying, true},
	}
	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.terminal {
			t.Errorf("ThreadStatus(%q).IsTerminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestThreadStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from  ThreadStatus
		to    ThreadStatus
		valid bool
	}{
		// Valid transitions
		{ThreadRunning, ThreadReady, true},
		{ThreadRunning, ThreadBlocked, true},
		{ThreadRunning, ThreadDying, true},
		{ThreadReady, ThreadRunning, true},
		{ThreadBlocked, ThreadReady, true},

		// Invalid transitions
		{ThreadReady, ThreadBlocked, false},
		{ThreadReady, ThreadDying, false},
		{ThreadBlocked, ThreadDying, false},
		{ThreadDying, ThreadReady, false},
		{ThreadDying, ThreadRunning, false},
		{ThreadRunning, ThreadRunning, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.valid {
			t.Errorf("ThreadStatus(%q).CanTransitionTo(%q) = %v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}
}

func TestSessionState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    SessionState
		terminal bool
	}{
		{SessionRunning, false},
		{SessionCompleted, true},
		{SessionFailed, true},
	}
	for _, tt := range tests {
		if got := tt.state.IsTerminal(); got != tt.terminal {
			t.Errorf("SessionState(%q).IsTerminal() = %v, want %v", tt.state, got, tt.terminal)
		}
	}
}
