package model

// ThreadStatus represents the lifecycle state of a kernel thread.
type ThreadStatus string

const (
	ThreadRunning ThreadStatus = "RUNNING"
	ThreadReady   ThreadStatus = "READY"
	ThreadBlocked ThreadStatus = "BLOCKED"
	ThreadDying   ThreadStatus = "DYING"
)

// String returns the string representation of the thread status.
func (s ThreadStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the thread will never run again.
func (s ThreadStatus) IsTerminal() bool {
	return s == ThreadDying
}

// ValidThreadTransitions defines the allowed status transitions for threads.
//
// A thread is born BLOCKED and unblocked into READY. BLOCKED → RUNNING is
// taken only by the idle thread, which is never queued. DYING is left only
// by reclamation, which destroys the TCB rather than changing its status.
var ValidThreadTransitions = map[ThreadStatus][]ThreadStatus{
	ThreadRunning: {ThreadReady, ThreadBlocked, ThreadDying},
	ThreadReady:   {ThreadRunning},
	ThreadBlocked: {ThreadReady, ThreadRunning},
}

// CanTransitionTo returns true if moving from the current status to next is valid.
func (s ThreadStatus) CanTransitionTo(next ThreadStatus) bool {
	for _, allowed := range ValidThreadTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SessionState represents the lifecycle state of a recorded simulation session.
type SessionState string

const (
	SessionRunning   SessionState = "RUNNING"
	SessionCompleted SessionState = "COMPLETED"
	SessionFailed    SessionState = "FAILED"
)

// String returns the string representation of the session state.
func (s SessionState) String() string {
	return string(s)
}

// IsTerminal returns true if the session is in a final state.
func (s SessionState) IsTerminal() bool {
	return s == SessionCompleted || s == SessionFailed
}
