package model

import "time"

// EventKind identifies a scheduler event in a trace.
type EventKind string

const (
	EventCreate   EventKind = "create"
	EventSwitch   EventKind = "switch"
	EventYield    EventKind = "yield"
	EventBlock    EventKind = "block"
	EventUnblock  EventKind = "unblock"
	EventSleep    EventKind = "sleep"
	EventWake     EventKind = "wake"
	EventExit     EventKind = "exit"
	EventReap     EventKind = "reap"
	EventDonate   EventKind = "donate"
	EventPriority EventKind = "priority"
	EventPreempt  EventKind = "preempt"
	EventMark     EventKind = "mark"
)

// AllEventKinds lists every known event kind.
var AllEventKinds = []EventKind{
	EventCreate, EventSwitch, EventYield, EventBlock, EventUnblock,
	EventSleep, EventWake, EventExit, EventReap, EventDonate,
	EventPriority, EventPreempt, EventMark,
}

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	for _, known := range AllEventKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Event is one entry of a scheduler trace.
type Event struct {
	Seq      uint64    `json:"seq"`
	Tick     int64     `json:"tick"`
	Kind     EventKind `json:"kind"`
	ThreadID int32     `json:"thread_id"`
	Thread   string    `json:"thread"`
	Priority int       `json:"priority"`
	Detail   string    `json:"detail,omitempty"`
}

// Session is one recorded kernel run.
type Session struct {
	ID         string       `json:"id"`
	Scenario   string       `json:"scenario"`
	State      SessionState `json:"state"`
	Ticks      int64        `json:"ticks"`
	Error      string       `json:"error,omitempty"`
	Failures   []string     `json:"failures,omitempty"`
	Stats      Stats        `json:"stats"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
}
