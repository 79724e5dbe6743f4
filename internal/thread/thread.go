// Package thread defines the thread control block and the fixed-capacity
// arena that owns every TCB and its stack page.
package thread

import (
	"encoding/binary"
	"strconv"

	"github.com/me/kthreads/internal/cpu"
	"github.com/me/kthreads/pkg/model"
)

// Thread priorities.
const (
	PriMin     = 0
	PriDefault = 31
	PriMax     = 63
)

const (
	// NameMax bounds the diagnostic name of a thread.
	NameMax = 16

	// Magic is the guard word at the low end of every stack page. A thread
	// whose guard no longer reads Magic has overflowed its stack.
	Magic uint32 = 0xcd6abf4b

	// PageSize is the size of the stack page owned by each TCB.
	PageSize = 4096
)

// ID identifies a thread for its whole lifetime. IDs are never reused.
type ID int32

// TIDError is returned in place of an ID when thread creation fails.
const TIDError ID = -1

func (id ID) String() string { return strconv.Itoa(int(id)) }

// Handle is the stable index of a TCB slot in a Table. Handles are reused
// after reclamation; IDs are not.
type Handle int32

// NoHandle is the zero value for "no thread".
const NoHandle Handle = -1

// QueueKind names the kind of queue a thread is linked into.
type QueueKind uint8

const (
	QueueNone QueueKind = iota
	QueueReady
	QueueSleep
	QueueWait
)

func (k QueueKind) String() string {
	switch k {
	case QueueReady:
		return "ready"
	case QueueSleep:
		return "sleep"
	case QueueWait:
		return "wait"
	default:
		return "none"
	}
}

// Queue is implemented by every structure that links threads. A thread is
// a member of at most one Queue at a time.
type Queue interface {
	Kind() QueueKind
	Reorder(h Handle)
}

// Resource is something a thread can block on that has an owner. Donation
// chains are followed through Resources.
type Resource interface {
	Holder() (Handle, bool)
}

// Func is the body of a kernel thread.
type Func func(arg any)

// Thread is a thread control block.
type Thread struct {
	handle Handle
	id     ID
	name   string
	status model.ThreadStatus

	base      int
	effective int

	wakeTick int64
	queue    Queue

	waitingOn Resource
	donors    []Handle

	ctx   cpu.Context
	entry Func
	arg   any
	page  []byte

	runTicks uint64
	idle     bool

	// Reserved for a feedback-queue policy.
	nice      int
	recentCPU int
}

func (t *Thread) Handle() Handle             { return t.handle }
func (t *Thread) ID() ID                     { return t.id }
func (t *Thread) Name() string               { return t.name }
func (t *Thread) Status() model.ThreadStatus { return t.status }
func (t *Thread) Base() int                  { return t.base }
func (t *Thread) Effective() int             { return t.effective }
func (t *Thread) WakeTick() int64            { return t.wakeTick }
func (t *Thread) Queue() Queue               { return t.queue }
func (t *Thread) WaitingOn() Resource        { return t.waitingOn }
func (t *Thread) Context() cpu.Context       { return t.ctx }
func (t *Thread) Entry() Func                { return t.entry }
func (t *Thread) Arg() any                   { return t.arg }
func (t *Thread) RunTicks() uint64           { return t.runTicks }
func (t *Thread) IsIdle() bool               { return t.idle }
func (t *Thread) Nice() int                  { return t.nice }
func (t *Thread) RecentCPU() int             { return t.recentCPU }

// SetStatus moves the thread to next, rejecting transitions the lifecycle
// table does not allow.
func (t *Thread) SetStatus(next model.ThreadStatus) error {
	if !t.status.CanTransitionTo(next) {
		return &model.InvalidTransitionError{
			Entity: "thread",
			ID:     t.id.String(),
			From:   t.status.String(),
			To:     next.String(),
		}
	}
	t.status = next
	return nil
}

// SetBase changes the base priority. The effective priority is not
// recomputed here; the scheduler owns that.
func (t *Thread) SetBase(p int)       { t.base = p }
func (t *Thread) SetEffective(p int)  { t.effective = p }
func (t *Thread) SetWakeTick(w int64) { t.wakeTick = w }

// SetQueue records queue membership. Only queues call it.
func (t *Thread) SetQueue(q Queue) { t.queue = q }

func (t *Thread) SetWaitingOn(r Resource)  { t.waitingOn = r }
func (t *Thread) SetContext(c cpu.Context) { t.ctx = c }
func (t *Thread) MarkIdle()                { t.idle = true }
func (t *Thread) AddRunTick()              { t.runTicks++ }

// Donors returns the threads currently donating priority to t.
func (t *Thread) Donors() []Handle { return t.donors }

// AddDonor records h as a donor unless it already is one.
func (t *Thread) AddDonor(h Handle) {
	for _, d := range t.donors {
		if d == h {
			return
		}
	}
	t.donors = append(t.donors, h)
}

// RemoveDonors drops every donor for which drop returns true and reports
// how many were removed.
func (t *Thread) RemoveDonors(drop func(Handle) bool) int {
	kept := t.donors[:0]
	for _, d := range t.donors {
		if !drop(d) {
			kept = append(kept, d)
		}
	}
	n := len(t.donors) - len(kept)
	t.donors = kept
	return n
}

// InQueue reports whether the thread is linked into a queue of kind k.
func (t *Thread) InQueue(k QueueKind) bool {
	if t.queue == nil {
		return k == QueueNone
	}
	return t.queue.Kind() == k
}

// Stack returns the thread's stack page. The first four bytes are the guard.
func (t *Thread) Stack() []byte { return t.page }

// GuardOK reports whether the stack guard is intact.
func (t *Thread) GuardOK() bool {
	return len(t.page) >= 4 && binary.LittleEndian.Uint32(t.page) == Magic
}

// Info returns a snapshot of the TCB.
func (t *Thread) Info() model.ThreadInfo {
	info := model.ThreadInfo{
		ID:                int32(t.id),
		Name:              t.name,
		Status:            t.status,
		BasePriority:      t.base,
		EffectivePriority: t.effective,
		RunTicks:          t.runTicks,
		Idle:              t.idle,
	}
	if t.InQueue(QueueSleep) {
		info.WakeTick = t.wakeTick
	}
	return info
}

// ValidPriority reports whether p is inside [PriMin, PriMax].
func ValidPriority(p int) bool {
	return p >= PriMin && p <= PriMax
}

func truncateName(name string) string {
	if len(name) <= NameMax {
		return name
	}
	return name[:NameMax]
}
