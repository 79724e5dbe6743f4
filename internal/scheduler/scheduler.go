// Package scheduler is the dispatcher of a single-CPU preemptive kernel.
//
// A Kernel owns the thread table, the ready policy, the sleep queue and the
// running thread. Exactly one kernel thread executes at any instant; the
// only mutual exclusion is the interrupt level, so every mutation of
// scheduler state happens with interrupts disabled.
package scheduler

import (
	"github.com/me/kthreads/internal/thread"
	"github.com/me/kthreads/pkg/model"
)

// Listener receives every scheduler event on the running thread. It must
// not call back into the kernel.
type Listener interface {
	OnEvent(ev model.Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ev model.Event)

func (f ListenerFunc) OnEvent(ev model.Event) { f(ev) }

// PanicHandler is invoked once when the kernel halts on a fatal error.
type PanicHandler func(p *model.KernelPanic)

// Policy selects the next thread to run from the set of READY threads.
type Policy interface {
	Name() string

	// Enqueue makes h eligible to run.
	Enqueue(h thread.Handle)
	// Dequeue removes the thread that should run next.
	Dequeue() (thread.Handle, bool)
	// Front returns the thread Dequeue would return, without removing it.
	Front() (thread.Handle, bool)
	Remove(h thread.Handle) bool
	Len() int
	Handles() []thread.Handle

	// Tick is called once per timer interrupt with the running thread.
	Tick(cur *thread.Thread, now int64)
}
