// Package synch provides the kernel's blocking synchronization primitives:
// counting semaphores, locks with priority donation, and Mesa-style
// condition variables.
package synch

import (
	"github.com/me/kthreads/internal/intr"
	"github.com/me/kthreads/internal/queue"
	"github.com/me/kthreads/internal/thread"
	"github.com/me/kthreads/pkg/model"
)

// Kernel is the part of the scheduler the primitives are built on.
type Kernel interface {
	Disable() intr.Level
	SetLevel(l intr.Level) intr.Level
	InInterrupt() bool

	Current() thread.Handle
	Create(name string, priority int, fn thread.Func, arg any) (thread.ID, error)
	Block()
	Unblock(h thread.Handle)
	Preempt()
	Effective(h thread.Handle) int
	NewWaitList() *queue.PriorityList

	Donate(r thread.Resource)
	Acquired(r thread.Resource, contenders []thread.Handle)
	Revoke(r thread.Resource)

	Violation(code model.ErrorCode, format string, args ...any)
}
