package synch

import (
	"slices"

	"github.com/me/kthreads/internal/thread"
	"github.com/me/kthreads/pkg/model"
)

// Lock is a non-recursive mutual exclusion lock owned by the thread that
// acquired it. A thread that waits for a held lock donates its priority
// to the holder.
type Lock struct {
	k          Kernel
	sema       *Semaphore
	holder     thread.Handle
	contenders []thread.Handle
}

// NewLock creates an unheld lock.
func NewLock(k Kernel) *Lock {
	return &Lock{k: k, sema: NewSemaphore(k, 1), holder: thread.NoHandle}
}

// Holder implements thread.Resource.
func (l *Lock) Holder() (thread.Handle, bool) {
	return l.holder, l.holder != thread.NoHandle
}

// HeldByCurrent reports whether the running thread holds the lock.
func (l *Lock) HeldByCurrent() bool {
	return l.holder != thread.NoHandle && l.holder == l.k.Current()
}

// Acquire waits until the lock is free and takes it.
func (l *Lock) Acquire() {
	if l.k.InInterrupt() {
		l.k.Violation(model.ErrBlockInInterrupt, "lock acquire from interrupt context")
	}
	cur := l.k.Current()
	if l.holder == cur {
		l.k.Violation(model.ErrLockReentry, "lock already held by the acquiring thread")
	}

	old := l.k.Disable()
	if l.holder != thread.NoHandle {
		l.contenders = append(l.contenders, cur)
		l.k.Donate(l)
	}
	l.sema.Down()
	if i := slices.Index(l.contenders, cur); i >= 0 {
		l.contenders = slices.Delete(l.contenders, i, i+1)
	}
	l.holder = cur
	l.k.Acquired(l, l.contenders)
	l.k.SetLevel(old)
}

// TryAcquire takes the lock if it is free and reports whether it did. It
// never blocks and never donates.
func (l *Lock) TryAcquire() bool {
	cur := l.k.Current()
	if l.holder == cur {
		l.k.Violation(model.ErrLockReentry, "lock already held by the acquiring thread")
	}
	old := l.k.Disable()
	ok := l.sema.TryDown()
	if ok {
		l.holder = cur
		l.k.Acquired(l, l.contenders)
	}
	l.k.SetLevel(old)
	return ok
}

// Release gives the lock up. Priority received through the lock is
// returned first, so a waiter that outranks the releaser runs at once.
func (l *Lock) Release() {
	if !l.HeldByCurrent() {
		l.k.Violation(model.ErrLockNotHeld, "release of a lock the thread does not hold")
	}
	old := l.k.Disable()
	l.holder = thread.NoHandle
	l.k.Revoke(l)
	l.sema.Up()
	l.k.SetLevel(old)
}
