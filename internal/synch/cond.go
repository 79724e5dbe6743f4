package synch

import (
	"slices"

	"github.com/me/kthreads/internal/thread"
	"github.com/me/kthreads/pkg/model"
)

// Cond is a condition variable with Mesa semantics: a signalled waiter
// competes for the lock again and must recheck its condition.
type Cond struct {
	k       Kernel
	waiters []*condWaiter
}

type condWaiter struct {
	h    thread.Handle
	sema *Semaphore
}

// NewCond creates a condition variable with no waiters.
func NewCond(k Kernel) *Cond {
	return &Cond{k: k}
}

// Wait atomically releases l and waits to be signalled, then reacquires l
// before returning.
func (c *Cond) Wait(l *Lock) {
	if c.k.InInterrupt() {
		c.k.Violation(model.ErrBlockInInterrupt, "condition wait from interrupt context")
	}
	c.mustHold(l, "wait")

	w := &condWaiter{h: c.k.Current(), sema: NewSemaphore(c.k, 0)}
	old := c.k.Disable()
	c.waiters = append(c.waiters, w)
	c.k.SetLevel(old)

	l.Release()
	w.sema.Down()
	l.Acquire()
}

// Signal wakes the highest-priority waiter, the earliest among equals.
func (c *Cond) Signal(l *Lock) {
	c.mustHold(l, "signal")
	old := c.k.Disable()
	defer c.k.SetLevel(old)
	if len(c.waiters) == 0 {
		return
	}
	best := 0
	for i, w := range c.waiters {
		if c.k.Effective(w.h) > c.k.Effective(c.waiters[best].h) {
			best = i
		}
	}
	w := c.waiters[best]
	c.waiters = slices.Delete(c.waiters, best, best+1)
	w.sema.Up()
}

// Broadcast wakes every waiter.
func (c *Cond) Broadcast(l *Lock) {
	c.mustHold(l, "broadcast")
	for c.Len() > 0 {
		c.Signal(l)
	}
}

// Len returns the number of waiting threads.
func (c *Cond) Len() int {
	old := c.k.Disable()
	n := len(c.waiters)
	c.k.SetLevel(old)
	return n
}

func (c *Cond) mustHold(l *Lock, op string) {
	if !l.HeldByCurrent() {
		c.k.Violation(model.ErrCondLockNotHeld, "condition %s without holding its lock", op)
	}
}
