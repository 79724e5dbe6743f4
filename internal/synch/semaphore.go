package synch

import (
	"github.com/me/kthreads/internal/queue"
	"github.com/me/kthreads/pkg/model"
)

// Semaphore is a counting semaphore. Waiters are woken highest effective
// priority first.
type Semaphore struct {
	k       Kernel
	value   uint
	waiters *queue.PriorityList
}

// NewSemaphore creates a semaphore with the given initial value.
func NewSemaphore(k Kernel, value uint) *Semaphore {
	return &Semaphore{k: k, value: value, waiters: k.NewWaitList()}
}

// Down waits for the value to become positive, then decrements it. It may
// block, so it must not be called from an interrupt handler.
func (s *Semaphore) Down() {
	if s.k.InInterrupt() {
		s.k.Violation(model.ErrBlockInInterrupt, "semaphore down from interrupt context")
	}
	old := s.k.Disable()
	for s.value == 0 {
		s.waiters.Push(s.k.Current())
		s.k.Block()
	}
	s.value--
	s.k.SetLevel(old)
}

// TryDown decrements the value if it is positive and reports whether it
// did. It never blocks.
func (s *Semaphore) TryDown() bool {
	old := s.k.Disable()
	ok := s.value > 0
	if ok {
		s.value--
	}
	s.k.SetLevel(old)
	return ok
}

// Up increments the value and wakes the highest-priority waiter, which
// runs at once if it outranks the caller. It is safe in interrupt context.
func (s *Semaphore) Up() {
	old := s.k.Disable()
	if h, ok := s.waiters.Pop(); ok {
		s.k.Unblock(h)
	}
	s.value++
	s.k.Preempt()
	s.k.SetLevel(old)
}

// Value returns the current value.
func (s *Semaphore) Value() uint {
	old := s.k.Disable()
	v := s.value
	s.k.SetLevel(old)
	return v
}

// Waiters returns the number of threads blocked in Down.
func (s *Semaphore) Waiters() int {
	old := s.k.Disable()
	n := s.waiters.Len()
	s.k.SetLevel(old)
	return n
}
