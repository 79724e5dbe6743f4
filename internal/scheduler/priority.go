package scheduler

import (
	"fmt"

	"github.com/me/kthreads/internal/thread"
	"github.com/me/kthreads/pkg/model"
)

// Priority returns the effective priority of the running thread.
func (k *Kernel) Priority() int { return k.running().Effective() }

// Effective returns the effective priority of thread h.
func (k *Kernel) Effective(h thread.Handle) int {
	if t := k.table.Get(h); t != nil {
		return t.Effective()
	}
	return thread.PriMin
}

// SetPriority sets the base priority of the running thread. The effective
// priority never drops below what donors give it. The caller yields if it
// no longer has the highest priority.
func (k *Kernel) SetPriority(p int) {
	cur := k.running()
	k.setBase(cur, p)
	k.Preempt()
}

// SetThreadPriority sets the base priority of any live thread other than
// idle. A change to a thread waiting on a lock is carried to the holder.
func (k *Kernel) SetThreadPriority(id thread.ID, p int) error {
	k.running()
	t := k.table.Lookup(id)
	if t == nil || t.IsIdle() {
		return fmt.Errorf("set priority of %d: %w", id, ErrNoSuchThread)
	}
	k.setBase(t, p)
	k.Preempt()
	return nil
}

func (k *Kernel) setBase(t *thread.Thread, p int) {
	if !thread.ValidPriority(p) {
		panic(k.violation(model.ErrPriorityRange, "priority %d outside [%d, %d]", p, thread.PriMin, thread.PriMax))
	}
	old := k.intr.Disable()
	t.SetBase(p)
	k.emit(model.EventPriority, t, fmt.Sprintf("base %d", p))
	k.propagate(t)
	k.intr.SetLevel(old)
}

// Donate records that the running thread is about to wait for r and lends
// its priority to r's holder, and transitively to whatever that holder
// waits for. Interrupts must be off.
func (k *Kernel) Donate(r thread.Resource) {
	k.requireOff("donate")
	cur := k.running()
	cur.SetWaitingOn(r)

	h, ok := r.Holder()
	if !ok {
		return
	}
	holder := k.table.Get(h)
	k.checkChain(cur, holder)
	holder.AddDonor(cur.Handle())
	k.emit(model.EventDonate, cur, fmt.Sprintf("to %s(%d)", holder.Name(), holder.ID()))
	k.propagate(holder)
}

// Acquired records that the running thread now holds r. Threads still
// contending for r become its donors. Interrupts must be off.
func (k *Kernel) Acquired(r thread.Resource, contenders []thread.Handle) {
	k.requireOff("acquired")
	cur := k.running()
	cur.SetWaitingOn(nil)
	for _, h := range contenders {
		if h != cur.Handle() {
			cur.AddDonor(h)
		}
	}
	k.refresh(cur)
}

// Revoke drops the donations the running thread received through r, which
// it is about to release. Interrupts must be off.
func (k *Kernel) Revoke(r thread.Resource) {
	k.requireOff("revoke")
	cur := k.running()
	cur.RemoveDonors(func(h thread.Handle) bool {
		d := k.table.Get(h)
		return d == nil || d.WaitingOn() == r
	})
	k.refresh(cur)
}

// checkChain follows the wait-for chain from holder and fails if it leads
// back to cur.
func (k *Kernel) checkChain(cur, holder *thread.Thread) {
	for t, n := holder, 0; t != nil; n++ {
		if t == cur || n > k.table.Cap() {
			panic(k.violation(model.ErrDonationCycle, "thread %d waits on a chain that leads back to itself", cur.ID()))
		}
		t = k.holderOf(t)
	}
}

// propagate recomputes t's effective priority and carries any change along
// the wait-for chain until a thread's priority stops changing.
func (k *Kernel) propagate(t *thread.Thread) {
	for n := 0; t != nil; n++ {
		if n > k.table.Cap() {
			panic(k.violation(model.ErrDonationCycle, "donation chain through thread %d does not terminate", t.ID()))
		}
		if !k.refresh(t) {
			return
		}
		t = k.holderOf(t)
	}
}

func (k *Kernel) holderOf(t *thread.Thread) *thread.Thread {
	r := t.WaitingOn()
	if r == nil {
		return nil
	}
	h, ok := r.Holder()
	if !ok {
		return nil
	}
	return k.table.Get(h)
}

// refresh sets t's effective priority to max(base, donors) and keeps
// whatever queue t is in sorted. It reports whether the priority changed.
func (k *Kernel) refresh(t *thread.Thread) bool {
	p := t.Base()
	for _, h := range t.Donors() {
		if d := k.table.Get(h); d != nil && d.Effective() > p {
			p = d.Effective()
		}
	}
	if p == t.Effective() {
		return false
	}
	t.SetEffective(p)
	if q := t.Queue(); q != nil {
		q.Reorder(t.Handle())
	}
	k.emit(model.EventPriority, t, fmt.Sprintf("effective %d", p))
	return true
}

// Nice returns the running thread's nice value. Reserved for the feedback
// queue policy; always 0.
func (k *Kernel) Nice() int { return k.running().Nice() }

// SetNice is reserved for the feedback queue policy and has no effect.
func (k *Kernel) SetNice(int) {}

// LoadAvg is reserved for the feedback queue policy; always 0.
func (k *Kernel) LoadAvg() int { return 0 }

// RecentCPU is reserved for the feedback queue policy; always 0.
func (k *Kernel) RecentCPU() int { return k.running().RecentCPU() }
