package scheduler

import (
	"github.com/me/kthreads/internal/intr"
	"github.com/me/kthreads/internal/queue"
	"github.com/me/kthreads/internal/thread"
	"github.com/me/kthreads/pkg/model"
)

// Disable turns interrupts off and returns the previous level.
func (k *Kernel) Disable() intr.Level { return k.intr.Disable() }

// Enable turns interrupts on, delivering anything pending.
func (k *Kernel) Enable() intr.Level { return k.intr.Enable() }

// SetLevel restores an interrupt level returned by Disable or Enable.
func (k *Kernel) SetLevel(l intr.Level) intr.Level { return k.intr.SetLevel(l) }

// IntrLevel returns the current interrupt level.
func (k *Kernel) IntrLevel() intr.Level { return k.intr.Level() }

// InInterrupt reports whether the caller runs in interrupt context.
func (k *Kernel) InInterrupt() bool { return k.intr.InContext() }

// Current returns the handle of the running thread.
func (k *Kernel) Current() thread.Handle { return k.running().Handle() }

// CurrentID returns the ID of the running thread.
func (k *Kernel) CurrentID() thread.ID { return k.running().ID() }

// CurrentName returns the name of the running thread.
func (k *Kernel) CurrentName() string { return k.running().Name() }

// Stack returns the running thread's stack page. Its lowest word is the
// overflow guard.
func (k *Kernel) Stack() []byte { return k.running().Stack() }

// running returns the running thread after checking its stack guard.
func (k *Kernel) running() *thread.Thread {
	t := k.current
	if !t.GuardOK() {
		panic(k.violation(model.ErrStackOverflow, "stack guard of thread %d overwritten", t.ID()))
	}
	return t
}

// Create starts a new thread running fn(arg) at the given priority and
// returns its ID. If the new thread outranks the caller it runs before
// Create returns.
func (k *Kernel) Create(name string, priority int, fn thread.Func, arg any) (thread.ID, error) {
	if k.current == nil {
		return thread.TIDError, ErrNotRunning
	}
	k.running()
	if !thread.ValidPriority(priority) {
		panic(k.violation(model.ErrPriorityRange, "priority %d outside [%d, %d]", priority, thread.PriMin, thread.PriMax))
	}
	if fn == nil {
		fn = func(any) {}
	}

	old := k.intr.Disable()
	t, err := k.table.Alloc(name, priority, fn, arg)
	if err != nil {
		k.intr.SetLevel(old)
		k.logger.Warn("thread creation failed", "name", name, "error", err)
		return thread.TIDError, err
	}
	t.SetContext(k.cpu.Spawn(k.trampoline(t)))
	k.stats.ThreadsCreated++
	k.emit(model.EventCreate, t, "")
	k.unblock(t)
	k.intr.SetLevel(old)

	k.Preempt()
	return t.ID(), nil
}

// Block puts the running thread to sleep until Unblock is called on it.
// Interrupts must be off and the caller must not be an interrupt handler.
func (k *Kernel) Block() {
	k.running()
	k.requireThreadContext("block")
	k.requireOff("block")
	k.block()
}

func (k *Kernel) block() {
	cur := k.current
	k.mustTransition(cur, model.ThreadBlocked)
	if !cur.IsIdle() {
		k.emit(model.EventBlock, cur, "")
	}
	k.schedule()
}

// Unblock makes a blocked thread ready. It does not preempt the caller;
// use Preempt for that. It is safe in interrupt context.
func (k *Kernel) Unblock(h thread.Handle) {
	t := k.table.Get(h)
	if t == nil {
		panic(k.violation(model.ErrInvalidTransition, "unblock of free slot %d", h))
	}
	old := k.intr.Disable()
	k.unblock(t)
	k.intr.SetLevel(old)
}

func (k *Kernel) unblock(t *thread.Thread) {
	if t.Status() != model.ThreadBlocked {
		panic(k.violation(model.ErrInvalidTransition, "unblock of %s thread %d", t.Status(), t.ID()))
	}
	k.mustTransition(t, model.ThreadReady)
	k.policy.Enqueue(t.Handle())
	k.emit(model.EventUnblock, t, "")
}

// Yield gives up the CPU. The caller stays ready and runs again when the
// policy picks it; with no equal or higher priority thread ready that is
// immediately.
func (k *Kernel) Yield() {
	k.running()
	k.requireThreadContext("yield")
	old := k.intr.Disable()
	k.yield()
	k.intr.SetLevel(old)
}

func (k *Kernel) yield() {
	cur := k.current
	if cur.IsIdle() {
		k.mustTransition(cur, model.ThreadBlocked)
	} else {
		k.mustTransition(cur, model.ThreadReady)
		k.policy.Enqueue(cur.Handle())
		k.emit(model.EventYield, cur, "")
	}
	k.schedule()
}

// onInterruptReturn runs after a handler that asked for a yield.
func (k *Kernel) onInterruptReturn() {
	k.checkHalt()
	k.yield()
}

// Preempt yields if a ready thread outranks the running one. In interrupt
// context the yield happens when the handler returns.
func (k *Kernel) Preempt() {
	old := k.intr.Disable()
	if k.shouldPreempt() {
		if !k.current.IsIdle() {
			k.stats.Preemptions++
			k.emit(model.EventPreempt, k.current, "")
		}
		if k.intr.InContext() {
			k.intr.YieldOnReturn()
		} else {
			k.yield()
		}
	}
	k.intr.SetLevel(old)
}

func (k *Kernel) shouldPreempt() bool {
	h, ok := k.policy.Front()
	if !ok {
		return false
	}
	return k.current.IsIdle() || k.table.Get(h).Effective() > k.current.Effective()
}

// Exit terminates the running thread. Exit from the main thread powers the
// machine off.
func (k *Kernel) Exit() {
	k.running()
	k.requireThreadContext("exit")
	panic(exitSignal{})
}

// exitCurrent retires the running thread. It never returns.
func (k *Kernel) exitCurrent() {
	k.intr.Disable()
	cur := k.current
	k.mustTransition(cur, model.ThreadDying)
	k.emit(model.EventExit, cur, "")
	k.schedule()
}

// schedule switches to the next thread. Interrupts must be off and the
// running thread must already have left RUNNING.
func (k *Kernel) schedule() {
	cur := k.current
	if k.intr.Level() != intr.Off {
		panic(k.violation(model.ErrIntrLevel, "schedule with interrupts on"))
	}
	if cur.Status() == model.ThreadRunning {
		panic(k.violation(model.ErrInvalidTransition, "schedule while thread %d still running", cur.ID()))
	}
	k.reap()

	next := k.nextThread()
	k.mustTransition(next, model.ThreadRunning)
	k.sliceTicks = 0
	if next == cur {
		return
	}
	k.current = next
	k.stats.ContextSwitches++
	k.emit(model.EventSwitch, next, "from "+cur.Name())

	if cur.Status() == model.ThreadDying {
		k.dying = append(k.dying, cur.Handle())
		k.cpu.Exit(cur.Context(), next.Context())
	}
	k.cpu.Switch(cur.Context(), next.Context())
	k.checkHalt()
}

func (k *Kernel) nextThread() *thread.Thread {
	if h, ok := k.policy.Dequeue(); ok {
		return k.table.Get(h)
	}
	return k.idle
}

// reap frees threads that exited. A dying thread cannot free its own TCB,
// so reclamation waits until the next schedule.
func (k *Kernel) reap() {
	for _, h := range k.dying {
		t := k.table.Get(h)
		k.emit(model.EventReap, t, "")
		k.cpu.Release(t.Context())
		k.table.Free(h)
		k.stats.ThreadsReaped++
	}
	k.dying = k.dying[:0]
}

func (k *Kernel) mustTransition(t *thread.Thread, next model.ThreadStatus) {
	if err := t.SetStatus(next); err != nil {
		panic(k.violation(model.ErrInvalidTransition, "%v", err))
	}
}

func (k *Kernel) requireOff(op string) {
	if k.intr.Level() != intr.Off {
		panic(k.violation(model.ErrIntrLevel, "%s requires interrupts off", op))
	}
}

func (k *Kernel) requireThreadContext(op string) {
	if k.intr.InContext() {
		panic(k.violation(model.ErrBlockInInterrupt, "%s from interrupt context", op))
	}
}

// NewWaitList creates a priority-ordered wait list for a synchronization
// primitive.
func (k *Kernel) NewWaitList() *queue.PriorityList { return queue.NewWaitList(k.table) }
