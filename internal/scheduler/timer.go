package scheduler

import (
	"github.com/me/kthreads/internal/intr"
	"github.com/me/kthreads/pkg/model"
)

// onTick is the timer interrupt handler. It runs with interrupts off in
// interrupt context.
func (k *Kernel) onTick() {
	k.ticks++
	cur := k.current
	if cur.IsIdle() {
		k.stats.IdleTicks++
	} else {
		k.stats.KernelTicks++
	}
	cur.AddRunTick()
	k.policy.Tick(cur, k.ticks)

	if !cur.IsIdle() {
		k.sliceTicks++
		if k.sliceTicks >= k.config.TimeSlice {
			k.stats.SliceExpiries++
			k.intr.YieldOnReturn()
		}
	}

	for _, h := range k.sleepq.DrainDue(k.ticks) {
		t := k.table.Get(h)
		k.emit(model.EventWake, t, "")
		k.unblock(t)
	}
	for _, fn := range k.tickHooks {
		fn(k.ticks)
	}
	k.Preempt()
}

// Ticks returns the number of timer ticks since boot.
func (k *Kernel) Ticks() int64 {
	old := k.intr.Disable()
	t := k.ticks
	k.intr.SetLevel(old)
	return t
}

// Elapsed returns the ticks that passed since then, a value from Ticks.
func (k *Kernel) Elapsed(then int64) int64 { return k.Ticks() - then }

// SleepUntil blocks the running thread until the tick counter reaches
// tick. A tick already in the past returns immediately.
func (k *Kernel) SleepUntil(tick int64) {
	cur := k.running()
	k.requireThreadContext("sleep")
	old := k.intr.Disable()
	if tick > k.ticks {
		k.sleepq.Push(cur.Handle(), tick)
		k.emit(model.EventSleep, cur, "")
		k.mustTransition(cur, model.ThreadBlocked)
		k.schedule()
	}
	k.intr.SetLevel(old)
}

// Sleep blocks the running thread for n ticks.
func (k *Kernel) Sleep(n int64) {
	if n <= 0 {
		return
	}
	k.SleepUntil(k.Ticks() + n)
}

// MSleep sleeps for about ms milliseconds.
func (k *Kernel) MSleep(ms int64) { k.realSleep(ms, 1000) }

// USleep sleeps for about us microseconds.
func (k *Kernel) USleep(us int64) { k.realSleep(us, 1000*1000) }

// NSleep sleeps for about ns nanoseconds.
func (k *Kernel) NSleep(ns int64) { k.realSleep(ns, 1000*1000*1000) }

// realSleep sleeps for num/denom seconds, rounded down to whole ticks. A
// delay shorter than one tick yields once instead.
func (k *Kernel) realSleep(num, denom int64) {
	if num <= 0 {
		return
	}
	if ticks := num * int64(k.config.TimerFreq) / denom; ticks > 0 {
		k.Sleep(ticks)
		return
	}
	k.Yield()
}

// Spin runs the calling thread for n ticks of CPU time. Preemption and
// sleeping threads waking up happen as they would during real work.
// Interrupts must be on.
func (k *Kernel) Spin(n int64) {
	cur := k.running()
	k.requireThreadContext("spin")
	if k.intr.Level() != intr.On {
		k.Violation(model.ErrIntrLevel, "spin with interrupts off never sees a tick")
	}
	target := cur.RunTicks() + uint64(max(n, 0))
	for cur.RunTicks() < target {
		k.checkHalt()
		k.waitForInterrupt()
	}
}
