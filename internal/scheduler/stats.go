package scheduler

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"github.com/me/kthreads/internal/thread"
	"github.com/me/kthreads/pkg/model"
)

// Stats returns the kernel counters. While the kernel runs it must be
// called by a kernel thread; after Run returns, by anyone.
func (k *Kernel) Stats() model.Stats {
	s := k.stats
	s.Ticks = k.ticks
	return s
}

// Threads returns a snapshot of every live thread in table order. The same
// calling rule as Stats applies.
func (k *Kernel) Threads() []model.ThreadInfo {
	var out []model.ThreadInfo
	k.table.Each(func(t *thread.Thread) {
		out = append(out, t.Info())
	})
	return out
}

// ReadyQueue returns the IDs of the ready threads in dispatch order.
func (k *Kernel) ReadyQueue() []thread.ID {
	var ids []thread.ID
	for _, h := range k.policy.Handles() {
		ids = append(ids, k.table.Get(h).ID())
	}
	return ids
}

// PrintStats writes the tick and dispatch counters.
func (k *Kernel) PrintStats(w io.Writer) error {
	return WriteStats(w, k.Stats())
}

// WriteStats writes s in the format PrintStats uses.
func WriteStats(w io.Writer, s model.Stats) error {
	_, err := fmt.Fprintf(w,
		"Timer: %s ticks\nThread: %s idle ticks, %s kernel ticks\nScheduler: %s context switches, %s slice expiries, %s preemptions\nThreads: %s created, %s reaped\n",
		humanize.Comma(s.Ticks),
		humanize.Comma(s.IdleTicks),
		humanize.Comma(s.KernelTicks),
		humanize.Comma(int64(s.ContextSwitches)),
		humanize.Comma(int64(s.SliceExpiries)),
		humanize.Comma(int64(s.Preemptions)),
		humanize.Comma(int64(s.ThreadsCreated)),
		humanize.Comma(int64(s.ThreadsReaped)))
	return err
}
