package scheduler

import (
	"context"
	"log/slog"

	"github.com/me/kthreads/internal/thread"
	"github.com/me/kthreads/pkg/model"
)

// Mark records a labelled event for the running thread in the trace.
func (k *Kernel) Mark(label string) {
	cur := k.running()
	old := k.intr.Disable()
	k.emit(model.EventMark, cur, label)
	k.intr.SetLevel(old)
}

func (k *Kernel) emit(kind model.EventKind, t *thread.Thread, detail string) {
	k.seq++
	ev := model.Event{
		Seq:      k.seq,
		Tick:     k.ticks,
		Kind:     kind,
		ThreadID: int32(t.ID()),
		Thread:   t.Name(),
		Priority: t.Effective(),
		Detail:   detail,
	}
	if k.logger.Enabled(context.Background(), slog.LevelDebug) {
		k.logger.Debug("kernel event",
			"event", kind,
			"tid", ev.ThreadID,
			"thread", ev.Thread,
			"priority", ev.Priority,
			"tick", ev.Tick,
			"detail", detail)
	}
	for _, l := range k.listeners {
		l.OnEvent(ev)
	}
}
