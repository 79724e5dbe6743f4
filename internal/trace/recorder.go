// Package trace collects scheduler events in memory while a kernel runs.
package trace

import (
	"sync"

	"github.com/me/kthreads/pkg/model"
)

// DefaultLimit bounds the number of events a Recorder keeps.
const DefaultLimit = 100000

// Recorder buffers scheduler events. It implements scheduler.Listener and
// may be read from any goroutine.
type Recorder struct {
	mu      sync.Mutex
	events  []model.Event
	limit   int
	dropped uint64
}

// NewRecorder creates a recorder keeping at most limit events. Later
// events are counted but dropped.
func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Recorder{limit: limit}
}

// OnEvent records ev.
func (r *Recorder) OnEvent(ev model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) >= r.limit {
		r.dropped++
		return
	}
	r.events = append(r.events, ev)
}

// Events returns a copy of every recorded event in order.
func (r *Recorder) Events() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Filter returns one page of the recorded events matching opts, and the
// number of matching events overall.
func (r *Recorder) Filter(opts model.ListOptions) ([]model.Event, int) {
	opts.Clamp()
	r.mu.Lock()
	defer r.mu.Unlock()

	var page []model.Event
	total := 0
	for _, ev := range r.events {
		if !Matches(ev, opts) {
			continue
		}
		if total >= opts.Offset && len(page) < opts.Limit {
			page = append(page, ev)
		}
		total++
	}
	return page, total
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Dropped returns the number of events discarded over the limit.
func (r *Recorder) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Matches reports whether ev passes the kind and thread filters of opts.
func Matches(ev model.Event, opts model.ListOptions) bool {
	if opts.Kind != "" && ev.Kind != opts.Kind {
		return false
	}
	if opts.Thread != 0 && ev.ThreadID != opts.Thread {
		return false
	}
	return true
}
