// Package queue implements the ready queue, the sleep queue and primitive
// wait lists over thread handles.
//
// Every queue keeps the membership tag of its threads current, so a thread
// whose priority changes can be reordered in whichever queue holds it.
package queue

import (
	"slices"
	"sort"

	"github.com/me/kthreads/internal/thread"
	"github.com/me/kthreads/pkg/model"
)

// PriorityList is ordered by descending effective priority, FIFO among
// equal priorities. It backs both the ready queue and primitive wait lists.
type PriorityList struct {
	tab   *thread.Table
	kind  thread.QueueKind
	items []thread.Handle
}

// NewReady creates an empty ready queue.
func NewReady(tab *thread.Table) *PriorityList {
	return &PriorityList{tab: tab, kind: thread.QueueReady}
}

// NewWaitList creates an empty wait list for a synchronization primitive.
func NewWaitList(tab *thread.Table) *PriorityList {
	return &PriorityList{tab: tab, kind: thread.QueueWait}
}

// Kind implements thread.Queue.
func (q *PriorityList) Kind() thread.QueueKind { return q.kind }

func (q *PriorityList) priority(h thread.Handle) int {
	return q.tab.Get(h).Effective()
}

func (q *PriorityList) insert(h thread.Handle) {
	p := q.priority(h)
	i := sort.Search(len(q.items), func(i int) bool {
		return p > q.priority(q.items[i])
	})
	q.items = slices.Insert(q.items, i, h)
}

// Push links h behind every thread of equal or higher priority.
func (q *PriorityList) Push(h thread.Handle) {
	link(q.tab.Get(h), q)
	q.insert(h)
}

// Front returns the highest-priority thread without removing it.
func (q *PriorityList) Front() (thread.Handle, bool) {
	if len(q.items) == 0 {
		return thread.NoHandle, false
	}
	return q.items[0], true
}

// Pop removes and returns the highest-priority thread.
func (q *PriorityList) Pop() (thread.Handle, bool) {
	h, ok := q.Front()
	if !ok {
		return h, false
	}
	q.items = q.items[1:]
	q.tab.Get(h).SetQueue(nil)
	return h, true
}

// Remove unlinks h. It reports whether h was present.
func (q *PriorityList) Remove(h thread.Handle) bool {
	i := slices.Index(q.items, h)
	if i < 0 {
		return false
	}
	q.items = slices.Delete(q.items, i, i+1)
	q.tab.Get(h).SetQueue(nil)
	return true
}

// Reorder restores sort order after h's effective priority changed. h
// moves behind its new equals.
func (q *PriorityList) Reorder(h thread.Handle) {
	i := slices.Index(q.items, h)
	if i < 0 {
		return
	}
	q.items = slices.Delete(q.items, i, i+1)
	q.insert(h)
}

// Len returns the number of linked threads.
func (q *PriorityList) Len() int { return len(q.items) }

// Handles returns the linked threads in queue order.
func (q *PriorityList) Handles() []thread.Handle {
	return slices.Clone(q.items)
}

// Sleep is ordered by ascending wake tick, FIFO among equal ticks.
type Sleep struct {
	tab   *thread.Table
	items []thread.Handle
}

// NewSleep creates an empty sleep queue.
func NewSleep(tab *thread.Table) *Sleep {
	return &Sleep{tab: tab}
}

// Kind implements thread.Queue.
func (q *Sleep) Kind() thread.QueueKind { return thread.QueueSleep }

// Reorder implements thread.Queue. Sleepers are keyed by wake tick, so a
// priority change never moves them.
func (q *Sleep) Reorder(thread.Handle) {}

// Push links h to wake at tick wake.
func (q *Sleep) Push(h thread.Handle, wake int64) {
	t := q.tab.Get(h)
	link(t, q)
	t.SetWakeTick(wake)
	i := sort.Search(len(q.items), func(i int) bool {
		return wake < q.tab.Get(q.items[i]).WakeTick()
	})
	q.items = slices.Insert(q.items, i, h)
}

// DrainDue removes and returns, in wake order, every sleeper whose wake
// tick is at or before now. It touches only the due prefix.
func (q *Sleep) DrainDue(now int64) []thread.Handle {
	k := 0
	for k < len(q.items) && q.tab.Get(q.items[k]).WakeTick() <= now {
		k++
	}
	if k == 0 {
		return nil
	}
	due := slices.Clone(q.items[:k])
	q.items = q.items[k:]
	for _, h := range due {
		q.tab.Get(h).SetQueue(nil)
	}
	return due
}

// Next returns the earliest wake tick.
func (q *Sleep) Next() (int64, bool) {
	if len(q.items) == 0 {
		return 0, false
	}
	return q.tab.Get(q.items[0]).WakeTick(), true
}

// Len returns the number of sleepers.
func (q *Sleep) Len() int { return len(q.items) }

// Handles returns the sleepers in wake order.
func (q *Sleep) Handles() []thread.Handle {
	return slices.Clone(q.items)
}

// link tags t as a member of q. A thread linked into two queues at once is
// a scheduler bug, not a recoverable condition.
func link(t *thread.Thread, q thread.Queue) {
	if cur := t.Queue(); cur != nil {
		panic(model.NewContractError(model.ErrInvalidTransition,
			"thread %d linked into %s queue while in %s queue", t.ID(), q.Kind(), cur.Kind()))
	}
	t.SetQueue(q)
}
