package thread

import (
	"encoding/binary"

	"github.com/me/kthreads/pkg/model"
)

// DefaultCapacity is the number of TCB slots in a table when none is given.
const DefaultCapacity = 64

// Table is a fixed-capacity arena of thread control blocks addressed by
// Handle. It is not safe for concurrent use; the scheduler serializes all
// access by disabling interrupts.
type Table struct {
	slots  []*Thread
	free   []Handle
	nextID ID
	live   int
}

// NewTable creates a table with room for capacity threads.
func NewTable(capacity int) *Table {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	tb := &Table{
		slots:  make([]*Thread, capacity),
		free:   make([]Handle, 0, capacity),
		nextID: 1,
	}
	for h := capacity - 1; h >= 0; h-- {
		tb.free = append(tb.free, Handle(h))
	}
	return tb
}

// Alloc creates a BLOCKED thread with a fresh ID and a zeroed stack page
// carrying the guard word. It returns model.ErrNoThreadSlots when full.
func (tb *Table) Alloc(name string, priority int, fn Func, arg any) (*Thread, error) {
	if len(tb.free) == 0 {
		return nil, model.ErrNoThreadSlots
	}
	h := tb.free[len(tb.free)-1]
	tb.free = tb.free[:len(tb.free)-1]

	page := make([]byte, PageSize)
	binary.LittleEndian.PutUint32(page, Magic)

	t := &Thread{
		handle:    h,
		id:        tb.nextID,
		name:      truncateName(name),
		status:    model.ThreadBlocked,
		base:      priority,
		effective: priority,
		entry:     fn,
		arg:       arg,
		page:      page,
	}
	tb.nextID++
	tb.slots[h] = t
	tb.live++
	return t, nil
}

// Get returns the thread in slot h, or nil.
func (tb *Table) Get(h Handle) *Thread {
	if h < 0 || int(h) >= len(tb.slots) {
		return nil
	}
	return tb.slots[h]
}

// Lookup returns the live thread with the given ID, or nil.
func (tb *Table) Lookup(id ID) *Thread {
	for _, t := range tb.slots {
		if t != nil && t.id == id {
			return t
		}
	}
	return nil
}

// Free reclaims slot h and its stack page.
func (tb *Table) Free(h Handle) {
	t := tb.Get(h)
	if t == nil {
		return
	}
	clear(t.page)
	t.page = nil
	t.ctx = nil
	tb.slots[h] = nil
	tb.free = append(tb.free, h)
	tb.live--
}

// Len returns the number of live threads.
func (tb *Table) Len() int { return tb.live }

// Cap returns the table capacity.
func (tb *Table) Cap() int { return len(tb.slots) }

// Each calls fn for every live thread in slot order.
func (tb *Table) Each(fn func(*Thread)) {
	for _, t := range tb.slots {
		if t != nil {
			fn(t)
		}
	}
}
