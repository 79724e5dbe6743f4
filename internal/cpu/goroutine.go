package cpu

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Goroutines implements Switcher with one goroutine per context. A
// buffered resume channel per context carries the single run permit.
type Goroutines struct {
	halt   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	nextID atomic.Uint64
	live   atomic.Int64
}

type gcontext struct {
	id     uint64
	resume chan struct{}
	boot   bool
}

func (c *gcontext) ContextID() uint64 { return c.id }

// NewGoroutines creates a goroutine-backed switcher.
func NewGoroutines() *Goroutines {
	return &Goroutines{halt: make(chan struct{})}
}

func (g *Goroutines) newContext(boot bool) *gcontext {
	g.live.Add(1)
	return &gcontext{
		id:     g.nextID.Add(1),
		resume: make(chan struct{}, 1),
		boot:   boot,
	}
}

// Bootstrap adopts the calling goroutine.
func (g *Goroutines) Bootstrap() Context {
	return g.newContext(true)
}

// Spawn starts a goroutine parked until its first resume.
func (g *Goroutines) Spawn(entry func()) Context {
	c := g.newContext(false)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.park(c)
		entry()
	}()
	return c
}

// Switch hands the permit to to and parks from.
func (g *Goroutines) Switch(from, to Context) {
	f, t := from.(*gcontext), to.(*gcontext)
	if g.halted() {
		g.stop(f)
	}
	t.resume <- struct{}{}
	g.park(f)
}

// Exit hands the permit to to and ends the calling goroutine.
func (g *Goroutines) Exit(from, to Context) {
	to.(*gcontext).resume <- struct{}{}
	runtime.Goexit()
}

// Release accounts for a reclaimed context.
func (g *Goroutines) Release(c Context) {
	if c != nil {
		g.live.Add(-1)
	}
}

// Halt terminates every parked context. It is idempotent and may be called
// from any goroutine.
func (g *Goroutines) Halt() {
	g.once.Do(func() { close(g.halt) })
}

// Wait blocks until every spawned goroutine has ended.
func (g *Goroutines) Wait() {
	g.wg.Wait()
}

// Live returns the number of contexts not yet released.
func (g *Goroutines) Live() int {
	return int(g.live.Load())
}

func (g *Goroutines) halted() bool {
	select {
	case <-g.halt:
		return true
	default:
		return false
	}
}

func (g *Goroutines) park(c *gcontext) {
	select {
	case <-c.resume:
		if g.halted() {
			g.stop(c)
		}
	case <-g.halt:
		g.stop(c)
	}
}

// stop ends a context on a halted machine. The bootstrap goroutine belongs
// to the caller of the kernel, so it unwinds with ErrHalted instead of
// exiting.
func (g *Goroutines) stop(c *gcontext) {
	if c.boot {
		panic(ErrHalted)
	}
	runtime.Goexit()
}
