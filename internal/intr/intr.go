// Package intr models the interrupt flag of a single CPU. Disabling
// interrupts is the only mutual exclusion the scheduler uses.
//
// Interrupts are raised asynchronously with Raise and delivered on the
// running context whenever the level is (re-)enabled or Poll is called.
package intr

import "sync/atomic"

// Level is the interrupt enable flag.
type Level bool

const (
	Off Level = false
	On  Level = true
)

func (l Level) String() string {
	if l == On {
		return "on"
	}
	return "off"
}

// Controller is the interrupt flag plus the pending-interrupt line.
//
// Everything except Raise, Stop and Pending must be called only by the
// running context.
type Controller struct {
	level         Level
	inContext     bool
	yieldOnReturn bool

	handler  func()
	onReturn func()

	pending atomic.Uint64
	wake    chan struct{}
	stop    chan struct{}
	stopped atomic.Bool
}

// New creates a controller with interrupts disabled. handler runs once per
// delivered interrupt; onReturn runs after a handler that requested a yield.
func New(handler, onReturn func()) *Controller {
	return &Controller{
		handler:  handler,
		onReturn: onReturn,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
}

// Level returns the current interrupt level.
func (c *Controller) Level() Level { return c.level }

// InContext reports whether an interrupt handler is running.
func (c *Controller) InContext() bool { return c.inContext }

// Disable turns interrupts off and returns the previous level.
func (c *Controller) Disable() Level {
	old := c.level
	c.level = Off
	return old
}

// Enable turns interrupts on, delivers anything pending, and returns the
// previous level. It must not be called from interrupt context.
func (c *Controller) Enable() Level {
	old := c.level
	c.level = On
	c.Poll()
	return old
}

// SetLevel restores a level returned by Disable or Enable.
func (c *Controller) SetLevel(l Level) Level {
	if l == On {
		return c.Enable()
	}
	return c.Disable()
}

// YieldOnReturn asks for the interrupted context to yield once the current
// handler returns. It is only meaningful in interrupt context.
func (c *Controller) YieldOnReturn() {
	c.yieldOnReturn = true
}

// Raise signals one interrupt. It may be called from any goroutine.
func (c *Controller) Raise() {
	c.pending.Add(1)
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of raised, undelivered interrupts.
func (c *Controller) Pending() uint64 { return c.pending.Load() }

// Poll delivers pending interrupts if the level allows it. Each handler
// runs with interrupts off; a requested yield happens after the handler
// returns, still with interrupts off, as on a real interrupt return path.
func (c *Controller) Poll() {
	for c.level == On && !c.inContext && c.pending.Load() > 0 {
		c.pending.Add(^uint64(0))
		c.level = Off
		c.inContext = true
		c.handler()
		c.inContext = false
		if c.yieldOnReturn {
			c.yieldOnReturn = false
			c.onReturn()
		}
		c.level = On
	}
}

// WaitForInterrupt blocks until an interrupt is pending. It returns false
// if the controller was stopped.
func (c *Controller) WaitForInterrupt() bool {
	for c.pending.Load() == 0 {
		select {
		case <-c.wake:
		case <-c.stop:
			return false
		}
	}
	return !c.stopped.Load()
}

// Stop releases any WaitForInterrupt caller. It may be called from any
// goroutine and is idempotent.
func (c *Controller) Stop() {
	if c.stopped.CompareAndSwap(false, true) {
		close(c.stop)
	}
}
