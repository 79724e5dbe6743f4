// Package cpu is the context-switch primitive. Everything above it
// (queues, donation, dispatch policy) is architecture independent.
//
// A Context is an opaque suspended execution. A Switcher suspends one
// context and resumes another; exactly one context runs at any instant.
package cpu

import "errors"

// ErrHalted is the panic value delivered to the bootstrap context when the
// machine halts while it is suspended.
var ErrHalted = errors.New("cpu: halted")

// Context is an opaque execution context.
type Context interface {
	ContextID() uint64
}

// Switcher is the narrow contract between the scheduler and the machine.
type Switcher interface {
	// Bootstrap adopts the calling execution as a context.
	Bootstrap() Context

	// Spawn creates a suspended context that runs entry once resumed.
	// entry must leave through Exit; it must never simply return.
	Spawn(entry func()) Context

	// Switch suspends from and resumes to. It returns when from is resumed.
	Switch(from, to Context)

	// Exit resumes to and terminates from. It never returns. from must not
	// be the bootstrap context.
	Exit(from, to Context)

	// Release reclaims an exited context.
	Release(c Context)

	// Halt stops the machine: every suspended context is terminated.
	Halt()

	// Wait blocks until every spawned context has terminated.
	Wait()
}
