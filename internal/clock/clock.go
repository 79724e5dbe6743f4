// Package clock provides the periodic timer interrupt sources consumed by
// the scheduler.
package clock

import (
	"fmt"
	"sync"
	"time"
)

// Source produces timer interrupts through a raise callback.
type Source interface {
	// Start begins raising interrupts asynchronously, if the source does so.
	Start(raise func())
	// Stop ends asynchronous delivery.
	Stop()
	// Step raises the next tick synchronously and reports true, or reports
	// false if ticks only arrive asynchronously and the caller must wait.
	Step(raise func()) bool
}

// Kind names a clock source in configuration.
type Kind string

const (
	KindVirtual Kind = "virtual"
	KindHost    Kind = "host"
)

// New builds the source named by kind. freq is the host tick rate in Hz.
func New(kind Kind, freq int) (Source, error) {
	switch kind {
	case "", KindVirtual:
		return Virtual{}, nil
	case KindHost:
		return NewHost(freq), nil
	default:
		return nil, fmt.Errorf("unknown clock %q (want virtual or host)", kind)
	}
}

// Virtual advances time only when the CPU asks for it, so a run is fully
// deterministic.
type Virtual struct{}

func (Virtual) Start(func())           {}
func (Virtual) Stop()                  {}
func (Virtual) Step(raise func()) bool { raise(); return true }

// Host raises ticks from a wall-clock ticker.
type Host struct {
	period time.Duration

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewHost creates a host clock ticking freq times per second.
func NewHost(freq int) *Host {
	if freq <= 0 {
		freq = 100
	}
	return &Host{period: time.Second / time.Duration(freq)}
}

// Start launches the ticker goroutine.
func (h *Host) Start(raise func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stop != nil {
		return
	}
	h.stop = make(chan struct{})
	h.done = make(chan struct{})
	go func(stop, done chan struct{}) {
		defer close(done)
		t := time.NewTicker(h.period)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				raise()
			}
		}
	}(h.stop, h.done)
}

// Stop ends the ticker goroutine and waits for it.
func (h *Host) Stop() {
	h.mu.Lock()
	stop, done := h.stop, h.done
	h.stop, h.done = nil, nil
	h.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Step never produces a tick synchronously.
func (h *Host) Step(func()) bool { return false }
