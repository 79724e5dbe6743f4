package scheduler

import (
	"fmt"

	"github.com/me/kthreads/internal/clock"
	"github.com/me/kthreads/internal/thread"
)

// Config holds kernel configuration.
type Config struct {
	// TimeSlice is the number of ticks a thread runs before it is preempted
	// in favour of an equal-priority thread.
	TimeSlice int
	// TimerFreq is the number of timer interrupts per second.
	TimerFreq int
	// MaxThreads bounds the thread table, idle and main included.
	MaxThreads int
	Clock      clock.Kind
	Policy     string
}

// DefaultConfig returns the stock kernel configuration.
func DefaultConfig() Config {
	return Config{
		TimeSlice:  4,
		TimerFreq:  100,
		MaxThreads: thread.DefaultCapacity,
		Clock:      clock.KindVirtual,
		Policy:     PolicyPriority,
	}
}

// Validate checks the configuration for values the kernel cannot run with.
func (c Config) Validate() error {
	if c.TimeSlice < 1 {
		return fmt.Errorf("time slice must be at least 1 tick, got %d", c.TimeSlice)
	}
	if c.TimerFreq < 19 || c.TimerFreq > 1000 {
		return fmt.Errorf("timer frequency must be within [19, 1000] Hz, got %d", c.TimerFreq)
	}
	if c.MaxThreads < 2 {
		return fmt.Errorf("max threads must leave room for main and idle, got %d", c.MaxThreads)
	}
	return nil
}
