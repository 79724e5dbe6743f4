package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/me/kthreads/internal/clock"
	"github.com/me/kthreads/internal/cpu"
	"github.com/me/kthreads/internal/intr"
	"github.com/me/kthreads/internal/queue"
	"github.com/me/kthreads/internal/thread"
	"github.com/me/kthreads/pkg/model"
)

var (
	// ErrShutdown is returned by Run when its context was cancelled.
	ErrShutdown = errors.New("kernel shut down")
	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("kernel already running")
	// ErrNotRunning is returned by operations that need a booted kernel.
	ErrNotRunning = errors.New("kernel not running")
	// ErrNoSuchThread is returned when a thread ID does not name a live thread.
	ErrNoSuchThread = errors.New("no such thread")
)

// exitSignal unwinds a thread that called Exit.
type exitSignal struct{}

// Kernel is the scheduler context of one CPU.
type Kernel struct {
	config Config
	logger *slog.Logger

	cpu    cpu.Switcher
	clk    clock.Source
	intr   *intr.Controller
	table  *thread.Table
	policy Policy
	sleepq *queue.Sleep

	current *thread.Thread
	boot    *thread.Thread
	idle    *thread.Thread
	dying   []thread.Handle

	ticks      int64
	sliceTicks int
	seq        uint64
	stats      model.Stats

	listeners []Listener
	onPanic   PanicHandler
	tickHooks []func(tick int64)

	started   atomic.Bool
	halted    atomic.Bool
	shutdown  atomic.Bool
	powerOnce sync.Once
	panicOnce sync.Once
	panicked  *model.KernelPanic
}

// Option configures a Kernel.
type Option func(*Kernel)

// WithSwitcher replaces the goroutine switch primitive.
func WithSwitcher(s cpu.Switcher) Option {
	return func(k *Kernel) { k.cpu = s }
}

// WithClock replaces the clock named in the configuration.
func WithClock(src clock.Source) Option {
	return func(k *Kernel) { k.clk = src }
}

// WithListener registers an event listener.
func WithListener(l Listener) Option {
	return func(k *Kernel) { k.listeners = append(k.listeners, l) }
}

// WithPanicHandler sets the handler invoked once on a fatal halt.
func WithPanicHandler(h PanicHandler) Option {
	return func(k *Kernel) { k.onPanic = h }
}

// WithTickHook chains fn onto the timer interrupt. It runs in interrupt
// context after due sleepers are woken, so it may Up a semaphore or
// TryDown one but must not block.
func WithTickHook(fn func(tick int64)) Option {
	return func(k *Kernel) { k.tickHooks = append(k.tickHooks, fn) }
}

// New creates a kernel. Nothing runs until Run is called.
func New(cfg Config, logger *slog.Logger, opts ...Option) (*Kernel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("kernel config: %w", err)
	}
	table := thread.NewTable(cfg.MaxThreads)
	policy, err := newPolicy(cfg.Policy, table)
	if err != nil {
		return nil, err
	}

	k := &Kernel{
		config: cfg,
		logger: logger.With("component", "scheduler"),
		table:  table,
		policy: policy,
		sleepq: queue.NewSleep(table),
	}
	for _, opt := range opts {
		opt(k)
	}
	if k.cpu == nil {
		k.cpu = cpu.NewGoroutines()
	}
	if k.clk == nil {
		if k.clk, err = clock.New(cfg.Clock, cfg.TimerFreq); err != nil {
			return nil, err
		}
	}
	k.intr = intr.New(k.onTick, k.onInterruptReturn)
	return k, nil
}

// Config returns the kernel configuration.
func (k *Kernel) Config() Config { return k.config }

// Run boots the kernel on the calling goroutine, which becomes the "main"
// thread, and runs main on it. The machine powers off when main returns or
// calls Exit. Cancelling ctx shuts the machine down and Run returns
// ErrShutdown; a fatal kernel error is returned as a *model.KernelPanic.
func (k *Kernel) Run(ctx context.Context, main func()) (err error) {
	if main == nil {
		return errors.New("run: nil main")
	}
	if !k.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	boot, err := k.table.Alloc("main", thread.PriDefault, nil, nil)
	if err != nil {
		return fmt.Errorf("allocate main thread: %w", err)
	}
	boot.SetContext(k.cpu.Bootstrap())
	k.mustTransition(boot, model.ThreadRunning)
	k.boot, k.current = boot, boot
	k.stats.ThreadsCreated++
	k.emit(model.EventCreate, boot, "")

	idle, err := k.table.Alloc("idle", thread.PriMin, nil, nil)
	if err != nil {
		return fmt.Errorf("allocate idle thread: %w", err)
	}
	idle.MarkIdle()
	idle.SetContext(k.cpu.Spawn(k.idleEntry))
	k.idle = idle
	k.stats.ThreadsCreated++
	k.emit(model.EventCreate, idle, "")

	stop := context.AfterFunc(ctx, k.Shutdown)
	defer stop()

	defer func() {
		switch r := recover(); r {
		case nil, exitSignal{}:
			k.powerOff()
		case cpu.ErrHalted:
		default:
			k.fatal(r, debug.Stack())
		}
		k.cpu.Wait()
		err = k.result()
		k.logger.Info("kernel powered off", "ticks", k.ticks, "error", err)
	}()

	k.logger.Info("kernel booted",
		"policy", k.policy.Name(),
		"time_slice", k.config.TimeSlice,
		"max_threads", k.table.Cap())
	k.clk.Start(k.intr.Raise)
	k.intr.Enable()
	main()
	return nil
}

// Shutdown halts the machine from any goroutine. Run returns ErrShutdown
// once the running thread reaches a kernel operation.
func (k *Kernel) Shutdown() {
	if k.halted.Load() {
		return
	}
	k.shutdown.Store(true)
	k.powerOff()
}

// Halted reports whether the machine has stopped.
func (k *Kernel) Halted() bool { return k.halted.Load() }

func (k *Kernel) powerOff() {
	k.powerOnce.Do(func() {
		k.halted.Store(true)
		k.intr.Stop()
		k.clk.Stop()
		k.cpu.Halt()
	})
}

func (k *Kernel) result() error {
	if k.panicked != nil {
		return k.panicked
	}
	if k.shutdown.Load() {
		return ErrShutdown
	}
	return nil
}

// checkHalt ends the running context if the machine has stopped. The
// main thread belongs to the caller of Run, so it unwinds instead.
func (k *Kernel) checkHalt() {
	if !k.halted.Load() {
		return
	}
	if k.current == k.boot {
		panic(cpu.ErrHalted)
	}
	runtime.Goexit()
}

// trampoline is the entry of every created thread. Returning from the
// thread function is the same as calling Exit.
func (k *Kernel) trampoline(t *thread.Thread) func() {
	return func() {
		defer func() {
			r := recover()
			if k.halted.Load() {
				return
			}
			if _, exit := r.(exitSignal); r != nil && !exit {
				k.fatal(r, debug.Stack())
				return
			}
			k.exitCurrent()
		}()
		k.intr.Enable()
		t.Entry()(t.Arg())
	}
}

// idleEntry runs when no other thread is ready. It only ever leaves
// through a halt.
func (k *Kernel) idleEntry() {
	defer func() {
		if r := recover(); r != nil && !k.halted.Load() {
			k.fatal(r, debug.Stack())
		}
	}()
	for {
		k.checkHalt()
		k.intr.Disable()
		if k.policy.Len() == 0 && k.sleepq.Len() == 0 {
			k.deadlock()
		}
		k.block()
		k.intr.Enable()
		k.waitForInterrupt()
	}
}

// waitForInterrupt lets time pass until at least one interrupt has been
// delivered.
func (k *Kernel) waitForInterrupt() {
	if !k.clk.Step(k.intr.Raise) && !k.intr.WaitForInterrupt() {
		k.checkHalt()
	}
	k.intr.Poll()
}

func (k *Kernel) deadlock() {
	var blocked []string
	k.table.Each(func(t *thread.Thread) {
		if !t.IsIdle() && t.Status() == model.ThreadBlocked {
			blocked = append(blocked, fmt.Sprintf("%s(%d)", t.Name(), t.ID()))
		}
	})
	panic(k.violation(model.ErrDeadlock, "no runnable or sleeping thread; blocked: %v", blocked))
}
