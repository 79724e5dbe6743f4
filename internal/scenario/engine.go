package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/kthreads/internal/scheduler"
	"github.com/me/kthreads/internal/synch"
	"github.com/me/kthreads/internal/thread"
	"github.com/me/kthreads/internal/trace"
	"github.com/me/kthreads/pkg/model"
)

// Mark is a labelled point a thread passed.
type Mark struct {
	Thread   string `json:"thread"`
	Label    string `json:"label"`
	Tick     int64  `json:"tick"`
	Priority int    `json:"priority"`
}

// Result is the outcome of one scenario run.
type Result struct {
	Scenario string `json:"scenario"`
	Marks    []Mark `json:"marks"`
	// Order lists threads in the order they first ran.
	Order []string `json:"order"`
	// Finished lists threads in the order they completed their steps.
	Finished []string `json:"finished"`
	// Priorities holds each thread's effective priority when it finished.
	Priorities map[string]int `json:"priorities"`
	// Tries holds the outcome of every try_acquire, per thread.
	Tries    map[string][]bool  `json:"tries"`
	Ticks    int64              `json:"ticks"`
	Stats    model.Stats        `json:"stats"`
	Threads  []model.ThreadInfo `json:"threads"`
	Events   []model.Event      `json:"-"`
	Err      error              `json:"-"`
	Failures []string           `json:"failures"`
	Duration time.Duration      `json:"-"`
}

// Passed reports whether the run met every expectation.
func (r *Result) Passed() bool { return len(r.Failures) == 0 }

func newResult(name string) *Result {
	return &Result{
		Scenario:   name,
		Marks:      []Mark{},
		Order:      []string{},
		Finished:   []string{},
		Priorities: map[string]int{},
		Tries:      map[string][]bool{},
		Threads:    []model.ThreadInfo{},
		Events:     []model.Event{},
		Failures:   []string{},
	}
}

// Engine runs scenarios, each on a fresh kernel.
type Engine struct {
	config scheduler.Config
	logger *slog.Logger
	opts   []scheduler.Option
}

// NewEngine creates an engine booting kernels from cfg. Scenario kernel
// overrides are applied on top of cfg; opts are passed to every kernel.
func NewEngine(cfg scheduler.Config, logger *slog.Logger, opts ...scheduler.Option) *Engine {
	return &Engine{
		config: cfg,
		logger: logger.With("component", "scenario"),
		opts:   opts,
	}
}

// Run boots a kernel, plays sc on it and checks the expectations. The
// returned error reports a scenario that could not be started; a kernel
// halt or an unmet expectation is recorded in the Result instead.
func (e *Engine) Run(ctx context.Context, sc *Scenario) (*Result, error) {
	cfg := sc.Kernel.Apply(e.config)
	rec := trace.NewRecorder(trace.DefaultLimit)
	opts := append([]scheduler.Option{scheduler.WithListener(rec)}, e.opts...)
	k, err := scheduler.New(cfg, e.logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}

	res := newResult(sc.Name)
	p := &player{
		k:      k,
		sc:     sc,
		res:    res,
		logger: e.logger.With("scenario", sc.Name),
		tids:   map[string]thread.ID{},
	}

	e.logger.Info("scenario started", "scenario", sc.Name, "threads", len(sc.Threads))
	start := time.Now()
	res.Err = k.Run(ctx, p.main)
	res.Duration = time.Since(start)

	res.Stats = k.Stats()
	res.Ticks = res.Stats.Ticks
	if threads := k.Threads(); threads != nil {
		res.Threads = threads
	}
	if events := rec.Events(); len(events) > 0 {
		res.Events = events
	}
	if dropped := rec.Dropped(); dropped > 0 {
		e.logger.Warn("trace truncated", "scenario", sc.Name, "dropped", dropped)
	}

	res.Failures = append(res.Failures, checkError(sc.ExpectError, res.Err)...)
	failures, err := Evaluate(sc.Expect, res)
	if err != nil {
		return res, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	res.Failures = append(res.Failures, failures...)

	if res.Passed() {
		e.logger.Info("scenario passed", "scenario", sc.Name, "ticks", res.Ticks, "duration", res.Duration)
	} else {
		e.logger.Warn("scenario failed", "scenario", sc.Name, "ticks", res.Ticks, "failures", len(res.Failures))
	}
	return res, nil
}

func checkError(want model.ErrorCode, got error) []string {
	switch {
	case got == nil && want == "":
		return nil
	case got == nil:
		return []string{fmt.Sprintf("expected the kernel to halt with %s, it powered off cleanly", want)}
	case want == "":
		return []string{fmt.Sprintf("kernel: %v", got)}
	case !model.IsContract(got, want):
		return []string{fmt.Sprintf("expected the kernel to halt with %s, got %v", want, got)}
	}
	return nil
}

// player executes scenario steps inside the kernel. Only the thread holding
// the CPU touches it, so it needs no locking.
type player struct {
	k      *scheduler.Kernel
	sc     *Scenario
	res    *Result
	logger *slog.Logger

	semas map[string]*synch.Semaphore
	locks map[string]*synch.Lock
	conds map[string]*synch.Cond
	done  map[string]*synch.Semaphore
	tids  map[string]thread.ID
}

func (p *player) main() {
	p.semas = make(map[string]*synch.Semaphore, len(p.sc.Semaphores))
	for name, v := range p.sc.Semaphores {
		p.semas[name] = synch.NewSemaphore(p.k, v)
	}
	p.locks = make(map[string]*synch.Lock, len(p.sc.Locks))
	for _, name := range p.sc.Locks {
		p.locks[name] = synch.NewLock(p.k)
	}
	p.conds = make(map[string]*synch.Cond, len(p.sc.Conds))
	for _, name := range p.sc.Conds {
		p.conds[name] = synch.NewCond(p.k)
	}
	p.done = make(map[string]*synch.Semaphore, len(p.sc.Threads))
	for _, th := range p.sc.Threads {
		p.done[th.Name] = synch.NewSemaphore(p.k, 0)
	}

	if len(p.sc.Main) == 0 {
		for _, th := range p.sc.Threads {
			p.create(th.Name)
		}
		for _, th := range p.sc.Threads {
			p.join(th.Name)
		}
		return
	}
	p.exec("main", p.sc.Main)
}

func (p *player) body(arg any) {
	name := arg.(string)
	p.res.Order = append(p.res.Order, name)
	th, _ := p.sc.Thread(name)
	p.exec(name, th.Steps)
	p.finish(name)
}

func (p *player) exec(name string, steps []Step) {
	for _, s := range steps {
		p.logger.Debug("step", "thread", name, "step", s.String())
		switch s.Op {
		case OpRun:
			p.k.Spin(s.Ticks)
		case OpSleep:
			p.k.Sleep(s.Ticks)
		case OpYield:
			p.k.Yield()
		case OpAcquire:
			p.locks[s.Name].Acquire()
		case OpRelease:
			p.locks[s.Name].Release()
		case OpTryAcquire:
			p.res.Tries[name] = append(p.res.Tries[name], p.locks[s.Name].TryAcquire())
		case OpDown:
			p.semas[s.Name].Down()
		case OpUp:
			p.semas[s.Name].Up()
		case OpWait:
			p.conds[s.Name].Wait(p.locks[s.Lock])
		case OpSignal:
			p.conds[s.Name].Signal(p.locks[s.Lock])
		case OpBroadcast:
			p.conds[s.Name].Broadcast(p.locks[s.Lock])
		case OpSetPriority:
			p.k.SetPriority(s.Priority)
		case OpPriorityOf:
			p.setPriorityOf(name, s)
		case OpCreate:
			p.create(s.Name)
		case OpJoin:
			p.join(s.Name)
		case OpMark:
			p.mark(name, s.Name)
		case OpExit:
			if name != "main" {
				p.finish(name)
			}
			p.k.Exit()
		}
	}
}

func (p *player) create(name string) {
	if _, dup := p.tids[name]; dup {
		p.fail("create %s: thread already created", name)
		return
	}
	th, _ := p.sc.Thread(name)
	tid, err := p.k.Create(name, th.BasePriority(), p.body, name)
	if err != nil {
		p.fail("create %s: %v", name, err)
		return
	}
	p.tids[name] = tid
}

// join waits until name finished. The done semaphore is raised again so
// any number of threads can join the same thread.
func (p *player) join(name string) {
	done := p.done[name]
	done.Down()
	done.Up()
}

func (p *player) finish(name string) {
	p.res.Finished = append(p.res.Finished, name)
	p.res.Priorities[name] = p.k.Priority()
	p.done[name].Up()
}

func (p *player) mark(name, label string) {
	p.k.Mark(label)
	p.res.Marks = append(p.res.Marks, Mark{
		Thread:   name,
		Label:    label,
		Tick:     p.k.Ticks(),
		Priority: p.k.Priority(),
	})
}

func (p *player) setPriorityOf(name string, s Step) {
	tid, ok := p.tids[s.Name]
	if !ok {
		p.fail("%s: priority_of %s: thread not created", name, s.Name)
		return
	}
	if err := p.k.SetThreadPriority(tid, s.Priority); err != nil {
		if errors.Is(err, scheduler.ErrNoSuchThread) {
			p.fail("%s: priority_of %s: thread already exited", name, s.Name)
			return
		}
		p.fail("%s: priority_of %s: %v", name, s.Name, err)
	}
}

func (p *player) fail(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	p.logger.Warn("step failed", "error", msg)
	p.res.Failures = append(p.res.Failures, msg)
}
