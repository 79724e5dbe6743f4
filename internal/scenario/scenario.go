// Package scenario drives the kernel from declarative YAML scripts. A
// scenario names the synchronization objects, the threads and the steps each
// thread performs, and closes with goja expressions checked against the run.
package scenario

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/me/kthreads/internal/clock"
	"github.com/me/kthreads/internal/scheduler"
	"github.com/me/kthreads/internal/thread"
	"github.com/me/kthreads/pkg/model"
)

// Op is a step operation.
type Op string

const (
	OpRun         Op = "run"
	OpSleep       Op = "sleep"
	OpYield       Op = "yield"
	OpAcquire     Op = "acquire"
	OpRelease     Op = "release"
	OpTryAcquire  Op = "try_acquire"
	OpDown        Op = "down"
	OpUp          Op = "up"
	OpWait        Op = "wait"
	OpSignal      Op = "signal"
	OpBroadcast   Op = "broadcast"
	OpSetPriority Op = "set_priority"
	OpPriorityOf  Op = "priority_of"
	OpCreate      Op = "create"
	OpJoin        Op = "join"
	OpMark        Op = "mark"
	OpExit        Op = "exit"
)

// opArgs says which argument shape each operation takes.
var opArgs = map[Op]argKind{
	OpRun:         argTicks,
	OpSleep:       argTicks,
	OpYield:       argNone,
	OpAcquire:     argName,
	OpRelease:     argName,
	OpTryAcquire:  argName,
	OpDown:        argName,
	OpUp:          argName,
	OpWait:        argCond,
	OpSignal:      argCond,
	OpBroadcast:   argCond,
	OpSetPriority: argPriority,
	OpPriorityOf:  argThreadPriority,
	OpCreate:      argName,
	OpJoin:        argName,
	OpMark:        argName,
	OpExit:        argNone,
}

type argKind int

const (
	argNone argKind = iota
	argTicks
	argName
	argPriority
	argCond
	argThreadPriority
)

// Step is one action of a scenario thread.
//
// In YAML a step is either a bare operation ("yield", "exit") or a
// single-key mapping from the operation to its argument:
//
//	- run: 3
//	- acquire: a
//	- wait: {cond: c, lock: a}
//	- priority_of: {thread: low, priority: 40}
type Step struct {
	Op       Op
	Ticks    int64
	Name     string // lock, semaphore, condition, thread or mark label
	Lock     string // lock paired with a condition
	Priority int
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		s.Op = Op(node.Value)
		kind, ok := opArgs[s.Op]
		if !ok {
			return fmt.Errorf("line %d: unknown operation %q", node.Line, node.Value)
		}
		if kind != argNone {
			return fmt.Errorf("line %d: operation %q needs an argument", node.Line, node.Value)
		}
		return nil

	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return fmt.Errorf("line %d: a step maps exactly one operation to its argument", node.Line)
		}
		key, val := node.Content[0], node.Content[1]
		s.Op = Op(key.Value)
		kind, ok := opArgs[s.Op]
		if !ok {
			return fmt.Errorf("line %d: unknown operation %q", key.Line, key.Value)
		}
		if err := s.decodeArg(kind, val); err != nil {
			return fmt.Errorf("line %d: %s: %w", val.Line, s.Op, err)
		}
		return nil
	}
	return fmt.Errorf("line %d: a step must be an operation or a single-key mapping", node.Line)
}

func (s *Step) decodeArg(kind argKind, val *yaml.Node) error {
	switch kind {
	case argNone:
		// "exit: true" and "yield: ~" read naturally; the value is ignored.
		return nil
	case argTicks:
		return val.Decode(&s.Ticks)
	case argPriority:
		return val.Decode(&s.Priority)
	case argName:
		if val.Kind != yaml.ScalarNode {
			return fmt.Errorf("expected a name")
		}
		s.Name = val.Value
		return nil
	case argCond:
		var arg struct {
			Cond string `yaml:"cond"`
			Lock string `yaml:"lock"`
		}
		if err := val.Decode(&arg); err != nil {
			return err
		}
		s.Name, s.Lock = arg.Cond, arg.Lock
		return nil
	case argThreadPriority:
		var arg struct {
			Thread   string `yaml:"thread"`
			Priority int    `yaml:"priority"`
		}
		if err := val.Decode(&arg); err != nil {
			return err
		}
		s.Name, s.Priority = arg.Thread, arg.Priority
		return nil
	}
	return nil
}

// String renders the step the way it is written in YAML.
func (s Step) String() string {
	switch opArgs[s.Op] {
	case argTicks:
		return fmt.Sprintf("%s: %d", s.Op, s.Ticks)
	case argName:
		return fmt.Sprintf("%s: %s", s.Op, s.Name)
	case argPriority:
		return fmt.Sprintf("%s: %d", s.Op, s.Priority)
	case argCond:
		return fmt.Sprintf("%s: {cond: %s, lock: %s}", s.Op, s.Name, s.Lock)
	case argThreadPriority:
		return fmt.Sprintf("%s: {thread: %s, priority: %d}", s.Op, s.Name, s.Priority)
	}
	return string(s.Op)
}

// ThreadSpec declares a scenario thread.
type ThreadSpec struct {
	Name     string `yaml:"name"`
	Priority *int   `yaml:"priority"`
	Steps    []Step `yaml:"steps"`
}

// BasePriority returns the declared priority or PriDefault.
func (t ThreadSpec) BasePriority() int {
	if t.Priority == nil {
		return thread.PriDefault
	}
	return *t.Priority
}

// KernelOverrides replaces selected kernel settings for one scenario.
type KernelOverrides struct {
	TimeSlice  int    `yaml:"time_slice"`
	TimerFreq  int    `yaml:"timer_freq"`
	MaxThreads int    `yaml:"max_threads"`
	Clock      string `yaml:"clock"`
	Policy     string `yaml:"policy"`
}

// Apply returns base with the non-zero overrides applied.
func (o KernelOverrides) Apply(base scheduler.Config) scheduler.Config {
	if o.TimeSlice != 0 {
		base.TimeSlice = o.TimeSlice
	}
	if o.TimerFreq != 0 {
		base.TimerFreq = o.TimerFreq
	}
	if o.MaxThreads != 0 {
		base.MaxThreads = o.MaxThreads
	}
	if o.Clock != "" {
		base.Clock = clock.Kind(o.Clock)
	}
	if o.Policy != "" {
		base.Policy = o.Policy
	}
	return base
}

// Scenario is a parsed scenario file.
type Scenario struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Kernel      KernelOverrides `yaml:"kernel"`
	Semaphores  map[string]uint `yaml:"semaphores"`
	Locks       []string        `yaml:"locks"`
	Conds       []string        `yaml:"conds"`
	Threads     []ThreadSpec    `yaml:"threads"`
	// Main replaces the default bootstrap body, which creates every thread
	// in declaration order and joins them.
	Main []Step `yaml:"main"`
	// ExpectError names the contract violation the run must halt with.
	ExpectError model.ErrorCode `yaml:"expect_error"`
	Expect      []string        `yaml:"expect"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// Parse decodes and validates a scenario document.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks that every name a step refers to is declared. Priorities
// are not range checked: an out-of-range priority is a kernel contract
// violation a scenario may want to provoke.
func (sc *Scenario) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if sc.Name == "" {
		add("name is required")
	}
	if sc.ExpectError != "" && !sc.ExpectError.IsContractCode() {
		add("expect_error %q is not an error code", sc.ExpectError)
	}

	objects := map[string]string{}
	declare := func(kind, name string) {
		if name == "" {
			add("%s with an empty name", kind)
			return
		}
		if prev, dup := objects[name]; dup {
			add("%s %q already declared as a %s", kind, name, prev)
			return
		}
		objects[name] = kind
	}
	for name := range sc.Semaphores {
		declare("semaphore", name)
	}
	for _, name := range sc.Locks {
		declare("lock", name)
	}
	for _, name := range sc.Conds {
		declare("cond", name)
	}
	threads := map[string]bool{}
	for _, th := range sc.Threads {
		if th.Name == "main" || th.Name == "idle" {
			add("thread name %q is reserved", th.Name)
			continue
		}
		if threads[th.Name] {
			add("thread %q declared twice", th.Name)
			continue
		}
		threads[th.Name] = true
		if th.Name == "" {
			add("thread with an empty name")
		}
	}

	check := func(owner string, i int, s Step) {
		want := func(kind, name string) {
			if objects[name] != kind {
				add("%s step %d (%s): no %s named %q", owner, i, s, kind, name)
			}
		}
		switch s.Op {
		case OpAcquire, OpRelease, OpTryAcquire:
			want("lock", s.Name)
		case OpDown, OpUp:
			want("semaphore", s.Name)
		case OpWait, OpSignal, OpBroadcast:
			want("cond", s.Name)
			want("lock", s.Lock)
		case OpCreate, OpJoin, OpPriorityOf:
			if !threads[s.Name] {
				add("%s step %d (%s): no thread named %q", owner, i, s, s.Name)
			}
		case OpRun, OpSleep:
			if s.Ticks < 0 {
				add("%s step %d (%s): negative tick count", owner, i, s)
			}
		}
	}
	for _, th := range sc.Threads {
		for i, s := range th.Steps {
			check("thread "+th.Name, i, s)
		}
	}
	for i, s := range sc.Main {
		check("main", i, s)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid scenario: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Thread returns the declared thread called name.
func (sc *Scenario) Thread(name string) (ThreadSpec, bool) {
	for _, th := range sc.Threads {
		if th.Name == name {
			return th, true
		}
	}
	return ThreadSpec{}, false
}
