package scenario

import (
	"fmt"
	"strings"
	"testing"

	"github.com/me/kthreads/pkg/model"
)

func sampleResult() *Result {
	res := newResult("sample")
	res.Marks = []Mark{
		{Thread: "a", Label: "a1", Tick: 0, Priority: 31},
		{Thread: "b", Label: "b1", Tick: 3, Priority: 40},
		{Thread: "a", Label: "a2", Tick: 5, Priority: 31},
	}
	res.Order = []string{"a", "b"}
	res.Finished = []string{"b", "a"}
	res.Priorities = map[string]int{"a": 31, "b": 40}
	res.Tries = map[string][]bool{"a": {false, true}}
	res.Ticks = 5
	res.Stats = model.Stats{Ticks: 5, IdleTicks: 2, ContextSwitches: 4}
	res.Events = []model.Event{
		{Seq: 1, Kind: model.EventCreate, Thread: "a"},
		{Seq: 2, Kind: model.EventCreate, Thread: "b"},
		{Seq: 3, Kind: model.EventSwitch, Thread: "b"},
	}
	return res
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		expr string
		pass bool
	}{
		{`order.join(",") == "a,b"`, true},
		{`finished[0] == "b"`, true},
		{`labels().join(",") == "a1,b1,a2"`, true},
		{`labels("a").join(",") == "a1,a2"`, true},
		{`count("create") == 2`, true},
		{`count("create", "b") == 1`, true},
		{`count("switch") == 2`, false},
		{`marks[1].priority == 40 && marks[1].tick == 3`, true},
		{`priorities.b > priorities.a`, true},
		{`tries.a[0] === false && tries.a[1] === true`, true},
		{`stats.idle_ticks == 2 && stats.context_switches == 4`, true},
		{`ticks == 5`, true},
		{`error === null`, true},
		{`ticks`, false},
		{`undefinedName > 1`, false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			failures, err := Evaluate([]string{tt.expr}, sampleResult())
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if got := len(failures) == 0; got != tt.pass {
				t.Errorf("pass = %v, want %v (failures %v)", got, tt.pass, failures)
			}
		})
	}
}

func TestEvaluate_ExpressionsAreIsolated(t *testing.T) {
	failures, err := Evaluate([]string{
		`order.push("z"); order.length == 3`,
		`order.length == 2`,
	}, sampleResult())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(failures) != 0 {
		t.Errorf("failures: %v", failures)
	}
}

func TestEvaluate_ErrorView(t *testing.T) {
	res := sampleResult()
	res.Err = &model.KernelPanic{
		ThreadID: 3,
		Thread:   "t",
		Value:    &model.ContractError{Code: model.ErrLockReentry, Message: "lock already held", ThreadID: 3, Thread: "t"},
	}
	failures, err := Evaluate([]string{
		`error.code == "LOCK_REENTRY"`,
		`error.thread == "t"`,
		`error.message == "lock already held"`,
	}, res)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(failures) != 0 {
		t.Errorf("failures: %v", failures)
	}

	res.Err = &model.KernelPanic{Thread: "u", Value: fmt.Errorf("boom")}
	failures, _ = Evaluate([]string{`error.code == "" && error.thread == "u"`}, res)
	if len(failures) != 0 {
		t.Errorf("failures: %v", failures)
	}
}

func TestEvaluate_NoExpressions(t *testing.T) {
	failures, err := Evaluate(nil, sampleResult())
	if err != nil || failures != nil {
		t.Errorf("Evaluate(nil) = %v, %v", failures, err)
	}
}

func TestCheckError(t *testing.T) {
	deadlock := &model.KernelPanic{Value: model.NewContractError(model.ErrDeadlock, "stuck")}
	tests := []struct {
		name string
		want model.ErrorCode
		got  error
		fail string
	}{
		{"clean", "", nil, ""},
		{"expected and got", model.ErrDeadlock, deadlock, ""},
		{"expected, clean run", model.ErrDeadlock, nil, "powered off cleanly"},
		{"unexpected", "", deadlock, "kernel:"},
		{"wrong code", model.ErrLockReentry, deadlock, "expected the kernel to halt with LOCK_REENTRY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failures := checkError(tt.want, tt.got)
			if tt.fail == "" {
				if len(failures) != 0 {
					t.Errorf("failures = %v, want none", failures)
				}
				return
			}
			if len(failures) != 1 || !strings.Contains(failures[0], tt.fail) {
				t.Errorf("failures = %v, want one containing %q", failures, tt.fail)
			}
		})
	}
}
