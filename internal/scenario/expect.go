package scenario

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dop251/goja"

	"github.com/me/kthreads/pkg/model"
)

// prelude is loaded into every expectation runtime.
const prelude = `
function labels(thread) {
	var out = [];
	for (var i = 0; i < marks.length; i++) {
		if (thread === undefined || marks[i].thread === thread) {
			out.push(marks[i].label);
		}
	}
	return out;
}
function count(kind, thread) {
	var n = 0;
	for (var i = 0; i < events.length; i++) {
		if (events[i].kind === kind && (thread === undefined || events[i].thread === thread)) {
			n++;
		}
	}
	return n;
}
`

// errorView is what expectations see as "error": null on a clean run.
type errorView struct {
	Code    model.ErrorCode `json:"code"`
	Message string          `json:"message"`
	Thread  string          `json:"thread"`
}

func newErrorView(err error) *errorView {
	if err == nil {
		return nil
	}
	v := &errorView{Message: err.Error()}
	var ce *model.ContractError
	if errors.As(err, &ce) {
		v.Code, v.Message, v.Thread = ce.Code, ce.Message, ce.Thread
	}
	var kp *model.KernelPanic
	if errors.As(err, &kp) && v.Thread == "" {
		v.Thread = kp.Thread
	}
	return v
}

// bindings renders the result as JSON so expressions see the same
// lower-case field names as the API.
func bindings(res *Result) (string, error) {
	view := struct {
		Marks      []Mark             `json:"marks"`
		Order      []string           `json:"order"`
		Finished   []string           `json:"finished"`
		Priorities map[string]int     `json:"priorities"`
		Tries      map[string][]bool  `json:"tries"`
		Ticks      int64              `json:"ticks"`
		Stats      model.Stats        `json:"stats"`
		Threads    []model.ThreadInfo `json:"threads"`
		Events     []model.Event      `json:"events"`
		Error      *errorView         `json:"error"`
	}{
		Marks:      res.Marks,
		Order:      res.Order,
		Finished:   res.Finished,
		Priorities: res.Priorities,
		Tries:      res.Tries,
		Ticks:      res.Ticks,
		Stats:      res.Stats,
		Threads:    res.Threads,
		Events:     res.Events,
		Error:      newErrorView(res.Err),
	}
	data, err := json.Marshal(view)
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(data), nil
}

// setupVM creates a runtime with every result field as a global. The
// values are parsed inside the runtime so an expression cannot change what
// the next one sees.
func setupVM(result string) (*goja.Runtime, error) {
	vm := goja.New()
	if err := vm.Set("__result", result); err != nil {
		return nil, fmt.Errorf("set result: %w", err)
	}
	if _, err := vm.RunString(`(function(g, r) { for (var k in r) { g[k] = r[k]; } })(this, JSON.parse(__result));`); err != nil {
		return nil, fmt.Errorf("load result: %w", err)
	}
	if _, err := vm.RunString(prelude); err != nil {
		return nil, fmt.Errorf("prelude: %w", err)
	}
	return vm, nil
}

// EvaluateBool evaluates one expectation. It must produce a boolean.
func EvaluateBool(vm *goja.Runtime, expr string) (bool, error) {
	val, err := vm.RunString(expr)
	if err != nil {
		return false, err
	}
	switch v := val.Export().(type) {
	case bool:
		return v, nil
	default:
		return false, fmt.Errorf("expression did not return boolean: %T", v)
	}
}

// Evaluate checks every expectation against res and returns one failure
// message per expression that is false or does not evaluate. Each
// expression gets a fresh runtime. The error reports a result that could
// not be exposed to the runtime at all.
func Evaluate(exprs []string, res *Result) ([]string, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	result, err := bindings(res)
	if err != nil {
		return nil, err
	}

	var failures []string
	for i, expr := range exprs {
		vm, err := setupVM(result)
		if err != nil {
			return nil, err
		}
		ok, err := EvaluateBool(vm, expr)
		switch {
		case err != nil:
			failures = append(failures, fmt.Sprintf("expect[%d] %s: %v", i, expr, err))
		case !ok:
			failures = append(failures, fmt.Sprintf("expect[%d] %s: false", i, expr))
		}
	}
	return failures, nil
}
