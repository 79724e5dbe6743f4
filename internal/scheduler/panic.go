package scheduler

import (
	"errors"
	"fmt"

	"github.com/me/kthreads/pkg/model"
)

// Violation panics with a contract error attributed to the running thread.
// The kernel turns the panic into a fatal halt.
func (k *Kernel) Violation(code model.ErrorCode, format string, args ...any) {
	panic(k.violation(code, format, args...))
}

func (k *Kernel) violation(code model.ErrorCode, format string, args ...any) *model.ContractError {
	err := model.NewContractError(code, format, args...)
	if t := k.current; t != nil {
		err.ThreadID = int32(t.ID())
		err.Thread = t.Name()
	}
	return err
}

// fatal records the first fatal error, reports it and halts the machine.
func (k *Kernel) fatal(v any, stack []byte) {
	k.panicOnce.Do(func() {
		p := &model.KernelPanic{Tick: k.ticks, Value: v, Stack: stack}
		if t := k.current; t != nil {
			p.ThreadID = int32(t.ID())
			p.Thread = t.Name()
		}
		if err, ok := v.(error); ok {
			var ce *model.ContractError
			if errors.As(err, &ce) && ce.Thread == "" {
				ce.ThreadID, ce.Thread = p.ThreadID, p.Thread
			}
		}
		k.panicked = p
		k.logger.Error("kernel panic",
			"tid", p.ThreadID,
			"thread", p.Thread,
			"tick", p.Tick,
			"error", fmt.Sprint(v))
		if k.onPanic != nil {
			k.onPanic(p)
		}
	})
	k.powerOff()
}
