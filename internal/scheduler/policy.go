package scheduler

import (
	"errors"
	"fmt"

	"github.com/me/kthreads/internal/queue"
	"github.com/me/kthreads/internal/thread"
)

// Scheduling policy names.
const (
	PolicyPriority = "priority"
	PolicyMLFQS    = "mlfqs"
)

// ErrPolicyNotImplemented is returned for a policy that is only reserved.
var ErrPolicyNotImplemented = errors.New("scheduling policy not implemented")

func newPolicy(name string, tab *thread.Table) (Policy, error) {
	switch name {
	case "", PolicyPriority:
		return &priorityPolicy{ready: queue.NewReady(tab)}, nil
	case PolicyMLFQS:
		return nil, fmt.Errorf("%s: %w", name, ErrPolicyNotImplemented)
	default:
		return nil, fmt.Errorf("unknown scheduling policy %q", name)
	}
}

// priorityPolicy runs the highest effective priority first, round robin
// among equals.
type priorityPolicy struct {
	ready *queue.PriorityList
}

func (p *priorityPolicy) Name() string                   { return PolicyPriority }
func (p *priorityPolicy) Enqueue(h thread.Handle)        { p.ready.Push(h) }
func (p *priorityPolicy) Dequeue() (thread.Handle, bool) { return p.ready.Pop() }
func (p *priorityPolicy) Front() (thread.Handle, bool)   { return p.ready.Front() }
func (p *priorityPolicy) Remove(h thread.Handle) bool    { return p.ready.Remove(h) }
func (p *priorityPolicy) Len() int                       { return p.ready.Len() }
func (p *priorityPolicy) Handles() []thread.Handle       { return p.ready.Handles() }
func (p *priorityPolicy) Tick(*thread.Thread, int64)     {}
