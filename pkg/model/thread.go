package model

// ThreadInfo is a point-in-time snapshot of one thread control block.
type ThreadInfo struct {
	ID                int32        `json:"id"`
	Name              string       `json:"name"`
	Status            ThreadStatus `json:"status"`
	BasePriority      int          `json:"base_priority"`
	EffectivePriority int          `json:"effective_priority"`
	WakeTick          int64        `json:"wake_tick,omitempty"`
	RunTicks          uint64       `json:"run_ticks"`
	Idle              bool         `json:"idle,omitempty"`
}

// Stats holds the kernel's tick and dispatch counters.
type Stats struct {
	Ticks           int64  `json:"ticks"`
	IdleTicks       int64  `json:"idle_ticks"`
	KernelTicks     int64  `json:"kernel_ticks"`
	ContextSwitches uint64 `json:"context_switches"`
	SliceExpiries   uint64 `json:"slice_expiries"`
	Preemptions     uint64 `json:"preemptions"`
	ThreadsCreated  uint64 `json:"threads_created"`
	ThreadsReaped   uint64 `json:"threads_reaped"`
}
