package scheduler

import (
	"strings"
	"testing"

	"github.com/me/kthreads/internal/clock"
	"github.com/me/kthreads/internal/thread"
	"github.com/me/kthreads/pkg/model"
)

func TestSleepUntil_WakesOnTime(t *testing.T) {
	tests := []struct {
		name   string
		offset int64
	}{
		{"one tick", 1},
		{"five ticks", 5},
		{"long", 37},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := newTestKernel(t, nil)
			var start, woke int64
			err := runKernel(t, k, func() {
				k.Create("sleeper", 40, func(any) {
					start = k.Ticks()
					k.SleepUntil(start + tt.offset)
					woke = k.Ticks()
				}, nil)
				k.Sleep(tt.offset + 5)
			})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if woke < start+tt.offset || woke > start+tt.offset+1 {
				t.Errorf("woke at %d, want within one tick of %d", woke, start+tt.offset)
			}
		})
	}
}

func TestSleepUntil_PastReturnsImmediately(t *testing.T) {
	k := newTestKernel(t, nil)
	err := runKernel(t, k, func() {
		k.Spin(3)
		before := k.Ticks()
		k.SleepUntil(before)
		k.SleepUntil(before - 2)
		k.Sleep(0)
		k.Sleep(-4)
		if after := k.Ticks(); after != before {
			t.Errorf("time passed during a sleep into the past: %d -> %d", before, after)
		}
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s := k.Stats(); s.ContextSwitches != 0 {
		t.Errorf("ContextSwitches = %d, want 0", s.ContextSwitches)
	}
}

func TestSleep_WakeOrder(t *testing.T) {
	k := newTestKernel(t, nil)
	var order []string
	sleeper := func(arg any) {
		d := arg.(int64)
		k.Sleep(d)
		order = append(order, strings.Repeat("z", int(d)))
	}
	err := runKernel(t, k, func() {
		k.Create("s3", 40, sleeper, int64(3))
		k.Create("s1", 40, sleeper, int64(1))
		k.Create("s2", 40, sleeper, int64(2))
		k.Sleep(10)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, want := strings.Join(order, ","), "z,zz,zzz"; got != want {
		t.Errorf("wake order = %s, want %s", got, want)
	}
}

func TestRealSleep_Conversion(t *testing.T) {
	k := newTestKernel(t, func(c *Config) { c.TimerFreq = 100 })
	var ms, sub, us int64
	err := runKernel(t, k, func() {
		start := k.Ticks()
		k.MSleep(50)
		ms = k.Elapsed(start)

		start = k.Ticks()
		k.NSleep(1000)
		sub = k.Elapsed(start)

		start = k.Ticks()
		k.USleep(30000)
		us = k.Elapsed(start)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ms != 5 {
		t.Errorf("MSleep(50) at 100 Hz took %d ticks, want 5", ms)
	}
	if sub != 0 {
		t.Errorf("sub-tick NSleep took %d ticks, want 0", sub)
	}
	if us != 3 {
		t.Errorf("USleep(30000) at 100 Hz took %d ticks, want 3", us)
	}
}

func TestTimeSlice_RoundRobin(t *testing.T) {
	var switches []model.Event
	k := newTestKernel(t, nil, WithListener(ListenerFunc(func(ev model.Event) {
		if ev.Kind == model.EventSwitch && (ev.Thread == "x" || ev.Thread == "y") {
			switches = append(switches, ev)
		}
	})))
	work := func(any) {
		for i := 0; i < 8; i++ {
			k.Spin(1)
		}
	}
	err := runKernel(t, k, func() {
		k.SetPriority(50)
		k.Create("x", 40, work, nil)
		k.Create("y", 40, work, nil)
		k.Sleep(40)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(switches) < 4 {
		t.Fatalf("got %d switches between x and y, want at least 4", len(switches))
	}
	for i, want := range []struct {
		thread string
		tick   int64
	}{{"x", 0}, {"y", 4}, {"x", 8}, {"y", 12}} {
		got := switches[i]
		if got.Thread != want.thread || got.Tick != want.tick {
			t.Errorf("switch %d = %s@%d, want %s@%d", i, got.Thread, got.Tick, want.thread, want.tick)
		}
	}

	s := k.Stats()
	if s.SliceExpiries < 3 {
		t.Errorf("SliceExpiries = %d, want at least 3", s.SliceExpiries)
	}
	if s.KernelTicks != 16 {
		t.Errorf("KernelTicks = %d, want 16", s.KernelTicks)
	}
}

func TestSpin_PreemptedByWakingSleeper(t *testing.T) {
	k := newTestKernel(t, nil)
	var wokeAt, spunUntil int64
	err := runKernel(t, k, func() {
		k.Create("sleeper", 40, func(any) {
			k.Sleep(2)
			wokeAt = k.Ticks()
		}, nil)
		k.Spin(6)
		spunUntil = k.Ticks()
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if wokeAt != 2 {
		t.Errorf("sleeper ran at tick %d, want 2", wokeAt)
	}
	if spunUntil != 6 {
		t.Errorf("main finished spinning at tick %d, want 6", spunUntil)
	}
	if s := k.Stats(); s.Preemptions == 0 {
		t.Error("waking sleeper did not preempt the spinner")
	}
}

func TestHostClock_Sleep(t *testing.T) {
	k := newTestKernel(t, func(c *Config) {
		c.Clock = clock.KindHost
		c.TimerFreq = 1000
	})
	var elapsed int64
	err := runKernel(t, k, func() {
		start := k.Ticks()
		k.Create("worker", thread.PriDefault, func(any) { k.Sleep(2) }, nil)
		k.Sleep(3)
		elapsed = k.Elapsed(start)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed < 3 {
		t.Errorf("slept %d host ticks, want at least 3", elapsed)
	}
}
