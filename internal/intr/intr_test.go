package intr

import (
	"testing"
	"time"
)

func TestDisableRestore(t *testing.T) {
	c := New(func() {}, func() {})
	if c.Level() != Off {
		t.Fatalf("initial level = %s, want off", c.Level())
	}
	c.Enable()
	old := c.Disable()
	if old != On || c.Level() != Off {
		t.Fatalf("Disable() = %s, level %s; want on, off", old, c.Level())
	}
	c.SetLevel(old)
	if c.Level() != On {
		t.Errorf("level after SetLevel(on) = %s", c.Level())
	}
}

func TestPoll_DeliversOnlyWhenEnabled(t *testing.T) {
	var handled int
	var c *Controller
	c = New(func() {
		if !c.InContext() {
			t.Error("handler ran outside interrupt context")
		}
		if c.Level() != Off {
			t.Error("handler ran with interrupts on")
		}
		handled++
	}, func() {})

	c.Raise()
	c.Raise()
	c.Poll()
	if handled != 0 {
		t.Fatalf("delivered %d interrupts while disabled", handled)
	}

	c.Enable()
	if handled != 2 {
		t.Fatalf("handled = %d after Enable, want 2", handled)
	}
	if c.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", c.Pending())
	}
	if c.InContext() {
		t.Error("still in interrupt context after delivery")
	}
}

func TestYieldOnReturn(t *testing.T) {
	var yields int
	var c *Controller
	c = New(func() { c.YieldOnReturn() }, func() {
		if c.InContext() {
			t.Error("onReturn ran inside interrupt context")
		}
		if c.Level() != Off {
			t.Error("onReturn ran with interrupts on")
		}
		yields++
	})
	c.Enable()
	c.Raise()
	c.Poll()
	if yields != 1 {
		t.Fatalf("yields = %d, want 1", yields)
	}
	if c.Level() != On {
		t.Errorf("level after delivery = %s, want on", c.Level())
	}
	c.Raise()
	c.Poll()
	if yields != 2 {
		t.Errorf("yields = %d, want 2", yields)
	}
}

func TestWaitForInterrupt(t *testing.T) {
	c := New(func() {}, func() {})
	go func() {
		time.Sleep(5 * time.Millisecond)
		c.Raise()
	}()
	if !c.WaitForInterrupt() {
		t.Fatal("WaitForInterrupt = false, want true")
	}

	c.Enable()
	go func() {
		time.Sleep(5 * time.Millisecond)
		c.Stop()
	}()
	if c.WaitForInterrupt() {
		t.Error("WaitForInterrupt = true after Stop, want false")
	}
}
