package clock

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		kind    Kind
		wantErr bool
	}{
		{"", false},
		{KindVirtual, false},
		{KindHost, false},
		{"sundial", true},
	}
	for _, tt := range tests {
		_, err := New(tt.kind, 100)
		if (err != nil) != tt.wantErr {
			t.Errorf("New(%q) err = %v, wantErr %v", tt.kind, err, tt.wantErr)
		}
	}
}

func TestVirtualStep(t *testing.T) {
	var n int
	v := Virtual{}
	v.Start(func() { t.Error("virtual clock raised asynchronously") })
	for i := 0; i < 3; i++ {
		if !v.Step(func() { n++ }) {
			t.Fatal("Step = false, want true")
		}
	}
	v.Stop()
	if n != 3 {
		t.Errorf("raised %d ticks, want 3", n)
	}
}

func TestHostTicks(t *testing.T) {
	var n atomic.Int64
	h := NewHost(1000)
	if h.Step(func() {}) {
		t.Fatal("host Step should never tick synchronously")
	}
	h.Start(func() { n.Add(1) })
	h.Start(func() { t.Error("second Start must be a no-op") })

	deadline := time.Now().Add(2 * time.Second)
	for n.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	h.Stop()
	h.Stop()

	got := n.Load()
	if got < 3 {
		t.Fatalf("host clock raised %d ticks, want >= 3", got)
	}
	time.Sleep(10 * time.Millisecond)
	if n.Load() != got {
		t.Error("ticks kept arriving after Stop")
	}
}
