package model

import "testing"

func TestListOptions_Clamp(t *testing.T) {
	tests := []struct {
		name       string
		input      ListOptions
		wantLimit  int
		wantOffset int
	}{
		{"defaults", ListOptions{Limit: 0, Offset: 0}, 100, 0},
		{"negative limit", ListOptions{Limit: -5, Offset: 0}, 100, 0},
		{"over max", ListOptions{Limit: 5000, Offset: 0}, 1000, 0},
		{"negative offset", ListOptions{Limit: 10, Offset: -3}, 10, 0},
		{"valid", ListOptions{Limit: 50, Offset: 10}, 50, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.input.Clamp()
			if tt.input.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", tt.input.Limit, tt.wantLimit)
			}
			if tt.input.Offset != tt.wantOffset {
				t.Errorf("Offset = %d, want %d", tt.input.Offset, tt.wantOffset)
			}
		})
	}
}

func TestDefaultListOptions(t *testing.T) {
	opts := DefaultListOptions()
	if opts.Limit != 100 {
		t.Errorf("Limit = %d, want 100", opts.Limit)
	}
	if opts.Kind != "" || opts.Thread != 0 {
		t.Errorf("filters = (%q, %d), want empty", opts.Kind, opts.Thread)
	}
}

func TestEventKind_Valid(t *testing.T) {
	for _, k := range AllEventKinds {
		if !k.Valid() {
			t.Errorf("EventKind(%q).Valid() = false, want true", k)
		}
	}
	if EventKind("bogus").Valid() {
		t.Error(`EventKind("bogus").Valid() = true, want false`)
	}
}
