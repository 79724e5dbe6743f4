package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/me/kthreads/internal/clock"
	"github.com/me/kthreads/internal/scheduler"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kthreads.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultSimConfig_MatchesKernelDefaults(t *testing.T) {
	cfg := DefaultSimConfig()
	if cfg.Addr != ":8080" || cfg.LogLevel != "info" || cfg.LogFormat != "auto" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if got := cfg.Kernel.Scheduler(); got != scheduler.DefaultConfig() {
		t.Errorf("kernel block = %+v, want %+v", got, scheduler.DefaultConfig())
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
db_path: /tmp/trace.db
kernel:
  time_slice: 8
  clock: host
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.DBPath != "/tmp/trace.db" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q, unset keys must keep their defaults", cfg.Addr)
	}
	k := cfg.Kernel.Scheduler()
	if k.TimeSlice != 8 || k.Clock != clock.KindHost || k.TimerFreq != 100 {
		t.Errorf("kernel = %+v", k)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"unknown key", "colour: blue\n", "colour"},
		{"bad type", "kernel:\n  time_slice: many\n", "parse config"},
		{"invalid kernel", "kernel:\n  timer_freq: 5000\n", "timer frequency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want one containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_EmptyPathAndEmptyFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil || cfg != DefaultSimConfig() {
		t.Errorf("Load(\"\") = %+v, %v", cfg, err)
	}
	cfg, err = Load(writeConfig(t, ""))
	if err != nil || cfg != DefaultSimConfig() {
		t.Errorf("Load(empty file) = %+v, %v", cfg, err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of a missing file succeeded")
	}
}

func TestResolveDBPath(t *testing.T) {
	cfg := DefaultSimConfig()
	cfg.DBPath = ":memory:"
	if got, err := cfg.ResolveDBPath(); err != nil || got != ":memory:" {
		t.Errorf("ResolveDBPath = %q, %v", got, err)
	}

	t.Setenv("HOME", t.TempDir())
	cfg.DBPath = ""
	got, err := cfg.ResolveDBPath()
	if err != nil {
		t.Fatalf("ResolveDBPath: %v", err)
	}
	if filepath.Base(got) != "kthreads.db" {
		t.Errorf("ResolveDBPath = %q", got)
	}
	if _, err := os.Stat(filepath.Dir(got)); err != nil {
		t.Errorf("directory not created: %v", err)
	}
}
