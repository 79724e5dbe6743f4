package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/me/kthreads/internal/clock"
	"github.com/me/kthreads/internal/scheduler"
)

// SimConfig holds configuration for the kthreads CLI and trace server.
type SimConfig struct {
	Addr      string       `yaml:"addr"`       // Listen address (default ":8080")
	LogLevel  string       `yaml:"log_level"`  // Log level: debug, info, warn, error
	LogFormat string       `yaml:"log_format"` // Log format: text, json, auto
	DBPath    string       `yaml:"db_path"`    // SQLite trace database (default ~/.kthreads/kthreads.db, ":memory:" for testing)
	Kernel    KernelConfig `yaml:"kernel"`
}

// KernelConfig is the file form of scheduler.Config.
type KernelConfig struct {
	TimeSlice  int    `yaml:"time_slice"`
	TimerFreq  int    `yaml:"timer_freq"`
	MaxThreads int    `yaml:"max_threads"`
	Clock      string `yaml:"clock"`
	Policy     string `yaml:"policy"`
}

// DefaultSimConfig returns sensible defaults.
func DefaultSimConfig() SimConfig {
	k := scheduler.DefaultConfig()
	return SimConfig{
		Addr:      ":8080",
		LogLevel:  "info",
		LogFormat: "auto",
		Kernel: KernelConfig{
			TimeSlice:  k.TimeSlice,
			TimerFreq:  k.TimerFreq,
			MaxThreads: k.MaxThreads,
			Clock:      string(k.Clock),
			Policy:     k.Policy,
		},
	}
}

// Scheduler translates the block into a kernel configuration.
func (k KernelConfig) Scheduler() scheduler.Config {
	return scheduler.Config{
		TimeSlice:  k.TimeSlice,
		TimerFreq:  k.TimerFreq,
		MaxThreads: k.MaxThreads,
		Clock:      clock.Kind(k.Clock),
		Policy:     k.Policy,
	}
}

// Load reads a YAML config file over the defaults. Unknown keys are errors.
// An empty path returns the defaults.
func Load(path string) (SimConfig, error) {
	cfg := DefaultSimConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Kernel.Scheduler().Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ResolveDBPath returns DBPath, or ~/.kthreads/kthreads.db when it is empty.
// The directory is created if needed.
func (c SimConfig) ResolveDBPath() (string, error) {
	if c.DBPath != "" {
		return c.DBPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".kthreads")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cannot create %s: %w", dir, err)
	}
	return filepath.Join(dir, "kthreads.db"), nil
}
