package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Parallel execution modes.
const (
	ModeSequential = "sequential"
	ModeConcurrent = "concurrent"
)

// ErrInvalidSettings indicates a settings value is out of range.
var ErrInvalidSettings = errors.New("invalid settings")

// Settings is the engine configuration read from a settings file.
type Settings struct {
	// ParallelMode is ModeSequential or ModeConcurrent.
	ParallelMode string
	// MaxConcurrency bounds concurrent branches per group. 0 = unlimited.
	MaxConcurrency int
	// FailFast cancels sibling branches when one fails.
	FailFast bool
	// BranchTimeout bounds a whole parallel group. 0 = none.
	BranchTimeout time.Duration

	// LogLevel is parsed with slog.Level.UnmarshalText.
	LogLevel slog.Level
	// Metrics enables OpenTelemetry metrics.
	Metrics bool
	// Tracing enables OpenTelemetry spans.
	Tracing bool

	// TimingSQLite is the path of a SQLite timing database. Empty disables it.
	TimingSQLite string
}

// DefaultSettings returns concurrent branches with no limits and
// observability off.
func DefaultSettings() Settings {
	return Settings{
		ParallelMode: ModeConcurrent,
		LogLevel:     slog.LevelInfo,
	}
}

// SettingsFrom builds Settings from a Config. Unset keys keep their
// DefaultSettings values.
func SettingsFrom(cfg Config) (Settings, error) {
	s := DefaultSettings()

	parallel := cfg.Section("parallel")
	s.ParallelMode = strings.ToLower(parallel.String("mode", s.ParallelMode))
	s.MaxConcurrency = parallel.Int("max_concurrency", s.MaxConcurrency)
	s.FailFast = parallel.Bool("fail_fast", s.FailFast)
	s.BranchTimeout = parallel.Duration("timeout", s.BranchTimeout)

	obs := cfg.Section("observability")
	if level := obs.String("log_level", ""); level != "" {
		if err := s.LogLevel.UnmarshalText([]byte(level)); err != nil {
			return s, fmt.Errorf("%w: log_level %q: %v", ErrInvalidSettings, level, err)
		}
	}
	s.Metrics = obs.Bool("metrics", s.Metrics)
	s.Tracing = obs.Bool("tracing", s.Tracing)

	s.TimingSQLite = cfg.Section("timing").String("sqlite", s.TimingSQLite)

	return s, s.Validate()
}

// Validate checks value ranges.
func (s Settings) Validate() error {
	var errs []error
	if s.ParallelMode != ModeSequential && s.ParallelMode != ModeConcurrent {
		errs = append(errs, fmt.Errorf("%w: parallel mode %q", ErrInvalidSettings, s.ParallelMode))
	}
	if s.MaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("%w: max_concurrency %d", ErrInvalidSettings, s.MaxConcurrency))
	}
	if s.BranchTimeout < 0 {
		errs = append(errs, fmt.Errorf("%w: timeout %s", ErrInvalidSettings, s.BranchTimeout))
	}
	return errors.Join(errs...)
}
