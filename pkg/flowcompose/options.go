package flowcompose

import (
	"log/slog"
	"os"
	"time"

	"github.com/randalmurphal/flowcompose/pkg/flowcompose/config"
	"github.com/randalmurphal/flowcompose/pkg/flowcompose/observability"
	"github.com/randalmurphal/flowcompose/pkg/flowcompose/timing"
)

// Mode selects how a parallel group runs its branches.
type Mode int

const (
	// ModeInherit uses the engine default set with WithParallelMode.
	ModeInherit Mode = iota
	// ModeSequential runs branches one after another in registration order.
	ModeSequential
	// ModeConcurrent runs every branch in its own goroutine.
	ModeConcurrent
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ModeSequential:
		return config.ModeSequential
	case ModeConcurrent:
		return config.ModeConcurrent
	default:
		return "inherit"
	}
}

// Switch is an on/off group setting. The zero value defers to the engine
// default, so a group can turn a setting off even when the engine has it on.
type Switch int

const (
	// SwitchInherit uses the engine default.
	SwitchInherit Switch = iota
	// SwitchOn enables the setting.
	SwitchOn
	// SwitchOff disables the setting.
	SwitchOff
)

// SwitchOf converts a boolean to SwitchOn or SwitchOff.
func SwitchOf(enabled bool) Switch {
	if enabled {
		return SwitchOn
	}
	return SwitchOff
}

// Enabled reports whether s is SwitchOn.
func (s Switch) Enabled() bool {
	return s == SwitchOn
}

// String implements fmt.Stringer.
func (s Switch) String() string {
	switch s {
	case SwitchOn:
		return "on"
	case SwitchOff:
		return "off"
	default:
		return "inherit"
	}
}

// runConfig holds configuration shared by every node of one invocation.
type runConfig struct {
	logger  *slog.Logger
	runID   string
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
	tracing bool
	sink    timing.Sink

	mode           Mode
	maxConcurrency int
	failFast       bool
	branchTimeout  time.Duration
}

// defaultRunConfig returns the default execution configuration.
func defaultRunConfig() runConfig {
	return runConfig{
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
		mode:    ModeConcurrent,
	}
}

// Option configures execution behavior.
type Option func(*runConfig)

// WithLogger sets the logger. It is enriched with run_id, container and
// node_id for every node. A nil logger is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(c *runConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRunID sets the run identifier. If not set, a UUID is generated per
// outermost invocation.
func WithRunID(id string) Option {
	return func(c *runConfig) {
		c.runID = id
	}
}

// WithMetrics enables or disables OpenTelemetry metrics.
// When enabled, node invocations, runs and parallel fan-outs are recorded.
func WithMetrics(enabled bool) Option {
	return func(c *runConfig) {
		if enabled {
			c.metrics = observability.NewMetricsRecorder()
		} else {
			c.metrics = observability.NoopMetrics{}
		}
	}
}

// WithMetricsRecorder sets a custom metrics recorder.
func WithMetricsRecorder(m observability.MetricsRecorder) Option {
	return func(c *runConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracing enables or disables OpenTelemetry spans.
// When enabled, each run gets a flowcompose.run span with one child span per node.
func WithTracing(enabled bool) Option {
	return func(c *runConfig) {
		c.tracing = enabled
		if enabled {
			c.spans = observability.NewSpanManager()
		} else {
			c.spans = observability.NoopSpanManager{}
		}
	}
}

// WithTimingSink sends one timing event per node and per run to sink.
func WithTimingSink(sink timing.Sink) Option {
	return func(c *runConfig) {
		c.sink = sink
	}
}

// WithParallelMode sets the mode of groups created with ModeInherit.
// Default: ModeConcurrent.
func WithParallelMode(m Mode) Option {
	return func(c *runConfig) {
		if m != ModeInherit {
			c.mode = m
		}
	}
}

// WithMaxConcurrency bounds concurrent branches for groups that set no
// limit of their own. 0 means unlimited.
func WithMaxConcurrency(n int) Option {
	return func(c *runConfig) {
		if n >= 0 {
			c.maxConcurrency = n
		}
	}
}

// WithFailFast makes concurrent groups cancel sibling branches on the
// first failure.
func WithFailFast(enabled bool) Option {
	return func(c *runConfig) {
		c.failFast = enabled
	}
}

// WithBranchTimeout bounds every parallel group that sets no timeout of its own.
func WithBranchTimeout(d time.Duration) Option {
	return func(c *runConfig) {
		if d >= 0 {
			c.branchTimeout = d
		}
	}
}

// WithSettings applies file-based settings. The timing database named by
// Settings.TimingSQLite is not opened here; open it with
// timing.NewSQLiteSink and pass it to WithTimingSink.
func WithSettings(s config.Settings) Option {
	return func(c *runConfig) {
		switch s.ParallelMode {
		case config.ModeSequential:
			c.mode = ModeSequential
		case config.ModeConcurrent:
			c.mode = ModeConcurrent
		}
		WithMaxConcurrency(s.MaxConcurrency)(c)
		c.failFast = s.FailFast
		WithBranchTimeout(s.BranchTimeout)(c)
		WithMetrics(s.Metrics)(c)
		WithTracing(s.Tracing)(c)
		c.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: s.LogLevel}))
	}
}
