package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/randalmurphal/flowcompose/pkg/flowcompose"
)

// Config configures retry behavior.
type Config struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	MaxAttempts int

	// InitialBackoff is the starting backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to backoff after each attempt.
	BackoffFactor float64

	// Jitter is the random jitter factor (0.0-1.0).
	Jitter float64

	// RetryableFunc optionally overrides the default retryability check.
	RetryableFunc func(error) bool
}

// DefaultConfig is the standard retry configuration.
var DefaultConfig = Config{
	MaxAttempts:    3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	BackoffFactor:  2.0,
	Jitter:         0.1,
}

// NoRetry disables retries.
var NoRetry = Config{
	MaxAttempts: 1,
}

// Result contains the result of a retry operation.
type Result[T any] struct {
	// Value is the result if successful.
	Value T

	// Err is the final error if all attempts failed.
	Err error

	// Attempts is the number of attempts made.
	Attempts int

	// Duration is the total time spent retrying.
	Duration time.Duration
}

// Do calls fn until it succeeds, fails with a non-retryable error, runs out
// of attempts or ctx is done. Failures are returned as *CategorizedError.
func Do[T any](ctx context.Context, cfg Config, fn func(context.Context) (T, error)) Result[T] {
	start := time.Now()
	backoff := cfg.InitialBackoff
	maxAttempts := max(cfg.MaxAttempts, 1)
	var lastErr error

	isRetryable := cfg.RetryableFunc
	if isRetryable == nil {
		isRetryable = IsRetryable
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		// Check context before each attempt
		if err := ctx.Err(); err != nil {
			return Result[T]{
				Err:      &CategorizedError{Err: err, Category: CategoryPermanent, Attempts: attempt, Context: "context cancelled"},
				Attempts: attempt,
				Duration: time.Since(start),
			}
		}

		result, err := fn(ctx)
		if err == nil {
			return Result[T]{
				Value:    result,
				Attempts: attempt + 1,
				Duration: time.Since(start),
			}
		}

		lastErr = err

		if !isRetryable(err) {
			return Result[T]{
				Err:      &CategorizedError{Err: err, Category: Categorize(err), Attempts: attempt + 1},
				Attempts: attempt + 1,
				Duration: time.Since(start),
			}
		}

		// Don't sleep after the last attempt
		if attempt < maxAttempts-1 {
			timer := time.NewTimer(calculateBackoff(backoff, cfg.Jitter))
			select {
			case <-ctx.Done():
				timer.Stop()
				return Result[T]{
					Err:      &CategorizedError{Err: ctx.Err(), Category: CategoryPermanent, Attempts: attempt + 1, Context: "context cancelled during backoff"},
					Attempts: attempt + 1,
					Duration: time.Since(start),
				}
			case <-timer.C:
			}

			backoff = time.Duration(float64(backoff) * cfg.BackoffFactor)
			if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		}
	}

	return Result[T]{
		Err: &CategorizedError{
			Err:      lastErr,
			Category: Categorize(lastErr),
			Attempts: maxAttempts,
			Context:  "max retries exceeded",
		},
		Attempts: maxAttempts,
		Duration: time.Since(start),
	}
}

// calculateBackoff returns the backoff duration with jitter applied.
func calculateBackoff(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return base
	}

	// base +/- (base * jitter * random)
	jitterAmount := float64(base) * jitter * (rand.Float64()*2 - 1)
	return time.Duration(float64(base) + jitterAmount)
}

// Wrap returns a module that retries m according to cfg. Every attempt
// receives the same arguments.
//
// Example:
//
//	ppl.MustRegister("llm", retry.Wrap(llm, retry.NewConfig(retry.WithMaxAttempts(5))))
func Wrap(m flowcompose.Module, cfg Config) flowcompose.Module {
	return &retryModule{module: m, cfg: cfg}
}

type retryModule struct {
	module flowcompose.Module
	cfg    Config
}

// Unwrap returns the retried module.
func (r *retryModule) Unwrap() flowcompose.Module {
	return r.module
}

// Invoke calls the wrapped module until it succeeds or retrying stops.
func (r *retryModule) Invoke(ctx flowcompose.Context, args flowcompose.Args) (any, error) {
	if r.module == nil {
		return nil, flowcompose.ErrNilModule
	}
	res := Do(ctx, r.cfg, func(context.Context) (any, error) {
		return r.module.Invoke(ctx, args)
	})
	if res.Attempts > 1 {
		ctx.Logger().Debug("retried module",
			"node_id", ctx.NodeID(),
			"attempts", res.Attempts,
			"duration_ms", res.Duration.Milliseconds(),
			"success", res.Err == nil)
	}
	return res.Value, res.Err
}

// Option configures retry behavior.
type Option func(*Config)

// WithMaxAttempts sets the maximum number of attempts.
func WithMaxAttempts(n int) Option {
	return func(cfg *Config) {
		cfg.MaxAttempts = n
	}
}

// WithInitialBackoff sets the initial backoff duration.
func WithInitialBackoff(d time.Duration) Option {
	return func(cfg *Config) {
		cfg.InitialBackoff = d
	}
}

// WithMaxBackoff sets the maximum backoff duration.
func WithMaxBackoff(d time.Duration) Option {
	return func(cfg *Config) {
		cfg.MaxBackoff = d
	}
}

// WithBackoffFactor sets the backoff multiplier.
func WithBackoffFactor(f float64) Option {
	return func(cfg *Config) {
		cfg.BackoffFactor = f
	}
}

// WithJitter sets the jitter factor.
func WithJitter(j float64) Option {
	return func(cfg *Config) {
		cfg.Jitter = j
	}
}

// WithRetryableFunc sets a custom retryability check.
func WithRetryableFunc(fn func(error) bool) Option {
	return func(cfg *Config) {
		cfg.RetryableFunc = fn
	}
}

// NewConfig creates a retry configuration from DefaultConfig and opts.
func NewConfig(opts ...Option) Config {
	cfg := DefaultConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
