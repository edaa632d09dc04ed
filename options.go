package segsieve

import (
	"math"

	"github.com/segsieve/segsieve/resource"
)

// Default configuration values, matching the command surface defaults.
const (
	DefaultWindowSize uint64 = 100_000
	DefaultUpperLimit uint64 = 1_000_000
)

// Config is the validated caller input for one sieve run. The engine does
// not parse argument syntax; the command surface hands it this struct.
type Config struct {
	// WindowSize is the number of integers sieved per window. Memory usage
	// is bounded by this value, not by UpperLimit.
	WindowSize uint64

	// UpperLimit is the inclusive upper bound of the sieved range.
	UpperLimit uint64

	// Verbose selects a per-window debug logger when no WithLogger option
	// is given.
	Verbose bool

	// Fast skips the controller's inter-window pacing waits.
	Fast bool
}

// DefaultConfig returns the default sieve configuration.
func DefaultConfig() Config {
	return Config{
		WindowSize: DefaultWindowSize,
		UpperLimit: DefaultUpperLimit,
	}
}

// Validate checks the configuration, returning a ConfigError describing the
// first violated constraint.
func (c Config) Validate() error {
	if c.WindowSize == 0 {
		return &ConfigError{Field: "window_size", Value: c.WindowSize, Reason: "must be positive"}
	}
	if c.WindowSize > math.MaxUint32 {
		return &ConfigError{Field: "window_size", Value: c.WindowSize, Reason: "window offsets must fit in 32 bits"}
	}
	if c.UpperLimit < 2 {
		return &ConfigError{Field: "upper_limit", Value: c.UpperLimit, Reason: "must be at least 2"}
	}
	if c.UpperLimit == math.MaxUint64 {
		return &ConfigError{Field: "upper_limit", Value: c.UpperLimit, Reason: "upper_limit + 1 must be representable"}
	}
	return nil
}

type options struct {
	logger      *Logger
	loggerSet   bool
	metrics     MetricsCollector
	controller  *resource.Controller
	markWorkers int
}

// Option configures Engine construction behavior.
type Option func(*options)

// WithLogger configures structured logging for the run.
// Pass nil to disable logging. An explicit logger takes precedence over
// the Config.Verbose default.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
		o.loggerSet = true
	}
}

// WithMetrics configures a metrics collector for monitoring the run.
func WithMetrics(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metrics = mc
	}
}

// WithController configures pacing and marking concurrency limits.
// A nil controller runs unpaced and sequential.
func WithController(c *resource.Controller) Option {
	return func(o *options) {
		o.controller = c
	}
}

// WithMarkWorkers enables parallel Phase 1 marking with up to n goroutines.
// Marking results are merged before Discovery reads the window, so the
// produced primes are identical to a sequential run. n <= 1 disables
// parallelism (the default).
func WithMarkWorkers(n int) Option {
	return func(o *options) {
		o.markWorkers = n
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:      NoopLogger(),
		metrics:     NoopMetricsCollector{},
		markWorkers: 1,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
