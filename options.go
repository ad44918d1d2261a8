package pairgo

import (
	"log/slog"
	"runtime"

	"github.com/hupe1980/pairgo/expr"
	"github.com/hupe1980/pairgo/resource"
)

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	controller       *resource.Controller
	workers          int
	stripes          int
	normalization    expr.NormalizationMethod
}

// Option configures Engine behavior.
type Option func(*options)

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithResourceController configures advisory resource limits (concurrent
// search runs, scratch memory, archive I/O throughput).
func WithResourceController(c *resource.Controller) Option {
	return func(o *options) {
		o.controller = c
	}
}

// WithWorkers configures how many goroutines score candidate pairs in one
// search run. Values below 1 keep the default.
func WithWorkers(workers int) Option {
	return func(o *options) {
		if workers >= 1 {
			o.workers = workers
		}
	}
}

// WithStripes configures the striped-lock count serializing per-cell list
// writes. Values below 1 keep the default.
func WithStripes(stripes int) Option {
	return func(o *options) {
		if stripes >= 1 {
			o.stripes = stripes
		}
	}
}

// WithNormalization sets how expression vectors are scaled before exact
// scoring. Pearson correlation is scale-invariant, so this changes exported
// vectors and signature inputs, not exact similarities.
func WithNormalization(norm expr.NormalizationMethod) Option {
	return func(o *options) {
		if norm.Valid() {
			o.normalization = norm
		}
	}
}

func defaultWorkers() int {
	w := runtime.NumCPU()
	if w < 1 {
		w = 1
	}
	if w > 32 {
		w = 32
	}
	return w
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		workers:          defaultWorkers(),
		normalization:    expr.NormalizationNone,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
