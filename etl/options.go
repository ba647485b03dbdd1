package etl

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// EngineOption configures an Engine at construction time, following the same
// functional-options shape as the teacher repo's graph.Option
// (graph/options.go): each option mutates an engineConfig and returns an
// error only when validation can fail immediately (most options here never
// do, but the signature is kept uniform for consistency and future growth).
type EngineOption func(*engineConfig) error

type engineConfig struct {
	logWriter  io.Writer
	logLevel   zerolog.Level
	registerer prometheus.Registerer
	tracer     trace.Tracer
}

func defaultEngineConfig() *engineConfig {
	return &engineConfig{logLevel: zerolog.InfoLevel}
}

// WithLogOutput sets the writer the engine's component loggers write to.
//
// Default: os.Stderr.
func WithLogOutput(w io.Writer) EngineOption {
	return func(c *engineConfig) error {
		c.logWriter = w
		return nil
	}
}

// WithLogLevel sets the minimum level the engine's component loggers emit.
//
// Default: zerolog.InfoLevel.
func WithLogLevel(level zerolog.Level) EngineOption {
	return func(c *engineConfig) error {
		c.logLevel = level
		return nil
	}
}

// WithMetrics enables Prometheus instrumentation, registering the engine's
// gauges and counters (observe.Metrics) against reg.
//
// Default: disabled (nil Metrics; no registration performed).
//
// Example:
//
//	eng, err := etl.New(root, etl.WithMetrics(prometheus.DefaultRegisterer))
func WithMetrics(reg prometheus.Registerer) EngineOption {
	return func(c *engineConfig) error {
		c.registerer = reg
		return nil
	}
}

// WithTracer enables OpenTelemetry spans around each node worker's per-batch
// processing.
//
// Default: nil; no spans are started, so tracing costs nothing when not
// configured.
func WithTracer(tracer trace.Tracer) EngineOption {
	return func(c *engineConfig) error {
		c.tracer = tracer
		return nil
	}
}

// RunOptions configures one Engine.Run call.
type RunOptions struct {
	// Workers is the replica count assigned to every segment eligible for
	// replication (every segment with no main-process node and no Extractor).
	//
	// Default: 1.
	Workers int
	// RaiseException controls whether Run returns an *ETLExecutionError when
	// one or more nodes failed.
	//
	// Default: true.
	RaiseException bool
	// RaiseExceptionIfInterrupted controls whether Run returns an
	// *InterruptedETL when a termination signal stopped the run and no node
	// failed.
	//
	// Default: true.
	RaiseExceptionIfInterrupted bool
	// MonitorPerformance starts the Timings observer.
	//
	// Default: false.
	MonitorPerformance bool
	// ShowProgress starts the Progress observer.
	//
	// Default: true.
	ShowProgress bool
}

// DefaultRunOptions returns cupyd's ETL.run() defaults translated verbatim:
// a single worker, exceptions raised both on node failure and on
// interruption, progress shown, performance monitoring off.
func DefaultRunOptions() RunOptions {
	return RunOptions{
		Workers:                     1,
		RaiseException:              true,
		RaiseExceptionIfInterrupted: true,
		MonitorPerformance:          false,
		ShowProgress:                true,
	}
}

func (o RunOptions) withDefaults() RunOptions {
	if o.Workers < 1 {
		o.Workers = 1
	}
	return o
}
