// Package observe holds the engine's own ambient stack: structured
// per-component logging, progress/timings aggregation, and Prometheus
// metrics. None of it is on the path of user node logic — nodes never see a
// Logger unless the engine hands them one explicitly.
package observe

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger tagged with a component name, mirroring the
// WithComponent pattern used throughout kbukum-gokit's logger package. The
// engine creates one Logger per component (engine, interrupt, progress,
// timings, connector) rather than passing a single shared logger around.
type Logger struct {
	z zerolog.Logger
}

// NewLogger builds the root logger every component logger derives from. A
// nil writer defaults to os.Stderr; level defaults to zerolog.InfoLevel when
// given zerolog.NoLevel.
func NewLogger(w io.Writer, level zerolog.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	z := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return &Logger{z: z}
}

// WithComponent returns a derived Logger tagging every record with
// component=name (see WithRunID for the run_id tag).
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{z: l.z.With().Str("component", name).Logger()}
}

// WithRunID returns a derived Logger tagging every record with the given run
// identifier (see etl.Engine.Run's google/uuid-based run ID).
func (l *Logger) WithRunID(runID string) *Logger {
	if runID == "" {
		return l
	}
	return &Logger{z: l.z.With().Str("run_id", runID).Logger()}
}

func (l *Logger) Debug(msg string, kv ...any) { l.log(l.z.Debug(), msg, kv) }
func (l *Logger) Info(msg string, kv ...any)  { l.log(l.z.Info(), msg, kv) }
func (l *Logger) Warn(msg string, kv ...any)   { l.log(l.z.Warn(), msg, kv) }
func (l *Logger) Error(msg string, err error, kv ...any) {
	ev := l.z.Error()
	if err != nil {
		ev = ev.Err(err)
	}
	l.log(ev, msg, kv)
}

func (l *Logger) log(ev *zerolog.Event, msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		ev = ev.Interface(key, kv[i+1])
	}
	ev.Msg(msg)
}

// Elapsed formats a duration the way the engine's final summary line does,
// grounded on cupyd's utils.format_seconds.
func Elapsed(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
