// Package logging routes scheduler debug output into zerolog on the host.
package logging

import (
	"io"
	"time"

	"github.com/rs/zerolog"

	"vtimer/core"
)

// New returns a console logger writing to w
func New(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// LogTrace writes one scheduler trace event as a structured log entry
func LogTrace(logger zerolog.Logger, evt core.TraceEvent) {
	e := logger.Debug()
	if evt.EventType == core.EvtArmFail || evt.EventType == core.EvtStale {
		e = logger.Warn()
	}
	e.Str("event", core.TraceName(evt.EventType)).
		Uint32("clock", evt.Clock).
		Uint32("v1", evt.Value1).
		Uint32("v2", evt.Value2).
		Msg("vtimer trace")
}

// DebugWriter adapts a logger for core.SetDebugWriter. Trace lines are
// decoded into fields; everything else is logged as a debug message.
func DebugWriter(logger zerolog.Logger) core.DebugWriter {
	return func(msg string) {
		if evt, ok := core.ParseTraceLine(msg); ok {
			LogTrace(logger, evt)
			return
		}
		logger.Debug().Msg(msg)
	}
}
