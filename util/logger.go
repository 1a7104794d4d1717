// Package util provides low-level helpers shared by all other packages.
package util

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// zerologLevel maps a verbosity onto the lowest zerolog level it lets
// through.  Verbose messages are emitted at debug, debug messages at trace.
func (lv LogLevel) zerologLevel() zerolog.Level {
	switch {
	case lv <= LogQuiet:
		return zerolog.ErrorLevel
	case lv == LogNormal:
		return zerolog.InfoLevel
	case lv == LogVerbose:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// Logger writes levelled messages and structured events to stderr.
// Output is human-readable when the destination is a terminal and JSON
// lines otherwise; SetJSON overrides the choice.
//
// Configure a Logger (SetOutput, SetJSON, SetTimestamps) before sharing
// it between goroutines; logging itself is safe for concurrent use.
type Logger struct {
	level      LogLevel
	output     io.Writer
	json       bool
	timestamps bool
	fields     map[string]interface{}
	zl         zerolog.Logger
}

// NewLogger returns a Logger that prints messages at or below the given
// verbosity (0 = quiet, 1 = normal, 2 = verbose, 3 = debug).
func NewLogger(verbosity int) *Logger {
	l := &Logger{
		level:      LogLevel(verbosity),
		output:     os.Stderr,
		json:       !isTerminal(os.Stderr),
		timestamps: true,
	}
	l.rebuild()
	return l
}

// NopLogger returns a Logger that discards everything.
func NopLogger() *Logger {
	l := &Logger{level: LogQuiet, output: io.Discard, json: true}
	l.rebuild()
	l.zl = zerolog.Nop()
	return l
}

// SetTimestamps enables or disables timestamps.
func (l *Logger) SetTimestamps(on bool) { l.timestamps = on; l.rebuild() }

// SetOutput overrides the output writer (default: os.Stderr).  The
// output format follows the new writer unless SetJSON is called after.
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
	l.json = !isTerminal(w)
	l.rebuild()
}

// SetJSON forces JSON lines (true) or console formatting (false).
func (l *Logger) SetJSON(on bool) { l.json = on; l.rebuild() }

// Level returns the current log level.
func (l *Logger) Level() LogLevel { return l.level }

// With returns a child logger that adds key=value to every line.
func (l *Logger) With(key string, value interface{}) *Logger {
	c := *l
	c.fields = make(map[string]interface{}, len(l.fields)+1)
	for k, v := range l.fields {
		c.fields[k] = v
	}
	c.fields[key] = value
	c.zl = l.zl.With().Interface(key, value).Logger()
	return &c
}

// Info prints when verbosity ≥ 1.
func (l *Logger) Info(format string, args ...interface{}) {
	l.zl.Info().Msg(fmt.Sprintf(format, args...))
}

// Warn prints when verbosity ≥ 1.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.zl.Warn().Msg(fmt.Sprintf(format, args...))
}

// Verbose prints when verbosity ≥ 2.
func (l *Logger) Verbose(format string, args ...interface{}) {
	l.zl.Debug().Msg(fmt.Sprintf(format, args...))
}

// Debug prints when verbosity ≥ 3.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.zl.Trace().Msg(fmt.Sprintf(format, args...))
}

// Error always prints regardless of verbosity.
func (l *Logger) Error(format string, args ...interface{}) {
	l.zl.Error().Msg(fmt.Sprintf(format, args...))
}

// Event emits a structured event such as
// {"event":"bind_success","port":8002}.  Events print when verbosity ≥ 1.
func (l *Logger) Event(name string, fields map[string]interface{}) {
	if l.level < LogNormal {
		return
	}
	l.zl.Log().Str("event", name).Fields(fields).Send()
}

func (l *Logger) rebuild() {
	var w io.Writer = zerolog.SyncWriter(l.output)
	if !l.json {
		cw := zerolog.ConsoleWriter{
			Out:         w,
			NoColor:     !isTerminal(l.output),
			TimeFormat:  "15:04:05.000",
			FormatLevel: formatLevel,
		}
		if !l.timestamps {
			cw.PartsExclude = []string{zerolog.TimestampFieldName}
		}
		w = cw
	}

	ctx := zerolog.New(w).Level(l.level.zerologLevel()).With()
	if l.timestamps {
		ctx = ctx.Timestamp()
	}
	if len(l.fields) > 0 {
		ctx = ctx.Fields(l.fields)
	}
	l.zl = ctx.Logger()
}

// formatLevel renders console levels as short bracketed tags.
func formatLevel(i interface{}) string {
	s, _ := i.(string)
	switch s {
	case zerolog.LevelErrorValue, zerolog.LevelFatalValue, zerolog.LevelPanicValue:
		return "[ERR]"
	case zerolog.LevelWarnValue:
		return "[WRN]"
	case zerolog.LevelInfoValue:
		return "[INF]"
	case zerolog.LevelDebugValue:
		return "[VRB]"
	case zerolog.LevelTraceValue:
		return "[DBG]"
	default:
		return "[EVT]"
	}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}
