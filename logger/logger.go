// Package logger is the structured logger shared by the service, the
// orchestrator and the HTTP adapter.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger.
type Logger struct {
	zl zerolog.Logger
}

// New builds a logger writing to output ("stdout", "stderr" or a file path)
// as json or console text.
func New(level, format, output string) (*Logger, error) {
	var w io.Writer
	switch output {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return nil, fmt.Errorf("open log output %s: %w", output, err)
		}
		w = f
	}
	return FromWriter(w, level, format), nil
}

// FromWriter builds a logger on an arbitrary writer.
func FromWriter(w io.Writer, level, format string) *Logger {
	if strings.EqualFold(format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	zl := zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.zl.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.zl.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }

// Component returns a child logger tagged with the component name.
func (l *Logger) Component(name string) *Logger {
	return &Logger{zl: l.zl.With().Str("component", name).Logger()}
}

// =============================================================================
// GLOBAL
// =============================================================================

var global *Logger

// Init installs the process-wide logger.
func Init(level, format, output string) error {
	l, err := New(level, format, output)
	if err != nil {
		return err
	}
	global = l
	return nil
}

// Get returns the process-wide logger, defaulting to json at info on stdout.
func Get() *Logger {
	if global == nil {
		global = FromWriter(os.Stdout, "info", "json")
	}
	return global
}
