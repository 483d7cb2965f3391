// Package applog provides the zerolog-backed Logger implementation used
// across the TimeLocker core. Every subsystem constructor accepts a
// small Logger interface (Debug/Info/Warn/Error); this package supplies
// the concrete implementation, mirroring the component-scoped logger
// pattern in cuemby-warren/pkg/log.
package applog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level mirrors the four levels TimeLocker components log at.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls how a Logger renders output.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Logger is the minimal logging surface every TimeLocker component
// depends on (kept from the wider pack's resticlib.Logger interface).
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// zerologLogger adapts a zerolog.Logger to the Logger interface.
type zerologLogger struct {
	component string
	z         zerolog.Logger
}

// New builds a Logger scoped to component, configured per cfg.
func New(component string, cfg Config) Logger {
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	var base zerolog.Logger
	if cfg.JSONOutput {
		base = zerolog.New(output).With().Timestamp().Logger()
	} else {
		base = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}

	return &zerologLogger{
		component: component,
		z:         base.With().Str("component", component).Logger(),
	}
}

func parseLevel(l Level) zerolog.Level {
	switch l {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	case InfoLevel, "":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *zerologLogger) Debug(msg string, args ...interface{}) {
	l.z.Debug().Msgf(msg, args...)
}

func (l *zerologLogger) Info(msg string, args ...interface{}) {
	l.z.Info().Msgf(msg, args...)
}

func (l *zerologLogger) Warn(msg string, args ...interface{}) {
	l.z.Warn().Msgf(msg, args...)
}

func (l *zerologLogger) Error(msg string, args ...interface{}) {
	l.z.Error().Msgf(msg, args...)
}

// Discard is a Logger that drops everything; used where callers pass no
// logger at all.
var Discard Logger = discardLogger{}

type discardLogger struct{}

func (discardLogger) Debug(string, ...interface{}) {}
func (discardLogger) Info(string, ...interface{})  {}
func (discardLogger) Warn(string, ...interface{})  {}
func (discardLogger) Error(string, ...interface{}) {}
