// Package logging is the structured logger used across duty. It is a thin layer
// over zerolog: one process-wide logger plus per-subsystem "domain" children that
// carry a dom field, e.g. dom=server or dom=client.
package logging

import (
	"io"
	"os"
	"strings"
	"sync/atomic"

	pkgerr "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

type Logger = zerolog.Logger
type Level = zerolog.Level
type Event = zerolog.Event

const (
	LevelTrace = zerolog.TraceLevel
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
	LevelNone  = zerolog.Disabled
)

const DomainFieldName = "dom"

var root atomic.Pointer[Logger]

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	SetOutput(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"})
}

// SetOutput replaces the destination of every logger created afterwards.
func SetOutput(w io.Writer) {
	l := zerolog.New(w).With().Timestamp().Logger()
	root.Store(&l)
}

// SetLevel sets the global level.
func SetLevel(level Level) {
	zerolog.SetGlobalLevel(level)
}

// ParseLevel accepts zerolog level names ("debug", "info", ...). Empty means info.
func ParseLevel(s string) (Level, error) {
	if s == "" {
		return LevelInfo, nil
	}
	return zerolog.ParseLevel(strings.ToLower(s))
}

func Default() *Logger { return root.Load() }

// NewDomain returns a child logger tagged with the given domain.
func NewDomain(name string) *Logger {
	l := root.Load().With().Str(DomainFieldName, name).Logger()
	return &l
}

func Debug() *Event { return Default().Debug() }
func Info() *Event  { return Default().Info() }
func Warn() *Event  { return Default().Warn() }
func Error() *Event { return Default().Error() }

// Err starts an error-level event with err attached (info level if err is nil).
func Err(err error) *Event { return Default().Err(err) }

// ErrStack is like Err but records the stack trace of err.
func ErrStack(err error) *Event {
	if err == nil {
		return Default().Info()
	}
	return Default().Error().Stack().Err(pkgerr.WithStack(err))
}
