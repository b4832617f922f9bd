package log

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// Logger defines minimal logging interface used across the project.
type Logger interface {
	Info(msg string, kv ...interface{})
	Warn(msg string, kv ...interface{})
	Error(msg string, kv ...interface{})
	Debug(msg string, kv ...interface{})
}

// Level represents log verbosity.
type Level int

const (
	ErrorLevel Level = iota
	WarnLevel
	InfoLevel
	DebugLevel
)

// String returns canonical lower-case representation.
func (l Level) String() string {
	switch l {
	case ErrorLevel:
		return "error"
	case WarnLevel:
		return "warn"
	case InfoLevel:
		return "info"
	case DebugLevel:
		return "debug"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case ErrorLevel:
		return slog.LevelError
	case WarnLevel:
		return slog.LevelWarn
	case DebugLevel:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// ParseLevel parses a string into a Level. Accepts case-insensitive prefixes.
func ParseLevel(s string) (Level, error) {
	normalized := strings.TrimSpace(strings.ToLower(s))
	switch normalized {
	case "", "info":
		return InfoLevel, nil
	case "error", "err":
		return ErrorLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "debug", "dbg":
		return DebugLevel, nil
	default:
		return InfoLevel, errors.New("unknown log level: " + s)
	}
}

// Format selects the output encoding.
type Format string

const (
	TextFormat Format = "text"
	JSONFormat Format = "json"
)

// ParseFormat maps a config value to a Format, defaulting to text.
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), string(JSONFormat)) {
		return JSONFormat
	}
	return TextFormat
}

// SlogLogger adapts *slog.Logger to Logger. The level can be changed at
// runtime.
type SlogLogger struct {
	lvl *slog.LevelVar
	sl  *slog.Logger
}

// New creates a logger writing to w. Text output is colourised with tint
// when w is a terminal.
func New(l Level, format Format, w io.Writer) *SlogLogger {
	lvl := new(slog.LevelVar)
	lvl.Set(l.slogLevel())

	var h slog.Handler
	switch format {
	case JSONFormat:
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	default:
		h = tint.NewHandler(w, &tint.Options{
			Level:      lvl,
			TimeFormat: time.RFC3339,
			NoColor:    !isTerminal(w),
		})
	}
	return &SlogLogger{lvl: lvl, sl: slog.New(h)}
}

// NewStdout creates a logger writing to stdout.
func NewStdout(l Level, format Format) *SlogLogger {
	return New(l, format, os.Stdout)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (s *SlogLogger) Info(msg string, kv ...interface{})  { s.sl.Info(msg, kv...) }
func (s *SlogLogger) Warn(msg string, kv ...interface{})  { s.sl.Warn(msg, kv...) }
func (s *SlogLogger) Error(msg string, kv ...interface{}) { s.sl.Error(msg, kv...) }
func (s *SlogLogger) Debug(msg string, kv ...interface{}) { s.sl.Debug(msg, kv...) }

// With returns a logger that adds kv to every record.
func (s *SlogLogger) With(kv ...interface{}) *SlogLogger {
	return &SlogLogger{lvl: s.lvl, sl: s.sl.With(kv...)}
}

// SetLevel changes the logger verbosity at runtime.
func (s *SlogLogger) SetLevel(l Level) {
	s.lvl.Set(l.slogLevel())
}

// Slog exposes the underlying slog logger.
func (s *SlogLogger) Slog() *slog.Logger {
	return s.sl
}

// Nop discards everything.
type Nop struct{}

func (Nop) Info(string, ...interface{})  {}
func (Nop) Warn(string, ...interface{})  {}
func (Nop) Error(string, ...interface{}) {}
func (Nop) Debug(string, ...interface{}) {}

var (
	globalMu     sync.RWMutex
	globalLogger Logger = NewStdout(InfoLevel, TextFormat)
)

// SetGlobal sets the process-wide logger.
func SetGlobal(l Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

// Global returns the process-wide logger.
func Global() Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	return l
}
