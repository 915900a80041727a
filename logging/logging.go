// Package logging emits the client's structured JSON event log.
//
// Every event carries an event name plus key/value context; sensitive
// values (passwords, tokens, authorization headers, API keys) are masked
// before they reach any sink.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Phases tag where in the client an event originated.
const (
	PhaseConnect = "ws_connect"
	PhaseMessage = "ws_message"
	PhaseAuth    = "auth_http"
)

var redactKeys = []string{"password", "token", "authorization", "api_key", "api-key"}

// Config controls the log sinks.
type Config struct {
	FilePath   string // rotating JSON log file; empty disables the file sink
	Stdout     bool   // mirror events to stdout
	Level      string // DEBUG, INFO, WARN, ERROR; defaults to INFO
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger writes structured events and owns the session trace id.
type Logger struct {
	sl *slog.Logger

	mu      sync.Mutex
	traceID string
}

// New builds a logger from the config. With no sinks configured the
// logger discards everything, which keeps tests quiet.
func New(cfg Config) *Logger {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: redactAttr,
	}

	var handlers []slog.Handler
	if cfg.FilePath != "" {
		sink := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		handlers = append(handlers, slog.NewJSONHandler(sink, opts))
	}
	if cfg.Stdout {
		handlers = append(handlers, slog.NewJSONHandler(os.Stdout, opts))
	}

	switch len(handlers) {
	case 0:
		return &Logger{sl: slog.New(slog.NewJSONHandler(io.Discard, opts))}
	case 1:
		return &Logger{sl: slog.New(handlers[0])}
	default:
		return &Logger{sl: slog.New(newMultiHandler(handlers...))}
	}
}

// NewWithWriter builds a logger writing JSON events to w. Used by tests
// and anywhere a custom sink is needed.
func NewWithWriter(w io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelDebug, ReplaceAttr: redactAttr}
	return &Logger{sl: slog.New(slog.NewJSONHandler(w, opts))}
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// redactAttr masks any attribute whose key contains a sensitive substring.
// String values longer than 8 characters keep their first and last four
// characters; everything else becomes "***".
func redactAttr(groups []string, a slog.Attr) slog.Attr {
	lower := strings.ToLower(a.Key)
	for _, key := range redactKeys {
		if strings.Contains(lower, key) {
			a.Value = slog.StringValue(maskValue(a.Value))
			return a
		}
	}
	return a
}

func maskValue(v slog.Value) string {
	if v.Kind() != slog.KindString {
		return "***"
	}
	s := v.String()
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Info emits an info-level event with the given name and fields.
func (l *Logger) Info(event string, fields ...any) {
	l.sl.Info(event, fields...)
}

// Error emits an error-level event, attaching the error message.
func (l *Logger) Error(event string, err error, fields ...any) {
	if err != nil {
		fields = append(fields, "error_message", err.Error())
	}
	l.sl.Error(event, fields...)
}

// BeginTrace starts a fresh trace and returns its id.
func (l *Logger) BeginTrace() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.traceID = uuid.NewString()
	return l.traceID
}

// TraceID returns the current trace id, or "" when no trace is active.
func (l *Logger) TraceID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.traceID
}

// EnsureTraceID returns the current trace id, starting a trace if needed.
func (l *Logger) EnsureTraceID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.traceID == "" {
		l.traceID = uuid.NewString()
	}
	return l.traceID
}

// ClearTrace ends the current trace.
func (l *Logger) ClearTrace() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.traceID = ""
}

// NewRequestID mints an id correlating one request with its log trail.
func (l *Logger) NewRequestID() string {
	return uuid.NewString()
}

// ShortTraceID abbreviates a trace id for display.
func ShortTraceID(traceID string) string {
	if len(traceID) <= 8 {
		return traceID
	}
	return traceID[:8]
}
