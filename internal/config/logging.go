package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents logging verbosity levels.
type LogLevel int

// Log level constants.
const (
	LogLevelOff LogLevel = iota
	LogLevelError
	LogLevelDebug
)

// Log output formats.
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

// LogWriter is the logging surface components depend on.
type LogWriter interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

// ParseLogLevel parses a log level string.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none":
		return LogLevelOff
	case "error":
		return LogLevelError
	case "debug":
		return LogLevelDebug
	default:
		return LogLevelError
	}
}

// String returns the string representation of a log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelOff:
		return "off"
	case LogLevelError:
		return "error"
	case LogLevelDebug:
		return "debug"
	default:
		return "error"
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LogLevelOff:
		return zerolog.Disabled
	case LogLevelDebug:
		return zerolog.DebugLevel
	default:
		return zerolog.ErrorLevel
	}
}

// Logger writes structured log lines through zerolog.
type Logger struct {
	mu    sync.Mutex
	level LogLevel
	file  *os.File
	zl    zerolog.Logger
}

// NewLogger creates a logger appending JSON lines to filePath.
// An empty path or LogLevelOff yields a logger that writes nothing.
func NewLogger(level LogLevel, filePath string) (*Logger, error) {
	logger := &Logger{level: level, zl: zerolog.Nop()}

	if level == LogLevelOff || filePath == "" {
		return logger, nil
	}

	filePath, err := ExpandHome(filePath)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0o750); err != nil {
		return nil, err
	}

	// #nosec G304 -- log file path is from validated config
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	logger.file = f
	logger.zl = zerolog.New(f).With().Timestamp().Logger().Level(level.zerolog())

	return logger, nil
}

// NewWriterLogger creates a logger on an arbitrary writer. The console format
// renders human-readable lines without color.
func NewWriterLogger(level LogLevel, w io.Writer, format string) *Logger {
	out := w
	if format == LogFormatConsole {
		out = zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: time.RFC3339}
	}
	return &Logger{
		level: level,
		zl:    zerolog.New(out).With().Timestamp().Logger().Level(level.zerolog()),
	}
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		l.zl = zerolog.Nop()
		return err
	}
	return nil
}

// SetLevel changes the log level.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	l.zl = l.zl.Level(level.zerolog())
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...any) {
	l.log(LogLevelDebug, format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...any) {
	l.log(LogLevelError, format, args...)
}

// Component returns a LogWriter tagging every line with a component field.
func (l *Logger) Component(name string) LogWriter {
	return &componentLogger{parent: l, name: name}
}

// Writer returns an io.Writer that writes to the logger at the specified level.
func (l *Logger) Writer(level LogLevel) io.Writer {
	return &logWriter{logger: l, level: level}
}

func (l *Logger) log(level LogLevel, format string, args ...any) {
	l.emit(level, "", format, args...)
}

func (l *Logger) emit(level LogLevel, component, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.level == LogLevelOff || level > l.level {
		return
	}

	var ev *zerolog.Event
	if level == LogLevelDebug {
		ev = l.zl.Debug()
	} else {
		ev = l.zl.Error()
	}
	if component != "" {
		ev = ev.Str("component", component)
	}
	ev.Msg(fmt.Sprintf(format, args...))
}

type componentLogger struct {
	parent *Logger
	name   string
}

func (c *componentLogger) Debug(format string, args ...any) {
	c.parent.emit(LogLevelDebug, c.name, format, args...)
}

func (c *componentLogger) Error(format string, args ...any) {
	c.parent.emit(LogLevelError, c.name, format, args...)
}

// logWriter implements io.Writer for the logger.
type logWriter struct {
	logger *Logger
	level  LogLevel
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	w.logger.log(w.level, "%s", strings.TrimSpace(string(p)))
	return len(p), nil
}

// NullLogger returns a logger that discards all output.
func NullLogger() *Logger {
	return &Logger{level: LogLevelOff, zl: zerolog.Nop()}
}
