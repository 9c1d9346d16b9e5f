// Package logging provides the structured logger dinsd's store and
// transaction layers use for trace output, a thin wrapper over
// github.com/sirupsen/logrus in the same style as the teacher's own
// logging package wraps its standard logger implementation.
package logging

import (
	"github.com/sirupsen/logrus"
)

// Level is a logging verbosity level.
type Level int

const (
	Error Level = iota
	Warn
	Info
	Debug
	Trace
)

func (l Level) logrusLevel() logrus.Level {
	switch l {
	case Error:
		return logrus.ErrorLevel
	case Warn:
		return logrus.WarnLevel
	case Info:
		return logrus.InfoLevel
	case Debug:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}

// Logger is the concrete logger dinsd's internal packages log through: a
// struct wrapping one logrus entry, which keeps callers from depending on
// logrus directly.
type Logger struct {
	entry *logrus.Entry
}

// New returns a new Logger writing to stderr at Info level, the same
// default the teacher's StandardLogger ships with.
func New() *Logger {
	l := logrus.New()
	l.SetLevel(logrus.InfoLevel)
	return &Logger{entry: logrus.NewEntry(l)}
}

// SetLevel adjusts the minimum level logged.
func (l *Logger) SetLevel(level Level) {
	l.entry.Logger.SetLevel(level.logrusLevel())
}

// WithField returns a derived Logger with one structured field attached,
// used throughout store and txn to tag log lines with the relation name,
// client id, or frame depth involved.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// IsTraceEnabled reports whether the logger's current level would actually
// emit a Trace call, so callers can skip building an expensive trace
// payload (e.g. rendering a whole relation) when nothing reads it.
func (l *Logger) IsTraceEnabled() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.TraceLevel)
}

func (l *Logger) Debug(msg string) { l.entry.Debug(msg) }
func (l *Logger) Trace(msg string) { l.entry.Trace(msg) }
func (l *Logger) Info(msg string)  { l.entry.Info(msg) }
func (l *Logger) Warn(msg string)  { l.entry.Warn(msg) }
func (l *Logger) Error(msg string) { l.entry.Error(msg) }

// NoOp returns a Logger that discards everything, for tests that don't
// want trace noise.
func NoOp() *Logger {
	l := logrus.New()
	l.SetOutput(noopWriter{})
	return &Logger{entry: logrus.NewEntry(l)}
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
