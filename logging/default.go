package logging

import (
	"context"
	"io"
	"maps"
	"os"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// DefaultLogger is a logrus-backed logger.
// Debug/Info -> stdout
// Warn/Error/Fatal -> stderr
// SetLevel may be called while other goroutines log.
type DefaultLogger struct {
	stdout *logrus.Logger
	stderr *logrus.Logger
	level  atomic.Int32
	fields Fields
}

// NewDefaultLogger creates a new default logger with colored output when attached to a terminal
func NewDefaultLogger() *DefaultLogger {
	return NewDefaultLoggerWithOutput(os.Stdout, os.Stderr)
}

// NewDefaultLoggerWithOutput creates a default logger writing to the given sinks.
func NewDefaultLoggerWithOutput(stdout, stderr io.Writer) *DefaultLogger {
	d := &DefaultLogger{
		stdout: newLogrus(stdout),
		stderr: newLogrus(stderr),
		fields: make(Fields),
	}
	d.level.Store(int32(InfoLevel))
	return d
}

func newLogrus(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	// filtering happens in DefaultLogger.log
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

func (d *DefaultLogger) entry(target *logrus.Logger, err error, fields []Fields) *logrus.Entry {
	allFields := make(logrus.Fields, len(d.fields))
	maps.Copy(allFields, logrus.Fields(d.fields))
	for _, f := range fields {
		maps.Copy(allFields, logrus.Fields(f))
	}

	e := logrus.NewEntry(target).WithFields(allFields)
	if err != nil {
		e = e.WithError(err)
	}
	return e
}

func (d *DefaultLogger) log(level Level, err error, msg string, fields ...Fields) {
	if level < Level(d.level.Load()) {
		return
	}

	switch level {
	case DebugLevel:
		d.entry(d.stdout, err, fields).Debug(msg)
	case InfoLevel:
		d.entry(d.stdout, err, fields).Info(msg)
	case WarnLevel:
		d.entry(d.stderr, err, fields).Warn(msg)
	case ErrorLevel:
		d.entry(d.stderr, err, fields).Error(msg)
	case FatalLevel:
		d.entry(d.stderr, err, fields).Fatal(msg)
	}
}

func (d *DefaultLogger) Debug(msg string, fields ...Fields) {
	d.log(DebugLevel, nil, msg, fields...)
}

func (d *DefaultLogger) Info(msg string, fields ...Fields) {
	d.log(InfoLevel, nil, msg, fields...)
}

func (d *DefaultLogger) Warn(msg string, fields ...Fields) {
	d.log(WarnLevel, nil, msg, fields...)
}

func (d *DefaultLogger) Error(err error, msg string, fields ...Fields) {
	d.log(ErrorLevel, err, msg, fields...)
}

func (d *DefaultLogger) Fatal(err error, msg string, fields ...Fields) {
	d.log(FatalLevel, err, msg, fields...)
}

func (d *DefaultLogger) WithFields(fields Fields) Logger {
	newFields := make(Fields)
	maps.Copy(newFields, d.fields)
	maps.Copy(newFields, fields)

	child := &DefaultLogger{
		stdout: d.stdout,
		stderr: d.stderr,
		fields: newFields,
	}
	child.level.Store(d.level.Load())
	return child
}

func (d *DefaultLogger) WithContext(ctx context.Context) Logger {
	if fields, ok := fieldsFromContext(ctx); ok {
		return d.WithFields(fields)
	}
	return d
}

func (d *DefaultLogger) SetLevel(level Level) {
	d.level.Store(int32(level))
}

// NoOpLogger is a logger that does nothing, used in tests and when logging is disabled
type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, fields ...Fields)            {}
func (n *NoOpLogger) Info(msg string, fields ...Fields)             {}
func (n *NoOpLogger) Warn(msg string, fields ...Fields)             {}
func (n *NoOpLogger) Error(err error, msg string, fields ...Fields) {}
func (n *NoOpLogger) Fatal(err error, msg string, fields ...Fields) {}
func (n *NoOpLogger) WithFields(fields Fields) Logger               { return n }
func (n *NoOpLogger) WithContext(ctx context.Context) Logger        { return n }
func (n *NoOpLogger) SetLevel(level Level)                          {}
