package logger

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// Sink is a printf-style diagnostic function supplied by a host application.
type Sink func(format string, args ...any)

// sinkLogger renders structured calls into a single formatted line per call
type sinkLogger struct {
	sink   Sink
	module string
	level  LogLevel
	fields []Field
}

// FromSink adapts a Sink to Logger. Messages below level are dropped. A nil
// sink yields a no-op logger.
func FromSink(sink Sink, level LogLevel) Logger {
	if sink == nil {
		return NewNop()
	}
	if level == "" {
		level = LogLevelInfo
	}
	return &sinkLogger{sink: sink, level: level}
}

func (s *sinkLogger) Module(name string) Logger {
	module := name
	if s.module != "" {
		module = s.module + "." + name
	}
	return &sinkLogger{sink: s.sink, module: module, level: s.level, fields: slices.Clone(s.fields)}
}

func (s *sinkLogger) Trace(msg string, fields ...Field) { s.Log(LogLevelTrace, msg, fields...) }
func (s *sinkLogger) Debug(msg string, fields ...Field) { s.Log(LogLevelDebug, msg, fields...) }
func (s *sinkLogger) Info(msg string, fields ...Field)  { s.Log(LogLevelInfo, msg, fields...) }
func (s *sinkLogger) Warn(msg string, fields ...Field)  { s.Log(LogLevelWarn, msg, fields...) }
func (s *sinkLogger) Error(msg string, fields ...Field) { s.Log(LogLevelError, msg, fields...) }

func (s *sinkLogger) With(fields ...Field) Logger {
	return &sinkLogger{sink: s.sink, module: s.module, level: s.level, fields: slices.Concat(s.fields, fields)}
}

func (s *sinkLogger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return s
	}
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok && traceID != "" {
		return s.With(String(traceIDKey, traceID))
	}
	return s
}

func (s *sinkLogger) Log(level LogLevel, msg string, fields ...Field) {
	if parseLogLevel(string(level)) < parseLogLevel(string(s.level)) {
		return
	}

	var b strings.Builder
	b.WriteString(strings.ToUpper(string(level)))
	b.WriteByte(' ')
	if s.module != "" {
		b.WriteByte('[')
		b.WriteString(s.module)
		b.WriteString("] ")
	}
	b.WriteString(msg)
	for _, f := range slices.Concat(s.fields, fields) {
		fmt.Fprintf(&b, " %s=%v", f.Key, f.Value)
	}

	// The rendered line is passed as an argument so '%' inside values is not
	// interpreted by the host's formatter.
	s.sink("%s", b.String())
}

func (s *sinkLogger) Flush() error { return nil }

type nopLogger struct{}

// NewNop returns a Logger that discards everything.
func NewNop() Logger { return nopLogger{} }

func (nopLogger) Module(string) Logger               { return nopLogger{} }
func (nopLogger) Trace(string, ...Field)             {}
func (nopLogger) Debug(string, ...Field)             {}
func (nopLogger) Info(string, ...Field)              {}
func (nopLogger) Warn(string, ...Field)              {}
func (nopLogger) Error(string, ...Field)             {}
func (nopLogger) With(...Field) Logger               { return nopLogger{} }
func (nopLogger) WithContext(context.Context) Logger { return nopLogger{} }
func (nopLogger) Log(LogLevel, string, ...Field)     {}
func (nopLogger) Flush() error                       { return nil }

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return NewNop()
	}
	return l
}
