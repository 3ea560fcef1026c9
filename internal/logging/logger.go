package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"squadfire/battlecore/internal/config"
)

// Level orders log verbosity. It is zerolog's level so callers never convert.
type Level = zerolog.Level

const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
	FatalLevel = zerolog.FatalLevel
)

// ParseLevel accepts the zerolog names plus "warning"; empty input means info.
func ParseLevel(raw string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	switch name {
	case "":
		return InfoLevel, nil
	case "warning":
		name = "warn"
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil || level == zerolog.NoLevel {
		return InfoLevel, fmt.Errorf("unknown log level %q", raw)
	}
	return level, nil
}

// Field is one structured attribute.
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field { return Field{Key: key, Value: value} }
func Strings(key string, values []string) Field { return Field{Key: key, Value: values} }
func Int(key string, value int) Field { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }
func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }
func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value} }

// Error attaches err under the "error" key.
func Error(err error) Field { return Field{Key: "error", Value: err} }

// fieldSink is the subset shared by zerolog events and contexts.
type fieldSink[T any] interface {
	Str(key, val string) T
	Strs(key string, vals []string) T
	Int(key string, i int) T
	Int64(key string, i int64) T
	Float64(key string, f float64) T
	Bool(key string, b bool) T
	Dur(key string, d time.Duration) T
	AnErr(key string, err error) T
	Stringer(key string, val fmt.Stringer) T
	Interface(key string, i any) T
}

// attach writes the fields with their typed zerolog encoders.
func attach[T fieldSink[T]](sink T, fields []Field) T {
	for _, f := range fields {
		switch v := f.Value.(type) {
		case string:
			sink = sink.Str(f.Key, v)
		case []string:
			sink = sink.Strs(f.Key, v)
		case int:
			sink = sink.Int(f.Key, v)
		case int64:
			sink = sink.Int64(f.Key, v)
		case float64:
			sink = sink.Float64(f.Key, v)
		case bool:
			sink = sink.Bool(f.Key, v)
		case time.Duration:
			sink = sink.Dur(f.Key, v)
		case error:
			sink = sink.AnErr(f.Key, v)
		case fmt.Stringer:
			sink = sink.Stringer(f.Key, v)
		default:
			sink = sink.Interface(f.Key, v)
		}
	}
	return sink
}

// Logger writes JSON lines through zerolog and can flush its file sink.
type Logger struct {
	zl    zerolog.Logger
	flush func() error
}

var (
	globalMu     sync.RWMutex
	globalLogger = NewTestLogger()
)

// New builds the process logger from configuration: stdout, plus a rotating file when a
// path is set. It becomes the global logger.
func New(cfg config.LoggingConfig) (*Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	var (
		out   io.Writer = os.Stdout
		flush           = func() error { return nil }
	)
	if strings.TrimSpace(cfg.Path) != "" {
		file, err := openRotating(cfg)
		if err != nil {
			return nil, err
		}
		out = zerolog.MultiLevelWriter(os.Stdout, file)
		flush = file.Sync
	}
	logger := NewWithWriter(out, level)
	logger.flush = flush
	ReplaceGlobals(logger)
	return logger, nil
}

// NewWithWriter builds a logger over w.
func NewWithWriter(w io.Writer, level Level) *Logger {
	zl := zerolog.New(w).Level(level).With().Timestamp().Str("service", "battlecore").Logger()
	return &Logger{zl: zl, flush: func() error { return nil }}
}

// NewTestLogger discards everything.
func NewTestLogger() *Logger {
	return &Logger{zl: zerolog.Nop(), flush: func() error { return nil }}
}

// ReplaceGlobals swaps the logger returned by L. Nil is ignored.
func ReplaceGlobals(logger *Logger) {
	if logger == nil {
		return
	}
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// L returns the global logger.
func L() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// With returns a child logger carrying fields on every line.
func (l *Logger) With(fields ...Field) *Logger {
	if l == nil {
		l = L()
	}
	return &Logger{zl: attach(l.zl.With(), fields).Logger(), flush: l.flush}
}

// Zerolog exposes the underlying logger for libraries that take one.
func (l *Logger) Zerolog() zerolog.Logger {
	if l == nil {
		return L().zl
	}
	return l.zl
}

// Sync flushes the file sink, if any.
func (l *Logger) Sync() error {
	if l == nil || l.flush == nil {
		return nil
	}
	return l.flush()
}

func (l *Logger) Debug(message string, fields ...Field) { l.emit(DebugLevel, message, fields) }
func (l *Logger) Info(message string, fields ...Field) { l.emit(InfoLevel, message, fields) }
func (l *Logger) Warn(message string, fields ...Field) { l.emit(WarnLevel, message, fields) }
func (l *Logger) Error(message string, fields ...Field) { l.emit(ErrorLevel, message, fields) }

// Fatal logs, flushes and exits with status 1.
func (l *Logger) Fatal(message string, fields ...Field) {
	l.emit(FatalLevel, message, fields)
	_ = l.Sync()
	os.Exit(1)
}

func (l *Logger) emit(level Level, message string, fields []Field) {
	if l == nil {
		l = L()
	}
	//1.- WithLevel never exits or panics, Fatal handles the exit itself.
	event := l.zl.WithLevel(level)
	if event == nil {
		return
	}
	attach(event, fields).Msg(message)
}
