package log

import (
	"context"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"moul.io/zapfilter"
)

type (
	Level  = zapcore.Level
	Field  = zap.Field
	Option = zap.Option
)

const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
	FatalLevel = zapcore.FatalLevel
)

var (
	WithCaller    = zap.WithCaller
	AddCallerSkip = zap.AddCallerSkip

	String   = zap.String
	Int      = zap.Int
	Int32    = zap.Int32
	Uint     = zap.Uint
	Uint32   = zap.Uint32
	Uint64   = zap.Uint64
	Float    = zap.Float64
	Bool     = zap.Bool
	Any      = zap.Any
	Time     = zap.Time
	Duration = zap.Duration
	Strings  = zap.Strings
)

func ErrorField(err error) Field {
	return zap.Error(err)
}

type Logger struct {
	l     *zap.Logger
	level zap.AtomicLevel
}

type logConfig struct {
	filterRules string
}

// New creates a json logger writing to w.
func New(w io.Writer, level Level, opts ...Option) *Logger {
	return newLogger(w, level, zap.NewProductionEncoderConfig(), false, "", opts...)
}

// DevLogger creates a console logger writing to w.
func DevLogger(w io.Writer, level Level, opts ...Option) *Logger {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return newLogger(w, level, cfg, true, "", opts...)
}

// NewWithFilter creates a logger whose output is restricted by zapfilter rules,
// for example "debug:race.* info,warn,error:*".
//
//nolint:whitespace // can't make both editor and linter happy
func NewWithFilter(
	w io.Writer, level Level, console bool, rules string, opts ...Option,
) *Logger {
	cfg := zap.NewProductionEncoderConfig()
	if console {
		cfg = zap.NewDevelopmentEncoderConfig()
	}
	return newLogger(w, level, cfg, console, rules, opts...)
}

//nolint:whitespace // can't make both editor and linter happy
func newLogger(
	w io.Writer,
	level Level,
	encCfg zapcore.EncoderConfig,
	console bool,
	rules string,
	opts ...Option,
) *Logger {
	if w == nil {
		w = os.Stderr
	}
	encCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	var enc zapcore.Encoder
	if console {
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}
	al := zap.NewAtomicLevelAt(level)
	core := zapcore.NewCore(enc, zapcore.AddSync(w), al)
	lc := logConfig{filterRules: rules}
	var filterErr error
	if lc.filterRules != "" {
		var filter zapfilter.FilterFunc
		if filter, filterErr = zapfilter.ParseRules(lc.filterRules); filterErr == nil {
			core = zapfilter.NewFilteringCore(core, filter)
		}
	}
	ret := &Logger{l: zap.New(core, opts...), level: al}
	if filterErr != nil {
		// no filter is applied, everything above level is logged
		ret.Error("invalid log filter",
			String("rules", lc.filterRules), ErrorField(filterErr))
	}
	return ret
}

var std = New(os.Stderr, InfoLevel)

func Default() *Logger {
	return std
}

// ResetDefault replaces the default logger. Not safe for concurrent use.
func ResetDefault(l *Logger) {
	std = l
}

func ParseLevel(s string) (Level, error) {
	return zapcore.ParseLevel(s)
}

func (l *Logger) Named(name string) *Logger {
	return &Logger{l: l.l.Named(name), level: l.level}
}

func (l *Logger) WithOptions(opts ...Option) *Logger {
	return &Logger{l: l.l.WithOptions(opts...), level: l.level}
}

func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{l: l.l.With(fields...), level: l.level}
}

func (l *Logger) SetLevel(level Level) {
	l.level.SetLevel(level)
}

func (l *Logger) Level() Level {
	return l.level.Level()
}

func (l *Logger) Debug(msg string, fields ...Field) { l.l.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.l.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.l.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.l.Error(msg, fields...) }
func (l *Logger) Fatal(msg string, fields ...Field) { l.l.Fatal(msg, fields...) }

func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.l.Sugar()
}

func (l *Logger) Zap() *zap.Logger {
	return l.l
}

func (l *Logger) Sync() error {
	return l.l.Sync()
}

// these functions use the default logger

func Debug(msg string, fields ...Field) { std.l.Debug(msg, fields...) }
func Info(msg string, fields ...Field)  { std.l.Info(msg, fields...) }
func Warn(msg string, fields ...Field)  { std.l.Warn(msg, fields...) }
func Error(msg string, fields ...Field) { std.l.Error(msg, fields...) }
func Fatal(msg string, fields ...Field) { std.l.Fatal(msg, fields...) }

func Fatalf(template string, args ...any) {
	std.l.Sugar().Fatalf(template, args...)
}

func Sync() error {
	return std.Sync()
}

type loggerKey struct{}

func AddToContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// GetFromContext returns the logger stored in ctx or the default logger.
func GetFromContext(ctx context.Context) *Logger {
	if ctx == nil {
		return std
	}
	if l, ok := ctx.Value(loggerKey{}).(*Logger); ok {
		return l
	}
	return std
}

// Elapsed is a small helper to log durations of operations.
func Elapsed(start time.Time) Field {
	return zap.Duration("elapsed", time.Since(start))
}
