package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/GriffinCanCode/triad/internal/infrastructure/config"
)

// TaskKey is the field carrying the name of the task a line came from
const TaskKey = "task"

// Logger wraps zap.Logger with a helper for per-task child loggers.
type Logger struct {
	*zap.Logger
}

// Config defines logger configuration.
type Config struct {
	Level       string // "debug", "info", "warn", "error"
	Development bool
	OutputPaths []string
}

// FromConfig maps the application logging section onto a logger Config
func FromConfig(c config.LogConfig) Config {
	cfg := Config{Level: c.Level, Development: c.Development}
	if c.Output != "" {
		cfg.OutputPaths = []string{c.Output}
	}
	return cfg
}

// New builds a JSON logger, or a colored console logger in development.
// Stack traces are attached to errors only in development.
func New(cfg Config) (*Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	paths := cfg.OutputPaths
	if len(paths) == 0 {
		paths = []string{"stdout"}
	}
	sink, closeSink, err := zap.Open(paths...)
	if err != nil {
		return nil, fmt.Errorf("open log output: %w", err)
	}
	errSink, _, err := zap.Open("stderr")
	if err != nil {
		closeSink()
		return nil, fmt.Errorf("open log error output: %w", err)
	}

	opts := []zap.Option{zap.AddCaller(), zap.ErrorOutput(errSink)}
	if cfg.Development {
		opts = append(opts, zap.Development(), zap.AddStacktrace(zapcore.ErrorLevel))
	}

	core := zapcore.NewCore(newEncoder(cfg.Development), sink, zap.NewAtomicLevelAt(level))
	return &Logger{Logger: zap.New(core, opts...)}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Task returns the named child logger a task writes through, e.g. "receiver".
func (l *Logger) Task(name string) *zap.Logger {
	return l.Named(name)
}

// Flush syncs buffered entries. Sync errors on stdout/stderr are ignored
// since some platforms report EINVAL for terminals.
func (l *Logger) Flush() {
	_ = l.Sync()
}

func newEncoder(development bool) zapcore.Encoder {
	if development {
		enc := zap.NewDevelopmentEncoderConfig()
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc.EncodeDuration = zapcore.StringDurationEncoder
		return zapcore.NewConsoleEncoder(enc)
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.MessageKey = "message"
	enc.NameKey = TaskKey
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.StringDurationEncoder
	return zapcore.NewJSONEncoder(enc)
}
