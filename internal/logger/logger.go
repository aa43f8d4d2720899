package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Well-known output destinations, anything else is treated as a file path.
const (
	OutputStdout = "stdout"
	OutputStderr = "stderr"
)

// logFilePermissions restricts log files to the owner.
const logFilePermissions = 0o600

var (
	// errUnknownFormat is returned for formats other than console and json.
	errUnknownFormat = errors.New("unknown log format")
	// errUnknownLevel is returned when a level string cannot be parsed.
	errUnknownLevel = errors.New("unknown log level")
)

// Options describes how a logger is built.
type Options struct {
	// Level is the minimum level ("debug", "info", "warn", "error").
	Level string
	// Format is either "console" or "json".
	Format string
	// Output is "stdout", "stderr" or a file path.
	Output string
	// Name is attached as the logger name.
	Name string
}

// New creates a *zap.SugaredLogger according to opts.
// The returned close function syncs the logger and closes the log file, if any.
func New(opts Options) (*zap.SugaredLogger, func() error, error) {
	level := zapcore.InfoLevel

	if opts.Level != "" {
		parsed, ok := ParseLogLevel(opts.Level)
		if !ok {
			return nil, nil, fmt.Errorf("parse log level %q: %w", opts.Level, errUnknownLevel)
		}

		level = parsed
	}

	encoder, err := newEncoder(opts.Format)
	if err != nil {
		return nil, nil, err
	}

	writer, closeWriter, err := openOutput(opts.Output)
	if err != nil {
		return nil, nil, err
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(writer), zap.NewAtomicLevelAt(level))
	sugared := zap.New(core, zap.AddCaller()).Sugar()

	if opts.Name != "" {
		sugared = sugared.Named(opts.Name)
	}

	closeFn := func() error {
		//nolint:errcheck // Sync fails on stdout/stderr for terminals, nothing to do about it.
		_ = sugared.Sync()

		return closeWriter()
	}

	return sugared, closeFn, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// newEncoder picks the zap encoder for the requested format.
//
//nolint:ireturn // zapcore.Encoder is the type zap works with.
func newEncoder(format string) (zapcore.Encoder, error) {
	//nolint:exhaustruct // I'm okay with default encoder configuration values.
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:          "time",
		MessageKey:       "message",
		LevelKey:         "level",
		NameKey:          "logger",
		CallerKey:        "caller",
		StacktraceKey:    "stacktrace",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeTime:       zapcore.ISO8601TimeEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		ConsoleSeparator: ", ",
	}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatConsole:
		return zapcore.NewConsoleEncoder(encoderConfig), nil
	case FormatJSON:
		return zapcore.NewJSONEncoder(encoderConfig), nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownFormat, format)
	}
}

// openOutput resolves the destination into a writer and its close function.
func openOutput(output string) (io.Writer, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(strings.TrimSpace(output)) {
	case "", OutputStdout:
		return os.Stdout, noop, nil
	case OutputStderr:
		return os.Stderr, noop, nil
	}

	file, err := os.OpenFile(filepath.Clean(output), os.O_CREATE|os.O_APPEND|os.O_WRONLY, logFilePermissions)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	return file, file.Close, nil
}

// ParseLogLevel converts string input to zap log level.
func ParseLogLevel(s string) (zapcore.Level, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "debug":
		return zapcore.DebugLevel, true
	case "info":
		return zapcore.InfoLevel, true
	case "warn", "warning":
		return zapcore.WarnLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	case "dpanic":
		return zapcore.DPanicLevel, true
	case "panic":
		return zapcore.PanicLevel, true
	case "fatal", "critical":
		return zapcore.FatalLevel, true
	default:
		return zapcore.InfoLevel, false
	}
}

// DebugKV writes a message and key-value pairs
// at the debug level using the logger from the context.
func DebugKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Debugw(message, kvs...)
}

// Info writes an information level message using the logger from the context.
func Info(ctx context.Context, args ...any) {
	FromContext(ctx).Info(args...)
}

// InfoKV writes a message and key-value pairs
// at the information level using the logger from the context.
func InfoKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Infow(message, kvs...)
}

// WarnKV writes a message and key-value pairs
// at the warning level using the logger from the context.
func WarnKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Warnw(message, kvs...)
}

// ErrorKV writes a message and key-value pairs
// at the error level using the logger from the context.
func ErrorKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Errorw(message, kvs...)
}
