// File: internal/observability/logger.go
package observability

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/mattn/go-isatty"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/xkilldash9x/formsurge/internal/config"
)

const timeLayout = "15:04:05.000"

var (
	globalLogger atomic.Pointer[zap.Logger]
	// level is shared by every core so it can be changed after start up.
	level = zap.NewAtomicLevelAt(zap.InfoLevel)
	once  sync.Once
)

var ansi = map[string]string{
	"red":     "\x1b[31m",
	"green":   "\x1b[32m",
	"yellow":  "\x1b[33m",
	"blue":    "\x1b[34m",
	"magenta": "\x1b[35m",
	"cyan":    "\x1b[36m",
	"white":   "\x1b[37m",
}

const ansiReset = "\x1b[0m"

// Initialize installs the process logger. Console lines go to console; with
// cfg.LogFile set, a rotating JSON copy is written there as well. Only the
// first call has any effect until ResetForTest.
func Initialize(cfg config.LoggerConfig, console zapcore.WriteSyncer) {
	once.Do(func() {
		globalLogger.Store(build(cfg, console, colorEnabled(cfg, console)))
	})
}

// InitializeLogger logs to stderr so stdout carries only progress lines and
// printed schemas.
func InitializeLogger(cfg config.LoggerConfig) {
	Initialize(cfg, stderrSyncer())
}

// ResetForTest clears the process logger. Tests only.
func ResetForTest() {
	globalLogger.Store(nil)
	level.SetLevel(zap.InfoLevel)
	once = sync.Once{}
}

// SetLevel changes the minimum level of the running logger.
func SetLevel(l zapcore.Level) { level.SetLevel(l) }

func build(cfg config.LoggerConfig, console zapcore.WriteSyncer, color bool) *zap.Logger {
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	var consoleEnc zapcore.Encoder
	if strings.EqualFold(cfg.Format, "json") {
		consoleEnc = jsonEncoder()
	} else {
		consoleEnc = consoleEncoder(cfg.Colors, color)
	}
	cores := []zapcore.Core{zapcore.NewCore(consoleEnc, console, level)}

	if cfg.LogFile != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(jsonEncoder(), zapcore.AddSync(rotating), level))
	}

	opts := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
	if cfg.AddSource {
		opts = append(opts, zap.AddCaller())
	}
	logger := zap.New(zapcore.NewTee(cores...), opts...)
	if cfg.ServiceName != "" {
		logger = logger.Named(cfg.ServiceName)
	}
	return logger
}

// colorEnabled reports whether level names should carry ANSI colors: console
// format, a terminal on the other end, and NO_COLOR unset.
func colorEnabled(cfg config.LoggerConfig, console zapcore.WriteSyncer) bool {
	if strings.EqualFold(cfg.Format, "json") || os.Getenv("NO_COLOR") != "" {
		return false
	}
	var fd uintptr
	switch w := console.(type) {
	case interface{ Fd() uintptr }:
		fd = w.Fd()
	default:
		if console != stderrSyncer() {
			return false
		}
		fd = os.Stderr.Fd()
	}
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

var (
	stderrOnce sync.Once
	stderrWS   zapcore.WriteSyncer
)

func stderrSyncer() zapcore.WriteSyncer {
	stderrOnce.Do(func() { stderrWS = zapcore.Lock(os.Stderr) })
	return stderrWS
}

func consoleEncoder(colors config.ColorConfig, color bool) zapcore.Encoder {
	ec := zap.NewDevelopmentEncoderConfig()
	ec.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
	ec.EncodeDuration = zapcore.StringDurationEncoder
	ec.EncodeLevel = levelEncoder(colors, color)
	ec.ConsoleSeparator = " "
	return zapcore.NewConsoleEncoder(ec)
}

func jsonEncoder() zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeDuration = zapcore.MillisDurationEncoder
	return zapcore.NewJSONEncoder(ec)
}

// levelEncoder writes a fixed-width upper-case level, colored per colors.
func levelEncoder(colors config.ColorConfig, color bool) zapcore.LevelEncoder {
	palette := map[zapcore.Level]string{
		zapcore.DebugLevel:  ansi[colors.Debug],
		zapcore.InfoLevel:   ansi[colors.Info],
		zapcore.WarnLevel:   ansi[colors.Warn],
		zapcore.ErrorLevel:  ansi[colors.Error],
		zapcore.DPanicLevel: ansi[colors.DPanic],
		zapcore.PanicLevel:  ansi[colors.Panic],
		zapcore.FatalLevel:  ansi[colors.Fatal],
	}
	return func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		name := fmt.Sprintf("%-5s", l.CapitalString())
		if code := palette[l]; color && code != "" {
			name = code + name + ansiReset
		}
		enc.AppendString(name)
	}
}

// GetLogger returns the process logger. Before Initialize it returns a
// warn-level stderr logger so early failures are still visible.
func GetLogger() *zap.Logger {
	if logger := globalLogger.Load(); logger != nil {
		return logger
	}
	return fallback()
}

var (
	fallbackOnce   sync.Once
	fallbackLogger *zap.Logger
)

func fallback() *zap.Logger {
	fallbackOnce.Do(func() {
		core := zapcore.NewCore(consoleEncoder(config.ColorConfig{}, false), stderrSyncer(), zap.WarnLevel)
		fallbackLogger = zap.New(core).Named("formsurge")
	})
	return fallbackLogger
}

// Sync flushes buffered entries. Call it before the process exits.
func Sync() {
	logger := globalLogger.Load()
	if logger == nil {
		return
	}
	for _, err := range multierr.Errors(logger.Sync()) {
		if ignorableSyncError(err) {
			continue
		}
		fmt.Fprintln(os.Stderr, "Error: failed to sync logger:", err)
	}
}

// ignorableSyncError matches the errors fsync returns for terminals and pipes.
func ignorableSyncError(err error) bool {
	return errors.Is(err, syscall.EINVAL) ||
		errors.Is(err, syscall.ENOTTY) ||
		errors.Is(err, syscall.ENOTSUP) ||
		errors.Is(err, syscall.EBADF)
}
