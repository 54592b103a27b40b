// File: internal/observability/logger.go
package observability

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/xkilldash9x/deskpilot/internal/config"
)

var (
	globalLogger atomic.Pointer[zap.Logger]
	once         sync.Once
)

const colorReset = "\x1b[0m"

var colorMap = map[string]string{
	"black":   "\x1b[30m",
	"red":     "\x1b[31m",
	"green":   "\x1b[32m",
	"yellow":  "\x1b[33m",
	"blue":    "\x1b[34m",
	"magenta": "\x1b[35m",
	"cyan":    "\x1b[36m",
	"white":   "\x1b[37m",
}

// Initialize builds the process logger from configuration, writing the console
// stream to consoleWriter. Only the first call has any effect until
// ResetForTest is used.
func Initialize(cfg config.LoggerConfig, consoleWriter zapcore.WriteSyncer) {
	once.Do(func() {
		level := zap.NewAtomicLevel()
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level.SetLevel(zap.InfoLevel)
		}

		cores := []zapcore.Core{zapcore.NewCore(newEncoder(cfg), consoleWriter, level)}
		if fileCore := newFileCore(cfg, level); fileCore != nil {
			cores = append(cores, fileCore)
		}

		options := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
		if cfg.AddSource {
			options = append(options, zap.AddCaller())
		}

		logger := zap.New(zapcore.NewTee(cores...), options...).Named(cfg.ServiceName)
		globalLogger.Store(logger)

		zap.ReplaceGlobals(logger)
		zap.RedirectStdLog(logger)
	})
}

// InitializeLogger initializes the logger with a locked stdout console stream.
func InitializeLogger(cfg config.LoggerConfig) {
	Initialize(cfg, zapcore.Lock(os.Stdout))
}

// ResetForTest clears the process logger. Tests only.
func ResetForTest() {
	globalLogger.Store(nil)
	once = sync.Once{}
}

// newFileCore returns a rotating JSON core, or nil when no log file is set.
func newFileCore(cfg config.LoggerConfig, level zap.AtomicLevel) zapcore.Core {
	if cfg.LogFile == "" {
		return nil
	}
	path, err := homedir.Expand(cfg.LogFile)
	if err != nil {
		path = cfg.LogFile
	}
	writer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	})
	return zapcore.NewCore(newEncoder(config.LoggerConfig{Format: "json"}), writer, level)
}

func levelColor(colors config.ColorConfig, level zapcore.Level) string {
	var name string
	switch level {
	case zapcore.DebugLevel:
		name = colors.Debug
	case zapcore.InfoLevel:
		name = colors.Info
	case zapcore.WarnLevel:
		name = colors.Warn
	case zapcore.ErrorLevel:
		name = colors.Error
	case zapcore.DPanicLevel:
		name = colors.DPanic
	case zapcore.PanicLevel:
		name = colors.Panic
	case zapcore.FatalLevel:
		name = colors.Fatal
	}
	return colorMap[name]
}

func newColorizedLevelEncoder(colors config.ColorConfig) zapcore.LevelEncoder {
	return func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		label := strings.ToUpper(level.String())
		if color := levelColor(colors, level); color != "" {
			enc.AppendString(color + label + colorReset)
			return
		}
		enc.AppendString(label)
	}
}

// newEncoder returns a single-line colorized console encoder for "console"
// and a JSON encoder for everything else.
func newEncoder(cfg config.LoggerConfig) zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")

	if cfg.Format == "console" {
		encoderConfig.EncodeLevel = newColorizedLevelEncoder(cfg.Colors)
		encoderConfig.EncodeName = func(loggerName string, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(loggerName + ".")
		}
		return zapcore.NewConsoleEncoder(encoderConfig)
	}

	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(encoderConfig)
}

// GetLogger returns the process logger, or a development fallback if
// Initialize has not run.
func GetLogger() *zap.Logger {
	if logger := globalLogger.Load(); logger != nil {
		return logger
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	l.Warn("Global logger requested before initialization; using fallback.")
	return l.Named("fallback")
}

// Sync flushes buffered entries, ignoring the errors stdout produces on some
// platforms.
func Sync() {
	logger := globalLogger.Load()
	if logger == nil {
		return
	}
	if err := logger.Sync(); err != nil && !isBenignSyncError(err) {
		fmt.Fprintln(os.Stderr, "Error: failed to sync logger:", err)
	}
}

func isBenignSyncError(err error) bool {
	msg := err.Error()
	for _, benign := range []string{"sync /dev/stdout", "invalid argument", "operation not supported", "inappropriate ioctl"} {
		if strings.Contains(msg, benign) {
			return true
		}
	}
	return false
}
