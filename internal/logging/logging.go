package logging

import (
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is a sugared zap logger shared by the CLI and the pipeline stages.
type Logger struct {
	*zap.SugaredLogger
}

// Options configures the console and optional file sinks.
type Options struct {
	Verbose bool
	// JSON forces the JSON encoder on the console.
	JSON bool
	// FilePath enables a rotated JSON log file when non-empty.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewLogger returns a console logger; verbose enables debug level.
func NewLogger(verbose bool) *Logger {
	logger, err := New(Options{Verbose: verbose})
	if err != nil {
		// console-only construction cannot fail
		return NewNop()
	}
	return logger
}

// New builds a logger from opts, adding a lumberjack-rotated file sink
// when a path is configured.
func New(opts Options) (*Logger, error) {
	level := zapcore.InfoLevel
	if opts.Verbose {
		level = zapcore.DebugLevel
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var consoleEncoder zapcore.Encoder
	if opts.JSON {
		consoleEncoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		consoleConfig := encoderConfig
		if isatty.IsTerminal(os.Stderr.Fd()) {
			consoleConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		consoleEncoder = zapcore.NewConsoleEncoder(consoleConfig)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), level),
	}

	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0755); err != nil {
			return nil, err
		}
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    orDefault(opts.MaxSizeMB, 50),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 28),
			Compress:   opts.Compress,
		})
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			fileWriter,
			level,
		))
	}

	base := zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	return &Logger{SugaredLogger: base.Sugar()}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// With returns a child logger carrying the given key/value pairs.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	if l == nil {
		return NewNop().With(keysAndValues...)
	}
	return &Logger{SugaredLogger: l.SugaredLogger.With(keysAndValues...)}
}

// Sync flushes buffered entries. Errors from syncing a terminal are ignored.
func (l *Logger) Sync() {
	if l == nil {
		return
	}
	_ = l.SugaredLogger.Sync()
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
