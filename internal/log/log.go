// Package log provides centralized logging functionality using zap logger.
package log

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu         sync.Mutex
	log        *zap.SugaredLogger
	baseLogger *zap.Logger
)

// Options selects the log level and destination.
type Options struct {
	Debug bool
	// File, when set, receives JSON logs rotated at MaxSizeMB.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// Init initializes the package-level logger
func Init(debug bool) error {
	return InitWithOptions(Options{Debug: debug})
}

// InitWithOptions initializes the package-level logger, writing to a rotated
// file when opts.File is set.
func InitWithOptions(opts Options) error {
	var zapLogger *zap.Logger
	var err error

	switch {
	case opts.File != "":
		zapLogger = newFileLogger(opts)
	case opts.Debug:
		zapLogger, err = zap.NewDevelopment(zap.AddCallerSkip(1))
	default:
		zapLogger, err = zap.NewProduction(zap.AddCallerSkip(1))
	}
	if err != nil {
		return fmt.Errorf("can't initialize zap logger: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	baseLogger = zapLogger
	log = zapLogger.Sugar()
	return nil
}

func newFileLogger(opts Options) *zap.Logger {
	if opts.MaxSizeMB == 0 {
		opts.MaxSizeMB = 50
	}
	if opts.MaxBackups == 0 {
		opts.MaxBackups = 5
	}
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		Compress:   true,
	})

	level := zap.InfoLevel
	if opts.Debug {
		level = zap.DebugLevel
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), w, level)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
}

func current() *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()
	if log == nil {
		// Fallback logger if not initialized
		baseLogger, _ = zap.NewProduction(zap.AddCallerSkip(1))
		log = baseLogger.Sugar()
	}
	return log
}

// GetZapLogger returns the base zap logger for cases where it's needed (like GORM)
func GetZapLogger() *zap.Logger {
	current()
	mu.Lock()
	defer mu.Unlock()
	return baseLogger
}

// GetSugaredLogger returns a sugared logger without the helper caller skip,
// for handing to components.
func GetSugaredLogger() *zap.SugaredLogger {
	return GetZapLogger().WithOptions(zap.AddCallerSkip(-1)).Sugar()
}

// Sync flushes any buffered log entries
func Sync() {
	mu.Lock()
	defer mu.Unlock()
	if log != nil {
		_ = log.Sync()
	}
}

// Package-level convenience functions
func Debug(args ...any) {
	current().Debug(args...)
}

func Debugf(template string, args ...any) {
	current().Debugf(template, args...)
}

func Info(args ...any) {
	current().Info(args...)
}

func Infof(template string, args ...any) {
	current().Infof(template, args...)
}

func Warn(args ...any) {
	current().Warn(args...)
}

func Warnf(template string, args ...any) {
	current().Warnf(template, args...)
}

func Error(args ...any) {
	current().Error(args...)
}

func Errorf(template string, args ...any) {
	current().Errorf(template, args...)
}

func Fatal(args ...any) {
	current().Fatal(args...)
	os.Exit(1)
}

func Fatalf(template string, args ...any) {
	current().Fatalf(template, args...)
	os.Exit(1)
}
