// Package logger owns the process-wide zap logger.  Output goes to stdout
// and, when a file path is configured, to a size-rotated file.
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu   sync.RWMutex
	base = zap.NewNop()
)

// Options selects encoder and sinks.
type Options struct {
	Development bool
	FilePath    string // empty disables the file sink
	MaxSizeMB   int
	MaxBackups  int
	MaxAgeDays  int
}

// Init builds the global logger.  Development mode uses a console encoder
// at debug level; otherwise JSON at info.
func Init(opt Options) error {
	level := zapcore.InfoLevel
	encCfg := zap.NewProductionEncoderConfig()
	if opt.Development {
		level = zapcore.DebugLevel
		encCfg = zap.NewDevelopmentEncoderConfig()
	}
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if opt.Development {
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.Lock(os.Stdout), level)}
	if opt.FilePath != "" {
		rot := &lumberjack.Logger{
			Filename:   opt.FilePath,
			MaxSize:    orDefault(opt.MaxSizeMB, 50),
			MaxBackups: orDefault(opt.MaxBackups, 3),
			MaxAge:     orDefault(opt.MaxAgeDays, 7),
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rot), level))
	}

	l := zap.New(zapcore.NewTee(cores...), zap.AddCaller()).With(zap.String("service", "furniture-reservation"))
	Set(l)
	return nil
}

// Set replaces the global logger.
func Set(l *zap.Logger) {
	mu.Lock()
	base = l
	mu.Unlock()
}

// L returns the global logger; a no-op logger before Init.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Named returns a child of the global logger.
func Named(component string) *zap.Logger { return L().Named(component) }

// Sync flushes buffered entries.
func Sync() { _ = L().Sync() }

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
