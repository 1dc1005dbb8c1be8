package logger

import (
	"bot-controller-go/internal/models"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu          sync.RWMutex
	baseLogger  *zap.Logger
	fallbackLog *zap.Logger
	fallbackMu  sync.Once
)

// InitLogger builds the process logger from cfg and installs it globally.
// It may be called again, e.g. once with defaults and once after the config file is read.
func InitLogger(cfg models.LogConfig) *zap.Logger {
	l := New(cfg)

	mu.Lock()
	old := baseLogger
	baseLogger = l
	mu.Unlock()

	if old != nil {
		_ = old.Sync()
	}
	return l
}

// New builds a logger without installing it.
func New(cfg models.LogConfig) *zap.Logger {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var cores []zapcore.Core
	output := strings.ToLower(cfg.Output)

	if output == "file" || output == "both" {
		// file output is uncoloured JSON so it can be shipped as-is
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(rotator), level))
	}

	if output == "console" || output == "both" || len(cores) == 0 {
		consoleConfig := encoderConfig
		consoleConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleConfig), zapcore.AddSync(os.Stdout), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

// L returns the global logger.
func L() *zap.Logger {
	mu.RLock()
	l := baseLogger
	mu.RUnlock()
	if l != nil {
		return l
	}

	fallbackMu.Do(func() {
		fallbackLog, _ = zap.NewDevelopment()
	})
	return fallbackLog
}

// S 返回全局的sugared logger实例
func S() *zap.SugaredLogger {
	return L().Sugar()
}

// Sync flushes the global logger.
func Sync() {
	_ = L().Sync()
}
