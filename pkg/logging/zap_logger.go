package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ZapLogger struct {
	sugarLogger *zap.SugaredLogger
	rotator     *SequentialRotator
}

var _ Logger = (*ZapLogger)(nil)

// NewZapLogger builds a logger writing to the console and to a daily file
// under <LogDir>/logs/<process>/.
func NewZapLogger(config LoggerConfig) (*ZapLogger, error) {
	if config.ProcessName == "" {
		return nil, fmt.Errorf("process name is required")
	}
	root := config.LogDir
	if root == "" {
		root = BaseDataDir
	}

	logDir := filepath.Join(root, LogsDir, string(config.ProcessName))
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	logPath := filepath.Join(logDir, time.Now().UTC().Format(LogFileFormat))

	maxSize := config.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 50
	}
	rotator := NewSequentialRotator(logPath, maxSize, config.MaxAgeDays, config.MaxBackups)

	level := zapcore.InfoLevel
	if config.IsDevelopment {
		level = zapcore.DebugLevel
	}

	consoleEncoderConfig := zap.NewDevelopmentEncoderConfig()
	consoleEncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(TimeFormat)
	if config.IsDevelopment {
		consoleEncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		consoleEncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	fileEncoderConfig := zap.NewProductionEncoderConfig()
	fileEncoderConfig.TimeKey = "timestamp"
	fileEncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoderConfig), zapcore.Lock(os.Stdout), level),
		zapcore.NewCore(zapcore.NewJSONEncoder(fileEncoderConfig), zapcore.AddSync(rotator), level),
	)

	logger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel)).
		With(zap.String("process", string(config.ProcessName)))

	return &ZapLogger{
		sugarLogger: logger.Sugar(),
		rotator:     rotator,
	}, nil
}

func (z *ZapLogger) Debug(msg string, keysAndValues ...interface{}) {
	z.sugarLogger.Debugw(msg, keysAndValues...)
}

func (z *ZapLogger) Info(msg string, keysAndValues ...interface{}) {
	z.sugarLogger.Infow(msg, keysAndValues...)
}

func (z *ZapLogger) Warn(msg string, keysAndValues ...interface{}) {
	z.sugarLogger.Warnw(msg, keysAndValues...)
}

func (z *ZapLogger) Error(msg string, keysAndValues ...interface{}) {
	z.sugarLogger.Errorw(msg, keysAndValues...)
}

func (z *ZapLogger) Fatal(msg string, keysAndValues ...interface{}) {
	z.sugarLogger.Fatalw(msg, keysAndValues...)
}

func (z *ZapLogger) Debugf(template string, args ...interface{}) {
	z.sugarLogger.Debugf(template, args...)
}

func (z *ZapLogger) Infof(template string, args ...interface{}) {
	z.sugarLogger.Infof(template, args...)
}

func (z *ZapLogger) Warnf(template string, args ...interface{}) {
	z.sugarLogger.Warnf(template, args...)
}

func (z *ZapLogger) Errorf(template string, args ...interface{}) {
	z.sugarLogger.Errorf(template, args...)
}

func (z *ZapLogger) Fatalf(template string, args ...interface{}) {
	z.sugarLogger.Fatalf(template, args...)
}

func (z *ZapLogger) With(tags ...interface{}) Logger {
	return &ZapLogger{
		sugarLogger: z.sugarLogger.With(tags...),
		rotator:     z.rotator,
	}
}

// Close flushes buffered entries and closes the log file.
func (z *ZapLogger) Close() error {
	// Sync on stdout fails on some platforms, ignore it
	_ = z.sugarLogger.Sync()
	if z.rotator != nil {
		return z.rotator.Close()
	}
	return nil
}
