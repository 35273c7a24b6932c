package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Rajveerjagtap/kasparro-crypto-etl/config"
)

var sugar *zap.SugaredLogger

func init() {
	// Default logger until the configuration is loaded.
	sugar = newLogger(config.LoggerConfig{Level: "INFO", Console: true})

	config.GlobalConfigCallback.AddCallback(func(cfg config.GlobalConfig) {
		sugar = newLogger(cfg.LoggerConfig())
	})
}

func newLogger(cfg config.LoggerConfig) *zap.SugaredLogger {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zapcore.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var cores []zapcore.Core

	fileOpened := false
	if cfg.File != "" {
		if f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
			fileEncoder := zapcore.NewJSONEncoder(encoderCfg)
			cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.Lock(f), level))
			fileOpened = true
		}
	}

	// Console is used when requested, and as the fallback sink when the
	// log file cannot be opened, so logs are never silently discarded.
	if cfg.Console || !fileOpened {
		consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)
		cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), level))
	}

	core := zapcore.NewTee(cores...)

	return zap.New(core, zap.AddCallerSkip(1)).Sugar()
}

func Debug(template string, args ...interface{}) {
	sugar.Debugf(template, args...)
}

func Info(template string, args ...interface{}) {
	sugar.Infof(template, args...)
}

func Warn(template string, args ...interface{}) {
	sugar.Warnf(template, args...)
}

func Error(template string, args ...interface{}) {
	sugar.Errorf(template, args...)
}

func Fatal(template string, args ...interface{}) {
	sugar.Fatalf(template, args...)
}
