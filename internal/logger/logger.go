// Package logger builds the process-wide zap logger from configuration.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"capplan/internal/config"
)

// Filename is the log file name used when output is "file".
const Filename = "capplan.log"

// New returns a sugared logger writing JSON lines to stdout or a rotated file.
func New(cfg config.LoggingConfig) (*zap.SugaredLogger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	var sink zapcore.WriteSyncer
	switch cfg.Output {
	case "", "stdout":
		sink = zapcore.AddSync(os.Stdout)
	case "file":
		if cfg.Path == "" {
			return nil, fmt.Errorf("logging.path is required when output is file")
		}
		sink = fileWriter(cfg)
	default:
		return nil, fmt.Errorf("unknown logging.output %q", cfg.Output)
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), sink, level)
	return zap.New(core, zap.AddCaller()).Sugar(), nil
}

func fileWriter(cfg config.LoggingConfig) zapcore.WriteSyncer {
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 50
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(cfg.Path, Filename),
		MaxSize:    maxSize,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	})
}

func encoderConfig() zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "ts"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeLevel = zapcore.LowercaseLevelEncoder
	return ec
}

func parseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return l, fmt.Errorf("invalid logging.level %q: %w", s, err)
	}
	return l, nil
}
