// Package logging builds the zap logger used by tjsync.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mschirtzinger/tradejournal/internal/config"
)

// New returns a logger for cfg. Logs go to stderr so command output on
// stdout stays machine readable, or to a rotated file when cfg.File is set.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	if cfg.Encoding == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	if cfg.File == "" {
		zc := zap.Config{
			Level:             zap.NewAtomicLevelAt(level),
			Development:       cfg.Development,
			Encoding:          encoding(cfg.Encoding),
			DisableCaller:     cfg.DisableCaller,
			DisableStacktrace: cfg.DisableStacktrace,
			EncoderConfig:     encoderConfig,
			OutputPaths:       []string{"stderr"},
			ErrorOutputPaths:  []string{"stderr"},
		}
		return zc.Build()
	}

	var encoder zapcore.Encoder
	if encoding(cfg.Encoding) == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}
	writer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	})
	core := zapcore.NewCore(encoder, writer, zap.NewAtomicLevelAt(level))

	opts := []zap.Option{zap.ErrorOutput(zapcore.Lock(os.Stderr))}
	if !cfg.DisableCaller {
		opts = append(opts, zap.AddCaller())
	}
	if !cfg.DisableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}
	return zap.New(core, opts...), nil
}

func encoding(name string) string {
	if name == "json" {
		return "json"
	}
	return "console"
}
