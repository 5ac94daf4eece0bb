// Package logging builds the zap loggers used by autosad.
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config describes where and how logs are written.
type Config struct {
	// Level is the minimum level: debug, info, warn or error.
	Level string `mapstructure:"level" yaml:"level"`
	// Format is "console" or "json".
	Format string `mapstructure:"format" yaml:"format"`
	// File, when set, receives a JSON copy of every entry with rotation.
	File string `mapstructure:"file" yaml:"file"`
	// MaxSize is the size in megabytes before rotation.
	MaxSize int `mapstructure:"max_size" yaml:"max_size"`
	// MaxBackups is the number of rotated files to retain.
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
	// MaxAge is the number of days to retain rotated files.
	MaxAge   int  `mapstructure:"max_age" yaml:"max_age"`
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

// DefaultConfig logs info and above to stderr in console format.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "console",
		MaxSize:    100, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
	}
}

// Validate checks the level and format.
func (c Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("invalid log level %q", c.Level)
	}
	switch strings.ToLower(c.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format %q: want console or json", c.Format)
	}
	return nil
}

// New builds a logger that writes to stderr.
func New(cfg Config) (*zap.Logger, error) {
	return Build(cfg, zapcore.Lock(os.Stderr))
}

// Build builds a logger that writes to out and, if cfg.File is set, to a
// rotating file.
func Build(cfg Config, out zapcore.WriteSyncer) (*zap.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, _ := zapcore.ParseLevel(cfg.Level)

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if strings.EqualFold(cfg.Format, "json") {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		consoleConfig := encoderConfig
		consoleConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(consoleConfig)
	}

	core := zapcore.NewCore(encoder, out, level)
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(rotator), level)
		core = zapcore.NewTee(core, fileCore)
	}

	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}
