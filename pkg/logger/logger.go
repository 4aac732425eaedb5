// Package logger builds the *zap.Logger the buffer pool core and its
// surrounding tooling log through, following the upstream engine's
// logger package.
package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls the logger's level, encoding, and destination.
type Config struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string
	// Format is either "console" or "json". Defaults to console.
	Format string
	// OutputFile, if set, is opened for append and used instead of stderr.
	OutputFile string
}

// New builds a *zap.Logger from cfg.
func New(cfg Config) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encoder, err := getEncoder(cfg.Format)
	if err != nil {
		return nil, err
	}

	writer, err := getWriteSyncer(cfg.OutputFile)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(encoder, writer, zap.NewAtomicLevelAt(level))
	return zap.New(core, zap.AddCaller()), nil
}

func parseLevel(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("parsing log level %q: %w", level, err)
	}
	return lvl, nil
}

func getEncoder(format string) (zapcore.Encoder, error) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	switch format {
	case "", "console":
		return zapcore.NewConsoleEncoder(encCfg), nil
	case "json":
		return zapcore.NewJSONEncoder(encCfg), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

func getWriteSyncer(outputFile string) (zapcore.WriteSyncer, error) {
	if outputFile == "" {
		return zapcore.AddSync(os.Stderr), nil
	}
	f, err := os.OpenFile(outputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log output file %s: %w", outputFile, err)
	}
	return zapcore.AddSync(f), nil
}
