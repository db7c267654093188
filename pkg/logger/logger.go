// Package logger builds the zap loggers used across heapidx. A Factory hands
// out one named logger per component (engine, importer, cli); each component
// may run at its own level so that, for instance, index restructuring can be
// traced at debug while a bulk import stays at info.
package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName is attached to every log line.
const ServiceName = "heapidx"

// Component names used by the heapidx binary.
const (
	ComponentEngine   = "engine"
	ComponentImporter = "importer"
	ComponentCLI      = "cli"
)

// Config holds all the configuration for the logger.
type Config struct {
	// Level sets the minimum log level (e.g., "debug", "info", "warn", "error").
	Level string `yaml:"level"`
	// Format specifies the log output format ("json" or "console").
	Format string `yaml:"format"`
	// OutputFile specifies the file to write logs to. "stdout" or "stderr"
	// can be used to log to the console.
	OutputFile string `yaml:"output_file"`
	// Components overrides Level per component, e.g. {"engine": "debug"}.
	Components map[string]string `yaml:"components"`
}

// Factory builds component loggers that share one encoder and one output.
type Factory struct {
	encoder zapcore.Encoder
	out     zapcore.WriteSyncer
	level   zap.AtomicLevel
	levels  map[string]zap.AtomicLevel
}

// NewFactory opens the configured output. Unknown level names fall back to
// info, or to the base level for a component override.
func NewFactory(config Config) (*Factory, error) {
	writeSyncer, err := getWriteSyncer(config.OutputFile)
	if err != nil {
		return nil, err
	}

	f := &Factory{
		encoder: getEncoder(config.Format),
		out:     writeSyncer,
		level:   parseLevel(config.Level, zap.InfoLevel),
		levels:  make(map[string]zap.AtomicLevel, len(config.Components)),
	}
	for name, level := range config.Components {
		f.levels[name] = parseLevel(level, f.level.Level())
	}
	return f, nil
}

// New creates the service-wide logger for config.
func New(config Config) (*zap.Logger, error) {
	f, err := NewFactory(config)
	if err != nil {
		return nil, err
	}
	return f.Logger(), nil
}

// Logger returns the service-wide logger at the base level.
func (f *Factory) Logger() *zap.Logger {
	return f.build(f.level)
}

// Component returns a logger named after component, at its override level
// when one is configured.
func (f *Factory) Component(component string) *zap.Logger {
	level, ok := f.levels[component]
	if !ok {
		level = f.level
	}
	return f.build(level).Named(component)
}

func (f *Factory) build(level zap.AtomicLevel) *zap.Logger {
	core := zapcore.NewCore(f.encoder, f.out, level)
	return zap.New(core, zap.AddCaller()).
		WithOptions(zap.Fields(zap.String("service", ServiceName)))
}

func parseLevel(text string, fallback zapcore.Level) zap.AtomicLevel {
	level := zap.NewAtomicLevelAt(fallback)
	if text == "" {
		return level
	}
	if err := level.UnmarshalText([]byte(text)); err != nil {
		level.SetLevel(fallback)
	}
	return level
}

// getEncoder selects the log encoder based on the configured format.
func getEncoder(format string) zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	if strings.ToLower(format) == "console" {
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewJSONEncoder(encoderConfig)
}

// getWriteSyncer selects the output destination for the logs.
func getWriteSyncer(outputFile string) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(outputFile) {
	case "stdout", "":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	default:
		file, err := os.OpenFile(outputFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", outputFile, err)
		}
		return zapcore.AddSync(zapcore.Lock(file)), nil
	}
}
