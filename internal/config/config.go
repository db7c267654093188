// Package config holds the heapidx configuration file format.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/sushant-115/heapidx/core/engine"
	"github.com/sushant-115/heapidx/core/storage_engine/heap"
	"github.com/sushant-115/heapidx/pkg/logger"
	"github.com/sushant-115/heapidx/pkg/telemetry"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config is the complete heapidx configuration.
type Config struct {
	Logger    logger.Config    `yaml:"logger"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Heap      heap.Config      `yaml:"heap"`
	Index     IndexConfig      `yaml:"index"`
	// DataFile is the TSV dataset loaded at startup; empty starts empty.
	DataFile string `yaml:"data_file"`
}

// IndexConfig configures the numVotes index.
type IndexConfig struct {
	// Order is the maximum keys per node; 0 derives it from the block size.
	Order int `yaml:"order"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Logger: logger.Config{
			Level:      "info",
			Format:     "console",
			OutputFile: "stderr",
		},
		Telemetry: telemetry.Config{
			Enabled:          false,
			ServiceName:      logger.ServiceName,
			PrometheusPort:   9464,
			TraceSampleRatio: 1.0,
		},
		Heap: heap.DefaultConfig(),
	}
}

// Load reads the YAML file at path over the defaults; fields absent from
// the file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the engine would reject.
func (c *Config) Validate() error {
	if err := c.Heap.Validate(); err != nil {
		return fmt.Errorf("%w: heap: %w", ErrInvalidConfig, err)
	}
	if c.Index.Order < 0 {
		return fmt.Errorf("%w: index order %d", ErrInvalidConfig, c.Index.Order)
	}
	if c.Telemetry.Enabled && (c.Telemetry.PrometheusPort < 0 || c.Telemetry.PrometheusPort > 65535) {
		return fmt.Errorf("%w: prometheus port %d", ErrInvalidConfig, c.Telemetry.PrometheusPort)
	}
	return nil
}

// Engine returns the engine configuration.
func (c *Config) Engine() engine.Config {
	return engine.Config{Heap: c.Heap, Order: c.Index.Order}
}
