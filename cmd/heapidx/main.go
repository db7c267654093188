package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/sushant-115/heapidx/core/engine"
	"github.com/sushant-115/heapidx/internal/config"
	"github.com/sushant-115/heapidx/internal/importer"
	"github.com/sushant-115/heapidx/internal/report"
	"github.com/sushant-115/heapidx/pkg/logger"
	"github.com/sushant-115/heapidx/pkg/telemetry"
	"go.uber.org/zap"
)

var (
	configPath  = flag.String("config", "", "Path to a YAML configuration file")
	dataFile    = flag.String("data", "", "TSV dataset to load, overrides data_file")
	order       = flag.Int("order", -1, "Index order, 0 derives it from the block size; overrides index.order")
	logLevel    = flag.String("log-level", "", "Log level, overrides logger.level")
	experiments = flag.Bool("experiments", true, "Run the storage and indexing experiments after loading")
	interactive = flag.Bool("interactive", false, "Start an interactive shell after loading")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "heapidx: %v\n", err)
		os.Exit(1)
	}

	logs, err := logger.NewFactory(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "heapidx: failed to create logger: %v\n", err)
		os.Exit(1)
	}
	zlogger := logs.Component(logger.ComponentCLI)
	defer zlogger.Sync()

	if err := run(cfg, logs, zlogger); err != nil {
		zlogger.Error("heapidx failed", zap.Error(err))
		zlogger.Sync()
		os.Exit(1)
	}
}

// loadConfig reads the configuration file, if any, and applies the flag
// overrides on top of it.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return nil, err
		}
	}
	if *dataFile != "" {
		cfg.DataFile = *dataFile
	}
	if *order >= 0 {
		cfg.Index.Order = *order
	}
	if *logLevel != "" {
		cfg.Logger.Level = *logLevel
	}
	return cfg, cfg.Validate()
}

func run(cfg *config.Config, logs *logger.Factory, zlogger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, shutdown, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			zlogger.Warn("Telemetry shutdown failed", zap.Error(err))
		}
	}()

	eng, err := engine.New(cfg.Engine(), logs.Component(logger.ComponentEngine), tel)
	if err != nil {
		return err
	}
	defer eng.Close()

	if cfg.DataFile != "" {
		start := time.Now()
		n, err := importer.LoadFile(ctx, cfg.DataFile, eng, logs.Component(logger.ComponentImporter))
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", cfg.DataFile, err)
		}
		zlogger.Info("Dataset loaded",
			zap.String("file", cfg.DataFile),
			zap.Int("records", n),
			zap.Duration("elapsed", time.Since(start)))
	} else {
		zlogger.Info("No dataset configured, starting empty")
	}

	if *experiments {
		if err := report.RunExperiments(ctx, os.Stdout, eng); err != nil {
			return err
		}
	}

	if *interactive {
		return shell(ctx, eng)
	}
	return nil
}

// shell reads commands until exit, EOF or cancellation.
func shell(ctx context.Context, eng *engine.Engine) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "heapidx> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to start shell: %w", err)
	}
	defer rl.Close()

	fmt.Fprintln(rl.Stdout(), "Type 'help' for commands, 'exit' to quit.")
	for ctx.Err() == nil {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if processCommand(ctx, rl.Stdout(), eng, strings.Fields(line)) {
			return nil
		}
	}
	return nil
}
