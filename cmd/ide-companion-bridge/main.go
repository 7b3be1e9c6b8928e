package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brwse/ide-companion-bridge/internal/bridge"
	"github.com/brwse/ide-companion-bridge/internal/config"
	"github.com/brwse/ide-companion-bridge/internal/logging"
)

const version = "0.1.0"

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:     "ide-companion-bridge",
		Short:   "IDE Companion Bridge",
		Long:    "Attaches to an editor's RPC socket and exposes its live context and diff-review tools over a loopback MCP endpoint.",
		Version: version,
		RunE:    run,
	}
)

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Optional YAML config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Debug)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bridge.New(cfg, logger)
	if err := b.Run(ctx); err != nil {
		logger.Error("bridge exited with error", zap.Error(err))
		return err
	}

	logger.Info("bridge stopped gracefully")
	return nil
}
