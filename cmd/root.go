package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/persona-cli/internal/config"
	"github.com/sells-group/persona-cli/internal/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	cfg              *config.Config
	shutdownTelemetry telemetry.Shutdown
)

var rootCmd = &cobra.Command{
	Use:     "persona-cli",
	Short:   "Evidence-backed persona builder",
	Long:    "Runs the seventeen-stage persona pipeline for a subject, fuses evidence from weighted sources, and records every run for review and export.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is fine; the environment and config.yaml still apply.
		_ = godotenv.Load()

		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		shutdown, err := telemetry.Init(cmd.Context(), cfg.Telemetry, version)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		shutdownTelemetry = shutdown

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		liveCosts.Log("live collaborator usage")
		if shutdownTelemetry != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(ctx); err != nil {
				zap.L().Warn("telemetry shutdown failed", zap.Error(err))
			}
		}
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
