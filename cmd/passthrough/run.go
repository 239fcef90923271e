package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/passthrough/pkg/cli"
	"mercator-hq/passthrough/pkg/config"
	"mercator-hq/passthrough/pkg/telemetry/logging"
)

var runFlags struct {
	listenAddress string
	logLevel      string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the gateway",
	Long: `Start the gateway with the specified configuration.

The gateway installs every static and stored endpoint, serves the management
API and the health, readiness, version and metrics endpoints, and forwards
all other requests through the route table.

Examples:
  # Start with defaults and PASSTHROUGH_* environment overrides
  passthrough run

  # Start with a config file
  passthrough run --config /etc/passthrough/config.yaml

  # Override listen address and log level
  passthrough run --listen 0.0.0.0:4000 --log-level debug`,
	RunE: runGateway,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyRunFlags(cfg); err != nil {
		return err
	}

	closer, err := logging.Setup(cfg.Telemetry.Logging, os.Stdout)
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	defer closer.Close()

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	slog.Info("starting passthrough gateway",
		"version", Version,
		"listen_address", cfg.Proxy.ListenAddress,
		"store", cfg.Store.Backend,
		"static_endpoints", len(cfg.Passthrough.Endpoints),
		"call_log", cfg.CallLog.Enabled,
	)

	gw, err := newGateway(ctx, cfg)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	runErr := gw.run(ctx, nil)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownBudget(cfg))
	defer cancel()
	if err := gw.close(closeCtx); err != nil {
		slog.Error("shutdown reported errors", "error", err)
	}

	if runErr != nil {
		return cli.NewCommandError("run", runErr)
	}
	slog.Info("passthrough gateway stopped")
	return nil
}

func applyRunFlags(cfg *config.Config) error {
	if runFlags.listenAddress != "" {
		cfg.Proxy.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		if _, err := logging.ParseLevel(runFlags.logLevel); err != nil {
			return cli.NewConfigError("log-level", fmt.Sprintf("invalid log level %q", runFlags.logLevel))
		}
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	return nil
}

// shutdownBudget bounds draining hooks and closing stores after the server
// has stopped.
func shutdownBudget(cfg *config.Config) time.Duration {
	if cfg.Proxy.ShutdownTimeout > 0 {
		return cfg.Proxy.ShutdownTimeout
	}
	return config.DefaultShutdownTimeout
}
