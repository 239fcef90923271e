package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/passthrough/pkg/cli"
)

var (
	// Global flags
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "passthrough",
	Short: "Pass-through gateway for upstream APIs",
	Long: `Passthrough forwards client requests to operator-registered upstream
targets with minimal transformation.

Each endpoint maps a local path to an upstream URL and controls:
  - Configured headers, with secret references resolved at load time
  - Forwarding of client headers and query parameters
  - Subpath appending for wildcard routes
  - Optional API-key authentication
  - Streaming (SSE) relay and per-call telemetry`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with a code derived from the
// returned error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults and PASSTHROUGH_* environment only when empty)")
}
