package main

import (
	"fmt"

	"mercator-hq/passthrough/pkg/cli"
	"mercator-hq/passthrough/pkg/config"
)

// loadConfig initializes the process configuration from --config.
func loadConfig() (*config.Config, error) {
	if err := config.Initialize(cfgFile); err != nil {
		return nil, cli.NewConfigError("config", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()
	if cfg == nil {
		return nil, cli.NewConfigError("config", "configuration is not initialized")
	}
	return cfg, nil
}
