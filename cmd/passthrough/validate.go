package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/passthrough/pkg/cli"
	"mercator-hq/passthrough/pkg/config"
	"mercator-hq/passthrough/pkg/endpoints"
)

var validateFlags struct {
	output string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and endpoint definitions",
	Long: `Load the configuration and compile every static and stored endpoint
definition the way the gateway would when installing routes.

Each definition is checked for a valid path, target and header pair, and
for an authentication requirement the gateway can satisfy. The command exits
non-zero when any definition is invalid.

Examples:
  # Validate using the default configuration
  passthrough validate

  # Validate a config file and print a JSON report
  passthrough validate --config config.yaml --output json`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateFlags.output, "output", "o", "text", "output format: text, json, csv")
}

// validationResult is the outcome for one definition.
type validationResult struct {
	ID     string `json:"id"`
	Path   string `json:"path"`
	Source string `json:"source"`
	Valid  bool   `json:"valid"`
	Error  string `json:"error,omitempty"`
}

type validationReport struct {
	Results []validationResult `json:"results"`
	Invalid int                `json:"invalid"`
}

func (r validationReport) Headers() []string {
	return []string{"ID", "PATH", "SOURCE", "STATUS", "ERROR"}
}

func (r validationReport) Rows() [][]string {
	rows := make([][]string, 0, len(r.Results))
	for _, res := range r.Results {
		status := "ok"
		if !res.Valid {
			status = "invalid"
		}
		rows = append(rows, []string{res.ID, res.Path, res.Source, status, res.Error})
	}
	return rows
}

func runValidate(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(validateFlags.output)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	report, err := validateEndpoints(cmd.Context(), cfg)
	if err != nil {
		return cli.NewCommandError("validate", err)
	}
	if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if report.Invalid > 0 {
		return cli.NewCommandError("validate", fmt.Errorf("%d of %d endpoint definitions are invalid", report.Invalid, len(report.Results)))
	}
	return nil
}

func validateEndpoints(ctx context.Context, cfg *config.Config) (validationReport, error) {
	loader, err := openOfflineLoader(ctx, cfg)
	if err != nil {
		return validationReport{}, err
	}
	defer loader.Close()

	stored, err := loader.Registry().List(ctx)
	if err != nil {
		return validationReport{}, err
	}

	report := validationReport{}
	check := func(def endpoints.Definition, source string) {
		res := validationResult{ID: def.ID, Path: def.Path, Source: source, Valid: true}
		if err := loader.Validate(ctx, def); err != nil {
			res.Valid = false
			res.Error = err.Error()
			report.Invalid++
		}
		report.Results = append(report.Results, res)
	}
	for _, def := range loader.Static() {
		check(def, "config")
	}
	for _, def := range stored {
		check(def, "store")
	}
	return report, nil
}
