// Package cli holds helpers shared by the passthrough command: output
// formatters, typed command errors with their exit codes, and signal
// handling.
//
// Results that implement Tabular render as an aligned table, CSV or JSON:
//
//	formatter := cli.NewFormatter(format)
//	if err := formatter.FormatTo(os.Stdout, table); err != nil {
//		return err
//	}
package cli
