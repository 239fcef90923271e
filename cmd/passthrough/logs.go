package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/passthrough/pkg/calllog"
	"mercator-hq/passthrough/pkg/cli"
	"mercator-hq/passthrough/pkg/config"
)

var logsFlags struct {
	endpointID string
	callID     string
	outcome    string
	since      string
	until      string
	limit      int
	output     string
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Query the call log",
	Long: `Query records of forwarded calls from the call log database.

--since and --until accept an RFC3339 timestamp or a duration counted back
from now (for example 30m or 24h).

Examples:
  # Last 100 calls
  passthrough logs

  # Failures on one endpoint in the last hour, as JSON
  passthrough logs --endpoint 5f0c... --outcome failure --since 1h --output json`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

func init() {
	rootCmd.AddCommand(logsCmd)

	f := logsCmd.Flags()
	f.StringVar(&logsFlags.endpointID, "endpoint", "", "filter by endpoint id")
	f.StringVar(&logsFlags.callID, "call-id", "", "filter by call id")
	f.StringVar(&logsFlags.outcome, "outcome", "", "filter by outcome: success, failure")
	f.StringVar(&logsFlags.since, "since", "", "only calls started at or after this time")
	f.StringVar(&logsFlags.until, "until", "", "only calls started before this time")
	f.IntVarP(&logsFlags.limit, "limit", "n", calllog.DefaultQueryLimit, "maximum number of records")
	f.StringVarP(&logsFlags.output, "output", "o", "text", "output format: text, json, csv")
}

// recordList renders call records as rows.
type recordList []*calllog.Record

func (l recordList) Headers() []string {
	return []string{"START", "CALL_ID", "ENDPOINT", "METHOD", "ROUTE", "OUTCOME", "STATUS", "DURATION_MS", "MODEL", "TOKENS", "ERROR"}
}

func (l recordList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, r := range l {
		rows = append(rows, []string{
			r.StartTime.UTC().Format(time.RFC3339),
			r.CallID,
			r.EndpointID,
			r.Method,
			r.Route,
			r.Outcome,
			strconv.Itoa(r.StatusCode),
			strconv.FormatInt(r.DurationMS, 10),
			r.Model,
			strconv.FormatInt(r.TotalTokens, 10),
			r.Error,
		})
	}
	return rows
}

func runLogs(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(logsFlags.output)
	if err != nil {
		return err
	}
	q, err := logsQuery(time.Now())
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	records, err := queryCallLog(cmd.Context(), cfg, q)
	if err != nil {
		return cli.NewCommandError("logs", err)
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), recordList(records))
}

func logsQuery(now time.Time) (calllog.Query, error) {
	q := calllog.Query{
		EndpointID: logsFlags.endpointID,
		CallID:     logsFlags.callID,
		Limit:      logsFlags.limit,
	}
	switch logsFlags.outcome {
	case "", calllog.OutcomeSuccess, calllog.OutcomeFailure:
		q.Outcome = logsFlags.outcome
	default:
		return calllog.Query{}, cli.NewConfigError("outcome", fmt.Sprintf("unknown outcome %q (want success or failure)", logsFlags.outcome))
	}
	if q.Limit < 0 {
		return calllog.Query{}, cli.NewConfigError("limit", "must not be negative")
	}

	var err error
	if q.Since, err = parseTimeFlag("since", logsFlags.since, now); err != nil {
		return calllog.Query{}, err
	}
	if q.Until, err = parseTimeFlag("until", logsFlags.until, now); err != nil {
		return calllog.Query{}, err
	}
	return q, nil
}

// parseTimeFlag accepts RFC3339 or a duration before now. Empty is the
// zero time.
func parseTimeFlag(name, value string, now time.Time) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return time.Time{}, cli.NewConfigError(name, fmt.Sprintf("%q is neither an RFC3339 time nor a positive duration", value))
	}
	return now.Add(-d), nil
}

func queryCallLog(ctx context.Context, cfg *config.Config, q calllog.Query) ([]*calllog.Record, error) {
	if cfg.CallLog.Path == "" {
		return nil, cli.NewConfigError("call_log.path", "call log path is not configured")
	}
	storage, err := calllog.OpenSQLite(cfg.CallLog.Path)
	if err != nil {
		return nil, err
	}
	defer storage.Close()
	return storage.Query(ctx, q)
}
