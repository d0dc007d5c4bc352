package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"brigade/internal/analytics"
)

var (
	analyzeFrom       string
	analyzeTo         string
	analyzeDepartment []string
	analyzeAgent      []string
	analyzeBucket     string
	analyzeJSON       bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze recorded executions",
	Long: `Aggregate recorded agent executions into metrics, insights and
recommendations. Dates are YYYY-MM-DD or RFC 3339.`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeFrom, "from", "", "Start of the window")
	analyzeCmd.Flags().StringVar(&analyzeTo, "to", "", "End of the window (a bare date covers the whole day)")
	analyzeCmd.Flags().StringSliceVar(&analyzeDepartment, "department", nil, "Only these departments")
	analyzeCmd.Flags().StringSliceVar(&analyzeAgent, "agent", nil, "Only these agents")
	analyzeCmd.Flags().StringVar(&analyzeBucket, "bucket", "day", "Time series granularity: hour, day, week, month")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Print the full report as JSON")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Log.Format = "text"
	logger := cfg.Log.NewLogger(os.Stderr)

	f := analytics.Filters{
		DepartmentIDs: analyzeDepartment,
		AgentIDs:      analyzeAgent,
		Bucket:        analytics.TimeBucket(analyzeBucket),
	}
	if f.From, err = parseDate(analyzeFrom, false); err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	if f.To, err = parseDate(analyzeTo, true); err != nil {
		return fmt.Errorf("--to: %w", err)
	}

	db, s, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	report, err := newAnalytics(cfg, s, logger).Analyze(context.Background(), f)
	if err != nil {
		return err
	}
	if analyzeJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printReport(cmd.OutOrStdout(), report)
	return nil
}

func parseDate(v string, endOfDay bool) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q", v)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
