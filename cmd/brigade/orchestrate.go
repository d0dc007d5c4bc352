package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"brigade/internal/agents"
)

var (
	orchestrateProject string
	orchestrateJSON    bool
)

var orchestrateCmd = &cobra.Command{
	Use:   "orchestrate <prompt>",
	Short: "Run one request through the departments and print the result",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runOrchestrate,
}

func init() {
	orchestrateCmd.Flags().StringVar(&orchestrateProject, "project", "", "Project id recorded with the run")
	orchestrateCmd.Flags().BoolVar(&orchestrateJSON, "json", false, "Print the raw result as JSON")
}

func runOrchestrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Log.Format = "text"
	logger := cfg.Log.NewLogger(os.Stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.orchestrator.Orchestrate(ctx, strings.Join(args, " "), agents.ProjectContext{ProjectID: orchestrateProject})
	if err != nil {
		return err
	}
	if orchestrateJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printOrchestration(cmd.OutOrStdout(), res)
	return nil
}
