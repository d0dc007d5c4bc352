package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"brigade/internal/client"
	"brigade/internal/models"
)

var (
	statusServer string
	statusWatch  bool
)

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show runs on a running brigade server",
	Long: `Without arguments, list the runs the server is working on. With a run
id, show that run; --watch follows it until it finishes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusServer, "server", "", "API base URL (default: $BRIGADE_API_URL or http://localhost:8080)")
	statusCmd.Flags().BoolVar(&statusWatch, "watch", false, "Stream updates until the run finishes")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := client.NewClient(statusServer)
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		runs, err := c.ActiveRuns(ctx)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(out, faint("No active runs."))
			return nil
		}
		for _, r := range runs {
			fmt.Fprintf(out, "%s  %s  started %s  %d departments\n",
				bold(r.RunID), runStatusColor(r.Status), r.StartedAt.Format(time.RFC3339), len(r.Departments))
		}
		return nil
	}

	if statusWatch {
		return c.Watch(ctx, args[0], func(ev models.RunEvent) { printRunEvent(out, ev) })
	}
	run, err := c.GetRun(ctx, args[0])
	if err != nil {
		return err
	}
	printRun(out, run)
	return nil
}

func runStatusColor(s models.RunStatus) string {
	switch s {
	case models.RunCompleted:
		return green(s)
	case models.RunFailed:
		return red(s)
	}
	return yellow(s)
}

func printRun(w io.Writer, run *models.OrchestrationRun) {
	fmt.Fprintf(w, "%s %s  %s\n", bold("Run"), run.ID, runStatusColor(run.Status))
	if run.Recommendation != "" {
		fmt.Fprintf(w, "  recommendation  %s\n", run.Recommendation)
		fmt.Fprintf(w, "  overall quality %.2f\n", run.OverallQuality)
	}
	if run.Error != "" {
		fmt.Fprintf(w, "  error           %s\n", red(run.Error))
	}
	for _, d := range run.Departments {
		printDepartmentRow(w, d)
	}
}

func printRunEvent(w io.Writer, ev models.RunEvent) {
	if ev.Run != nil {
		printRun(w, ev.Run)
		return
	}
	if ev.Department != nil {
		printDepartmentRow(w, *ev.Department)
	}
}

func printDepartmentRow(w io.Writer, d models.RunDepartment) {
	status := yellow(d.Status)
	switch d.Status {
	case models.DepartmentComplete:
		status = green(d.Status)
	case models.DepartmentFailed:
		status = red(d.Status)
	}
	fmt.Fprintf(w, "  %s %-16s %s  quality %.1f\n", cyan("■"), d.DepartmentID, status, d.QualityScore)
}
