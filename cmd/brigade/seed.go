package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"brigade/internal/capability"
	"brigade/internal/database"
)

var seedRosterFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load departments and agents into the database",
	Long: `Upsert a roster of departments and agents. Without --roster the
configured roster_file is used, and without either the built-in roster.
Agent performance counters are preserved.`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedRosterFile, "roster", "", "Roster YAML file")
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Log.Format = "text"
	logger := cfg.Log.NewLogger(os.Stderr)

	path := seedRosterFile
	if path == "" {
		path = cfg.RosterFile
	}
	roster := database.DefaultRoster()
	if path != "" {
		if roster, err = database.LoadRoster(path); err != nil {
			return err
		}
	}
	if err := capability.DefaultRegistry().Validate(roster.Agents); err != nil {
		return err
	}

	db, s, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Seed(context.Background(), s, roster); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Seeded %d departments and %d agents\n",
		color.GreenString("✓"), len(roster.Departments), len(roster.Agents))
	return nil
}
