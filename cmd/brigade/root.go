package main

import (
	"os"

	"github.com/spf13/cobra"

	"brigade/internal/config"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "brigade",
	Short: "Hierarchical agent orchestration with audit analytics",
	Long: `Brigade routes a request to the departments that can handle it. Each
department head delegates to specialists, gates their work on a quality
threshold with retries, and synthesizes the approved results. Every agent
invocation is recorded and can be analyzed afterwards.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to brigade.yaml (default: search ., ~/.config/brigade, /etc/brigade)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(orchestrateCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("brigade version %s\n", Version)
	},
}
