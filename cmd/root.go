// Package cmd wires the bunbase CLI: the serve loop and the admin
// management subcommands.
package cmd

import (
	"fmt"
	"os"

	"github.com/bunbase/bunbase/cmd/admin"
	"github.com/bunbase/bunbase/internal/config"
	"github.com/spf13/cobra"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "bunbase",
	Short: "Self-hosted backend with dynamic collections, rules, realtime and files",
	Long: `bunbase is a single-binary backend: pointed at a SQLite file it serves
a schema-driven REST API with per-collection access rules, SSE realtime
subscriptions and filesystem file storage.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if cmd.Flags().Changed("db") {
			cfg.DBPath, _ = cmd.Flags().GetString("db")
		}
		if cmd.Flags().Changed("port") {
			cfg.Port, _ = cmd.Flags().GetInt("port")
			if cfg.Port < 1 || cfg.Port > 65535 {
				return fmt.Errorf("invalid port %d", cfg.Port)
			}
		}
		if cmd.Flags().Changed("debug") {
			cfg.Debug, _ = cmd.Flags().GetBool("debug")
		}
		admin.SetConfig(cfg)
		return nil
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().String("db", "", "Path to the SQLite database file (env: BUNBASE_DB)")
	rootCmd.PersistentFlags().Int("port", config.DefaultPort, "HTTP listen port (env: PORT)")
	rootCmd.PersistentFlags().Bool("debug", false, "Log SQL queries (env: DEBUG)")

	// Add subcommands
	rootCmd.AddCommand(admin.AdminCmd)
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
