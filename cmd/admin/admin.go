// Package admin holds the admin management subcommands.
package admin

import (
	"github.com/bunbase/bunbase/internal/config"
	"github.com/spf13/cobra"
)

var cfg *config.Config

// SetConfig hands the loaded configuration down from the root command.
func SetConfig(c *config.Config) {
	cfg = c
}

// AdminCmd is the parent of the admin subcommands.
var AdminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage admin accounts",
}

func init() {
	AdminCmd.AddCommand(createCmd)
}
