package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version information injected at build time, the way dittofs's
// cmd/dfsctl/commands does.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print bthostd build information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("bthostd %s (commit: %s, built: %s)\n", Version, Commit, Date)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
