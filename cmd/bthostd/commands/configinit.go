package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emulab/bthost/cmd/bthostd/config"
)

var configInitPath string

var configInitCmd = &cobra.Command{
	Use:   "config-init",
	Short: "Write a default YAML configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteDefault(configInitPath); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("wrote default configuration to %s\n", configInitPath)
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVar(&configInitPath, "config", "bthostd.yaml", "path to write")
	rootCmd.AddCommand(configInitCmd)
}
