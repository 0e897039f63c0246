// Package commands implements bthostd's CLI commands, following
// marmos91-dittofs's cmd/dfsctl/commands/root.go cobra tree.
package commands

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bthostd",
	Short: "Emulated Bluetooth host test-harness peer",
	Long: `bthostd runs an emulated Bluetooth host: a protocol-level test
peer that speaks HCI over an H4 byte stream and drives the L2CAP and
RFCOMM signaling state machines a real controller's software stack
would, without any radio underneath.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
