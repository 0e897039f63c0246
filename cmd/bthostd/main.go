// Command bthostd runs an emulated Bluetooth host as a standalone
// test-harness peer, per SPEC_FULL.md §0/§1.
package main

import (
	"fmt"
	"os"

	"github.com/emulab/bthost/cmd/bthostd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "bthostd:", err)
		os.Exit(1)
	}
}
