package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ternarybob/netrun/internal/common"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// Overrides the root's pre-run: printing the version must not require
	// config or logger initialization.
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		common.LoadVersionFromFile()
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Netrun version %s\n", common.GetFullVersion())
	},
}
