package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"queuesync/server"
)

var rootCmd = &cobra.Command{
	Use:   "queuesyncd",
	Short: "queuesyncd keeps per-user playback queues in sync across backend instances.",
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
