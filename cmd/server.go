package cmd

import (
	"github.com/spf13/cobra"

	"queuesync/server"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the queue sync HTTP server",
	Long:  `Start the HTTP server exposing the playback-queue API and the queue change stream.`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
