package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"queuesync/config"
	"queuesync/db"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Check Redis connectivity",
	Long:  `Connect to Redis with the current configuration and run a round-trip check.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		if err := db.ConnectRedis(cfg); err != nil {
			log.Fatalf("Redis connection failed: %v", err)
		}
		defer db.CloseRedis()

		if err := db.TestRedis(); err != nil {
			log.Fatalf("Redis check failed: %v", err)
		}
		fmt.Println("Redis connection OK")
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
