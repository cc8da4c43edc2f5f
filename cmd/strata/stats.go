package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory statistics",
	Long: `Display per-tier counts for the local memory store.

Example:
  strata stats
  strata stats --health`,
	RunE: runStats,
}

var statsHealth bool

func init() {
	statsCmd.Flags().BoolVar(&statsHealth, "health", false, "Include health check")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cc, err := loadConfig()
	if err != nil {
		return err
	}

	engine, err := buildEngine(cc)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := engine.Stats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	fmt.Println("Memory Statistics")
	fmt.Println("-----------------")
	fmt.Printf("Facts:    %d\n", stats.Facts)
	fmt.Printf("Episodes: %d\n", stats.Episodes)
	fmt.Printf("Chunks:   %d\n", stats.Chunks)

	if statsHealth {
		fmt.Println()
		fmt.Println("Health Check")
		fmt.Println("------------")

		health := engine.Health(ctx)
		if health.Healthy {
			fmt.Println("Status: ok")
		} else {
			fmt.Printf("Status: degraded (%s)\n", health.Error)
		}
		fmt.Printf("Record store: %s\n", okString(health.StoreOK))
		fmt.Printf("Vector index: %s\n", okString(health.VectorOK))
	}

	return nil
}

func okString(ok bool) string {
	if ok {
		return "ok"
	}
	return "unavailable"
}
