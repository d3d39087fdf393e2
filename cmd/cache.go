package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"tunetube/config"
	"tunetube/streamcache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the stream cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show stream cache usage",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		cache, err := streamcache.Open(cfg.CacheDir, cfg.CacheMaxBytes)
		if err != nil {
			log.Fatalf("open cache: %v", err)
		}
		tracks, bytes := cache.Stats()
		fmt.Printf("Cache directory: %s\n", cfg.CacheDir)
		fmt.Printf("Cached tracks:   %d\n", tracks)
		fmt.Printf("Cached bytes:    %d\n", bytes)
		if cfg.CacheUnlimited() {
			fmt.Println("Limit:           unlimited")
		} else {
			fmt.Printf("Limit:           %d bytes\n", cfg.CacheMaxBytes)
		}
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached stream",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		cache, err := streamcache.Open(cfg.CacheDir, cfg.CacheMaxBytes)
		if err != nil {
			log.Fatalf("open cache: %v", err)
		}
		if err := cache.Clear(); err != nil {
			log.Fatalf("clear cache: %v", err)
		}
		fmt.Println("Cache cleared.")
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
