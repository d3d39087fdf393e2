package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tunetube/config"
	"tunetube/logger"
	"tunetube/server"
)

var rootCmd = &cobra.Command{
	Use:   "tunetube",
	Short: "TuneTube is a self-hosted music streaming daemon.",
	Long:  `TuneTube resolves, caches and plays music streams and exposes an HTTP and websocket control surface.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		logger.InitLogger(logger.Config{
			Level:      logger.LogLevel(cfg.LogLevel),
			OutputPath: cfg.LogPath,
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     14,
			Compress:   true,
		})
		return server.Start(cfg)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
