package cmd

import (
	"github.com/spf13/cobra"

	"tunetube/config"
	"tunetube/logger"
	"tunetube/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the playback daemon",
	Long:  `Start the HTTP server, websocket session hub and audio engine.`,
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

func init() {
	rootCmd.AddCommand(serveCmd)
}
