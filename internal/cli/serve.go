package cli

import (
	"github.com/spf13/cobra"

	"qrelay/internal/config"
	"qrelay/internal/logger"
	"qrelay/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay server",
	Long:  `Run the relay server. Configuration comes from the environment and an optional .env file.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

		s, err := server.NewServer(cfg)
		if err != nil {
			return err
		}
		return s.Run()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
