package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"qrelay/internal/config"
	"qrelay/internal/logger"
	"qrelay/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

	s, err := server.NewServer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize server")
	}

	if err := s.Run(); err != nil {
		log.Fatal().Err(err).Msg("Server exited with error")
	}
}
