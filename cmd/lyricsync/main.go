package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"lyricsync/internal/app"
	"lyricsync/internal/config"

	"github.com/rs/zerolog/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	if err := a.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Lyrics daemon stopped")
	}
}
