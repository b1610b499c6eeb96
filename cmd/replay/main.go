package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"kestrel/internal/config"
	"kestrel/internal/replay"
)

func main() {
	envFile := flag.String("env", "", "path to a .env file with config overrides")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	cfg := config.Load(*envFile)
	if err := replay.NewRunner(cfg, logger).Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("replay failed")
	}
	logger.Info().Msg("replay finished")
}
