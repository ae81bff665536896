package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"fetchd/internal/adapter/repo"
	"fetchd/internal/infra"
	"fetchd/internal/jobs"
	"fetchd/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "fetchd-sweeper")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cfg.EnsureDirs(); err != nil {
		logger.Fatal().Err(err).Msg("sweeper: failed to create cache directories")
	}
	store, closeStore, err := repo.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("sweeper: failed to open job store")
	}
	defer closeStore()

	workspace, err := storage.NewWorkspace(cfg.DownloadsDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("sweeper: failed to configure workspace")
	}

	sweeper := jobs.NewSweeper(store, workspace, jobs.SweeperConfig{
		Expiry:   cfg.JobExpiry,
		Interval: cfg.SweepInterval,
	}, logger)

	logger.Info().
		Dur("interval", cfg.SweepInterval).
		Dur("expiry", cfg.JobExpiry).
		Str("store", cfg.StoreBackend).
		Msg("sweeper: started")
	sweeper.Run(ctx)
	logger.Info().Msg("sweeper: stopped")
}
