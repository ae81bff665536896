package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"fetchd/internal/adapter/repo"
	"fetchd/internal/http/handlers"
	httpapi "fetchd/internal/http/httpapi"
	"fetchd/internal/infra"
	"fetchd/internal/jobs"
	"fetchd/internal/retrieval"
	"fetchd/internal/storage"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "fetchd-api")

	if err := cfg.EnsureDirs(); err != nil {
		logger.Fatal().Err(err).Msg("failed to create cache directories")
	}
	cookies, err := infra.EnsureCookies(cfg, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("cookies unavailable, continuing without")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := repo.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("failed to open job store")
	}
	defer closeStore()

	workspace, err := storage.NewWorkspace(cfg.DownloadsDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure workspace")
	}

	retriever := retrieval.NewYtdlpRetriever(retrieval.YtdlpOptions{
		Binary:      cfg.YtdlpBinary,
		CookiesFile: cookies,
		ProxyURL:    cfg.ProxyURL,
	}, logger)

	dispatcher := jobs.NewDispatcher(store, retriever, workspace, jobs.DispatcherConfig{
		Workers:   cfg.WorkerConcurrency,
		QueueSize: cfg.WorkerQueueSize,
		Timeout:   cfg.RetrievalTimeout,
	}, logger)

	sweepDone := make(chan struct{})
	if cfg.SweeperEnabled {
		sweeper := jobs.NewSweeper(store, workspace, jobs.SweeperConfig{
			Expiry:   cfg.JobExpiry,
			Interval: cfg.SweepInterval,
		}, logger)
		go func() {
			defer close(sweepDone)
			sweeper.Run(ctx)
		}()
	} else {
		close(sweepDone)
	}

	app := handlers.NewApp(store, dispatcher, logger)
	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app, logger))

	go func() {
		logger.Info().
			Str("addr", server.Addr()).
			Str("store", cfg.StoreBackend).
			Int("workers", cfg.WorkerConcurrency).
			Bool("sweeper", cfg.SweeperEnabled).
			Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("dispatcher drain timed out, queued jobs failed")
	}
	<-sweepDone
	logger.Info().Msg("server stopped")
}
