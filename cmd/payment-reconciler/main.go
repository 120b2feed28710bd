package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-slot-booking/internal/app"
	"github.com/hackgods/doctor-slot-booking/internal/appointment"
	"github.com/hackgods/doctor-slot-booking/internal/config"
	"github.com/hackgods/doctor-slot-booking/internal/logging"
)

// batchSize bounds how many appointments one run re-verifies.
const batchSize = 100

func main() {
	cfg, err := config.Load()
	logger := logging.New(cfg.Env, "payment-reconciler", cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}
	if cfg.Storage != config.StoragePostgres {
		logger.Fatal().Str("storage", cfg.Storage).Msg("payment reconciler needs shared storage, set APP_STORAGE=postgres")
	}

	logger.Info().Dur("interval", cfg.WorkerInterval).Msg("payment-reconciler starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing backends")
		}
	}()

	// Run once at startup
	runOnce(rootCtx, a.Service, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping payment reconciler")
			return
		case <-ticker.C:
			runOnce(rootCtx, a.Service, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	start := time.Now()
	confirmed, err := svc.ReconcilePayments(runCtx, batchSize)
	if err != nil {
		logger.Error().Err(err).Int("confirmed", confirmed).Msg("reconcile run error")
		return
	}
	logger.Info().
		Int("confirmed", confirmed).
		Dur("took", time.Since(start)).
		Msg("reconcile run complete")
}
