package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/hackgods/doctor-slot-booking/internal/config"
	"github.com/hackgods/doctor-slot-booking/internal/db"
	"github.com/hackgods/doctor-slot-booking/internal/logging"
	"github.com/hackgods/doctor-slot-booking/internal/seed"
)

func main() {
	doctors := flag.Int("doctors", 100, "number of doctors to create")
	patients := flag.Int("patients", 9000, "number of patients to create")
	fakerSeed := flag.Uint64("seed", 0, "faker seed, 0 picks one from the clock")
	flag.Parse()

	cfg, err := config.Load()
	logger := logging.New(cfg.Env, "seed", cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}
	if cfg.PostgresDSN == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx := context.Background()

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(connCtx, cfg.PostgresDSN, db.PoolOptions{})
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}

	if *fakerSeed == 0 {
		*fakerSeed = uint64(time.Now().UnixNano())
	}
	logger.Info().
		Int("doctors", *doctors).
		Int("patients", *patients).
		Uint64("seed", *fakerSeed).
		Msg("seed starting")

	data := seed.Generate(gofakeit.New(*fakerSeed), *doctors, *patients)
	if err := seed.IntoPostgres(ctx, pool, data, logger); err != nil {
		logger.Error().Err(err).Msg("seed failed")
		pool.Close()
		os.Exit(1)
	}

	logger.Info().Msg("seed complete")
}
