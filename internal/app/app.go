// Package app assembles the booking service from configuration. Both the
// API server and the payment reconciler start from here.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-slot-booking/internal/api"
	"github.com/hackgods/doctor-slot-booking/internal/appointment"
	"github.com/hackgods/doctor-slot-booking/internal/config"
	"github.com/hackgods/doctor-slot-booking/internal/db"
	"github.com/hackgods/doctor-slot-booking/internal/ledger"
	"github.com/hackgods/doctor-slot-booking/internal/lock"
	"github.com/hackgods/doctor-slot-booking/internal/payment"
	redisclient "github.com/hackgods/doctor-slot-booking/internal/redis"
	"github.com/hackgods/doctor-slot-booking/internal/seed"
)

// Demo data loaded when storage runs in memory.
const (
	memoryDoctors  = 8
	memoryPatients = 50
	memorySeed     = 42
)

type App struct {
	Service *appointment.Service
	Checks  []api.Check

	pool  *pgxpool.Pool
	redis *redis.Client
}

// Build connects the configured backends and wires the service. The caller
// must Close the result.
func Build(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{}

	if cfg.NeedsPostgres() {
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.pool = pool
		logger.Info().Msg("connected to postgres")

		if err := db.Migrate(ctx, pool); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}

		a.Checks = append(a.Checks, api.Check{Name: "postgres", Critical: true, Ping: pool.Ping})
	}

	if cfg.RedisEnabled() {
		rdb, err := redisclient.NewRedisClient(ctx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.redis = rdb
		logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")

		a.Checks = append(a.Checks, api.Check{
			Name:     "redis",
			Critical: cfg.LedgerBackend == config.LedgerRedis,
			Ping:     func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}

	var repo appointment.Repository
	switch cfg.Storage {
	case config.StoragePostgres:
		repo = appointment.NewPgRepository(a.pool)
	default:
		mem := appointment.NewMemoryRepository()
		seed.IntoMemory(mem, seed.Generate(gofakeit.New(memorySeed), memoryDoctors, memoryPatients))
		repo = mem
		logger.Warn().Msg("using in-memory storage, data is lost on restart")
	}

	var l ledger.Ledger
	switch cfg.LedgerBackend {
	case config.LedgerPostgres:
		l = ledger.NewPostgres(a.pool)
	case config.LedgerRedis:
		l = redisclient.NewSlotLedger(a.redis)
	default:
		l = ledger.NewMemory()
	}

	var locker lock.Locker = lock.NewLocal()
	if a.redis != nil {
		locker = redisclient.NewRedisLocker(a.redis, cfg.LockTTL)
	}

	providers := Providers(cfg)
	if len(providers) == 0 {
		logger.Warn().Msg("no payment provider configured")
	}
	for _, p := range providers {
		logger.Info().Str("method", string(p.Method())).Msg("payment provider enabled")
	}
	reconciler := payment.NewReconciler(cfg.PaymentTimeout, logger, providers...)

	var refunds payment.RefundSink = payment.LogRefundSink{Logger: logger}
	if a.redis != nil && cfg.RefundStream != "" {
		refunds = redisclient.NewRefundStream(a.redis, cfg.RefundStream)
	}

	a.Service = appointment.NewService(repo, l, locker, reconciler, cfg,
		appointment.WithLogger(logger),
		appointment.WithRefundSink(refunds),
	)

	restored, err := a.Service.SyncLedger(ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("sync ledger: %w", err)
	}
	if restored > 0 {
		logger.Warn().Int("restored", restored).Msg("ledger was missing claims for live appointments")
	}

	logger.Info().
		Str("storage", cfg.Storage).
		Str("ledger", cfg.LedgerBackend).
		Bool("distributed_lock", a.redis != nil).
		Msg("service ready")

	return a, nil
}

// Providers returns the payment providers that have credentials configured.
func Providers(cfg config.Config) []payment.Provider {
	var out []payment.Provider
	if cfg.StripeSecretKey != "" {
		out = append(out, payment.NewStripe(cfg.StripeSecretKey, cfg.StripeSuccessURL, cfg.StripeCancelURL))
	}
	if cfg.RazorpayKeyID != "" && cfg.RazorpayKeySecret != "" {
		out = append(out, payment.NewRazorpay(cfg.RazorpayKeyID, cfg.RazorpayKeySecret))
	}
	return out
}

// Pool is nil unless something is stored in Postgres.
func (a *App) Pool() *pgxpool.Pool { return a.pool }

func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}
