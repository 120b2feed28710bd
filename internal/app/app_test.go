package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-slot-booking/internal/config"
	"github.com/hackgods/doctor-slot-booking/internal/payment"
)

func baseConfig() config.Config {
	return config.Config{
		Env:            "test",
		Storage:        config.StorageMemory,
		LedgerBackend:  config.LedgerMemory,
		Location:       time.UTC,
		HorizonDays:    7,
		LeadTime:       time.Hour,
		LockTTL:        5 * time.Second,
		PaymentTimeout: time.Second,
	}
}

func TestBuildInMemory(t *testing.T) {
	a, err := Build(context.Background(), baseConfig(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.NotNil(t, a.Service)
	assert.Empty(t, a.Checks)
	assert.Nil(t, a.Pool())
}

func TestBuildWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := baseConfig()
	cfg.RedisAddr = mr.Addr()
	cfg.RefundStream = "refunds"

	a, err := Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	require.Len(t, a.Checks, 1)
	assert.Equal(t, "redis", a.Checks[0].Name)
	assert.False(t, a.Checks[0].Critical, "redis only carries locks and refunds here")
	assert.NoError(t, a.Checks[0].Ping(context.Background()))
}

func TestBuildFailsWhenRedisIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := baseConfig()
	cfg.RedisAddr = addr

	_, err := Build(context.Background(), cfg, zerolog.Nop())
	assert.ErrorContains(t, err, "redis")
}

func TestProviders(t *testing.T) {
	cfg := baseConfig()
	assert.Empty(t, Providers(cfg))

	cfg.StripeSecretKey = "sk_test_123"
	cfg.RazorpayKeyID = "rzp_test"
	got := Providers(cfg)
	require.Len(t, got, 1, "razorpay needs both key id and secret")
	assert.Equal(t, payment.MethodStripe, got[0].Method())

	cfg.RazorpayKeySecret = "secret"
	got = Providers(cfg)
	require.Len(t, got, 2)
	assert.Equal(t, payment.MethodRazorpay, got[1].Method())
}
