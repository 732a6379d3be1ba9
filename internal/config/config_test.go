package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "")
	t.Setenv("SMS_API_KEY", "")
	t.Setenv("CRON_LOCK_TTL", "")
	t.Setenv("PAYOUT_TAX_RATE", "")
	t.Setenv("DATABASE_CONNECT_RETRIES", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 3, cfg.Database.ConnectRetries)
	assert.Equal(t, 10*time.Minute, cfg.Redis.LockTTL)
	assert.Empty(t, cfg.SMS.APIKey)
	assert.True(t, cfg.Payout.TaxRate.Equal(decimal.NewFromInt(12)))
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DATABASE_MAX_OPEN_CONNS", "7")
	t.Setenv("CRON_LOCK_TTL", "90s")
	t.Setenv("PAYOUT_TAX_RATE", "13")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 7, cfg.Database.MaxOpenConns)
	assert.Equal(t, 90*time.Second, cfg.Redis.LockTTL)
	assert.True(t, cfg.Payout.TaxRate.Equal(decimal.NewFromInt(13)))
}

func TestLoadFallsBackOnInvalidValues(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DATABASE_MAX_OPEN_CONNS", "lots")
	t.Setenv("SMS_TIMEOUT", "soon")
	t.Setenv("REFERRAL_COMMISSION_RATE", "ten")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 30*time.Second, cfg.SMS.Timeout)
	assert.True(t, cfg.Payout.DefaultReferralRate.Equal(decimal.NewFromInt(10)))
}
