package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBookingConfigDefaults(t *testing.T) {
	c, err := LoadBookingConfig()
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, c.HoldTTL)
	assert.Equal(t, 24*time.Hour, c.PendingTTL)
	assert.True(t, c.SweepEnabled)
	assert.Equal(t, time.Minute, c.SweepInterval)
	assert.Equal(t, 200, c.SweepBatch)
}

func TestLoadBookingConfigOverrides(t *testing.T) {
	t.Setenv("HOLD_TTL", "30m")
	t.Setenv("SWEEP_ENABLED", "false")
	t.Setenv("SWEEP_BATCH", "0")

	c, err := LoadBookingConfig()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, c.HoldTTL)
	assert.False(t, c.SweepEnabled)
	assert.Equal(t, 1, c.SweepBatch)
}

func TestLoadBookingConfigRejectsNonPositiveTTL(t *testing.T) {
	t.Setenv("HOLD_TTL", "0s")
	_, err := LoadBookingConfig()
	assert.Error(t, err)
}

func TestLoadAMQPConfigFallsBackToLegacyVar(t *testing.T) {
	t.Setenv("AMQP_URL", "amqp://legacy:5672/")
	c, err := LoadAMQPConfig()
	require.NoError(t, err)
	assert.Equal(t, "amqp://legacy:5672/", c.URL)
}

func TestBookingRateLimitDefaultsAreStricter(t *testing.T) {
	general := LoadRateLimitConfig()
	booking := LoadBookingRateLimitConfig()
	assert.Less(t, booking.Capacity, general.Capacity)
	assert.Equal(t, "rl:booking", booking.Prefix)
	assert.Equal(t, "user_route", booking.KeyStrategy)
	assert.GreaterOrEqual(t, booking.TTL, 5*booking.RefillInterval)
}

func TestRateLimitBurstOverride(t *testing.T) {
	t.Setenv("BOOKING_RATE_LIMIT_BURST", "3")
	t.Setenv("BOOKING_RATE_LIMIT_REFILL_EVERY", "2s")
	c := LoadBookingRateLimitConfig()
	assert.Equal(t, 3, c.Capacity)
	assert.Equal(t, 1, c.RefillTokens)
	assert.Equal(t, 2*time.Second, c.RefillInterval)
}

func TestLoadCacheConfigParsesMethods(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	c := LoadCacheConfig()
	assert.True(t, c.Methods["GET"])
	assert.True(t, c.Methods["HEAD"])
	assert.False(t, c.Methods["POST"])
}
