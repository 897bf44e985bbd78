package config

import (
    "os"
    "strconv"
    "strings"
    "time"
)

// RateLimitConfig tunes one Redis token-bucket limiter.  The API runs two
// of them: a general one for every route and a stricter one scoped to the
// booking endpoints (hold, conflict-check, checkout) where a burst of
// retries from one student only produces more RoomUnavailable answers.
type RateLimitConfig struct {
    Enabled        bool
    Capacity       int
    RefillTokens   int
    RefillInterval time.Duration
    TTL            time.Duration
    KeyStrategy    string
    Prefix         string
    Debug          bool
}

// LoadRateLimitConfig reads the general limiter from RATE_LIMIT_*.
func LoadRateLimitConfig() RateLimitConfig {
    return loadRateLimit("RATE_LIMIT", RateLimitConfig{
        Enabled:        true,
        Capacity:       60,
        RefillTokens:   1,
        RefillInterval: time.Second,
        TTL:            10 * time.Minute,
        KeyStrategy:    "ip_user_route",
        Prefix:         "rl",
    })
}

// LoadBookingRateLimitConfig reads the booking limiter from
// BOOKING_RATE_LIMIT_*.  Keys default to user+route so that one student
// cannot starve another sharing the same NAT.
func LoadBookingRateLimitConfig() RateLimitConfig {
    return loadRateLimit("BOOKING_RATE_LIMIT", RateLimitConfig{
        Enabled:        true,
        Capacity:       10,
        RefillTokens:   1,
        RefillInterval: 6 * time.Second,
        TTL:            10 * time.Minute,
        KeyStrategy:    "user_route",
        Prefix:         "rl:booking",
    })
}

func loadRateLimit(ns string, def RateLimitConfig) RateLimitConfig {
    k := func(s string) string { return ns + "_" + s }
    cfg := RateLimitConfig{
        Enabled:        envBool(k("ENABLED"), def.Enabled),
        Capacity:       envInt(k("CAPACITY"), def.Capacity),
        RefillTokens:   envInt(k("REFILL_TOKENS"), def.RefillTokens),
        RefillInterval: envDur(k("REFILL_INTERVAL"), def.RefillInterval),
        TTL:            envDur(k("TTL"), def.TTL),
        KeyStrategy:    envStr(k("KEY_STRATEGY"), def.KeyStrategy),
        Prefix:         envStr(k("PREFIX"), def.Prefix),
        Debug:          envBool(k("DEBUG"), false),
    }
    if b := envInt(k("BURST"), -1); b > 0 { cfg.Capacity = b }
    if every := envDur(k("REFILL_EVERY"), 0); every > 0 {
        cfg.RefillTokens = 1
        cfg.RefillInterval = every
    }
    if cfg.Capacity < 1 { cfg.Capacity = 1 }
    if cfg.RefillTokens < 1 { cfg.RefillTokens = 1 }
    if cfg.RefillInterval <= 0 { cfg.RefillInterval = time.Second }
    minTTL := 5 * cfg.RefillInterval
    if cfg.TTL < minTTL { cfg.TTL = minTTL }
    return cfg
}

func envStr(k, d string) string { if v := os.Getenv(k); v != "" { return v }; return d }
func envBool(k string, d bool) bool {
    v := os.Getenv(k)
    if v == "" { return d }
    switch strings.ToLower(v) {
    case "1", "true", "yes", "on": return true
    case "0", "false", "no", "off": return false
    }
    return d
}
func envInt(k string, d int) int {
    v := os.Getenv(k); if v == "" { return d }
    if n, err := strconv.Atoi(v); err == nil { return n }
    return d
}
func envDur(k string, d time.Duration) time.Duration {
    v := os.Getenv(k); if v == "" { return d }
    if dur, err := time.ParseDuration(v); err == nil { return dur }
    return d
}
