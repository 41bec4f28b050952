package config

import (
	"strings"
	"time"
)

// RateLimitConfig configures one token bucket.  The scanner endpoint and the
// public registration endpoint each get their own bucket so a busy check-in
// desk never starves sign-ups and vice versa.
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

// LoadRateLimitConfig reads <SCOPE>_RATE_LIMIT_* variables, e.g.
// SCAN_RATE_LIMIT_CAPACITY.  Values are clamped to sane minimums.
func LoadRateLimitConfig(scope string, defCapacity int) RateLimitConfig {
	p := strings.ToUpper(scope) + "_RATE_LIMIT_"
	rl := RateLimitConfig{
		Enabled:        envBool(p+"ENABLED", true),
		Capacity:       envInt(p+"CAPACITY", defCapacity),
		RefillTokens:   envInt(p+"REFILL_TOKENS", 1),
		RefillInterval: envDur(p+"REFILL_INTERVAL", time.Second),
		TTL:            envDur(p+"TTL", 10*time.Minute),
		KeyStrategy:    envStr(p+"KEY_STRATEGY", "ip_user_route"),
		Prefix:         envStr(p+"PREFIX", "rl:"+strings.ToLower(scope)),
		Debug:          envBool(p+"DEBUG", false),
	}
	if rl.Capacity < 1 {
		rl.Capacity = 1
	}
	if rl.RefillTokens < 1 {
		rl.RefillTokens = 1
	}
	if rl.RefillInterval <= 0 {
		rl.RefillInterval = time.Second
	}
	if minTTL := 5 * rl.RefillInterval; rl.TTL < minTTL {
		rl.TTL = minTTL
	}
	return rl
}
