package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ActionLimit bounds one class of actions to Limit admissions per
// Window for a given identity.
type ActionLimit struct {
	Limit  int
	Window time.Duration
}

// RateLimitConfig carries independently configured limits per action.
// An action not present in Actions falls back to Default. Identities
// are limited per (identity, action) pair, never globally.
type RateLimitConfig struct {
	Prefix  string
	Default ActionLimit
	Actions map[string]ActionLimit
}

// LoadRateLimitConfig reads per-action limits from the environment.
// Each action reads RATE_LIMIT_<ACTION> (count) and
// RATE_LIMIT_<ACTION>_WINDOW (duration); defaults mirror the kiosk's
// abuse profile: sign-in and asset mutations are tight, lookups looser.
func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Prefix:  envStr("RATE_LIMIT_PREFIX", "rl"),
		Default: actionLimit("DEFAULT", 100, time.Hour),
		Actions: map[string]ActionLimit{
			"signin":   actionLimit("SIGNIN", 10, time.Minute),
			"scan":     actionLimit("SCAN", 20, time.Minute),
			"lookup":   actionLimit("LOOKUP", 30, time.Minute),
			"checkout": actionLimit("CHECKOUT", 10, time.Minute),
			"checkin":  actionLimit("CHECKIN", 10, time.Minute),
			"transfer": actionLimit("TRANSFER", 10, time.Minute),
			"admin":    actionLimit("ADMIN", 20, time.Hour),
		},
	}
	for name, al := range cfg.Actions {
		if al.Limit < 1 || al.Window <= 0 {
			cfg.Actions[name] = cfg.Default
		}
	}
	return cfg
}

// Limit returns the configured limit for an action, falling back to the
// default when the action is unknown.
func (c RateLimitConfig) Limit(action string) ActionLimit {
	if al, ok := c.Actions[action]; ok {
		return al
	}
	return c.Default
}

func actionLimit(name string, defLimit int, defWindow time.Duration) ActionLimit {
	key := "RATE_LIMIT_" + strings.ToUpper(name)
	al := ActionLimit{Limit: defLimit, Window: defWindow}
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			al.Limit = n
		}
	}
	if v := os.Getenv(key + "_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			al.Window = d
		}
	}
	return al
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
