package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"time"    // time parses duration values
)

// Config holds all runtime configuration values. Each field corresponds
// to an environment variable. The types reflect how the values are used
// by the engine: strings for identifiers and secrets, durations for
// timeouts and budgets.
type Config struct {
	Env  string // application environment (e.g. "dev", "prod")
	Port string // HTTP port to listen on

	DBUser string // audit database username
	DBPass string // audit database password (optional)
	DBHost string // audit database host address
	DBPort string // audit database port number
	DBName string // audit database name

	InventoryURL   string        // base URL of the remote inventory REST API
	InventoryToken string        // bearer token for the remote inventory
	APITimeout     time.Duration // connect/read timeout per remote call, shorter than the request timeout
	APIRetries     int           // retry budget for transient remote failures

	SessionIdle     time.Duration // inactivity timeout before a session is revoked
	SessionLifetime time.Duration // absolute maximum session lifetime

	DecodeBudget  time.Duration // wall-clock budget for the whole decoder pipeline
	MaxImageBytes int           // upper bound on scanned image payloads

	JWTSecret    string        // secret used to sign admin JWTs
	AdminPass    string        // admin passphrase (hashed at startup when no hash is given)
	AdminHash    string        // bcrypt hash of the admin passphrase (takes precedence)
	AdminTTL     time.Duration // admin token time-to-live
	AdminActorID uint64        // remote inventory subject used for override operations
	BcryptCost   int           // bcrypt cost used when hashing AdminPass at startup
}

// Load reads configuration values from environment variables and
// returns a Config. Required variables are enforced by must() and
// missing values cause the program to exit with a fatal log message.
// Everything else falls back to kiosk-appropriate defaults.
func Load() Config {
	return Config{
		Env:  must("APP_ENV"),  // environment (dev/test/prod)
		Port: must("APP_PORT"), // port to bind the HTTP server

		DBUser: must("DB_USER"),      // audit database user
		DBPass: os.Getenv("DB_PASS"), // audit database password (empty allowed)
		DBHost: must("DB_HOST"),      // audit database host
		DBPort: must("DB_PORT"),      // audit database port
		DBName: must("DB_NAME"),      // audit database name

		InventoryURL:   must("INVENTORY_API_URL"),              // remote inventory base URL
		InventoryToken: must("INVENTORY_API_TOKEN"),            // remote inventory bearer token
		APITimeout:     envDur("INVENTORY_API_TIMEOUT", "10s"), // per-call remote timeout
		APIRetries:     envInt("INVENTORY_API_RETRIES", 3),     // transient-failure retry budget

		SessionIdle:     envDur("SESSION_IDLE_TIMEOUT", "30m"),   // inactivity window
		SessionLifetime: envDur("SESSION_MAX_LIFETIME", "8h"),    // absolute lifetime
		DecodeBudget:    envDur("DECODE_BUDGET", "1500ms"),       // pipeline wall-clock budget
		MaxImageBytes:   envInt("MAX_IMAGE_BYTES", 10*1024*1024), // 10MB scan upload cap

		JWTSecret:    must("JWT_SECRET"),                 // admin JWT signing secret
		AdminPass:    os.Getenv("ADMIN_PASSPHRASE"),      // plain passphrase, hashed at startup
		AdminHash:    os.Getenv("ADMIN_PASSPHRASE_HASH"), // pre-computed bcrypt hash
		AdminTTL:     envDur("ADMIN_TOKEN_TTL", "15m"),   // admin token lifetime
		AdminActorID: envUint("ADMIN_ACTOR_ID", 0),       // inventory subject for overrides
		BcryptCost:   envInt("BCRYPT_COST", 12),          // cost for startup hashing
	}
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// envInt returns the integer value of an environment variable or the
// supplied default when the variable is unset or malformed.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return def
}

// envUint is like envInt for unsigned identifiers.
func envUint(key string, def uint64) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if n, err := strconv.ParseUint(v, 10, 64); err == nil {
		return n
	}
	return def
}

// envDur parses a duration-valued environment variable, falling back to
// the supplied default string (which must itself parse).
func envDur(key, def string) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	d, err := time.ParseDuration(def)
	if err != nil {
		log.Fatalf("invalid default duration for %s: %q", key, def)
	}
	return d
}
