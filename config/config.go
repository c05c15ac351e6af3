/*
Package config loads runtime configuration from the environment.

PURPOSE:
  Central place for every tunable: server address, database path, logging,
  rate limiting, the reconciliation interval and demo seeding. A .env file
  is loaded when present so local development needs no exported variables.

PRECEDENCE:
  Command-line flags (cmd/server) > environment variables > defaults.
  Flags cover the two values people override most (port, db path); the
  rest is environment-only.

VARIABLES:
  PORT                 HTTP port (default 8080)
  DB_PATH              SQLite path, ":memory:" supported (default progress.db)
  LOG_LEVEL            debug|info|warn|error (default info)
  LOG_PATH             Log file path; empty means stdout only
  LOG_MAX_SIZE_MB      Rotate after this many MB (default 100)
  LOG_MAX_BACKUPS      Rotated files to keep (default 7)
  LOG_MAX_AGE_DAYS     Days to keep rotated files (default 28)
  RATE_LIMIT_RPS       Per-IP requests per second (default 20)
  RATE_LIMIT_BURST     Per-IP burst size (default 40)
  RECONCILE_INTERVAL   Total/ledger audit period (default 1h)
  CORS_ORIGINS         Comma-separated allowed origins
  SEED_DEMO            "true" loads the demo challenge catalog on boot
*/
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings.
type Config struct {
	Port   int
	DBPath string

	LogLevel     string
	LogPath      string
	LogMaxSizeMB int
	LogMaxBackup int
	LogMaxAgeDay int

	RateLimitRPS   float64
	RateLimitBurst int

	ReconcileInterval time.Duration

	CORSOrigins []string

	SeedDemo bool
}

// Load reads a .env file if one exists, then the environment, applying
// defaults for anything unset. It never fails: a missing .env is normal
// and malformed numeric values fall back to their defaults.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:   envInt("PORT", 8080),
		DBPath: envStr("DB_PATH", "progress.db"),

		LogLevel:     envStr("LOG_LEVEL", "info"),
		LogPath:      envStr("LOG_PATH", ""),
		LogMaxSizeMB: envInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackup: envInt("LOG_MAX_BACKUPS", 7),
		LogMaxAgeDay: envInt("LOG_MAX_AGE_DAYS", 28),

		RateLimitRPS:   envFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: envInt("RATE_LIMIT_BURST", 40),

		ReconcileInterval: envDuration("RECONCILE_INTERVAL", time.Hour),

		CORSOrigins: envList("CORS_ORIGINS", []string{
			"http://localhost:5173",
			"http://localhost:8080",
		}),

		SeedDemo: envBool("SEED_DEMO", false),
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func envList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
