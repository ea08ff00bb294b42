package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds service configuration.
type Config struct {
	ServerAddr     string
	DatabaseURL    string
	LedgerBackend  string // "memory" or "postgres"
	MigrationsDir  string
	RiskTablesPath string
	SessionTimeout time.Duration
	RoundWindow    time.Duration
	ReaperInterval time.Duration
	Retention      time.Duration
	APIKeyHash     string
	AuditSignKey   string // hex
	RNGSeed        uint64 // 0 means crypto randomness
}

// Load reads configuration from environment.
func Load() (*Config, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		user := getenv("POSTGRES_USER", "stake_engine")
		pass := getenv("POSTGRES_PASSWORD", "stake_engine_pass")
		db := getenv("POSTGRES_DB", "stake_engine")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}

	backend := getenv("LEDGER_BACKEND", "memory")
	if backend != "memory" && backend != "postgres" {
		return nil, fmt.Errorf("unknown LEDGER_BACKEND %q", backend)
	}

	return &Config{
		ServerAddr:     getenv("SERVER_ADDR", "0.0.0.0:8080"),
		DatabaseURL:    dsn,
		LedgerBackend:  backend,
		MigrationsDir:  getenv("MIGRATIONS_DIR", "internal/migrations"),
		RiskTablesPath: getenv("RISK_TABLES", "configs/risktables.yaml"),
		SessionTimeout: parseDuration(getenv("SESSION_TIMEOUT", "30m"), 30*time.Minute),
		RoundWindow:    parseDuration(getenv("ROUND_WINDOW", "30s"), 30*time.Second),
		ReaperInterval: parseDuration(getenv("REAPER_INTERVAL", "10s"), 10*time.Second),
		Retention:      parseDuration(getenv("RETENTION", "24h"), 24*time.Hour),
		APIKeyHash:     os.Getenv("API_KEY_HASH"),
		AuditSignKey:   os.Getenv("AUDIT_SIGNING_KEY"),
		RNGSeed:        parseUint(os.Getenv("RNG_SEED"), 0),
	}, nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func parseUint(val string, def uint64) uint64 {
	if val == "" {
		return def
	}
	u, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return def
	}
	return u
}
