package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures process-level configuration so main stays lean. Everything
// is env-driven; zero values mean "not configured" and wiring falls back to
// in-memory implementations.
type Config struct {
	Addr          string
	JWTSigningKey string

	// Administrator is the registry administrator's account address. It
	// controls template rotation, pause and fee sweep.
	Administrator string

	// PostgresURL enables the postgres-backed record, ledger and event
	// stores. Empty runs fully in memory.
	PostgresURL string

	// RedisURL enables the keeper leader lock for multi-replica deployments.
	RedisURL string

	// KafkaBrokers enables the Kafka event publisher.
	KafkaBrokers []string
	KafkaTopic   string

	// Keeper pass scheduling.
	KeeperInterval time.Duration
	KeeperBatchMax int

	// YieldBps is the simulated venue's accrual rate in basis points of
	// principal per investment round trip.
	YieldBps int
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr:           envOr("RENTVAULT_ADDR", ":8080"),
		JWTSigningKey:  envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		Administrator:  envOr("RENTVAULT_ADMIN", "admin"),
		PostgresURL:    os.Getenv("RENTVAULT_POSTGRES_URL"),
		RedisURL:       os.Getenv("RENTVAULT_REDIS_URL"),
		KafkaTopic:     envOr("RENTVAULT_KAFKA_TOPIC", "rentvault.escrow-events"),
		KeeperInterval: envDurationOr("RENTVAULT_KEEPER_INTERVAL", time.Minute),
		KeeperBatchMax: envIntOr("RENTVAULT_KEEPER_BATCH_MAX", 25),
		YieldBps:       envIntOr("RENTVAULT_YIELD_BPS", 200),
	}
	if brokers := os.Getenv("RENTVAULT_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
