package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"bank-reconciliation-backend/internal/services/matching"
)

// InitDB opens the postgres connection from env. DATABASE_URL wins;
// otherwise the DSN is assembled from the usual PG* parts.
func InitDB() *gorm.DB {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
			envOr("PGHOST", "localhost"),
			envOr("PGUSER", "postgres"),
			os.Getenv("PGPASSWORD"),
			envOr("PGDATABASE", "reconciliation"),
			envOr("PGPORT", "5432"),
			envOr("PGSSLMODE", "disable"),
		)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database: ", err)
	}
	return db
}

// ServerAddr is the listen address for the HTTP server.
func ServerAddr() string {
	return ":" + envOr("PORT", "8080")
}

// Matching builds the matching policy from env, falling back to the
// package defaults for anything unset.
func Matching() matching.Config {
	cfg := matching.DefaultConfig()
	cfg.AutoAcceptThreshold = floatEnv("MATCH_AUTO_ACCEPT", cfg.AutoAcceptThreshold)
	cfg.ReviewFloor = floatEnv("MATCH_REVIEW_FLOOR", cfg.ReviewFloor)
	cfg.AmbiguityWindow = floatEnv("MATCH_AMBIGUITY_WINDOW", cfg.AmbiguityWindow)
	cfg.ReplaceDelta = floatEnv("MATCH_REPLACE_DELTA", cfg.ReplaceDelta)
	cfg.NameFloor = floatEnv("MATCH_NAME_FLOOR", cfg.NameFloor)
	cfg.Workers = intEnv("MATCH_WORKERS", cfg.Workers)
	cfg.LookupTimeout = durationEnv("MATCH_LOOKUP_TIMEOUT", cfg.LookupTimeout)
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func floatEnv(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		log.Println("ignoring invalid", key)
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Println("ignoring invalid", key)
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Println("ignoring invalid", key)
	}
	return fallback
}
