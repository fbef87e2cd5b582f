// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds everything the binaries need to start.
type Config struct {
	ListenAddr string
	PgDSN      string

	AuthSecret string
	TokenTTL   time.Duration

	RateBurst     int
	RatePerSecond int
	MaxBodyBytes  int64

	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// FromEnv builds a Config from BIBLIO_* environment variables with defaults
// suitable for local development.
func FromEnv() (Config, error) {
	cfg := Config{
		ListenAddr:        env("BIBLIO_HTTP_ADDR", ":8080"),
		PgDSN:             env("BIBLIO_PG_DSN", ""),
		AuthSecret:        env("BIBLIO_AUTH_SECRET", ""),
		TokenTTL:          time.Duration(envInt("BIBLIO_TOKEN_TTL_MIN", 60)) * time.Minute,
		RateBurst:         envInt("BIBLIO_RATE_BURST", 20),
		RatePerSecond:     envInt("BIBLIO_RATE_PER_SECOND", 10),
		MaxBodyBytes:      int64(envInt("BIBLIO_MAX_BODY_KB", 1024)) * 1024,
		DBMaxOpenConns:    envInt("BIBLIO_DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:    envInt("BIBLIO_DB_MAX_IDLE_CONNS", 10),
		DBConnMaxLifetime: time.Duration(envInt("BIBLIO_DB_CONN_MAX_LIFETIME_MIN", 30)) * time.Minute,
		HTTPReadTimeout:   time.Duration(envInt("BIBLIO_HTTP_READ_TIMEOUT_SEC", 15)) * time.Second,
		HTTPWriteTimeout:  time.Duration(envInt("BIBLIO_HTTP_WRITE_TIMEOUT_SEC", 15)) * time.Second,
		HTTPIdleTimeout:   time.Duration(envInt("BIBLIO_HTTP_IDLE_TIMEOUT_SEC", 60)) * time.Second,
	}

	if cfg.TokenTTL <= 0 {
		return Config{}, fmt.Errorf("token TTL must be positive")
	}
	if cfg.RateBurst <= 0 || cfg.RatePerSecond <= 0 {
		return Config{}, fmt.Errorf("invalid rate limit config")
	}
	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("max body size must be positive")
	}
	if cfg.DBMaxOpenConns <= 0 || cfg.DBMaxIdleConns < 0 {
		return Config{}, fmt.Errorf("invalid DB pool config")
	}
	return cfg, nil
}

func env(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return def
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}
