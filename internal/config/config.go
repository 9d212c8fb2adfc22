/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	DBBackend   DatabaseBackend
	DBDSN       string
	MetricsBind string

	JWTSigningKey string

	// Broker publication of finished plays (stats ingestion).
	NATSURL     string
	BrokerTopic string

	// Redis-backed user profile cache.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Catalog lookups for stored-stack sourcing.
	CatalogBaseURL string

	// Scrobbling. Empty API key disables the default instance.
	LastfmAPIKey    string
	LastfmAPISecret string
	LastfmSession   string

	// How long a DJ client gets to answer a nextChannelTrack request.
	SourcingTimeout time.Duration

	// Resident bot DJ.
	BotEnabled      bool
	BotDisplayName  string
	BotPlaylistPath string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("TURNSTYLE_ENV", "development"),
		HTTPBind:    getEnv("TURNSTYLE_HTTP_BIND", "0.0.0.0"),
		HTTPPort:    getEnvInt("TURNSTYLE_HTTP_PORT", 8080),
		DBBackend:   DatabaseBackend(getEnv("TURNSTYLE_DB_BACKEND", string(DatabasePostgres))),
		DBDSN:       getEnv("TURNSTYLE_DB_DSN", ""),
		MetricsBind: getEnv("TURNSTYLE_METRICS_BIND", "127.0.0.1:9000"),

		JWTSigningKey: getEnv("TURNSTYLE_JWT_SIGNING_KEY", ""),

		NATSURL:     getEnv("TURNSTYLE_NATS_URL", ""),
		BrokerTopic: getEnv("TURNSTYLE_BROKER_TOPIC", "track-finished"),

		RedisAddr:     getEnv("TURNSTYLE_REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("TURNSTYLE_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("TURNSTYLE_REDIS_DB", 0),

		CatalogBaseURL: getEnv("TURNSTYLE_CATALOG_BASE_URL", "https://api.spotify.com/v1"),

		LastfmAPIKey:    getEnv("TURNSTYLE_LASTFM_API_KEY", ""),
		LastfmAPISecret: getEnv("TURNSTYLE_LASTFM_API_SECRET", ""),
		LastfmSession:   getEnv("TURNSTYLE_LASTFM_SESSION", ""),

		SourcingTimeout: time.Duration(getEnvInt("TURNSTYLE_SOURCING_TIMEOUT_MS", 2500)) * time.Millisecond,

		BotEnabled:      getEnvBool("TURNSTYLE_BOT_ENABLED", false),
		BotDisplayName:  getEnv("TURNSTYLE_BOT_DISPLAY_NAME", "turnstyle"),
		BotPlaylistPath: getEnv("TURNSTYLE_BOT_PLAYLIST", ""),

		TracingEnabled:    getEnvBool("TURNSTYLE_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("TURNSTYLE_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("TURNSTYLE_TRACING_SAMPLE_RATE", 1.0),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("TURNSTYLE_DB_DSN must be provided")
	}

	if cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("TURNSTYLE_JWT_SIGNING_KEY must be provided")
	}

	if cfg.SourcingTimeout <= 0 {
		return nil, fmt.Errorf("TURNSTYLE_SOURCING_TIMEOUT_MS must be positive")
	}

	if cfg.BotEnabled && cfg.BotPlaylistPath == "" {
		return nil, fmt.Errorf("TURNSTYLE_BOT_PLAYLIST must be provided when the bot is enabled")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}
