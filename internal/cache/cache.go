/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based cache for user profiles, which the
// roster payload builder reads on every join/leave broadcast.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/friendsincode/turnstyle/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Default TTL values.
const (
	DefaultProfileTTL = 5 * time.Minute
)

// Key prefixes for Redis cache.
const (
	KeyProfile = "turnstyle:cache:profile:" // + user_id
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ProfileTTL time.Duration

	// If true, disable caching on Redis errors.
	DisableOnError bool
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		ProfileTTL:     DefaultProfileTTL,
		DisableOnError: true,
	}
}

// Cache provides Redis-backed caching with graceful fallback.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool
}

// New creates a new cache instance. When Redis is unreachable the cache
// starts disabled and every lookup misses.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		return &Cache{
			logger:   logger.With().Str("component", "cache").Logger(),
			config:   cfg,
			disabled: true,
		}, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")

	return &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
	}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

func (c *Cache) handleError(err error, operation string) {
	if err == nil || err == redis.Nil {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

// GetProfile returns a cached user profile, or (nil, false) on miss.
func (c *Cache) GetProfile(ctx context.Context, userID string) (*models.User, bool) {
	if !c.IsAvailable() {
		return nil, false
	}

	data, err := c.client.Get(ctx, KeyProfile+userID).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.handleError(err, "get")
		return nil, false
	}

	var user models.User
	if err := json.Unmarshal(data, &user); err != nil {
		c.logger.Debug().Err(err).Str("user", userID).Msg("failed to unmarshal cached profile")
		return nil, false
	}
	return &user, true
}

// SetProfile stores a user profile with the configured TTL.
func (c *Cache) SetProfile(ctx context.Context, user *models.User) error {
	if !c.IsAvailable() || user == nil {
		return nil
	}

	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	if err := c.client.Set(ctx, KeyProfile+user.ID, data, c.config.ProfileTTL).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}
	return nil
}

// InvalidateProfile drops a cached profile after a settings change.
func (c *Cache) InvalidateProfile(ctx context.Context, userID string) {
	if !c.IsAvailable() {
		return
	}
	if err := c.client.Del(ctx, KeyProfile+userID).Err(); err != nil {
		c.handleError(err, "delete")
	}
}
