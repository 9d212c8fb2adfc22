/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/turnstyle/internal/achievements"
	"github.com/friendsincode/turnstyle/internal/bot"
	"github.com/friendsincode/turnstyle/internal/cache"
	"github.com/friendsincode/turnstyle/internal/catalog"
	"github.com/friendsincode/turnstyle/internal/channel"
	"github.com/friendsincode/turnstyle/internal/config"
	"github.com/friendsincode/turnstyle/internal/db"
	"github.com/friendsincode/turnstyle/internal/economy"
	"github.com/friendsincode/turnstyle/internal/eventbus"
	"github.com/friendsincode/turnstyle/internal/events"
	"github.com/friendsincode/turnstyle/internal/logging"
	"github.com/friendsincode/turnstyle/internal/scrobble"
	"github.com/friendsincode/turnstyle/internal/server"
	"github.com/friendsincode/turnstyle/internal/store"
	"github.com/friendsincode/turnstyle/internal/telemetry"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "turnstyle",
	Short: "Turnstyle - shared listening room coordinator",
	Long:  "Turnstyle runs shared listening rooms: rotating DJ queues, synchronized playback and vote-scored play history.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Turnstyle server",
	Long:  "Start the websocket endpoint, session exchange and room coordinators",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.Setup(cfg.Environment)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().Msg("Turnstyle starting")

	tracerProvider, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "turnstyle",
		ServiceVersion: "0.1.0",
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close(database)

	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	profileCache, err := cache.New(cache.Config{
		RedisAddr:      cfg.RedisAddr,
		RedisPassword:  cfg.RedisPassword,
		RedisDB:        cfg.RedisDB,
		ProfileTTL:     cache.DefaultProfileTTL,
		DisableOnError: true,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize cache: %w", err)
	}
	defer profileCache.Close()

	var publisher eventbus.Publisher = eventbus.NoopPublisher{}
	if cfg.NATSURL != "" {
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = cfg.NATSURL
		natsPub, err := eventbus.NewNATSPublisher(natsCfg, logger)
		if err != nil {
			logger.Error().Err(err).Msg("broker unavailable, finished plays will not be published")
		} else {
			publisher = natsPub
		}
	}
	defer publisher.Close()

	bus := events.NewBus()
	svc := store.New(database, profileCache, logger)

	var residentBot *bot.Bot
	if cfg.BotEnabled {
		playlist, err := bot.LoadPlaylist(cfg.BotPlaylistPath)
		if err != nil {
			return fmt.Errorf("load bot playlist: %w", err)
		}
		if playlist.DisplayName == "" {
			playlist.DisplayName = cfg.BotDisplayName
		}
		residentBot = bot.New(playlist, bus, logger)
	}

	var defaultScrobble *scrobble.Instance
	if cfg.LastfmAPIKey != "" {
		defaultScrobble = &scrobble.Instance{
			APIKey:     cfg.LastfmAPIKey,
			APISecret:  cfg.LastfmAPISecret,
			SessionKey: cfg.LastfmSession,
		}
	}

	registry := channel.NewRegistry(channel.RegistryConfig{
		SourcingTimeout: cfg.SourcingTimeout,
		BrokerTopic:     cfg.BrokerTopic,
		DefaultScrobble: defaultScrobble,
	}, channel.Deps{
		Store:        svc,
		Catalog:      catalog.NewHTTPClient(cfg.CatalogBaseURL),
		Scrobbler:    scrobble.NewClient(logger),
		Achievements: achievements.New(database, logger),
		Economy:      economy.New(database, logger),
		Publisher:    publisher,
		Bus:          bus,
		Bot:          residentBot,
		Logger:       logger,
	})

	srv := server.New(cfg, registry, svc, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-quit:
	}

	logger.Info().Msg("shutting down gracefully...")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("Turnstyle stopped")
	return nil
}
