/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package store is the persistence mirror for channels. The coordinator
// owns the live state; these writes trail it so reconnecting clients and
// discovery reads see something close to the truth. A failed write never
// blocks playback.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/friendsincode/turnstyle/internal/cache"
	"github.com/friendsincode/turnstyle/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// HistoryCap bounds per-channel history; older rows are trimmed on append.
const HistoryCap = 100

// Service wraps gorm access for the coordinator.
type Service struct {
	db     *gorm.DB
	cache  *cache.Cache
	logger zerolog.Logger
}

// New creates the store service. cache may be nil.
func New(db *gorm.DB, profileCache *cache.Cache, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		cache:  profileCache,
		logger: logger.With().Str("component", "store").Logger(),
	}
}

// FindChannel loads a channel document by id.
func (s *Service) FindChannel(ctx context.Context, id string) (*models.Channel, error) {
	var channel models.Channel
	err := s.db.WithContext(ctx).First(&channel, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find channel: %w", err)
	}
	return &channel, nil
}

// CreateChannel inserts a new channel mirror document.
func (s *Service) CreateChannel(ctx context.Context, channel *models.Channel) error {
	if channel.ID == "" {
		channel.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(channel).Error; err != nil {
		return fmt.Errorf("create channel: %w", err)
	}
	return nil
}

// mutateChannel loads the mirror document, applies fn and saves it back.
// The coordinator is the only writer for its channel, so load-and-save is
// race-free in practice.
func (s *Service) mutateChannel(ctx context.Context, id string, fn func(*models.Channel)) error {
	var channel models.Channel
	if err := s.db.WithContext(ctx).First(&channel, "id = ?", id).Error; err != nil {
		return fmt.Errorf("load channel: %w", err)
	}
	fn(&channel)
	channel.LastTouched = time.Now().UTC()
	if err := s.db.WithContext(ctx).Save(&channel).Error; err != nil {
		return fmt.Errorf("update channel: %w", err)
	}
	return nil
}

// SetPresence mirrors the live listener and DJ lists.
func (s *Service) SetPresence(ctx context.Context, id string, users, djs []string) error {
	return s.mutateChannel(ctx, id, func(ch *models.Channel) {
		ch.Users = users
		ch.DJs = djs
	})
}

// ResetPresence clears the mirrored listener and DJ lists. Called when a
// coordinator boots so stale presence from a previous process is dropped.
func (s *Service) ResetPresence(ctx context.Context, id string) error {
	return s.SetPresence(ctx, id, []string{}, []string{})
}

// SetNowPlaying mirrors the playing track, archiving the previous one.
func (s *Service) SetNowPlaying(ctx context.Context, id string, np map[string]any) error {
	return s.mutateChannel(ctx, id, func(ch *models.Channel) {
		if ch.NowPlaying != nil {
			ch.LastPlayed = ch.NowPlaying
		}
		ch.NowPlaying = np
	})
}

// ClearNowPlaying mirrors a paused deck.
func (s *Service) ClearNowPlaying(ctx context.Context, id string) error {
	return s.SetNowPlaying(ctx, id, nil)
}

// AppendHistory inserts a finished play and trims the channel's history to
// HistoryCap rows, newest first.
func (s *Service) AppendHistory(ctx context.Context, entry *models.PlayedTrack) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("append history: %w", err)
	}

	// Trim rows past the cap. The cutoff is the PlayedAt of the cap-th
	// newest row; anything older goes.
	var cutoff []time.Time
	err := s.db.WithContext(ctx).Model(&models.PlayedTrack{}).
		Where("channel_id = ?", entry.ChannelID).
		Order("played_at DESC").
		Offset(HistoryCap-1).Limit(1).
		Pluck("played_at", &cutoff).Error
	if err != nil {
		return fmt.Errorf("history cutoff: %w", err)
	}
	if len(cutoff) == 0 {
		return nil
	}

	err = s.db.WithContext(ctx).
		Where("channel_id = ? AND played_at < ?", entry.ChannelID, cutoff[0]).
		Delete(&models.PlayedTrack{}).Error
	if err != nil {
		return fmt.Errorf("trim history: %w", err)
	}
	return nil
}

// RecentHistory returns up to limit entries, newest first.
func (s *Service) RecentHistory(ctx context.Context, channelID string, limit int) ([]models.PlayedTrack, error) {
	if limit <= 0 || limit > HistoryCap {
		limit = HistoryCap
	}
	var rows []models.PlayedTrack
	err := s.db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Order("played_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("recent history: %w", err)
	}
	return rows, nil
}

// FindUser loads a user profile, consulting the redis cache first.
func (s *Service) FindUser(ctx context.Context, id string) (*models.User, error) {
	if s.cache != nil {
		if user, ok := s.cache.GetProfile(ctx, id); ok {
			return user, nil
		}
	}

	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetProfile(ctx, &user); err != nil {
			s.logger.Debug().Err(err).Str("user", id).Msg("profile cache write failed")
		}
	}
	return &user, nil
}

// FindUserByName loads a user by user name for the session exchange.
func (s *Service) FindUserByName(ctx context.Context, userName string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "user_name = ?", userName).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user by name: %w", err)
	}
	return &user, nil
}

// FindUsers loads profiles for the roster payload, preserving no order.
func (s *Service) FindUsers(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []models.User
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	return users, nil
}

// ActiveStack returns the user's active, non-deleted stack, or nil.
func (s *Service) ActiveStack(ctx context.Context, userID string) (*models.Stack, error) {
	var stack models.Stack
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND deleted = ? AND active_queue = ?", userID, false, true).
		First(&stack).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active stack: %w", err)
	}
	return &stack, nil
}

// FirstPlay returns the first-play record for an ISRC, or nil.
func (s *Service) FirstPlay(ctx context.Context, isrc string) (*models.FirstPlay, error) {
	if isrc == "" {
		return nil, nil
	}
	var fp models.FirstPlay
	err := s.db.WithContext(ctx).First(&fp, "isrc = ?", isrc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("first play: %w", err)
	}
	return &fp, nil
}

// RecordFirstPlay stores the first-play record for an ISRC. Races across
// channels resolve to whichever insert lands first; the loser is ignored.
func (s *Service) RecordFirstPlay(ctx context.Context, fp *models.FirstPlay) {
	if fp.ISRC == "" {
		return
	}
	fp.CreatedAt = time.Now().UTC()
	if err := s.db.WithContext(ctx).Create(fp).Error; err != nil {
		s.logger.Debug().Err(err).Str("isrc", fp.ISRC).Msg("record first play")
	}
}
