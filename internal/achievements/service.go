/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package achievements records achievement and vote-ledger events. Writes
// are fire-and-forget: a failed insert is logged and never retried, and the
// coordinator never waits on one.
package achievements

import (
	"context"
	"time"

	"github.com/friendsincode/turnstyle/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Achievement names the coordinator logs.
const (
	NamePlays         = "plays"
	NamePlayedFirst   = "playedFirst"
	NameDeletedTrack  = "deletedTrack"
	NameVotesGiven    = "votesGiven"
	NameVotesReceived = "votesReceived"
)

// Service persists achievement events.
type Service struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// New creates the achievements service.
func New(db *gorm.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "achievements").Logger(),
	}
}

// Log records a named achievement for a user.
func (s *Service) Log(ctx context.Context, userID, name string) {
	s.insert(ctx, userID, name, nil)
}

// LogVotesGiven records the votes a listener cast on a finished play.
func (s *Service) LogVotesGiven(ctx context.Context, userID string, votes map[string]any) {
	s.insert(ctx, userID, NameVotesGiven, votes)
}

// LogVotesReceived records the aggregate votes a DJ's play earned.
func (s *Service) LogVotesReceived(ctx context.Context, userID string, votes map[string]any) {
	s.insert(ctx, userID, NameVotesReceived, votes)
}

func (s *Service) insert(ctx context.Context, userID, name string, detail map[string]any) {
	event := models.AchievementEvent{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		s.logger.Error().Err(err).Str("user", userID).Str("name", name).Msg("log achievement failed")
	}
}
