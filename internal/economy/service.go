/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package economy grants in-room currency. Like achievements, every grant
// is fire-and-forget; failures are logged, never retried.
package economy

import (
	"context"
	"time"

	"github.com/friendsincode/turnstyle/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Grant amounts and reason codes.
const (
	CoinsVotingOnATrack  = 1
	CoinsPlayPerListener = 2

	ReasonVotesGiven    = "votesGiven"
	ReasonVotesReceived = "votesReceived"
	ReasonPlays         = "plays"
)

// Service persists coin transactions.
type Service struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// New creates the economy service.
func New(db *gorm.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "economy").Logger(),
	}
}

// CreateTransaction grants amount to userID with a reason code.
func (s *Service) CreateTransaction(ctx context.Context, userID string, amount int, reason string) {
	if amount == 0 {
		return
	}
	tx := models.CoinTransaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&tx).Error; err != nil {
		s.logger.Error().Err(err).Str("user", userID).Str("reason", reason).Msg("create transaction failed")
	}
}
