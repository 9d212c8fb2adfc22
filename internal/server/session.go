/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/friendsincode/turnstyle/internal/auth"
)

const sessionTTL = 24 * time.Hour

type sessionRequest struct {
	UserName    string `json:"userName"`
	Password    string `json:"password"`
	Mobile      bool   `json:"mobile"`
	CatalogAuth string `json:"catalogAuth,omitempty"`
}

type sessionResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

// handleSession exchanges credentials for a signed connection token. The
// token carries the connection attributes the coordinator needs: country,
// mobile flag and the catalog credential for stack resolution.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserName == "" || req.Password == "" {
		http.Error(w, "userName and password required", http.StatusBadRequest)
		return
	}

	user, err := s.store.FindUserByName(r.Context(), req.UserName)
	if err != nil {
		s.logger.Error().Err(err).Msg("session lookup failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := auth.Issue([]byte(s.cfg.JWTSigningKey), auth.Claims{
		UserID:      user.ID,
		Country:     user.Country,
		Mobile:      req.Mobile,
		CatalogAuth: req.CatalogAuth,
	}, sessionTTL)
	if err != nil {
		s.logger.Error().Err(err).Msg("token issue failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sessionResponse{Token: token, UserID: user.ID})
}

// handleHistory serves the recent play history for a channel.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	rows, err := s.store.RecentHistory(r.Context(), channelID, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("history query failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"history": rows, "count": len(rows)})
}
