/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/turnstyle/internal/auth"
	"github.com/friendsincode/turnstyle/internal/channel"
	"github.com/friendsincode/turnstyle/internal/client"
	"github.com/friendsincode/turnstyle/internal/telemetry"
)

// Client-initiated methods. Everything else on the wire is a response to a
// coordinator request and is handled by the peer's correlation table.
const (
	methodJoinDjs     = "joinDjs"
	methodLeaveDjs    = "leaveDjs"
	methodStepDown    = "stepDown"
	methodSkipTrack   = "skipTrack"
	methodVote        = "vote"
	methodUpdateDjs   = "updateDjs"
	methodSleeping    = "sleeping"
	methodPushMessage = "pushMessage"
)

// handleWebSocket upgrades the connection, authenticates the bearer token
// and binds the peer to the channel's coordinator for the life of the
// socket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "id")
	if channelID == "" {
		http.Error(w, "channel id required", http.StatusBadRequest)
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		token = r.Header.Get("Authorization")
	}
	claims, err := auth.Parse([]byte(s.cfg.JWTSigningKey), token)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	coord, err := s.registry.GetOrCreate(r.Context(), channelID)
	if err != nil {
		s.logger.Error().Err(err).Str("channel", channelID).Msg("room boot failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}

	peer := client.NewWSPeer(conn, client.Info{
		UserID:      claims.UserID,
		Country:     claims.Country,
		Mobile:      claims.Mobile,
		CatalogAuth: claims.CatalogAuth,
	}, s.logger)

	telemetry.WebsocketConnections.Inc()
	defer telemetry.WebsocketConnections.Dec()

	s.logger.Debug().
		Str("user", claims.UserID).
		Str("channel", channelID).
		Msg("peer connected")

	coord.Join(peer)
	defer coord.Leave(peer.ID())

	err = peer.ReadPump(r.Context(), func(p *client.WSPeer, method string, params json.RawMessage) {
		s.dispatch(coord, p, method, params)
	})
	if err != nil {
		s.logger.Debug().Err(err).Str("user", claims.UserID).Msg("peer disconnected")
	}
}

type voteParams struct {
	Dope       int `json:"dope"`
	Nope       int `json:"nope"`
	Star       int `json:"star"`
	Chat       int `json:"chat"`
	VotedCount int `json:"votedCount"`
}

type reorderParams struct {
	DJs []string `json:"djs"`
}

type sleepingParams struct {
	Sleeping bool `json:"sleeping"`
}

type pushParams struct {
	Payload string `json:"payload"`
	Type    string `json:"type"`
}

// dispatch routes a client command to the room's coordinator. Malformed
// params drop the frame; the protocol carries no error replies for
// notifications.
func (s *Server) dispatch(coord *channel.Coordinator, peer *client.WSPeer, method string, params json.RawMessage) {
	switch method {
	case methodJoinDjs:
		coord.JoinDJs(peer.ID())
	case methodLeaveDjs:
		coord.LeaveDJs(peer.ID())
	case methodStepDown:
		coord.StepDown(peer.ID())
	case methodSkipTrack:
		coord.Skip()
	case methodVote:
		var p voteParams
		if err := json.Unmarshal(params, &p); err != nil {
			return
		}
		coord.Vote(peer.ID(), channel.Vote{
			Dope:       p.Dope,
			Nope:       p.Nope,
			Star:       p.Star,
			Chat:       p.Chat,
			VotedCount: p.VotedCount,
		})
	case methodUpdateDjs:
		var p reorderParams
		if err := json.Unmarshal(params, &p); err != nil {
			return
		}
		coord.ReorderDJs(p.DJs)
	case methodSleeping:
		var p sleepingParams
		if err := json.Unmarshal(params, &p); err != nil {
			return
		}
		peer.SetSleeping(p.Sleeping)
	case methodPushMessage:
		var p pushParams
		if err := json.Unmarshal(params, &p); err != nil {
			return
		}
		coord.NoteChat(peer.ID())
		coord.PushChat(p.Type, p.Payload)
	default:
		s.logger.Debug().Str("method", method).Msg("unknown client method ignored")
	}
}
