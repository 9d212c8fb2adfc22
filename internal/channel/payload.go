/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package channel

import (
	"time"

	"github.com/friendsincode/turnstyle/internal/catalog"
)

// Payload builders are pure functions of current state. Every timestamp is
// wall-clock at build time so repeated builds reflect drift.

func nowMillis() int64 { return time.Now().UnixMilli() }

// DJsParams is the rotation broadcast.
type DJsParams struct {
	Type     string   `json:"type"`
	DJs      []string `json:"djs"`
	SyncTime int64    `json:"syncTime"`
}

// BuildDJsParams renders the ordered rotation.
func BuildDJsParams(ids []string) DJsParams {
	return DJsParams{Type: "updateDjs", DJs: ids, SyncTime: nowMillis()}
}

// RosterUser merges a persisted profile with live connection attributes.
type RosterUser struct {
	ID          string `json:"_id"`
	UserName    string `json:"userName"`
	DisplayName string `json:"displayName,omitempty"`
	Country     string `json:"country,omitempty"`
	Mobile      bool   `json:"mobile"`
	Bot         bool   `json:"bot,omitempty"`
}

// UsersParams is the roster broadcast.
type UsersParams struct {
	Type          string         `json:"type"`
	SyncTime      int64          `json:"syncTime"`
	Users         []RosterUser   `json:"users"`
	UsersInRegion map[string]int `json:"usersInRegion"`
}

// BuildUsersParams renders the roster with per-region counts.
func BuildUsersParams(eventType string, users []RosterUser, usersInRegion map[string]int) UsersParams {
	regions := make(map[string]int, len(usersInRegion))
	for region, count := range usersInRegion {
		regions[region] = count
	}
	return UsersParams{Type: eventType, SyncTime: nowMillis(), Users: users, UsersInRegion: regions}
}

// MeterParams is the live vote broadcast.
type MeterParams struct {
	Voting map[string]*Vote `json:"voting"`
}

// BuildMeterParams renders the current vote map.
func BuildMeterParams(votes map[string]*Vote) MeterParams {
	return MeterParams{Voting: votes}
}

// PlayTrackParams instructs a natively-playing client to start the track,
// offset by however much has already elapsed.
type PlayTrackParams struct {
	URI      string `json:"uri"`
	StartAt  int64  `json:"startAt"`
	SyncTime int64  `json:"syncTime"`
}

// BuildPlayTrackParams computes the catch-up offset from wall clock.
func BuildPlayTrackParams(np *NowPlaying) PlayTrackParams {
	return PlayTrackParams{
		URI:      np.Track.URI,
		StartAt:  np.Track.DurationMS - np.EndsAt.Sub(time.Now()).Milliseconds(),
		SyncTime: nowMillis(),
	}
}

// PlayChannelTrackParams is the full state snapshot. PlayTrack false tells
// the client to update its view without issuing its own play command.
type PlayChannelTrackParams struct {
	PlayTrack bool             `json:"playTrack"`
	Track     *catalog.Track   `json:"track"`
	Voting    map[string]*Vote `json:"voting"`
	EndsAt    int64            `json:"endsAt"`
	StartAt   int64            `json:"startAt"`
	SyncTime  int64            `json:"syncTime"`
}

// BuildPlayChannelTrackParams renders the snapshot.
func BuildPlayChannelTrackParams(np *NowPlaying, playTrack bool) PlayChannelTrackParams {
	return PlayChannelTrackParams{
		PlayTrack: playTrack,
		Track:     np.Track,
		Voting:    np.Votes,
		EndsAt:    np.EndsAt.UnixMilli(),
		StartAt:   np.Track.DurationMS - np.EndsAt.Sub(time.Now()).Milliseconds(),
		SyncTime:  nowMillis(),
	}
}

// HistoryParams is the finished-play broadcast.
type HistoryParams struct {
	Track       *catalog.Track `json:"track"`
	VoteSummary VoteSummary    `json:"voteSummary"`
	Timestamp   int64          `json:"timestamp"`
	Skipped     bool           `json:"skipped"`
	PlayedBy    RosterUser     `json:"playedBy"`
	SyncTime    int64          `json:"syncTime"`
}

// BuildHistoryParams renders the finalized play for broadcast.
func BuildHistoryParams(track *catalog.Track, summary VoteSummary, startedAt time.Time, skipped bool, playedBy RosterUser) HistoryParams {
	return HistoryParams{
		Track:       track,
		VoteSummary: summary,
		Timestamp:   startedAt.UnixMilli(),
		Skipped:     skipped,
		PlayedBy:    playedBy,
		SyncTime:    nowMillis(),
	}
}

// PushMessageParams is a server-originated chat line.
type PushMessageParams struct {
	Payload string `json:"payload"`
	Type    string `json:"type"`
}
