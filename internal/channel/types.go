/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package channel implements the per-room playback coordinator: the DJ
// rotation, the track sourcing strategies, the playing-track state machine
// and the vote aggregation that feeds history.
package channel

import (
	"time"

	"github.com/friendsincode/turnstyle/internal/catalog"
	"github.com/friendsincode/turnstyle/internal/client"
)

// Vote is one listener's reaction record for the playing track. Mutable
// while the track plays, frozen once it leaves the deck.
type Vote struct {
	Dope       int `json:"dope"`
	Nope       int `json:"nope"`
	Star       int `json:"star"`
	Chat       int `json:"chat"`
	VotedCount int `json:"votedCount"`
}

// Boofed reports the star+nope combination, tracked as its own reaction.
func (v *Vote) Boofed() bool {
	return v.Star > 0 && v.Nope > 0
}

// VoteSummary is the aggregate attached to a history entry. Listeners is
// the room size at finalize time, not the voter count.
type VoteSummary struct {
	Dope       int `json:"dope"`
	Nope       int `json:"nope"`
	Star       int `json:"star"`
	BoofStar   int `json:"boofStar"`
	VotedCount int `json:"votedCount"`
	Chat       int `json:"chat"`
	Listeners  int `json:"users"`
}

// NowPlaying is the live track. At most one exists per channel.
type NowPlaying struct {
	Track     *catalog.Track
	Album     string
	StartedAt time.Time
	EndsAt    time.Time
	DJID      string
	Votes     map[string]*Vote
}

// Remaining returns time left until the track ends, zero if past.
func (np *NowPlaying) Remaining(now time.Time) time.Duration {
	if remaining := np.EndsAt.Sub(now); remaining > 0 {
		return remaining
	}
	return 0
}

// Entry is one slot in the DJ rotation. Index 0 is in control.
type Entry struct {
	Peer              client.Peer
	StepDownAfterPlay bool
}

// ID returns the entry's user id.
func (e *Entry) ID() string { return e.Peer.ID() }
