/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package channel

import (
	"context"
	"time"

	"github.com/friendsincode/turnstyle/internal/achievements"
	"github.com/friendsincode/turnstyle/internal/client"
	"github.com/friendsincode/turnstyle/internal/economy"
	"github.com/friendsincode/turnstyle/internal/events"
	"github.com/friendsincode/turnstyle/internal/models"
	"github.com/friendsincode/turnstyle/internal/rpc"
	"github.com/friendsincode/turnstyle/internal/telemetry"
)

// finalizeHistory archives the playing track into a history entry and
// clears the deck. Exactly one entry is produced per track that leaves the
// Playing state. Everything downstream of the summary runs off the command
// sequence; a persistence failure loses the mirror, never the rotation.
func (c *Coordinator) finalizeHistory(skipped bool) {
	np := c.nowPlaying
	if np == nil {
		return
	}
	c.nowPlaying = nil

	listeners := len(c.users)
	summary := SummarizeVotes(np.Votes, np.DJID, listeners)
	score := Score(summary)
	telemetry.TracksPlayed.WithLabelValues(c.id).Inc()

	// Consecutive repeats of the same track scrobble once.
	scrobble := c.lastPlayedTrackID != np.Track.ID
	c.lastPlayedTrackID = np.Track.ID

	peers := c.peerSnapshot()
	go c.finalizeSideEffects(np, summary, score, skipped, listeners, scrobble, peers)
}

func (c *Coordinator) finalizeSideEffects(np *NowPlaying, summary VoteSummary, score int, skipped bool, listeners int, scrobble bool, peers []client.Peer) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rewarded := listeners > 1

	for userID, v := range np.Votes {
		if userID == np.DJID || v == nil || !rewarded {
			continue
		}
		detail := map[string]any{
			"dope":       v.Dope,
			"nope":       v.Nope,
			"star":       v.Star,
			"chat":       v.Chat,
			"votedCount": v.VotedCount,
		}
		if v.Boofed() {
			detail["star"] = 0
			detail["nope"] = 0
			detail["boofStar"] = 1
		}
		c.deps.Achievements.LogVotesGiven(ctx, userID, detail)
		c.deps.Economy.CreateTransaction(ctx, userID, economy.CoinsVotingOnATrack, economy.ReasonVotesGiven)
	}
	if rewarded {
		c.deps.Achievements.LogVotesReceived(ctx, np.DJID, map[string]any{
			"dope":       summary.Dope,
			"nope":       summary.Nope,
			"star":       summary.Star,
			"boofStar":   summary.BoofStar,
			"chat":       summary.Chat,
			"votedCount": summary.VotedCount,
			"users":      summary.Listeners,
		})
		c.deps.Economy.CreateTransaction(ctx, np.DJID, economy.CoinsPlayPerListener*(listeners-1), economy.ReasonPlays)
		c.deps.Economy.CreateTransaction(ctx, np.DJID, score, economy.ReasonVotesReceived)
	}
	c.deps.Achievements.Log(ctx, np.DJID, achievements.NamePlays)

	entry := &models.PlayedTrack{
		ChannelID:  c.id,
		TrackID:    np.Track.ID,
		URI:        np.Track.URI,
		Title:      np.Track.Name,
		Artists:    np.Track.Artists,
		Album:      np.Album,
		AlbumArt:   np.Track.AlbumArt,
		DurationMS: np.Track.DurationMS,
		ISRC:       np.Track.ISRC,
		DJID:       np.DJID,
		Skipped:    skipped,
		Dope:       summary.Dope,
		Nope:       summary.Nope,
		Star:       summary.Star,
		BoofStar:   summary.BoofStar,
		VotedCount: summary.VotedCount,
		Chat:       summary.Chat,
		Listeners:  summary.Listeners,
		Score:      score,
		PlayedAt:   np.StartedAt,
	}
	if err := c.deps.Store.AppendHistory(ctx, entry); err != nil {
		c.log.Error().Err(err).Msg("history append failed")
	}

	if fp, err := c.deps.Store.FirstPlay(ctx, np.Track.ISRC); err == nil && fp == nil {
		c.deps.Store.RecordFirstPlay(ctx, &models.FirstPlay{
			ISRC:      np.Track.ISRC,
			ChannelID: c.id,
			UserID:    np.DJID,
			Listeners: listeners,
			Score:     score,
		})
	}

	displayName := c.djDisplayName(ctx, np.DJID)
	playedBy := RosterUser{ID: np.DJID, UserName: displayName, DisplayName: displayName}
	n := rpc.NewNotification(rpc.MethodUpdateChannelHistory,
		BuildHistoryParams(np.Track, summary, np.StartedAt, skipped, playedBy))
	for _, peer := range peers {
		if err := peer.Send(n); err != nil {
			c.log.Debug().Err(err).Str("user", peer.ID()).Msg("history send failed")
		}
	}

	if scrobble && c.deps.Scrobbler != nil {
		c.deps.Scrobbler.Scrobble(ctx, c.opts.DefaultScrobble, np.Track.MainArtist(), np.Track.Name, np.Album)
		c.deps.Scrobbler.Scrobble(ctx, c.opts.ChannelScrobble, np.Track.MainArtist(), np.Track.Name, np.Album)
	}

	if c.deps.Publisher != nil {
		c.deps.Publisher.Publish(c.opts.BrokerTopic, map[string]any{
			"channelId": c.id,
			"track": map[string]any{
				"title":   np.Track.Name,
				"artists": np.Track.Artists,
				"album":   np.Album,
				"ISRC":    np.Track.ISRC,
				"votes": map[string]any{
					"dope":      DopeVoters(np.Votes, np.DJID),
					"nopes":     NopeVoters(np.Votes, np.DJID),
					"boofs":     BoofVoters(np.Votes, np.DJID),
					"bookmarks": BookmarkVoters(np.Votes, np.DJID),
				},
			},
			"sender": map[string]any{
				"userId":      np.DJID,
				"displayName": displayName,
			},
			"playedAt": np.StartedAt,
		})
	}

	c.deps.Bus.Publish(events.EventTrackFinished, events.Payload{
		"channelId": c.id,
		"trackId":   np.Track.ID,
		"userId":    np.DJID,
		"score":     score,
		"skipped":   skipped,
	})

	if c.deps.Bot != nil {
		c.deps.Bus.Publish(events.EventTrackFinished, events.Payload{
			"type":      "songPlayed",
			"channelId": c.id,
			"nowPlaying": map[string]any{
				"title":      np.Track.Name,
				"artists":    np.Track.Artists,
				"album":      np.Album,
				"score":      score,
				"popularity": np.Track.Popularity,
			},
			"sender": map[string]any{
				"userId":      np.DJID,
				"displayName": displayName,
			},
		})
	}
}
