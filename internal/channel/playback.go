/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/friendsincode/turnstyle/internal/achievements"
	"github.com/friendsincode/turnstyle/internal/catalog"
	"github.com/friendsincode/turnstyle/internal/client"
	"github.com/friendsincode/turnstyle/internal/events"
	"github.com/friendsincode/turnstyle/internal/models"
	"github.com/friendsincode/turnstyle/internal/rpc"
	"github.com/friendsincode/turnstyle/internal/telemetry"
)

// ensureAdvancing nudges the state machine: advance when idle or when the
// armed deadline has already passed, otherwise just rebroadcast rotation
// state so clients resync.
func (c *Coordinator) ensureAdvancing() {
	if c.awaiting {
		c.broadcastDJs()
		return
	}
	if c.nowPlaying == nil || time.Now().After(c.nowPlaying.EndsAt) {
		c.advance(false, false)
		return
	}
	c.broadcastDJs()
}

// advance finalizes the playing track into history, rotates the queue
// (unless noCycle) and re-enters sourcing for the new head. An empty queue
// pauses the channel instead.
func (c *Coordinator) advance(skipped, noCycle bool) {
	c.generation++
	c.awaiting = false
	c.stopTimer()
	c.finalizeHistory(skipped)

	if !noCycle && c.queue.Len() > 0 {
		dropped := c.queue.AdvanceHead()
		if len(dropped) > 0 {
			c.persistPresence()
		}
		c.broadcastDJs()
	}

	if c.queue.Len() == 0 {
		c.pause()
		return
	}
	c.sourceHead()
}

// beginTrack sets NowPlaying, arms the duration timer and broadcasts the
// play instruction, split by playback capability. Side effects run off the
// command sequence and never block state progress.
func (c *Coordinator) beginTrack(track *catalog.Track) {
	head := c.queue.Head()
	if head == nil || track == nil {
		return
	}

	c.generation++
	gen := c.generation
	now := time.Now()
	duration := time.Duration(track.DurationMS) * time.Millisecond

	np := &NowPlaying{
		Track:     track,
		Album:     track.Album,
		StartedAt: now,
		EndsAt:    now.Add(duration),
		DJID:      head.ID(),
		Votes:     make(map[string]*Vote),
	}
	c.nowPlaying = np

	c.stopTimer()
	c.timer = time.AfterFunc(duration, func() {
		c.post(func() {
			// A skip or re-source may have superseded this play.
			if c.generation != gen {
				return
			}
			c.advance(false, false)
		})
	})

	c.log.Info().
		Str("track", track.ID).
		Str("dj", np.DJID).
		Int64("duration_ms", track.DurationMS).
		Msg("track started")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		err := c.deps.Store.SetNowPlaying(ctx, c.id, map[string]any{
			"track":     track,
			"album":     np.Album,
			"userId":    np.DJID,
			"timestamp": np.StartedAt.UnixMilli(),
			"endsAt":    np.EndsAt.UnixMilli(),
		})
		if err != nil {
			c.log.Error().Err(err).Msg("now playing mirror failed")
		}
	}()

	for _, peer := range c.users {
		c.sendPlayState(peer, np)
	}

	c.deps.Bus.Publish(events.EventTrackStarted, events.Payload{
		"channelId": c.id,
		"trackId":   track.ID,
		"userId":    np.DJID,
	})

	go c.playSideEffects(np)
}

// sendPlayState delivers the play instruction appropriate to the peer's
// capability. Natively-playing clients start playback themselves and get
// the snapshot only as a state update, so they do not double-issue a play.
func (c *Coordinator) sendPlayState(peer client.Peer, np *NowPlaying) {
	var err error
	if peer.Info().NativePlayback() {
		if err = peer.Send(rpc.NewNotification(rpc.MethodPlayTrack, BuildPlayTrackParams(np))); err == nil {
			err = peer.Send(rpc.NewNotification(rpc.MethodPlayChannelTrack, BuildPlayChannelTrackParams(np, false)))
		}
	} else {
		err = peer.Send(rpc.NewNotification(rpc.MethodPlayChannelTrack, BuildPlayChannelTrackParams(np, true)))
	}
	if err != nil {
		c.log.Debug().Err(err).Str("user", peer.ID()).Msg("play state send failed")
	}
}

// playSideEffects runs the fire-and-forget work attached to a track start:
// now-playing scrobbles, chat announcement, first-play handling, the
// deleted-track interlude and the bot's server event.
func (c *Coordinator) playSideEffects(np *NowPlaying) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	mainArtist := np.Track.MainArtist()
	title := np.Track.Name

	if c.deps.Scrobbler != nil {
		c.deps.Scrobbler.NowPlaying(ctx, c.opts.DefaultScrobble, mainArtist, title, np.Album)
		c.deps.Scrobbler.NowPlaying(ctx, c.opts.ChannelScrobble, mainArtist, title, np.Album)
	}

	c.PushChat("play", fmt.Sprintf("%s::%s", np.Track.ArtistsString(), title))

	firstPlay, err := c.deps.Store.FirstPlay(ctx, np.Track.ISRC)
	if err != nil {
		c.log.Error().Err(err).Msg("first play lookup failed")
	} else if firstPlay == nil {
		telemetry.FirstPlays.WithLabelValues(c.id).Inc()
		c.deps.Achievements.Log(ctx, np.DJID, achievements.NamePlayedFirst)
		c.PushChat("alert", fmt.Sprintf("%s by %s is being played for the first time!", title, np.Track.ArtistsString()))
	} else if c.deps.Bot != nil && c.deps.Bot.AnnounceFirsts() {
		c.announcePriorFirstPlay(ctx, np, firstPlay)
	}

	if c.opts.DeletedTrackISRC != "" && np.Track.ISRC == c.opts.DeletedTrackISRC {
		c.PushChat("chat", "It looks like the catalog has removed the track you had queued in your stack. Please enjoy this brief interlude in its place.")
		c.deps.Achievements.Log(ctx, np.DJID, achievements.NameDeletedTrack)
	}

	if c.deps.Bot != nil {
		displayName := c.djDisplayName(ctx, np.DJID)
		c.deps.Bus.Publish(events.EventTrackStarted, events.Payload{
			"type":      "songPlaying",
			"channelId": c.id,
			"nowPlaying": map[string]any{
				"title":   title,
				"artists": np.Track.Artists,
				"album":   np.Album,
			},
			"sender": map[string]any{
				"userId":      np.DJID,
				"displayName": displayName,
			},
		})
	}
}

func (c *Coordinator) announcePriorFirstPlay(ctx context.Context, np *NowPlaying, firstPlay *models.FirstPlay) {
	channel, err := c.deps.Store.FindChannel(ctx, firstPlay.ChannelID)
	if err != nil || channel == nil {
		return
	}
	playedBy := c.djDisplayName(ctx, firstPlay.UserID)
	playedAt := firstPlay.CreatedAt.Format("Monday, 2 Jan 2006")
	c.PushChat("alert", fmt.Sprintf(
		"%s by %s was first played by @%s in %s on %s. It was played to a crowd of %d and got a score of %d",
		np.Track.Name, np.Track.ArtistsString(), playedBy, channel.Title, playedAt,
		firstPlay.Listeners, firstPlay.Score,
	))
}

func (c *Coordinator) djDisplayName(ctx context.Context, id string) string {
	if c.deps.Bot != nil && id == c.deps.Bot.ID() {
		return c.deps.Bot.DisplayName()
	}
	user, err := c.deps.Store.FindUser(ctx, id)
	if err != nil || user == nil {
		return "unknown"
	}
	return user.Name()
}

// pause is the terminal no-DJs state: clear the deck, cancel timers and
// tell every listener to stop, split by the same capability profile as
// play.
func (c *Coordinator) pause() {
	c.generation++
	c.awaiting = false
	c.stopTimer()
	c.nowPlaying = nil

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := c.deps.Store.ClearNowPlaying(ctx, c.id); err != nil {
			c.log.Error().Err(err).Msg("pause mirror failed")
		}
	}()

	for id, peer := range c.users {
		var err error
		if peer.Info().NativePlayback() {
			err = peer.Send(rpc.NewNotification(rpc.MethodPauseTrack, nil))
		} else {
			err = peer.Send(rpc.NewNotification(rpc.MethodPauseChannelTrack, nil))
		}
		if err != nil {
			c.log.Debug().Err(err).Str("user", id).Msg("pause send failed")
		}
	}

	c.deps.Bus.Publish(events.EventChannelPaused, events.Payload{"channelId": c.id})
	c.log.Info().Msg("channel paused, no DJs in rotation")

	c.maybeClose()
}

func (c *Coordinator) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
