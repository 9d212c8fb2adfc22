/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package channel

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/friendsincode/turnstyle/internal/catalog"
	"github.com/friendsincode/turnstyle/internal/rpc"
	"github.com/friendsincode/turnstyle/internal/telemetry"
)

// Sourcing failures. All of them resolve the same way: the offending DJ
// leaves rotation and the new head is tried.
var (
	ErrEmptyPlaylist = errors.New("empty playlist")
	ErrNoPlaylist    = errors.New("no playlist")
	ErrSourceTimeout = errors.New("sourcing timed out")
	ErrClientError   = errors.New("client error")
)

// stackResolveLimit bounds how many stored-stack entries are resolved
// against the catalog per sourcing attempt.
const stackResolveLimit = 10

// sourceHead asks the DJ at index 0 for the next track, dispatching on its
// attributes. Strategies that call out suspend off the command sequence;
// their results post back and are dropped if the generation moved on.
func (c *Coordinator) sourceHead() {
	head := c.queue.Head()
	if head == nil {
		c.pause()
		return
	}

	c.awaiting = true
	gen := c.generation
	info := head.Peer.Info()
	switch {
	case info.Bot:
		c.sourceBot(head, gen)
	case info.Mobile && head.Peer.Sleeping():
		go c.sourceStack(head, gen)
	default:
		go c.sourceInteractive(head, gen)
	}
}

// resolveSource posts a strategy outcome back onto the command sequence.
// Outcomes from a superseded sourcing attempt are discarded. The returned
// channel reports whether the track was accepted and began playing, so
// strategies with follow-up work can skip it for discarded results.
func (c *Coordinator) resolveSource(gen uint64, headID string, track *catalog.Track, sourceErr error) <-chan bool {
	started := make(chan bool, 1)
	posted := c.post(func() {
		accepted := false
		defer func() { started <- accepted }()

		if c.generation != gen {
			c.log.Debug().Str("dj", headID).Msg("discarding stale sourcing result")
			return
		}
		c.awaiting = false
		if sourceErr != nil {
			c.failSource(headID, sourceErr)
			return
		}
		head := c.queue.Head()
		if head == nil || head.ID() != headID {
			// Rotation changed under the request; source whoever is in
			// control now.
			c.advance(false, true)
			return
		}
		c.beginTrack(track)
		accepted = true
	})
	if !posted {
		started <- false
	}
	return started
}

// failSource removes the failing DJ and, when that affected the head,
// re-sources for the new head without rotating. The queue shrinking to
// empty bottoms out in pause.
func (c *Coordinator) failSource(headID string, sourceErr error) {
	c.log.Warn().Err(sourceErr).Str("dj", headID).Msg("sourcing failed, removing DJ")
	telemetry.SourcingFailures.WithLabelValues(failureReason(sourceErr)).Inc()

	removed, wasHead := c.queue.Remove(headID)
	if removed {
		c.persistPresence()
		c.broadcastDJs()
	}
	if wasHead || !removed {
		c.advance(false, true)
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrEmptyPlaylist):
		return "empty_playlist"
	case errors.Is(err, ErrNoPlaylist):
		return "no_playlist"
	case errors.Is(err, ErrSourceTimeout):
		return "timeout"
	default:
		return "client_error"
	}
}

// sourceBot pulls the next entry from the resident bot's playlist. The bot
// alone in rotation with nobody listening steps aside before the playlist
// is even consulted; an empty playlist is a plain sourcing failure.
func (c *Coordinator) sourceBot(head *Entry, gen uint64) {
	if len(c.users) == 0 && c.queue.Len() == 1 {
		c.queue.Clear()
		c.persistPresence()
		c.log.Debug().Msg("bot stepped down, channel has no listeners")
		c.pause()
		return
	}

	if c.deps.Bot == nil {
		c.failSource(head.ID(), ErrNoPlaylist)
		return
	}

	trackID, ok := c.deps.Bot.NextTrack()
	if !ok {
		c.failSource(head.ID(), ErrEmptyPlaylist)
		return
	}

	headID := head.ID()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.SourcingTimeout)
		defer cancel()

		tracks, err := c.deps.Catalog.ResolveTracks(ctx, "", []string{trackID})
		if err != nil {
			c.resolveSource(gen, headID, nil, errors.Join(ErrClientError, err))
			return
		}
		if len(tracks) == 0 || tracks[0] == nil {
			c.resolveSource(gen, headID, nil, ErrEmptyPlaylist)
			return
		}
		c.resolveSource(gen, headID, tracks[0], nil)
	}()
}

// sourceStack serves a sleeping mobile DJ from its persisted stack. Runs
// off the command sequence. On success the DJ's client is told to mutate
// its stack to match, asynchronously; playback never waits on that.
func (c *Coordinator) sourceStack(head *Entry, gen uint64) {
	headID := head.ID()
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout+c.opts.SourcingTimeout)
	defer cancel()

	user, err := c.deps.Store.FindUser(ctx, headID)
	if err != nil {
		c.resolveSource(gen, headID, nil, errors.Join(ErrClientError, err))
		return
	}

	stack, err := c.deps.Store.ActiveStack(ctx, headID)
	if err != nil {
		c.resolveSource(gen, headID, nil, errors.Join(ErrClientError, err))
		return
	}
	if stack == nil {
		c.resolveSource(gen, headID, nil, ErrNoPlaylist)
		return
	}

	ids := stack.TrackIDs
	if len(ids) > stackResolveLimit {
		ids = ids[:stackResolveLimit]
	}
	if len(ids) == 0 {
		c.resolveSource(gen, headID, nil, ErrEmptyPlaylist)
		return
	}

	tracks, err := c.deps.Catalog.ResolveTracks(ctx, head.Peer.Info().CatalogAuth, ids)
	if err != nil {
		c.resolveSource(gen, headID, nil, errors.Join(ErrClientError, err))
		return
	}

	// First playable entry in stack order; unavailable tracks come back nil.
	position := -1
	var track *catalog.Track
	for i, t := range tracks {
		if t != nil {
			position = i
			track = t
			break
		}
	}
	if track == nil {
		c.resolveSource(gen, headID, nil, ErrEmptyPlaylist)
		return
	}

	if !<-c.resolveSource(gen, headID, track, nil) {
		// Superseded or rotated away; the track never played, so the
		// client's stack stays untouched.
		return
	}

	// Stack mutation happens on the owning client, not server-side.
	keepPlayed := user != nil && user.Settings.KeepPlayedTracks
	if keepPlayed {
		head.Peer.Send(rpc.NewNotification(rpc.MethodReorderStack, map[string]any{
			"stackId":        stack.ID,
			"position":       position,
			"targetPosition": len(stack.TrackIDs),
		}))
	} else {
		head.Peer.Send(rpc.NewNotification(rpc.MethodRemoveFromStack, map[string]any{
			"stackId":  stack.ID,
			"position": position,
		}))
	}
	head.Peer.Send(rpc.NewNotification(rpc.MethodRefreshDjStack, nil))
}

// interactiveResult is what a client returns for nextChannelTrack.
type interactiveResult struct {
	Track *catalog.Track `json:"track"`
}

// sourceInteractive asks the DJ's connected client for a track over a
// correlated request with a bounded wait. Runs off the command sequence.
// Exactly one outcome resolves it: a track, a client error, or the
// deadline; the correlation entry dies with the request either way.
func (c *Coordinator) sourceInteractive(head *Entry, gen uint64) {
	headID := head.ID()
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.SourcingTimeout)
	defer cancel()

	resp, err := head.Peer.Request(ctx, rpc.MethodNextChannelTrack, map[string]string{
		"userId":    headID,
		"channelId": c.id,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.resolveSource(gen, headID, nil, ErrSourceTimeout)
			return
		}
		c.resolveSource(gen, headID, nil, errors.Join(ErrClientError, err))
		return
	}
	if resp.Error != nil {
		c.resolveSource(gen, headID, nil, errors.Join(ErrClientError, errors.New(resp.Error.Message)))
		return
	}

	var result interactiveResult
	if err := json.Unmarshal(resp.Result, &result); err != nil || result.Track == nil {
		c.resolveSource(gen, headID, nil, ErrClientError)
		return
	}
	c.resolveSource(gen, headID, result.Track, nil)
}
