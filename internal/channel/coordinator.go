/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package channel

import (
	"context"
	"sync"
	"time"

	"github.com/friendsincode/turnstyle/internal/achievements"
	"github.com/friendsincode/turnstyle/internal/bot"
	"github.com/friendsincode/turnstyle/internal/catalog"
	"github.com/friendsincode/turnstyle/internal/client"
	"github.com/friendsincode/turnstyle/internal/economy"
	"github.com/friendsincode/turnstyle/internal/eventbus"
	"github.com/friendsincode/turnstyle/internal/events"
	"github.com/friendsincode/turnstyle/internal/rpc"
	"github.com/friendsincode/turnstyle/internal/scrobble"
	"github.com/friendsincode/turnstyle/internal/store"
	"github.com/friendsincode/turnstyle/internal/telemetry"
	"github.com/rs/zerolog"
)

const persistTimeout = 5 * time.Second

// Options configures one room's coordinator.
type Options struct {
	ChannelID       string
	SourcingTimeout time.Duration
	BrokerTopic     string

	// DeletedTrackISRC is the sentinel the catalog substitutes for tracks
	// it has withdrawn. Empty disables the check.
	DeletedTrackISRC string

	DefaultScrobble *scrobble.Instance
	ChannelScrobble *scrobble.Instance

	// OnEmpty is called once, off the command sequence, when the last
	// listener leaves and the room should be disposed.
	OnEmpty func(channelID string)
}

// Deps are the external collaborators. All side-effect services tolerate
// failure; the coordinator logs and moves on.
type Deps struct {
	Store        *store.Service
	Catalog      catalog.Client
	Scrobbler    scrobble.Scrobbler
	Achievements *achievements.Service
	Economy      *economy.Service
	Publisher    eventbus.Publisher
	Bus          *events.Bus
	Bot          *bot.Bot
	Logger       zerolog.Logger
}

// Coordinator owns one room. All state below the mutex-free line is
// touched only from the command sequence; external callers post closed-over
// commands and never reach into the collections directly.
type Coordinator struct {
	id   string
	opts Options
	deps Deps
	log  zerolog.Logger

	cmds      chan func()
	done      chan struct{}
	closeOnce sync.Once

	queue             Queue
	users             map[string]client.Peer
	usersInRegion     map[string]int
	nowPlaying        *NowPlaying
	lastPlayedTrackID string
	generation        uint64
	timer             *time.Timer

	// awaiting marks an in-flight sourcing request for the head DJ.
	awaiting bool
}

// New creates a coordinator and starts its command sequence.
func New(opts Options, deps Deps) *Coordinator {
	if opts.SourcingTimeout <= 0 {
		opts.SourcingTimeout = 2500 * time.Millisecond
	}
	if opts.BrokerTopic == "" {
		opts.BrokerTopic = "track-finished"
	}
	c := &Coordinator{
		id:            opts.ChannelID,
		opts:          opts,
		deps:          deps,
		log:           deps.Logger.With().Str("component", "coordinator").Str("channel", opts.ChannelID).Logger(),
		cmds:          make(chan func(), 64),
		done:          make(chan struct{}),
		users:         make(map[string]client.Peer),
		usersInRegion: make(map[string]int),
	}
	go c.run()
	return c
}

// ID returns the room id.
func (c *Coordinator) ID() string { return c.id }

func (c *Coordinator) run() {
	for {
		select {
		case fn := <-c.cmds:
			fn()
		case <-c.done:
			return
		}
	}
}

// post enqueues a command. Returns false after Close.
func (c *Coordinator) post(fn func()) bool {
	select {
	case c.cmds <- fn:
		return true
	case <-c.done:
		return false
	}
}

// Close stops the command sequence and cancels timers. Pending commands
// are dropped.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		c.post(func() {
			c.stopTimer()
		})
		close(c.done)
	})
}

// Join adds a listener to the room and broadcasts the roster. The joiner
// also receives the current playback state so it can sync immediately.
// A configured bot is seated on the first listener, so the room never
// starts (or resumes) silent.
func (c *Coordinator) Join(peer client.Peer) {
	c.post(func() {
		id := peer.ID()
		if _, ok := c.users[id]; !ok {
			c.users[id] = peer
			if country := peer.Info().Country; country != "" {
				c.usersInRegion[country]++
			}
		}
		c.persistPresence()
		c.broadcastUsers("join")

		if c.seatBotLocked() {
			c.ensureAdvancing()
		}
		if c.nowPlaying != nil {
			c.sendPlayState(peer, c.nowPlaying)
		}
	})
}

// Leave removes a listener, dropping it from rotation first. When the room
// empties the OnEmpty hook fires.
func (c *Coordinator) Leave(id string) {
	c.post(func() {
		c.leaveDJsLocked(id)

		peer, ok := c.users[id]
		if !ok {
			return
		}
		delete(c.users, id)
		if country := peer.Info().Country; country != "" {
			c.usersInRegion[country]--
			if c.usersInRegion[country] <= 0 {
				delete(c.usersInRegion, country)
			}
		}
		c.persistPresence()
		c.broadcastUsers("leave")

		c.maybeClose()
	})
}

// maybeClose fires the room-empty hook when nobody is listening and the
// rotation is empty. Reached from the last leave and from a pause that
// drained the queue, so a bot-only room is disposed when the bot steps
// down rather than lingering in the registry.
func (c *Coordinator) maybeClose() {
	if len(c.users) != 0 || c.queue.Len() != 0 {
		return
	}
	c.deps.Bus.Publish(events.EventChannelClosed, events.Payload{"channelId": c.id})
	if c.opts.OnEmpty != nil {
		go c.opts.OnEmpty(c.id)
	}
}

// JoinDJs appends a listener to the rotation and nudges playback.
func (c *Coordinator) JoinDJs(id string) {
	c.post(func() {
		peer, ok := c.users[id]
		if !ok {
			c.log.Debug().Str("user", id).Msg("joinDjs from a non-listener ignored")
			return
		}
		if c.queue.Push(&Entry{Peer: peer}) {
			c.persistPresence()
		}
		c.ensureAdvancing()
	})
}

// SeatBot puts the resident bot into rotation so an otherwise silent room
// keeps playing. A no-op when no bot is configured or it is already seated.
func (c *Coordinator) SeatBot() {
	c.post(func() {
		if c.seatBotLocked() {
			c.ensureAdvancing()
		}
	})
}

func (c *Coordinator) seatBotLocked() bool {
	if c.deps.Bot == nil {
		return false
	}
	if !c.queue.Push(&Entry{Peer: c.deps.Bot}) {
		return false
	}
	c.persistPresence()
	return true
}

// LeaveDJs drops an identity from rotation. A head removal re-sources for
// the new head without rotating.
func (c *Coordinator) LeaveDJs(id string) {
	c.post(func() {
		c.leaveDJsLocked(id)
	})
}

// StepDown marks a DJ to leave rotation after its current play.
func (c *Coordinator) StepDown(id string) {
	c.post(func() {
		if e := c.queue.Find(id); e != nil {
			e.StepDownAfterPlay = true
		}
	})
}

// Skip ends the current track early. A no-op when nothing is playing.
func (c *Coordinator) Skip() {
	c.post(func() {
		if c.nowPlaying == nil {
			return
		}
		c.advance(true, false)
	})
}

// EnsurePlaying nudges the state machine, advancing if idle or overdue.
func (c *Coordinator) EnsurePlaying() {
	c.post(func() {
		c.ensureAdvancing()
	})
}

// Vote merges a listener's reaction into the playing track and broadcasts
// the meter.
func (c *Coordinator) Vote(userID string, delta Vote) {
	c.post(func() {
		if c.nowPlaying == nil {
			return
		}
		if _, ok := c.users[userID]; !ok {
			return
		}
		v := c.nowPlaying.Votes[userID]
		if v == nil {
			v = &Vote{}
			c.nowPlaying.Votes[userID] = v
		}
		v.Dope += delta.Dope
		v.Nope += delta.Nope
		v.Star += delta.Star
		v.Chat += delta.Chat
		v.VotedCount += delta.VotedCount

		telemetry.SongReactions.WithLabelValues(c.id).Inc()
		c.broadcast(rpc.NewNotification(rpc.MethodUpdateChannelMeter, BuildMeterParams(c.nowPlaying.Votes)))
	})
}

// NoteChat counts a chat line toward the sender's vote record.
func (c *Coordinator) NoteChat(userID string) {
	c.post(func() {
		if c.nowPlaying == nil {
			return
		}
		v := c.nowPlaying.Votes[userID]
		if v == nil {
			v = &Vote{}
			c.nowPlaying.Votes[userID] = v
		}
		v.Chat++
	})
}

// ReorderDJs applies a client-supplied rotation order and broadcasts it.
func (c *Coordinator) ReorderDJs(ids []string) {
	c.post(func() {
		c.queue.Reorder(ids)
		c.broadcastDJs()
	})
}

func (c *Coordinator) leaveDJsLocked(id string) {
	removed, wasHead := c.queue.Remove(id)
	if !removed {
		return
	}
	c.persistPresence()
	c.broadcastDJs()
	if wasHead {
		c.advance(false, true)
	}
}

// broadcast fans a notification out to every listener. Send failures mean
// the peer is on its way out; the disconnect path cleans up.
func (c *Coordinator) broadcast(n rpc.Notification) {
	for id, peer := range c.users {
		if err := peer.Send(n); err != nil {
			c.log.Debug().Err(err).Str("user", id).Str("method", n.Method).Msg("broadcast send failed")
		}
	}
}

func (c *Coordinator) broadcastDJs() {
	c.broadcast(rpc.NewNotification(rpc.MethodUpdateChannelDjs, BuildDJsParams(c.queue.IDs())))
}

// broadcastUsers resolves profiles off the command sequence, then sends
// the roster to whoever is still connected.
func (c *Coordinator) broadcastUsers(eventType string) {
	ids := make([]string, 0, len(c.users))
	live := make(map[string]client.Info, len(c.users))
	for id, peer := range c.users {
		ids = append(ids, id)
		live[id] = peer.Info()
	}
	peers := c.peerSnapshot()
	regions := make(map[string]int, len(c.usersInRegion))
	for region, count := range c.usersInRegion {
		regions[region] = count
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		roster := make([]RosterUser, 0, len(ids))
		profiles, err := c.deps.Store.FindUsers(ctx, ids)
		if err != nil {
			c.log.Error().Err(err).Msg("roster profile lookup failed")
		}
		byID := make(map[string]RosterUser, len(profiles))
		for _, profile := range profiles {
			byID[profile.ID] = RosterUser{
				ID:          profile.ID,
				UserName:    profile.UserName,
				DisplayName: profile.DisplayName,
				Country:     profile.Country,
			}
		}
		for _, id := range ids {
			entry, ok := byID[id]
			if !ok {
				entry = RosterUser{ID: id, UserName: "unknown"}
			}
			info := live[id]
			entry.Mobile = info.Mobile
			entry.Bot = info.Bot
			if entry.Country == "" {
				entry.Country = info.Country
			}
			roster = append(roster, entry)
		}

		n := rpc.NewNotification(rpc.MethodUpdateChannelUsers, BuildUsersParams(eventType, roster, regions))
		for _, peer := range peers {
			if err := peer.Send(n); err != nil {
				c.log.Debug().Err(err).Str("user", peer.ID()).Msg("roster send failed")
			}
		}
	}()
}

// peerSnapshot copies the listener set for use off the command sequence.
func (c *Coordinator) peerSnapshot() []client.Peer {
	peers := make([]client.Peer, 0, len(c.users))
	for _, peer := range c.users {
		peers = append(peers, peer)
	}
	return peers
}

// persistPresence mirrors the listener and DJ lists. Best effort; the
// live state is authoritative.
func (c *Coordinator) persistPresence() {
	users := make([]string, 0, len(c.users))
	for id := range c.users {
		users = append(users, id)
	}
	djs := c.queue.IDs()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := c.deps.Store.SetPresence(ctx, c.id, users, djs); err != nil {
			c.log.Error().Err(err).Msg("presence mirror failed")
		}
	}()
}

// PushChat relays a server-originated chat line through the event bus.
func (c *Coordinator) PushChat(messageType, payload string) {
	c.deps.Bus.Publish(events.EventChatPush, events.Payload{
		"channelId": c.id,
		"type":      messageType,
		"payload":   payload,
	})
	n := rpc.NewNotification(rpc.MethodPushMessage, PushMessageParams{Payload: payload, Type: messageType})
	c.post(func() {
		c.broadcast(n)
	})
}
