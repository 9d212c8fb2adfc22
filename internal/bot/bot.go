/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package bot implements the resident DJ. When a channel has no human DJs
// the bot keeps music flowing from a YAML playlist, and it steps aside as
// soon as a human takes the decks.
package bot

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/friendsincode/turnstyle/internal/client"
	"github.com/friendsincode/turnstyle/internal/events"
	"github.com/friendsincode/turnstyle/internal/rpc"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Playlist is the on-disk bot configuration.
type Playlist struct {
	DisplayName string   `yaml:"display_name"`
	Shuffle     bool     `yaml:"shuffle"`
	Tracks      []string `yaml:"tracks"`

	// AnnounceFirsts pushes a chat message when a track is a first play.
	AnnounceFirsts bool `yaml:"announce_firsts"`
}

// LoadPlaylist reads the playlist file.
func LoadPlaylist(path string) (*Playlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read playlist: %w", err)
	}
	var pl Playlist
	if err := yaml.Unmarshal(data, &pl); err != nil {
		return nil, fmt.Errorf("parse playlist: %w", err)
	}
	return &pl, nil
}

// Bot is the resident DJ. It satisfies the same peer contract as a human
// client so the rotation treats it uniformly, but it answers track requests
// from its playlist instead of a socket.
type Bot struct {
	id       string
	playlist *Playlist
	bus      *events.Bus
	logger   zerolog.Logger

	mu     sync.Mutex
	cursor int
}

// New creates the bot from a loaded playlist.
func New(pl *Playlist, bus *events.Bus, logger zerolog.Logger) *Bot {
	return &Bot{
		id:       "bot-" + uuid.NewString(),
		playlist: pl,
		bus:      bus,
		logger:   logger.With().Str("component", "bot").Logger(),
	}
}

func (b *Bot) ID() string { return b.id }

// DisplayName returns the name shown in the roster and chat.
func (b *Bot) DisplayName() string {
	if b.playlist.DisplayName != "" {
		return b.playlist.DisplayName
	}
	return "turnstyle"
}

// AnnounceFirsts reports whether the bot chats about first plays.
func (b *Bot) AnnounceFirsts() bool { return b.playlist.AnnounceFirsts }

func (b *Bot) Info() client.Info {
	return client.Info{UserID: b.id, Bot: true}
}

func (b *Bot) Sleeping() bool   { return false }
func (b *Bot) SetSleeping(bool) {}

// NextTrack pops the next playlist entry, wrapping at the end. Returns
// false only when the playlist is empty.
func (b *Bot) NextTrack() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.playlist.Tracks) == 0 {
		return "", false
	}
	track := b.playlist.Tracks[b.cursor%len(b.playlist.Tracks)]
	b.cursor++
	return track, true
}

// Send republishes frames of interest as server events; the bot has no
// socket to write to.
func (b *Bot) Send(n rpc.Notification) error {
	switch n.Method {
	case rpc.MethodPlayChannelTrack, rpc.MethodPlayTrack:
		b.bus.Publish(events.EventTrackStarted, events.Payload{"source": "bot"})
	case rpc.MethodPauseChannelTrack, rpc.MethodPauseTrack:
		b.bus.Publish(events.EventChannelPaused, events.Payload{"source": "bot"})
	}
	return nil
}

// Request satisfies the peer contract but is never consulted; the rotation
// reads the bot's playlist through NextTrack instead of a round trip.
func (b *Bot) Request(context.Context, string, any) (rpc.Response, error) {
	return rpc.Response{
		JSONRPC: rpc.Version,
		Error:   &rpc.Error{Code: -32601, Message: "bot does not answer requests"},
	}, nil
}

func (b *Bot) Close(string) {}
