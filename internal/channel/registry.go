/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/friendsincode/turnstyle/internal/models"
	"github.com/friendsincode/turnstyle/internal/scrobble"
	"github.com/friendsincode/turnstyle/internal/telemetry"
	"github.com/google/uuid"
)

// RegistryConfig is the per-room option template.
type RegistryConfig struct {
	SourcingTimeout  time.Duration
	BrokerTopic      string
	DeletedTrackISRC string
	DefaultScrobble  *scrobble.Instance
}

// Registry maps room ids to their live coordinators. Rooms are created on
// first join and disposed when the last listener leaves.
type Registry struct {
	cfg  RegistryConfig
	deps Deps

	mu    sync.Mutex
	rooms map[string]*Coordinator
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig, deps Deps) *Registry {
	return &Registry{
		cfg:   cfg,
		deps:  deps,
		rooms: make(map[string]*Coordinator),
	}
}

// Get returns the live coordinator for a room, or nil.
func (r *Registry) Get(id string) *Coordinator {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rooms[id]
}

// GetOrCreate returns the room's coordinator, booting one on first join.
// Boot ensures the mirror document exists and clears presence left over
// from a previous process.
func (r *Registry) GetOrCreate(ctx context.Context, id string) (*Coordinator, error) {
	r.mu.Lock()
	if c, ok := r.rooms[id]; ok {
		r.mu.Unlock()
		return c, nil
	}
	r.mu.Unlock()

	doc, err := r.deps.Store.FindChannel(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load channel: %w", err)
	}
	if doc == nil {
		doc = &models.Channel{ID: id, Title: id, LastTouched: time.Now().UTC()}
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		if err := r.deps.Store.CreateChannel(ctx, doc); err != nil {
			return nil, fmt.Errorf("create channel: %w", err)
		}
	}
	if err := r.deps.Store.ResetPresence(ctx, doc.ID); err != nil {
		r.deps.Logger.Error().Err(err).Str("channel", doc.ID).Msg("presence reset failed")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.rooms[doc.ID]; ok {
		return c, nil
	}

	c := New(Options{
		ChannelID:        doc.ID,
		SourcingTimeout:  r.cfg.SourcingTimeout,
		BrokerTopic:      r.cfg.BrokerTopic,
		DeletedTrackISRC: r.cfg.DeletedTrackISRC,
		DefaultScrobble:  r.cfg.DefaultScrobble,
		ChannelScrobble:  scrobbleInstanceFrom(doc.LastfmConfig),
		OnEmpty:          r.dispose,
	}, r.deps)
	r.rooms[doc.ID] = c
	telemetry.ActiveChannels.Inc()
	return c, nil
}

func (r *Registry) dispose(id string) {
	r.mu.Lock()
	c, ok := r.rooms[id]
	if ok {
		delete(r.rooms, id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	telemetry.ActiveChannels.Dec()
	c.Close()
	r.deps.Logger.Info().Str("channel", id).Msg("room disposed")
}

// CloseAll stops every coordinator; used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	rooms := make([]*Coordinator, 0, len(r.rooms))
	for _, c := range r.rooms {
		rooms = append(rooms, c)
	}
	r.rooms = make(map[string]*Coordinator)
	r.mu.Unlock()

	for _, c := range rooms {
		telemetry.ActiveChannels.Dec()
		c.Close()
	}
}

// scrobbleInstanceFrom builds a per-channel scrobble target from the
// channel document, nil when unconfigured.
func scrobbleInstanceFrom(cfg map[string]any) *scrobble.Instance {
	if cfg == nil {
		return nil
	}
	str := func(key string) string {
		if v, ok := cfg[key].(string); ok {
			return v
		}
		return ""
	}
	inst := &scrobble.Instance{
		APIKey:     str("apiKey"),
		APISecret:  str("apiSecret"),
		SessionKey: str("sessionKey"),
	}
	if inst.APIKey == "" || inst.SessionKey == "" {
		return nil
	}
	return inst
}
