/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scrobble forwards plays to an external listening-history service.
// Every call is fire-and-forget from the coordinator's point of view; an
// absent instance is a no-op.
package scrobble

import (
	"context"
	"crypto/md5"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const apiRoot = "https://ws.audioscrobbler.com/2.0/"

// Instance is one configured scrobbling target: the shared default account
// or a per-channel account.
type Instance struct {
	APIKey     string
	APISecret  string
	SessionKey string
}

// Scrobbler submits now-playing updates and finished plays.
type Scrobbler interface {
	NowPlaying(ctx context.Context, inst *Instance, artist, title, album string)
	Scrobble(ctx context.Context, inst *Instance, artist, title, album string)
}

// Client implements Scrobbler against the Last.fm-compatible API.
type Client struct {
	http   *http.Client
	logger zerolog.Logger
}

// NewClient creates a scrobble client.
func NewClient(logger zerolog.Logger) *Client {
	return &Client{
		http:   &http.Client{Timeout: 10 * time.Second},
		logger: logger.With().Str("component", "scrobble").Logger(),
	}
}

// NowPlaying submits a track.updateNowPlaying call.
func (c *Client) NowPlaying(ctx context.Context, inst *Instance, artist, title, album string) {
	c.call(ctx, inst, "track.updateNowPlaying", artist, title, album, false)
}

// Scrobble submits a track.scrobble call.
func (c *Client) Scrobble(ctx context.Context, inst *Instance, artist, title, album string) {
	c.call(ctx, inst, "track.scrobble", artist, title, album, true)
}

func (c *Client) call(ctx context.Context, inst *Instance, method, artist, title, album string, timestamped bool) {
	if inst == nil || inst.APIKey == "" || inst.SessionKey == "" {
		return
	}

	params := map[string]string{
		"method":  method,
		"api_key": inst.APIKey,
		"sk":      inst.SessionKey,
		"artist":  artist,
		"track":   title,
	}
	if album != "" {
		params["album"] = album
	}
	if timestamped {
		params["timestamp"] = fmt.Sprintf("%d", time.Now().Unix())
	}
	params["api_sig"] = sign(params, inst.APISecret)

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	form.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiRoot, strings.NewReader(form.Encode()))
	if err != nil {
		c.logger.Error().Err(err).Str("method", method).Msg("build scrobble request")
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("method", method).Msg("scrobble call failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Int("status", resp.StatusCode).Str("method", method).Msg("scrobble rejected")
	}
}

// sign computes the api_sig parameter: md5 of the sorted key/value
// concatenation plus the shared secret.
func sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params[k])
	}
	b.WriteString(secret)
	return fmt.Sprintf("%x", md5.Sum([]byte(b.String())))
}
