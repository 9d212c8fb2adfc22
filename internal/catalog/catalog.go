/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package catalog resolves track identifiers against the external music
// catalog. Playback itself happens on the clients; the coordinator only
// needs descriptors and durations.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Track is the catalog's track descriptor as the coordinator consumes it.
type Track struct {
	ID         string   `json:"id"`
	URI        string   `json:"uri"`
	Name       string   `json:"name"`
	Artists    []string `json:"artists"`
	Album      string   `json:"album"`
	AlbumArt   string   `json:"album_art,omitempty"`
	DurationMS int64    `json:"duration_ms"`
	ISRC       string   `json:"isrc,omitempty"`
	Popularity int      `json:"popularity,omitempty"`
}

// MainArtist returns the first credited artist.
func (t *Track) MainArtist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0]
}

// ArtistsString joins all credited artists for chat announcements.
func (t *Track) ArtistsString() string {
	return strings.Join(t.Artists, ",")
}

// Client resolves track ids. A nil entry in the result means the catalog
// reports that track as unavailable; order matches the requested ids.
type Client interface {
	ResolveTracks(ctx context.Context, auth string, ids []string) ([]*Track, error)
}

// HTTPClient talks to the catalog's REST API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a catalog client against baseURL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// wire shapes of the catalog API.
type trackResponse struct {
	Tracks []*wireTrack `json:"tracks"`
}

type wireTrack struct {
	ID      string `json:"id"`
	URI     string `json:"uri"`
	Name    string `json:"name"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Name   string `json:"name"`
		Images []struct {
			URL string `json:"url"`
		} `json:"images"`
	} `json:"album"`
	DurationMS  int64 `json:"duration_ms"`
	ExternalIDs struct {
		ISRC string `json:"isrc"`
	} `json:"external_ids"`
	Popularity int   `json:"popularity"`
	IsPlayable *bool `json:"is_playable,omitempty"`
}

// ResolveTracks fetches descriptors for ids in order. Tracks the catalog
// marks unplayable (or omits) come back as nil entries.
func (c *HTTPClient) ResolveTracks(ctx context.Context, auth string, ids []string) ([]*Track, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/tracks?ids=%s", c.baseURL, url.QueryEscape(strings.Join(ids, ",")))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+auth)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog request: unexpected status %d", resp.StatusCode)
	}

	var body trackResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode catalog response: %w", err)
	}

	tracks := make([]*Track, len(body.Tracks))
	for i, wt := range body.Tracks {
		if wt == nil || (wt.IsPlayable != nil && !*wt.IsPlayable) {
			continue
		}
		track := &Track{
			ID:         wt.ID,
			URI:        wt.URI,
			Name:       wt.Name,
			Album:      wt.Album.Name,
			DurationMS: wt.DurationMS,
			ISRC:       wt.ExternalIDs.ISRC,
			Popularity: wt.Popularity,
		}
		for _, a := range wt.Artists {
			track.Artists = append(track.Artists, a.Name)
		}
		if len(wt.Album.Images) > 0 {
			track.AlbumArt = wt.Album.Images[0].URL
		}
		tracks[i] = track
	}
	return tracks, nil
}
