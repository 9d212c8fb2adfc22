package bot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/friendsincode/turnstyle/internal/events"
	"github.com/friendsincode/turnstyle/internal/rpc"
	"github.com/rs/zerolog"
)

func writePlaylist(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "playlist.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write playlist: %v", err)
	}
	return path
}

func TestLoadPlaylist(t *testing.T) {
	path := writePlaylist(t, `
display_name: house bot
announce_firsts: true
tracks:
  - spotify:track:aaa
  - spotify:track:bbb
`)
	pl, err := LoadPlaylist(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if pl.DisplayName != "house bot" {
		t.Errorf("display_name = %q", pl.DisplayName)
	}
	if !pl.AnnounceFirsts {
		t.Error("announce_firsts not parsed")
	}
	if len(pl.Tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(pl.Tracks))
	}
}

func TestLoadPlaylistMissingFile(t *testing.T) {
	if _, err := LoadPlaylist(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestNextTrackWraps(t *testing.T) {
	b := New(&Playlist{Tracks: []string{"a", "b"}}, events.NewBus(), zerolog.Nop())

	want := []string{"a", "b", "a"}
	for i, expected := range want {
		track, ok := b.NextTrack()
		if !ok {
			t.Fatalf("pop %d failed", i)
		}
		if track != expected {
			t.Errorf("pop %d = %q, want %q", i, track, expected)
		}
	}
}

func TestNextTrackEmptyPlaylist(t *testing.T) {
	b := New(&Playlist{}, events.NewBus(), zerolog.Nop())
	if _, ok := b.NextTrack(); ok {
		t.Error("empty playlist should not yield a track")
	}
}

func TestRequestIsNotSupported(t *testing.T) {
	b := New(&Playlist{Tracks: []string{"spotify:track:xyz"}}, events.NewBus(), zerolog.Nop())

	resp, err := b.Request(context.Background(), rpc.MethodNextChannelTrack, nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != -32601 {
		t.Fatalf("expected method-not-found error, got %+v", resp.Error)
	}
}
