package channel

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/friendsincode/turnstyle/internal/bot"
	"github.com/friendsincode/turnstyle/internal/catalog"
	"github.com/friendsincode/turnstyle/internal/models"
	"github.com/friendsincode/turnstyle/internal/rpc"
	"github.com/rs/zerolog"
)

// slowCatalog resolves like fakeCatalog after a fixed delay.
type slowCatalog struct {
	inner fakeCatalog
	delay time.Duration
}

func (s *slowCatalog) ResolveTracks(ctx context.Context, auth string, ids []string) ([]*catalog.Track, error) {
	time.Sleep(s.delay)
	return s.inner.ResolveTracks(ctx, auth, ids)
}

func trackResponder(id string, durationMS int64) func(context.Context, string, any) (rpc.Response, error) {
	return func(context.Context, string, any) (rpc.Response, error) {
		result, err := json.Marshal(interactiveResult{Track: testTrack(id, durationMS)})
		if err != nil {
			return rpc.Response{}, err
		}
		return rpc.Response{JSONRPC: rpc.Version, Result: result}, nil
	}
}

func (env *testEnv) historyRows(t *testing.T) []models.PlayedTrack {
	t.Helper()
	var rows []models.PlayedTrack
	if err := env.db.Order("played_at ASC").Find(&rows).Error; err != nil {
		t.Fatalf("query history: %v", err)
	}
	return rows
}

func TestSkipWithNothingPlayingIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	c := env.newCoordinator(t, 2500*time.Millisecond)

	c.Skip()
	flush(c)

	if rows := env.historyRows(t); len(rows) != 0 {
		t.Errorf("skip with nothing playing produced %d history rows", len(rows))
	}
	np, _ := roomState(c)
	if np != nil {
		t.Error("nothing should be playing")
	}
}

func TestInteractiveSourcingStartsPlayback(t *testing.T) {
	env := newTestEnv(t)
	c := env.newCoordinator(t, 2500*time.Millisecond)

	a := newFakePeer("a")
	a.requestFn = trackResponder("t-a", 180_000)
	b := newFakePeer("b")

	c.Join(a)
	c.Join(b)
	c.JoinDJs("a")

	waitFor(t, time.Second, func() bool {
		np, _ := roomState(c)
		return np != nil && np.DJID == "a"
	}, "a's track should start playing")

	waitFor(t, time.Second, func() bool {
		for _, method := range b.sentMethods() {
			if method == rpc.MethodPlayChannelTrack {
				return true
			}
		}
		return false
	}, "non-native listener should receive the state snapshot")
}

func TestSkipRotatesAndAppendsHistory(t *testing.T) {
	env := newTestEnv(t)
	c := env.newCoordinator(t, 2500*time.Millisecond)

	a := newFakePeer("a")
	a.requestFn = trackResponder("t-a", 180_000)
	b := newFakePeer("b")
	b.requestFn = trackResponder("t-b", 180_000)

	c.Join(a)
	c.Join(b)
	c.JoinDJs("a")
	c.JoinDJs("b")

	waitFor(t, time.Second, func() bool {
		np, _ := roomState(c)
		return np != nil && np.DJID == "a"
	}, "a's track should start")

	c.Skip()

	waitFor(t, time.Second, func() bool {
		np, djs := roomState(c)
		return np != nil && np.DJID == "b" && len(djs) == 2 && djs[0] == "b" && djs[1] == "a"
	}, "rotation should hand control to b")

	waitFor(t, time.Second, func() bool {
		rows := env.historyRows(t)
		return len(rows) == 1 && rows[0].Skipped && rows[0].TrackID == "t-a"
	}, "skipped play should be in history")
}

func TestNaturalAdvanceAppendsHistory(t *testing.T) {
	env := newTestEnv(t)
	c := env.newCoordinator(t, 2500*time.Millisecond)

	a := newFakePeer("a")
	a.requestFn = trackResponder("t-a", 80)
	b := newFakePeer("b")
	b.requestFn = trackResponder("t-b", 180_000)

	c.Join(a)
	c.Join(b)
	c.JoinDJs("a")
	c.JoinDJs("b")

	// a's 80ms track ends on its own; rotation hands control to b.
	waitFor(t, 2*time.Second, func() bool {
		np, djs := roomState(c)
		return np != nil && np.DJID == "b" && len(djs) == 2 && djs[0] == "b"
	}, "duration timer should advance to b")

	waitFor(t, time.Second, func() bool {
		rows := env.historyRows(t)
		return len(rows) == 1 && !rows[0].Skipped && rows[0].TrackID == "t-a"
	}, "finished play should be in history with skipped=false")
}

func TestInteractiveTimeoutRemovesDJ(t *testing.T) {
	env := newTestEnv(t)
	c := env.newCoordinator(t, 30*time.Millisecond)

	a := newFakePeer("a") // never answers; default requestFn waits out ctx
	b := newFakePeer("b")
	b.requestFn = trackResponder("t-b", 180_000)

	c.Join(a)
	c.Join(b)
	c.JoinDJs("a")
	c.JoinDJs("b")

	// a times out, is removed, and the room moves on to b instead of
	// sticking in the awaiting state.
	waitFor(t, 2*time.Second, func() bool {
		np, djs := roomState(c)
		return np != nil && np.DJID == "b" && len(djs) == 1 && djs[0] == "b"
	}, "timeout should remove a and source b")
}

func TestLastDJTimeoutPauses(t *testing.T) {
	env := newTestEnv(t)
	c := env.newCoordinator(t, 30*time.Millisecond)

	a := newFakePeer("a")
	c.Join(a)
	c.JoinDJs("a")

	waitFor(t, 2*time.Second, func() bool {
		np, djs := roomState(c)
		return np == nil && len(djs) == 0
	}, "room should pause when the only DJ times out")

	waitFor(t, time.Second, func() bool {
		for _, method := range a.sentMethods() {
			if method == rpc.MethodPauseChannelTrack {
				return true
			}
		}
		return false
	}, "listener should receive the pause broadcast")
}

func TestStepDownAfterPlayDropsDJ(t *testing.T) {
	env := newTestEnv(t)
	c := env.newCoordinator(t, 2500*time.Millisecond)

	a := newFakePeer("a")
	a.requestFn = trackResponder("t-a", 180_000)
	b := newFakePeer("b")
	b.requestFn = trackResponder("t-b", 180_000)

	c.Join(a)
	c.Join(b)
	c.JoinDJs("a")
	c.JoinDJs("b")

	waitFor(t, time.Second, func() bool {
		np, _ := roomState(c)
		return np != nil && np.DJID == "a"
	}, "a should be playing")

	c.StepDown("a")
	c.Skip()

	waitFor(t, time.Second, func() bool {
		np, djs := roomState(c)
		return np != nil && np.DJID == "b" && len(djs) == 1 && djs[0] == "b"
	}, "a should leave rotation after its play")
}

func TestStepDownPendingEntryRemovedOnRotation(t *testing.T) {
	env := newTestEnv(t)
	c := env.newCoordinator(t, 2500*time.Millisecond)

	a := newFakePeer("a")
	a.requestFn = trackResponder("t-a", 180_000)
	b := newFakePeer("b")
	b.requestFn = trackResponder("t-b", 180_000)

	c.Join(a)
	c.Join(b)
	c.JoinDJs("a")
	c.JoinDJs("b")

	waitFor(t, time.Second, func() bool {
		np, _ := roomState(c)
		return np != nil && np.DJID == "a"
	}, "a should be playing")

	c.StepDown("b")
	c.Skip()

	// Rotation moves a to the tail, then drops b; a is back in control.
	waitFor(t, time.Second, func() bool {
		np, djs := roomState(c)
		return np != nil && np.DJID == "a" && len(djs) == 1 && djs[0] == "a"
	}, "b should be removed and a sourced again")
}

func TestBotAloneWithEmptyPlaylistPauses(t *testing.T) {
	env := newTestEnv(t)
	env.deps.Bot = bot.New(&bot.Playlist{}, env.deps.Bus, zerolog.Nop())
	c := env.newCoordinator(t, 2500*time.Millisecond)

	c.SeatBot()

	waitFor(t, time.Second, func() bool {
		np, djs := roomState(c)
		return np == nil && len(djs) == 0
	}, "bot should step down and pause an empty room")
}

func TestBotEmptyPlaylistWithListenersPauses(t *testing.T) {
	env := newTestEnv(t)
	env.deps.Bot = bot.New(&bot.Playlist{}, env.deps.Bus, zerolog.Nop())
	c := env.newCoordinator(t, 2500*time.Millisecond)

	a := newFakePeer("a")
	c.Join(a)
	c.SeatBot()

	waitFor(t, time.Second, func() bool {
		np, djs := roomState(c)
		return np == nil && len(djs) == 0
	}, "empty playlist should fail sourcing and pause")

	waitFor(t, time.Second, func() bool {
		for _, method := range a.sentMethods() {
			if method == rpc.MethodPauseChannelTrack {
				return true
			}
		}
		return false
	}, "listener should be told to pause")
}

func TestBotPlaysFromPlaylist(t *testing.T) {
	env := newTestEnv(t)
	env.deps.Bot = bot.New(&bot.Playlist{Tracks: []string{"bot-1"}}, env.deps.Bus, zerolog.Nop())
	c := env.newCoordinator(t, 2500*time.Millisecond)

	a := newFakePeer("a")
	c.Join(a)
	c.SeatBot()

	waitFor(t, time.Second, func() bool {
		np, _ := roomState(c)
		return np != nil && np.Track.ID == "bot-1"
	}, "bot should source from its playlist")
}

func TestBotStepsDownWithoutListeners(t *testing.T) {
	env := newTestEnv(t)
	env.deps.Bot = bot.New(&bot.Playlist{Tracks: []string{"bot-1"}}, env.deps.Bus, zerolog.Nop())
	c := env.newCoordinator(t, 2500*time.Millisecond)

	c.SeatBot()

	// Nobody is listening, so the bot steps aside before pulling from
	// its playlist instead of playing to an empty room.
	waitFor(t, time.Second, func() bool {
		np, djs := roomState(c)
		return np == nil && len(djs) == 0
	}, "bot should step down when the room has no listeners")

	if rows := env.historyRows(t); len(rows) != 0 {
		t.Errorf("bot played %d tracks to an empty room", len(rows))
	}
}

func TestEmptyRoomDisposedWhenBotStepsDown(t *testing.T) {
	env := newTestEnv(t)
	env.deps.Bot = bot.New(&bot.Playlist{}, env.deps.Bus, zerolog.Nop())
	if err := env.store.CreateChannel(context.Background(), &models.Channel{ID: "room-3", Title: "room-3"}); err != nil {
		t.Fatalf("seed channel: %v", err)
	}

	var emptied atomic.Bool
	c := New(Options{
		ChannelID:       "room-3",
		SourcingTimeout: 2500 * time.Millisecond,
		OnEmpty:         func(string) { emptied.Store(true) },
	}, env.deps)
	t.Cleanup(c.Close)

	c.SeatBot()

	waitFor(t, time.Second, emptied.Load, "pausing an empty room should fire OnEmpty")
}

func TestBotRoomDisposedAfterLastListenerLeaves(t *testing.T) {
	env := newTestEnv(t)
	env.deps.Bot = bot.New(&bot.Playlist{Tracks: []string{"bot-1"}}, env.deps.Bus, zerolog.Nop())
	env.deps.Catalog = &fakeCatalog{durationMS: 80}
	if err := env.store.CreateChannel(context.Background(), &models.Channel{ID: "room-4", Title: "room-4"}); err != nil {
		t.Fatalf("seed channel: %v", err)
	}

	var emptied atomic.Bool
	c := New(Options{
		ChannelID:       "room-4",
		SourcingTimeout: 2500 * time.Millisecond,
		OnEmpty:         func(string) { emptied.Store(true) },
	}, env.deps)
	t.Cleanup(c.Close)

	a := newFakePeer("a")
	c.Join(a)

	waitFor(t, time.Second, func() bool {
		np, _ := roomState(c)
		return np != nil && np.Track.ID == "bot-1"
	}, "bot should be seated and playing on first join")

	c.Leave("a")

	// The current track plays out; the next sourcing attempt finds the
	// room empty and the bot steps down, closing it.
	waitFor(t, 2*time.Second, emptied.Load, "room should be disposed once the bot steps down")
}

func TestLoneListenerVoteNotRewarded(t *testing.T) {
	env := newTestEnv(t)
	env.deps.Bot = bot.New(&bot.Playlist{Tracks: []string{"bot-1"}}, env.deps.Bus, zerolog.Nop())
	c := env.newCoordinator(t, 2500*time.Millisecond)

	a := newFakePeer("a")
	c.Join(a)
	c.SeatBot()

	waitFor(t, time.Second, func() bool {
		np, _ := roomState(c)
		return np != nil
	}, "bot track should start")

	c.Vote("a", Vote{Dope: 1, VotedCount: 1})
	c.Skip()

	waitFor(t, time.Second, func() bool {
		rows := env.historyRows(t)
		return len(rows) == 1 && rows[0].Dope == 1
	}, "the vote should reach the summary")

	// The >1 listener gate keeps a lone listener's votes unrewarded.
	time.Sleep(50 * time.Millisecond)
	var coins int64
	if err := env.db.Model(&models.CoinTransaction{}).Count(&coins).Error; err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	if coins != 0 {
		t.Errorf("expected no coin transactions, got %d", coins)
	}
}

func TestVoteBroadcastsMeter(t *testing.T) {
	env := newTestEnv(t)
	c := env.newCoordinator(t, 2500*time.Millisecond)

	a := newFakePeer("a")
	a.requestFn = trackResponder("t-a", 180_000)
	b := newFakePeer("b")

	c.Join(a)
	c.Join(b)
	c.JoinDJs("a")

	waitFor(t, time.Second, func() bool {
		np, _ := roomState(c)
		return np != nil
	}, "track should start")

	c.Vote("b", Vote{Dope: 1, VotedCount: 1})
	flush(c)

	waitFor(t, time.Second, func() bool {
		for _, method := range b.sentMethods() {
			if method == rpc.MethodUpdateChannelMeter {
				return true
			}
		}
		return false
	}, "meter broadcast should reach listeners")
}

func TestStoredStackSourcing(t *testing.T) {
	env := newTestEnv(t)
	env.deps.Catalog = &fakeCatalog{durationMS: 180_000, unavailable: map[string]bool{"s-1": true}}
	c := env.newCoordinator(t, 2500*time.Millisecond)

	if err := env.db.Create(&models.User{ID: "a", UserName: "sleeper"}).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if err := env.db.Create(&models.Stack{
		ID: "stack-1", UserID: "a", ActiveQueue: true,
		TrackIDs: []string{"s-1", "s-2", "s-3"},
	}).Error; err != nil {
		t.Fatalf("seed stack: %v", err)
	}

	a := newFakePeer("a")
	a.info.Mobile = true
	a.info.CatalogAuth = "token"
	a.SetSleeping(true)

	c.Join(a)
	c.JoinDJs("a")

	// First stack entry is unavailable; the second plays.
	waitFor(t, time.Second, func() bool {
		np, _ := roomState(c)
		return np != nil && np.Track.ID == "s-2" && np.DJID == "a"
	}, "stack sourcing should skip unavailable entries")

	waitFor(t, time.Second, func() bool {
		removed, refreshed := false, false
		for _, method := range a.sentMethods() {
			switch method {
			case rpc.MethodRemoveFromStack:
				removed = true
			case rpc.MethodRefreshDjStack:
				refreshed = true
			}
		}
		return removed && refreshed
	}, "client should be told to mutate and refresh its stack")
}

func TestStoredStackMissingRemovesDJ(t *testing.T) {
	env := newTestEnv(t)
	c := env.newCoordinator(t, 2500*time.Millisecond)

	a := newFakePeer("a")
	a.info.Mobile = true
	a.SetSleeping(true)

	c.Join(a)
	c.JoinDJs("a")

	waitFor(t, time.Second, func() bool {
		np, djs := roomState(c)
		return np == nil && len(djs) == 0
	}, "a DJ with no stack should be removed and the room paused")
}

func TestSupersededTimerDoesNotAdvance(t *testing.T) {
	env := newTestEnv(t)
	c := env.newCoordinator(t, 2500*time.Millisecond)

	a := newFakePeer("a")
	a.requestFn = trackResponder("t-a", 500)
	b := newFakePeer("b")
	b.requestFn = trackResponder("t-b", 180_000)

	c.Join(a)
	c.Join(b)
	c.JoinDJs("a")
	c.JoinDJs("b")

	waitFor(t, time.Second, func() bool {
		np, _ := roomState(c)
		return np != nil && np.DJID == "a"
	}, "a should be playing")

	c.Skip()

	waitFor(t, time.Second, func() bool {
		np, _ := roomState(c)
		return np != nil && np.DJID == "b"
	}, "skip should hand control to b")

	// a's 500ms duration timer fires after the skip superseded it; the
	// stale fire must not rotate again or double-file history.
	time.Sleep(700 * time.Millisecond)

	np, djs := roomState(c)
	if np == nil || np.DJID != "b" {
		t.Fatalf("superseded timer advanced the rotation: nowPlaying=%+v", np)
	}
	if len(djs) != 2 || djs[0] != "b" {
		t.Errorf("djs = %v, want b at the head", djs)
	}
	rows := env.historyRows(t)
	if len(rows) != 1 || rows[0].TrackID != "t-a" {
		t.Errorf("history has %d rows, want exactly the skipped t-a entry", len(rows))
	}
}

func TestLateSourcingResultDiscarded(t *testing.T) {
	env := newTestEnv(t)
	c := env.newCoordinator(t, 2500*time.Millisecond)

	a := newFakePeer("a")
	a.requestFn = func(ctx context.Context, _ string, _ any) (rpc.Response, error) {
		select {
		case <-time.After(80 * time.Millisecond):
		case <-ctx.Done():
			return rpc.Response{}, ctx.Err()
		}
		result, err := json.Marshal(interactiveResult{Track: testTrack("t-a", 180_000)})
		if err != nil {
			return rpc.Response{}, err
		}
		return rpc.Response{JSONRPC: rpc.Version, Result: result}, nil
	}
	b := newFakePeer("b")
	b.requestFn = trackResponder("t-b", 180_000)

	c.Join(a)
	c.Join(b)
	c.JoinDJs("a")
	c.JoinDJs("b")
	c.LeaveDJs("a")

	waitFor(t, time.Second, func() bool {
		np, _ := roomState(c)
		return np != nil && np.DJID == "b"
	}, "b should take over after a leaves rotation")

	// a's answer arrives after its sourcing attempt was superseded and
	// must be dropped on the floor.
	time.Sleep(150 * time.Millisecond)

	np, djs := roomState(c)
	if np == nil || np.Track.ID != "t-b" {
		t.Fatalf("late result replaced the playing track: %+v", np)
	}
	if len(djs) != 1 || djs[0] != "b" {
		t.Errorf("djs = %v, want [b]", djs)
	}
	if rows := env.historyRows(t); len(rows) != 0 {
		t.Errorf("late result produced %d history rows", len(rows))
	}
}

func TestStaleStackResultLeavesClientStackAlone(t *testing.T) {
	env := newTestEnv(t)
	env.deps.Catalog = &slowCatalog{inner: fakeCatalog{durationMS: 180_000}, delay: 60 * time.Millisecond}
	c := env.newCoordinator(t, 2500*time.Millisecond)

	if err := env.db.Create(&models.User{ID: "a", UserName: "sleeper"}).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if err := env.db.Create(&models.Stack{
		ID: "stack-1", UserID: "a", ActiveQueue: true,
		TrackIDs: []string{"s-1", "s-2"},
	}).Error; err != nil {
		t.Fatalf("seed stack: %v", err)
	}

	a := newFakePeer("a")
	a.info.Mobile = true
	a.info.CatalogAuth = "token"
	a.SetSleeping(true)

	c.Join(a)
	c.JoinDJs("a")
	c.LeaveDJs("a")

	// The catalog answers after a already left rotation; the discarded
	// result must not mutate the client's stack.
	time.Sleep(150 * time.Millisecond)

	np, djs := roomState(c)
	if np != nil || len(djs) != 0 {
		t.Fatalf("discarded stack result started playback: np=%+v djs=%v", np, djs)
	}
	for _, method := range a.sentMethods() {
		switch method {
		case rpc.MethodReorderStack, rpc.MethodRemoveFromStack, rpc.MethodRefreshDjStack:
			t.Fatalf("stack mutation %s sent for a track that never played", method)
		}
	}
}

func TestOnEmptyFiresWhenLastListenerLeaves(t *testing.T) {
	env := newTestEnv(t)
	if err := env.store.CreateChannel(context.Background(), &models.Channel{ID: "room-2", Title: "room-2"}); err != nil {
		t.Fatalf("seed channel: %v", err)
	}

	var emptied atomic.Bool
	c := New(Options{
		ChannelID:       "room-2",
		SourcingTimeout: 2500 * time.Millisecond,
		OnEmpty:         func(string) { emptied.Store(true) },
	}, env.deps)
	t.Cleanup(c.Close)

	a := newFakePeer("a")
	c.Join(a)
	c.Leave("a")

	waitFor(t, time.Second, emptied.Load, "OnEmpty should fire for an empty room")
}
