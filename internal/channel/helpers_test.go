package channel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/friendsincode/turnstyle/internal/achievements"
	"github.com/friendsincode/turnstyle/internal/catalog"
	"github.com/friendsincode/turnstyle/internal/client"
	"github.com/friendsincode/turnstyle/internal/economy"
	"github.com/friendsincode/turnstyle/internal/eventbus"
	"github.com/friendsincode/turnstyle/internal/events"
	"github.com/friendsincode/turnstyle/internal/models"
	"github.com/friendsincode/turnstyle/internal/rpc"
	"github.com/friendsincode/turnstyle/internal/store"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakePeer is an in-memory Peer that records sent frames and answers
// requests through a pluggable function.
type fakePeer struct {
	id   string
	info client.Info

	mu       sync.Mutex
	sleeping bool
	sent     []rpc.Notification

	requestFn func(ctx context.Context, method string, params any) (rpc.Response, error)
}

func newFakePeer(id string) *fakePeer {
	return &fakePeer{id: id, info: client.Info{UserID: id}}
}

func (p *fakePeer) ID() string        { return p.id }
func (p *fakePeer) Info() client.Info { return p.info }

func (p *fakePeer) Sleeping() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sleeping
}

func (p *fakePeer) SetSleeping(sleeping bool) {
	p.mu.Lock()
	p.sleeping = sleeping
	p.mu.Unlock()
}

func (p *fakePeer) Send(n rpc.Notification) error {
	p.mu.Lock()
	p.sent = append(p.sent, n)
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) Request(ctx context.Context, method string, params any) (rpc.Response, error) {
	if p.requestFn != nil {
		return p.requestFn(ctx, method, params)
	}
	<-ctx.Done()
	return rpc.Response{}, ctx.Err()
}

func (p *fakePeer) Close(string) {}

func (p *fakePeer) sentMethods() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	methods := make([]string, len(p.sent))
	for i, n := range p.sent {
		methods[i] = n.Method
	}
	return methods
}

// fakeCatalog resolves every id to a playable track of fixed duration.
type fakeCatalog struct {
	durationMS  int64
	unavailable map[string]bool
}

func (f *fakeCatalog) ResolveTracks(_ context.Context, _ string, ids []string) ([]*catalog.Track, error) {
	tracks := make([]*catalog.Track, len(ids))
	for i, id := range ids {
		if f.unavailable[id] {
			continue
		}
		tracks[i] = testTrack(id, f.durationMS)
	}
	return tracks, nil
}

func testTrack(id string, durationMS int64) *catalog.Track {
	return &catalog.Track{
		ID:         id,
		URI:        "catalog:track:" + id,
		Name:       "Track " + id,
		Artists:    []string{"Artist"},
		Album:      "Album",
		DurationMS: durationMS,
		ISRC:       "ISRC" + id,
	}
}

type testEnv struct {
	db    *gorm.DB
	store *store.Service
	deps  Deps
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// A second pooled connection would get its own empty in-memory
	// database, so pin the pool to a single connection.
	pool, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite pool: %v", err)
	}
	pool.SetMaxOpenConns(1)
	if err := db.AutoMigrate(
		&models.User{},
		&models.Channel{},
		&models.PlayedTrack{},
		&models.Stack{},
		&models.FirstPlay{},
		&models.CoinTransaction{},
		&models.AchievementEvent{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	})

	log := zerolog.Nop()
	svc := store.New(db, nil, log)
	return &testEnv{
		db:    db,
		store: svc,
		deps: Deps{
			Store:        svc,
			Catalog:      &fakeCatalog{durationMS: 180_000},
			Achievements: achievements.New(db, log),
			Economy:      economy.New(db, log),
			Publisher:    &eventbus.NoopPublisher{},
			Bus:          events.NewBus(),
			Logger:       log,
		},
	}
}

func (env *testEnv) newCoordinator(t *testing.T, timeout time.Duration) *Coordinator {
	t.Helper()
	if err := env.store.CreateChannel(context.Background(), &models.Channel{ID: "room-1", Title: "room-1"}); err != nil {
		t.Fatalf("seed channel: %v", err)
	}
	c := New(Options{ChannelID: "room-1", SourcingTimeout: timeout}, env.deps)
	t.Cleanup(c.Close)
	return c
}

// flush waits until every command posted before it has run.
func flush(c *Coordinator) {
	done := make(chan struct{})
	c.post(func() { close(done) })
	<-done
}

// roomState reads coordinator state from inside the command sequence.
func roomState(c *Coordinator) (np *NowPlaying, djs []string) {
	done := make(chan struct{})
	c.post(func() {
		np = c.nowPlaying
		djs = c.queue.IDs()
		close(done)
	})
	<-done
	return np, djs
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}
