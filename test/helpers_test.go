//go:build integration
// +build integration

package test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	goOnboard "github.com/MrEthical07/goOnboard"
	"github.com/MrEthical07/goOnboard/session"
	"github.com/MrEthical07/goOnboard/session/sqlite"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// backend is one session store setup the suite runs against. Every backend
// also gets a Redis client for the rate limiter.
type backend struct {
	name  string
	setup func(t *testing.T) (session.Store, redis.UniversalClient)
}

func miniredisClient(t *testing.T) redis.UniversalClient {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

// backends returns miniredis and SQLite always, plus real Redis when
// REDIS_ADDR or REDIS_CLUSTER_ADDRS is set.
func backends(t *testing.T) []backend {
	t.Helper()
	out := []backend{
		{
			name: "miniredis",
			setup: func(t *testing.T) (session.Store, redis.UniversalClient) {
				rdb := miniredisClient(t)
				return session.NewRedisStore(rdb, "obs", time.Hour), rdb
			},
		},
		{
			name: "sqlite",
			setup: func(t *testing.T) (session.Store, redis.UniversalClient) {
				store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "onboard.db"))
				if err != nil {
					t.Fatalf("open sqlite: %v", err)
				}
				t.Cleanup(func() { _ = store.Close() })
				return store, miniredisClient(t)
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		out = append(out, backend{
			name: "standalone:" + addr,
			setup: func(t *testing.T) (session.Store, redis.UniversalClient) {
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis at %s: %v", addr, err)
				}
				rdb.FlushDB(context.Background())
				t.Cleanup(func() { rdb.FlushDB(context.Background()); _ = rdb.Close() })
				return session.NewRedisStore(rdb, "obs", time.Hour), rdb
			},
		})
	}

	if addrs := os.Getenv("REDIS_CLUSTER_ADDRS"); addrs != "" {
		out = append(out, backend{
			name: "cluster",
			setup: func(t *testing.T) (session.Store, redis.UniversalClient) {
				rdb := redis.NewClusterClient(&redis.ClusterOptions{Addrs: splitAddrs(addrs)})
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis cluster: %v", err)
				}
				t.Cleanup(func() { _ = rdb.Close() })
				return session.NewRedisStore(rdb, "obs-"+t.Name(), time.Hour), rdb
			},
		})
	}

	return out
}

func splitAddrs(s string) []string {
	var addrs []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type mailbox struct {
	mu    sync.Mutex
	codes []string
}

func (m *mailbox) SendVerificationCode(_ context.Context, _, _, code string, _ time.Time) error {
	m.mu.Lock()
	m.codes = append(m.codes, code)
	m.mu.Unlock()
	return nil
}

func (m *mailbox) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.codes)
}

func (m *mailbox) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.codes) == 0 {
		return ""
	}
	return m.codes[len(m.codes)-1]
}

type fixture struct {
	engine *goOnboard.Engine
	clock  *clock
	mail   *mailbox
}

func newFixture(t *testing.T, b backend, configure func(*goOnboard.Config)) *fixture {
	t.Helper()
	store, rdb := b.setup(t)

	cfg := goOnboard.DefaultConfig()
	cfg.RateLimit.Enabled = false
	if configure != nil {
		configure(&cfg)
	}

	f := &fixture{
		clock: &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		mail:  &mailbox{},
	}
	engine, err := goOnboard.New().
		WithConfig(cfg).
		WithStore(store).
		WithRedis(rdb).
		WithMailer(f.mail).
		WithClock(f.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	f.engine = engine
	return f
}

func (f *fixture) sessionWithEmail(t *testing.T, email string) string {
	t.Helper()
	ctx := context.Background()
	view, err := f.engine.StartSession(ctx, goOnboard.StartOptions{DataConsent: true})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if _, err := f.engine.SetEmail(ctx, view.ID, email); err != nil {
		t.Fatalf("SetEmail: %v", err)
	}
	return view.ID
}

func wrongCode(code string) string {
	if code[0] == 'Z' {
		return "Y" + code[1:]
	}
	return "Z" + code[1:]
}
