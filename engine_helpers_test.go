package goOnboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goOnboard/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sentMail struct {
	To        string
	Name      string
	Code      string
	ExpiresAt time.Time
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) SendVerificationCode(_ context.Context, to, displayName, code string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{To: to, Name: displayName, Code: code, ExpiresAt: expiresAt})
	return nil
}

func (m *fakeMailer) setErr(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *fakeMailer) last(t testing.TB) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("expected a mail to be sent")
	}
	return m.sent[len(m.sent)-1]
}

type testHarness struct {
	engine *Engine
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	clock  *fakeClock
	mailer *fakeMailer
	logs   *test.Hook
}

func newTestRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RateLimit.Enabled = false
	return cfg
}

func newHarness(t testing.TB, cfg Config, configure ...func(*Builder)) *testHarness {
	t.Helper()

	mr, rdb := newTestRedis(t)
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	h := &testHarness{
		mr:     mr,
		rdb:    rdb,
		clock:  newFakeClock(),
		mailer: &fakeMailer{},
		logs:   hook,
	}

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithMailer(h.mailer).
		WithLogger(logger).
		WithClock(h.clock.Now)
	for _, fn := range configure {
		fn(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	h.engine = engine
	return h
}

// sequentialCodes makes generated codes predictable: CODE01, CODE02, ...
func (h *testHarness) sequentialCodes() {
	var mu sync.Mutex
	n := 0
	h.engine.newCode = func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("CODE%02d", n), nil
	}
}

func (h *testHarness) record(t *testing.T, id string) *session.Record {
	t.Helper()
	rec, err := h.engine.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("store Get(%s) failed: %v", id, err)
	}
	return rec
}

// sessionWithEmail starts a session and fills in name and email.
func (h *testHarness) sessionWithEmail(t testing.TB, ctx context.Context, email string) string {
	t.Helper()
	view, err := h.engine.StartSession(ctx, StartOptions{DataConsent: true})
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if _, err := h.engine.SetName(ctx, view.ID, "Ada Lovelace"); err != nil {
		t.Fatalf("SetName failed: %v", err)
	}
	if _, err := h.engine.SetEmail(ctx, view.ID, email); err != nil {
		t.Fatalf("SetEmail failed: %v", err)
	}
	return view.ID
}

// wrongCode returns a well formed code different from code.
func wrongCode(code string) string {
	if code == "ZZZZZZ" {
		return "YYYYYY"
	}
	return "ZZZZZZ"
}

func requireIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}
