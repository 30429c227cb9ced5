package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	goOnboard "github.com/MrEthical07/goOnboard"
	"github.com/MrEthical07/goOnboard/ticket"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
)

func init() { gin.SetMode(gin.TestMode) }

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
	err   error
}

func (m *mailbox) SendVerificationCode(_ context.Context, _, _, code string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.codes = append(m.codes, code)
	return nil
}

func (m *mailbox) last(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.codes) == 0 {
		t.Fatal("expected a code to be mailed")
	}
	return m.codes[len(m.codes)-1]
}

type apiHarness struct {
	router  *gin.Engine
	engine  *goOnboard.Engine
	tickets *ticket.Manager
	clock   *clock
	mail    *mailbox
}

func testEngineConfig() goOnboard.Config {
	cfg := goOnboard.DefaultConfig()
	cfg.RateLimit.Enabled = false
	return cfg
}

func newAPIHarness(t *testing.T, cfg goOnboard.Config) *apiHarness {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	mail := &mailbox{}
	logger, _ := test.NewNullLogger()

	engine, err := goOnboard.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithMailer(mail).
		WithClock(clk.Now).
		WithLogger(logger).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	tickets, err := ticket.NewManager(ticket.Config{
		TTL:           time.Hour,
		SigningMethod: ticket.MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "onboard-test",
	})
	if err != nil {
		t.Fatalf("ticket manager: %v", err)
	}

	router, err := NewRouter(Options{Service: engine, Tickets: tickets, Logger: logger})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return &apiHarness{router: router, engine: engine, tickets: tickets, clock: clk, mail: mail}
}

func (h *apiHarness) call(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	var res Response
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, res
}

// startWithEmail creates a session with a name and email and returns its id
// and ticket.
func (h *apiHarness) startWithEmail(t *testing.T, email string) (string, string) {
	t.Helper()
	rec, res := h.call(t, http.MethodPost, "/v1/sessions", "", map[string]any{"data_consent": true})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start session: %d %s", rec.Code, rec.Body.String())
	}
	id, tok := res.SessionID, res.Ticket
	if rec, _ := h.call(t, http.MethodPut, "/v1/sessions/"+id+"/name", tok, map[string]string{"name": "Ada"}); rec.Code != http.StatusOK {
		t.Fatalf("set name: %d %s", rec.Code, rec.Body.String())
	}
	if rec, _ := h.call(t, http.MethodPut, "/v1/sessions/"+id+"/email", tok, map[string]string{"email": email}); rec.Code != http.StatusOK {
		t.Fatalf("set email: %d %s", rec.Code, rec.Body.String())
	}
	return id, tok
}

func wrongCode(code string) string {
	if code[0] == 'Z' {
		return "Y" + code[1:]
	}
	return "Z" + code[1:]
}
