// Command onboard-loadtest hammers the verification paths of the engine with
// concurrent requests against shared sessions and checks that no counter
// update was lost.
//
// Phases:
//
//	send     concurrent first sends per session; exactly one may succeed
//	validate concurrent wrong codes per session; attempts must add up to the cap
//
// Redis comes from -redis-addr, REDIS_ADDR, or an in-process miniredis.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goOnboard "github.com/MrEthical07/goOnboard"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type countingMailer struct {
	sent  atomic.Int64
	mu    sync.Mutex
	codes map[string]string
}

func (m *countingMailer) SendVerificationCode(_ context.Context, to, _, code string, _ time.Time) error {
	m.sent.Add(1)
	m.mu.Lock()
	m.codes[to] = code
	m.mu.Unlock()
	return nil
}

func (m *countingMailer) code(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[to]
}

func main() {
	var (
		sessions    = flag.Int("sessions", 500, "number of sessions per phase")
		racers      = flag.Int("racers", 8, "concurrent requests per session")
		concurrency = flag.Int("concurrency", 64, "sessions worked on in parallel")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *sessions <= 0 || *racers <= 0 || *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, racers, and concurrency must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := goOnboard.DefaultConfig()
	cfg.RateLimit.Enabled = false
	cfg.Session.RedisPrefix = fmt.Sprintf("oblt%d", time.Now().UnixNano())

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	mailer := &countingMailer{codes: make(map[string]string)}

	engine, err := goOnboard.New().
		WithConfig(cfg).
		WithRedis(client).
		WithMailer(mailer).
		WithLogger(log).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	seed := func() []string {
		ids, err := seedSessions(ctx, engine, *sessions)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
			os.Exit(1)
		}
		return ids
	}

	sendIDs := seed()
	sendStats, sent := runSendPhase(ctx, engine, sendIDs, *racers, *concurrency)

	validateIDs := seed()
	for _, id := range validateIDs {
		if _, err := engine.SendCode(ctx, id); err != nil {
			fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
			os.Exit(1)
		}
	}
	validateStats, incorrect, exhausted := runValidatePhase(ctx, engine, mailer, validateIDs, *racers, *concurrency)

	fmt.Println("---- results ----")
	printStats("send", sendStats)
	printStats("validate", validateStats)

	failed := false
	check := func(ok bool, format string, args ...any) {
		status := "ok  "
		if !ok {
			status = "FAIL"
			failed = true
		}
		fmt.Printf("%s "+format+"\n", append([]any{status}, args...)...)
	}

	check(sent == int64(len(sendIDs)), "send: %d sessions, %d codes issued", len(sendIDs), sent)
	maxAttempts := int64(cfg.Verification.MaxAttempts)
	wantIncorrect := int64(len(validateIDs)) * (maxAttempts - 1)
	if int64(*racers) < maxAttempts {
		wantIncorrect = int64(len(validateIDs)) * int64(*racers)
	}
	check(incorrect == wantIncorrect, "validate: %d incorrect (want %d)", incorrect, wantIncorrect)
	if int64(*racers) >= maxAttempts {
		check(exhausted == int64(len(validateIDs)), "validate: %d exhausted (want %d)", exhausted, len(validateIDs))
	}

	snap := engine.MetricsSnapshot()
	check(snap.Counters[goOnboard.MetricCodeIncorrect] == uint64(incorrect), "metrics: code_incorrect=%d", snap.Counters[goOnboard.MetricCodeIncorrect])

	if failed {
		os.Exit(1)
	}
}

var emailSeq atomic.Int64

func seedSessions(ctx context.Context, engine *goOnboard.Engine, n int) ([]string, error) {
	ids := make([]string, 0, n)
	start := time.Now()
	for i := 0; i < n; i++ {
		view, err := engine.StartSession(ctx, goOnboard.StartOptions{DataConsent: true})
		if err != nil {
			return nil, err
		}
		if _, err := engine.SetEmail(ctx, view.ID, fmt.Sprintf("user%d@example.com", emailSeq.Add(1))); err != nil {
			return nil, err
		}
		ids = append(ids, view.ID)
	}
	fmt.Printf("seeded %d sessions in %s\n", n, time.Since(start).Round(time.Millisecond))
	return ids, nil
}

// forEach runs fn for every id with at most concurrency ids in flight.
func forEach(ids []string, concurrency int, fn func(id string)) time.Duration {
	var (
		wg     sync.WaitGroup
		cursor int64
	)
	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= len(ids) {
					return
				}
				fn(ids[i])
			}
		}()
	}
	wg.Wait()
	return time.Since(start)
}

// race runs fn racers times concurrently and records each latency.
func race(racers int, rec *recorder, fn func() error) {
	var wg sync.WaitGroup
	for r := 0; r < racers; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t0 := time.Now()
			err := fn()
			rec.add(time.Since(t0), err)
		}()
	}
	wg.Wait()
}

func runSendPhase(ctx context.Context, engine *goOnboard.Engine, ids []string, racers, concurrency int) (phaseStats, int64) {
	rec := &recorder{}
	var sent atomic.Int64
	total := forEach(ids, concurrency, func(id string) {
		race(racers, rec, func() error {
			_, err := engine.SendCode(ctx, id)
			if err == nil {
				sent.Add(1)
				return nil
			}
			if errors.Is(err, goOnboard.ErrResendThrottled) {
				return nil
			}
			return err
		})
	})
	return rec.stats(total), sent.Load()
}

func runValidatePhase(ctx context.Context, engine *goOnboard.Engine, mailer *countingMailer, ids []string, racers, concurrency int) (phaseStats, int64, int64) {
	rec := &recorder{}
	var incorrect, exhausted atomic.Int64
	total := forEach(ids, concurrency, func(id string) {
		view, err := engine.Session(ctx, id)
		if err != nil {
			rec.add(0, err)
			return
		}
		bad := wrongCode(mailer.code(view.Email))
		race(racers, rec, func() error {
			err := engine.ValidateCode(ctx, id, bad)
			switch {
			case errors.Is(err, goOnboard.ErrIncorrectCode):
				incorrect.Add(1)
				return nil
			case errors.Is(err, goOnboard.ErrAttemptsExhausted):
				exhausted.Add(1)
				return nil
			case errors.Is(err, goOnboard.ErrSessionNotFound):
				return nil
			}
			if err == nil {
				return errors.New("wrong code accepted")
			}
			return err
		})
	})
	return rec.stats(total), incorrect.Load(), exhausted.Load()
}

func wrongCode(code string) string {
	if code == "" {
		return "ZZZZZZ"
	}
	if code[0] == 'Z' {
		return "Y" + code[1:]
	}
	return "Z" + code[1:]
}

type recorder struct {
	mu        sync.Mutex
	latencies []time.Duration
	failures  int64
}

func (r *recorder) add(d time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latencies = append(r.latencies, d)
	if err != nil {
		r.failures++
	}
}

func (r *recorder) stats(total time.Duration) phaseStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return computeStats(total, r.latencies, r.failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total, failures: failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
