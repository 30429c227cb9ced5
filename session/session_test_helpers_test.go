package session

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStoreTest(t *testing.T) (*RedisStore, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewRedisStore(rdb, "obs", 24*time.Hour), mr, rdb
}

func testRecord() *Record {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &Record{
		ID:                      "5b0f8c5e-6a4e-4d8e-9a51-3f1d1c2b7a10",
		CreatedAt:               now,
		UpdatedAt:               now,
		Origin:                  "203.0.113.7",
		DataConsent:             true,
		MaxVerificationAttempts: 3,
		MaxResendAttempts:       3,
	}
}
