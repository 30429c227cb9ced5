package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned when no record exists for the identifier.
	ErrNotFound = errors.New("session not found")
	// ErrExists is returned by Create when the identifier is already taken.
	ErrExists = errors.New("session already exists")
	// ErrUnavailable wraps backend failures (network, disk, driver).
	ErrUnavailable = errors.New("session store unavailable")
	// ErrConflict is returned when an update keeps losing compare-and-set races.
	ErrConflict = errors.New("session update conflict")
	// ErrCorrupt is returned when a stored record cannot be decoded.
	ErrCorrupt = errors.New("session record corrupt")
)

// Action tells the store what to do with the record after an update callback.
type Action int

const (
	// ActionNone leaves the stored record untouched.
	ActionNone Action = iota
	// ActionSave persists the mutated record.
	ActionSave
	// ActionDelete removes the record.
	ActionDelete
)

// UpdateFunc mutates rec in place and reports what should be committed.
// Returning an error aborts the update without writing anything.
type UpdateFunc func(rec *Record) (Action, error)

// Store persists onboarding records. Implementations must make Create and
// Update atomic per identifier: two concurrent Updates on the same record are
// serialized, and the callback may be invoked more than once when a race is
// lost, so it must not have side effects beyond rec.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	Exists(ctx context.Context, id string) (bool, error)
	Update(ctx context.Context, id string, fn UpdateFunc) (*Record, error)
	Delete(ctx context.Context, id string) error
}

const updateMaxRetries = 8

// RedisStore keeps each record under a single key as an [Encode]d blob.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore returns a store writing keys as prefix:id. Records expire
// after ttl measured from creation; a zero ttl keeps them forever.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "obs"
	}
	return &RedisStore{redis: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + ":" + id
}

// Create stores rec if no record with the same ID exists.
func (s *RedisStore) Create(ctx context.Context, rec *Record) error {
	if err := rec.CheckInvariants(); err != nil {
		return err
	}
	stored := rec.Clone()
	stored.Version = 1
	data, err := Encode(stored)
	if err != nil {
		return err
	}

	ok, err := s.redis.SetNX(ctx, s.key(rec.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		return ErrExists
	}
	rec.Version = stored.Version
	return nil
}

// Get loads the record for id.
func (s *RedisStore) Get(ctx context.Context, id string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	rec, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return rec, nil
}

// Exists reports whether a record is stored for id.
func (s *RedisStore) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

// Update runs fn against the current record inside WATCH/MULTI and commits
// the outcome. When the key changes underneath, the read and fn are retried.
// The returned record is the committed state (nil after ActionDelete).
func (s *RedisStore) Update(ctx context.Context, id string, fn UpdateFunc) (*Record, error) {
	key := s.key(id)

	for attempt := 0; attempt < updateMaxRetries; attempt++ {
		var result *Record
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			current, err := Decode(data)
			if err != nil {
				return abortError{fmt.Errorf("%w: %v", ErrCorrupt, err)}
			}

			working := current.Clone()
			action, err := fn(working)
			if err != nil {
				return abortError{err}
			}

			switch action {
			case ActionNone:
				result = current
				return nil
			case ActionDelete:
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			case ActionSave:
				working.ID = current.ID
				working.Version = current.Version + 1
				if err := working.CheckInvariants(); err != nil {
					return abortError{err}
				}
				encoded, err := Encode(working)
				if err != nil {
					return abortError{err}
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.SetArgs(ctx, key, encoded, redis.SetArgs{KeepTTL: true})
					return nil
				})
				if err != nil {
					return err
				}
				result = working
				return nil
			default:
				return abortError{fmt.Errorf("unknown update action %d", action)}
			}
		}, key)

		var abort abortError
		switch {
		case err == nil:
			return result, nil
		case errors.As(err, &abort):
			return nil, abort.err
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, redis.Nil):
			return nil, ErrNotFound
		default:
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	return nil, ErrConflict
}

// Delete removes the record for id. Deleting a missing record is not an error.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// abortError carries a callback or codec failure out of the WATCH closure
// so it is not mistaken for a Redis failure.
type abortError struct{ err error }

func (e abortError) Error() string { return e.err.Error() }

func (e abortError) Unwrap() error { return e.err }
