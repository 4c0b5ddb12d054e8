package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// State of an idempotency key.
type State int

const (
	// Acquired: the caller owns the key and must Save or Release it.
	Acquired State = iota
	// InProgress: another request with the same key is running.
	InProgress
	// Done: a stored response exists and must be replayed.
	Done
)

// IdempotencyStore remembers the response of a request per client key.
// A short lock (SET NX) guards the first execution; the encoded response
// is kept for TTL afterwards.
type IdempotencyStore struct {
	rdb     redis.Cmdable
	prefix  string
	ttl     time.Duration
	lockTTL time.Duration
}

func NewIdempotencyStore(rdb redis.Cmdable, prefix string, ttl, lockTTL time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &IdempotencyStore{rdb: rdb, prefix: prefix, ttl: ttl, lockTTL: lockTTL}
}

func (s *IdempotencyStore) respKey(key string) string { return s.prefix + ":" + key + ":resp" }
func (s *IdempotencyStore) lockKey(key string) string { return s.prefix + ":" + key + ":lock" }

// Begin claims key.  With Done, payload is the stored response.
func (s *IdempotencyStore) Begin(ctx context.Context, key string) (State, []byte, error) {
	if payload, ok, err := s.stored(ctx, key); err != nil || ok {
		return Done, payload, err
	}
	won, err := s.rdb.SetNX(ctx, s.lockKey(key), "1", s.lockTTL).Result()
	if err != nil {
		return InProgress, nil, err
	}
	if !won {
		return InProgress, nil, nil
	}
	// The previous owner may have saved between the read and the lock.
	if payload, ok, err := s.stored(ctx, key); err != nil || ok {
		_ = s.rdb.Del(ctx, s.lockKey(key)).Err()
		return Done, payload, err
	}
	return Acquired, nil, nil
}

func (s *IdempotencyStore) stored(ctx context.Context, key string) ([]byte, bool, error) {
	payload, err := s.rdb.Get(ctx, s.respKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

// Save stores the response and drops the lock.
func (s *IdempotencyStore) Save(ctx context.Context, key string, payload []byte) error {
	if err := s.rdb.Set(ctx, s.respKey(key), payload, s.ttl).Err(); err != nil {
		return err
	}
	return s.rdb.Del(ctx, s.lockKey(key)).Err()
}

// Release drops the lock without storing anything, so the client may
// retry with the same key.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.lockKey(key)).Err()
}
