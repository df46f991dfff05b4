package redisrepo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/campusgo/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	lockPrefix   = "LOCK:"
	resultPrefix = "RES:"
)

// ErrKeyReused means an Idempotency-Key was presented with a request other
// than the one it was first used for.
var ErrKeyReused = errors.New("idempotency key reused with a different request")

// IdempotencyStore remembers responses keyed by a client Idempotency-Key and
// claims one-shot jobs such as reminders. Every entry carries the
// fingerprint of the request that created it, so a key cannot be replayed
// for a different request.
type IdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIdempotencyStore(rdb *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

// AcquireLock marks key as in flight for the request with fingerprint. It
// returns false if the key is locked or already holds a result.
func (s *IdempotencyStore) AcquireLock(ctx context.Context, key, fingerprint string, lockTTL time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, key, lockPrefix+fingerprint, lockTTL).Result()
}

// SaveResult replaces the lock with the response body for the store's TTL.
func (s *IdempotencyStore) SaveResult(ctx context.Context, key, fingerprint, jsonPayload string) error {
	return s.rdb.Set(ctx, key, resultPrefix+fingerprint+":"+jsonPayload, s.ttl).Err()
}

// GetResult returns the stored response for key. found is false while the
// key is absent or still locked. A key held for a different fingerprint,
// locked or finished, yields ErrKeyReused.
func (s *IdempotencyStore) GetResult(ctx context.Context, key, fingerprint string) (payload string, found bool, err error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	if owner, ok := strings.CutPrefix(v, lockPrefix); ok {
		if owner != fingerprint {
			return "", false, ErrKeyReused
		}
		return "", false, nil
	}

	rest, ok := strings.CutPrefix(v, resultPrefix)
	if !ok {
		return "", false, nil
	}

	owner, body, ok := strings.Cut(rest, ":")
	if !ok {
		return "", false, nil
	}
	if owner != fingerprint {
		return "", false, ErrKeyReused
	}

	return body, true, nil
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// ClaimReminder reports true to exactly one caller per (kind, event)
// within ttl, across all replicas.
func (s *IdempotencyStore) ClaimReminder(
	ctx context.Context,
	kind domain.EffectKind,
	eventID uuid.UUID,
	ttl time.Duration,
) (bool, error) {
	return s.rdb.SetNX(ctx, KeyReminder(string(kind), eventID), time.Now().UTC().Format(time.RFC3339), ttl).Result()
}
