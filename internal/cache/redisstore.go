package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "pathlight:cache:"

// RedisStore is an EntryStore backed by a Redis hash per entry. Redis
// handles physical expiry itself, so DeleteExpired is a no-op; logical
// staleness still goes through the stored expires_at field like every
// other backend. Physical expiry is scheduled well past the logical
// instant so a stale row stays observable for a while, matching how the
// sqlite store keeps rows until the janitor sweeps them.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an existing client. The caller owns the client's
// lifecycle.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func redisKey(key string) string {
	return redisKeyPrefix + key
}

// GetEntry implements EntryStore.
func (s *RedisStore) GetEntry(ctx context.Context, key string) (Entry, bool, error) {
	fields, err := s.rdb.HGetAll(ctx, redisKey(key)).Result()
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(fields) == 0 {
		return Entry{}, false, nil
	}
	entry, err := entryFromFields(key, fields)
	if err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

// UpsertEntry implements EntryStore. The write is a single pipelined
// transaction: create-or-overwrite the fields, bump the usage count, and
// schedule physical expiry.
func (s *RedisStore) UpsertEntry(ctx context.Context, key string, payload json.RawMessage, expiresAt time.Time) (Entry, error) {
	now := time.Now().UTC()
	rk := redisKey(key)

	pipe := s.rdb.TxPipeline()
	pipe.HSetNX(ctx, rk, "created_at", now.Format(time.RFC3339Nano))
	pipe.HSet(ctx, rk,
		"payload", string(payload),
		"updated_at", now.Format(time.RFC3339Nano),
		"expires_at", expiresAt.UTC().Format(time.RFC3339Nano),
		"last_accessed_at", now.Format(time.RFC3339Nano),
	)
	incr := pipe.HIncrBy(ctx, rk, "usage_count", 1)
	createdAt := pipe.HGet(ctx, rk, "created_at")
	pipe.PExpireAt(ctx, rk, physicalExpiry(now, expiresAt))
	if _, err := pipe.Exec(ctx); err != nil {
		return Entry{}, fmt.Errorf("redis upsert: %w", err)
	}

	created, err := time.Parse(time.RFC3339Nano, createdAt.Val())
	if err != nil {
		created = now
	}
	return Entry{
		Key:            key,
		Payload:        payload,
		UsageCount:     incr.Val(),
		CreatedAt:      created,
		UpdatedAt:      now,
		ExpiresAt:      expiresAt.UTC(),
		LastAccessedAt: now,
	}, nil
}

// TouchEntry implements EntryStore. If the key vanished between the read
// and the touch (Redis expired it), the stray hash the increment created
// is deleted again so no TTL-less key survives.
func (s *RedisStore) TouchEntry(ctx context.Context, key string) (int64, error) {
	rk := redisKey(key)

	pipe := s.rdb.TxPipeline()
	incr := pipe.HIncrBy(ctx, rk, "usage_count", 1)
	pipe.HSet(ctx, rk, "last_accessed_at", time.Now().UTC().Format(time.RFC3339Nano))
	alive := pipe.HExists(ctx, rk, "payload")
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis touch: %w", err)
	}
	if !alive.Val() {
		if err := s.rdb.Del(ctx, rk).Err(); err != nil {
			return 0, fmt.Errorf("redis touch cleanup: %w", err)
		}
		return 0, fmt.Errorf("entry %q expired during touch", key)
	}
	return incr.Val(), nil
}

// DeleteExpired implements EntryStore. Redis evicts expired keys on its
// own schedule, so there is nothing to purge here.
func (s *RedisStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

// physicalExpiry returns when Redis may actually drop the row: four
// times the entry's TTL past the write, with a one-minute floor for
// very short TTLs.
func physicalExpiry(now, expiresAt time.Time) time.Time {
	ttl := expiresAt.Sub(now)
	if ttl < 0 {
		ttl = 0
	}
	linger := 4 * ttl
	if linger < time.Minute {
		linger = time.Minute
	}
	return now.Add(linger)
}

func entryFromFields(key string, fields map[string]string) (Entry, error) {
	expires, err := time.Parse(time.RFC3339Nano, fields["expires_at"])
	if err != nil {
		return Entry{}, fmt.Errorf("entry %q: bad expires_at %q: %w", key, fields["expires_at"], err)
	}
	count, err := strconv.ParseInt(fields["usage_count"], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("entry %q: bad usage_count %q: %w", key, fields["usage_count"], err)
	}

	entry := Entry{
		Key:        key,
		Payload:    json.RawMessage(fields["payload"]),
		UsageCount: count,
		ExpiresAt:  expires,
	}
	// Bookkeeping timestamps are best-effort; a missing one does not
	// invalidate the entry.
	if t, err := time.Parse(time.RFC3339Nano, fields["created_at"]); err == nil {
		entry.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, fields["updated_at"]); err == nil {
		entry.UpdatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, fields["last_accessed_at"]); err == nil {
		entry.LastAccessedAt = t
	}
	return entry, nil
}
