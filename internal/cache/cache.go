// Package cache provides the read-through, TTL-based caches that front
// expensive external computations (AI generation, web search, keyword
// classification). Entries live in a backing store, never in process
// memory; staleness is decided by comparing an entry's expiry to the
// clock, so physical deletion of expired rows is advisory and may lag.
//
// A key moves COLD (no entry) -> FRESH (entry, now before expiry) ->
// STALE (entry, now at or past expiry) -> FRESH again after a refresh
// write. Reads of a stale entry are misses; the caller recomputes and
// writes back, which also bumps the entry's usage count.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// Entry is one cached computation result as the backing store sees it.
type Entry struct {
	Key            string
	Payload        json.RawMessage
	UsageCount     int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ExpiresAt      time.Time
	LastAccessedAt time.Time
}

// Fresh reports whether the entry is still valid at now. An entry at
// exactly its expiry instant is stale.
func (e Entry) Fresh(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// EntryStore is the storage boundary. Implementations must make
// UpsertEntry atomic (create or overwrite plus usage increment in one
// operation) and must not rely on prompt physical expiry: GetEntry may
// legitimately return entries whose ExpiresAt has passed.
type EntryStore interface {
	// GetEntry returns the entry for key, reporting absence via found.
	GetEntry(ctx context.Context, key string) (entry Entry, found bool, err error)
	// UpsertEntry writes payload under key with the given expiry,
	// incrementing the usage count, and returns the stored entry.
	UpsertEntry(ctx context.Context, key string, payload json.RawMessage, expiresAt time.Time) (Entry, error)
	// TouchEntry records a read: increments the usage count, stamps
	// last-accessed, and returns the new count.
	TouchEntry(ctx context.Context, key string) (int64, error)
	// DeleteExpired purges entries whose expiry is at or before now and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Clock abstracts time.Now so freshness boundaries are testable.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Result is a keyed cache response. FromDatabase distinguishes a cache
// hit (true) from a freshly computed value (false) for consumers and
// tests.
type Result struct {
	Payload      json.RawMessage `json:"payload"`
	FromDatabase bool            `json:"from_database"`
}

// Option configures a cache.
type Option func(*settings)

type settings struct {
	clock    Clock
	coalesce bool
}

// WithClock substitutes the time source. Tests use this to walk keys
// across the freshness boundary.
func WithClock(c Clock) Option {
	return func(s *settings) { s.clock = c }
}

// WithCoalescing makes concurrent misses for the same key share one
// computation instead of racing. Off by default: the plain protocol lets
// concurrent misses both compute and write, last writer wins, which is
// acceptable for idempotent computations and costs no coordination.
func WithCoalescing() Option {
	return func(s *settings) { s.coalesce = true }
}

// Keyed is the general many-keys cache over an EntryStore.
type Keyed struct {
	store EntryStore
	ttl   time.Duration
	clock Clock
	group *singleflight.Group
}

// NewKeyed returns a cache whose writes expire ttl after they land.
func NewKeyed(store EntryStore, ttl time.Duration, opts ...Option) *Keyed {
	s := settings{clock: realClock{}}
	for _, opt := range opts {
		opt(&s)
	}
	k := &Keyed{store: store, ttl: ttl, clock: s.clock}
	if s.coalesce {
		k.group = &singleflight.Group{}
	}
	return k
}

// Get returns the payload for key if a fresh entry exists. Cold and
// stale keys are misses; a stale row is reported exactly like an absent
// one even though it still exists in the store. A fresh read bumps the
// entry's usage count. Storage errors are returned to the caller, which
// should treat them as a miss (Fetch does this automatically).
func (k *Keyed) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	entry, _, found, err := k.lookup(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}
	return entry.Payload, true, nil
}

// lookup is Get plus the post-touch usage count.
func (k *Keyed) lookup(ctx context.Context, key string) (Entry, int64, bool, error) {
	entry, found, err := k.store.GetEntry(ctx, key)
	if err != nil {
		return Entry{}, 0, false, fmt.Errorf("cache lookup %q: %w", key, err)
	}
	if !found || !entry.Fresh(k.clock.Now()) {
		return Entry{}, 0, false, nil
	}
	count, err := k.store.TouchEntry(ctx, key)
	if err != nil {
		// The read succeeded; losing one usage increment is not worth
		// failing it over.
		slog.Warn("cache touch failed", "key", key, "error", err)
		count = entry.UsageCount
	}
	return entry, count, true, nil
}

// Put upserts payload under key with a fresh expiry and returns the
// stored entry.
func (k *Keyed) Put(ctx context.Context, key string, payload json.RawMessage) (Entry, error) {
	entry, err := k.store.UpsertEntry(ctx, key, payload, k.clock.Now().Add(k.ttl))
	if err != nil {
		return Entry{}, fmt.Errorf("cache put %q: %w", key, err)
	}
	return entry, nil
}

// Fetch runs the read-through protocol: a fresh entry is returned with
// FromDatabase true; otherwise compute runs, its result is written back
// and returned with FromDatabase false. Compute errors propagate and
// nothing is cached (no negative caching). Storage errors never
// propagate: a failed read degrades to a miss and a failed write is
// logged, with the computed value still returned.
func (k *Keyed) Fetch(ctx context.Context, key string, compute func(ctx context.Context) (json.RawMessage, error)) (Result, error) {
	entry, _, fromDB, err := k.fetchEntry(ctx, key, compute)
	if err != nil {
		return Result{}, err
	}
	return Result{Payload: entry.Payload, FromDatabase: fromDB}, nil
}

func (k *Keyed) fetchEntry(ctx context.Context, key string, compute func(ctx context.Context) (json.RawMessage, error)) (Entry, int64, bool, error) {
	entry, count, found, err := k.lookup(ctx, key)
	if err != nil {
		slog.Warn("cache read failed, treating as miss", "key", key, "error", err)
	}
	if found {
		return entry, count, true, nil
	}

	if k.group != nil {
		v, err, _ := k.group.Do(key, func() (any, error) {
			e, err := k.computeAndPut(ctx, key, compute)
			return e, err
		})
		if err != nil {
			return Entry{}, 0, false, err
		}
		e := v.(Entry)
		return e, e.UsageCount, false, nil
	}

	e, err := k.computeAndPut(ctx, key, compute)
	if err != nil {
		return Entry{}, 0, false, err
	}
	return e, e.UsageCount, false, nil
}

func (k *Keyed) computeAndPut(ctx context.Context, key string, compute func(ctx context.Context) (json.RawMessage, error)) (Entry, error) {
	payload, err := compute(ctx)
	if err != nil {
		return Entry{}, err
	}
	entry, err := k.Put(ctx, key, payload)
	if err != nil {
		slog.Warn("cache write failed, returning uncached result", "key", key, "error", err)
		return Entry{Key: key, Payload: payload}, nil
	}
	return entry, nil
}
