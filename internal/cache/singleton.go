package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Cached is a singleton cache response. Unlike the keyed Result it also
// surfaces the entry's usage count, which singleton consumers report to
// their own callers.
type Cached[T any] struct {
	Value        T
	FromDatabase bool
	UsageCount   int64
}

// Singleton is a cache kind that only ever holds one row. The kind name
// is the storage key, fixed at construction, so "exactly one entry
// exists for this computation" is carried by the type rather than by a
// string constant scattered through call sites.
type Singleton[T any] struct {
	keyed *Keyed
	kind  string
}

// NewSingleton returns the one-row cache for kind. Kind names are
// namespaced by convention ("trending_domains"), and two Singletons with
// the same kind over the same store share their row.
func NewSingleton[T any](store EntryStore, kind string, ttl time.Duration, opts ...Option) *Singleton[T] {
	return &Singleton[T]{keyed: NewKeyed(store, ttl, opts...), kind: kind}
}

// Get returns the cached value if fresh. Stale and absent rows are
// misses, as for the keyed cache.
func (s *Singleton[T]) Get(ctx context.Context) (Cached[T], bool, error) {
	entry, count, found, err := s.keyed.lookup(ctx, s.kind)
	if err != nil || !found {
		return Cached[T]{}, false, err
	}
	c, err := decodeCached[T](entry.Payload, true, count)
	if err != nil {
		return Cached[T]{}, false, err
	}
	return c, true, nil
}

// Fetch runs the read-through protocol with a typed compute function.
// Error semantics match Keyed.Fetch: compute errors propagate uncached,
// storage errors degrade to a miss or a logged lost write.
func (s *Singleton[T]) Fetch(ctx context.Context, compute func(ctx context.Context) (T, error)) (Cached[T], error) {
	entry, count, fromDB, err := s.keyed.fetchEntry(ctx, s.kind, func(ctx context.Context) (json.RawMessage, error) {
		value, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", s.kind, err)
		}
		return payload, nil
	})
	if err != nil {
		return Cached[T]{}, err
	}
	return decodeCached[T](entry.Payload, fromDB, count)
}

func decodeCached[T any](payload json.RawMessage, fromDB bool, count int64) (Cached[T], error) {
	var value T
	if err := json.Unmarshal(payload, &value); err != nil {
		return Cached[T]{}, fmt.Errorf("decode cached payload: %w", err)
	}
	return Cached[T]{Value: value, FromDatabase: fromDB, UsageCount: count}, nil
}
