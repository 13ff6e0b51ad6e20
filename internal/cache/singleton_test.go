package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type trendReport struct {
	Domains []string `json:"domains"`
	Source  string   `json:"source"`
}

func TestSingletonFetchRoundTrip(t *testing.T) {
	store := newFakeStore()
	s := NewSingleton[trendReport](store, "trending_domains", time.Hour)
	ctx := context.Background()

	want := trendReport{Domains: []string{"ai", "cloud"}, Source: "model"}
	first, err := s.Fetch(ctx, func(ctx context.Context) (trendReport, error) {
		return want, nil
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if first.FromDatabase {
		t.Error("first fetch should be computed")
	}
	if first.UsageCount != 1 {
		t.Errorf("usage after first fetch = %d, want 1", first.UsageCount)
	}
	if len(first.Value.Domains) != 2 || first.Value.Source != "model" {
		t.Errorf("value = %+v, want %+v", first.Value, want)
	}

	second, err := s.Fetch(ctx, func(ctx context.Context) (trendReport, error) {
		t.Error("compute must not run on a fresh hit")
		return trendReport{}, nil
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !second.FromDatabase {
		t.Error("second fetch should come from the database")
	}
	if second.UsageCount != 2 {
		t.Errorf("usage after hit = %d, want 2", second.UsageCount)
	}
}

func TestSingletonHoldsExactlyOneRow(t *testing.T) {
	store := newFakeStore()
	s := NewSingleton[int](store, "answer", time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.Fetch(ctx, func(ctx context.Context) (int, error) { return i, nil }); err != nil {
			t.Fatal(err)
		}
	}
	if store.count() != 1 {
		t.Errorf("store holds %d rows for the singleton, want 1", store.count())
	}
	if got := store.entry(t, "answer").UsageCount; got != 3 {
		t.Errorf("usage = %d, want 3 (one write, two reads)", got)
	}
}

func TestSingletonGetMissesWhenCold(t *testing.T) {
	s := NewSingleton[int](newFakeStore(), "answer", time.Hour)

	_, ok, err := s.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("cold singleton should miss")
	}
}

func TestSingletonStaleMissesAndRefreshes(t *testing.T) {
	store := newFakeStore()
	clock := newFakeClock()
	s := NewSingleton[string](store, "answer", time.Minute, WithClock(clock))
	ctx := context.Background()

	if _, err := s.Fetch(ctx, func(ctx context.Context) (string, error) { return "v1", nil }); err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * time.Minute)

	if _, ok, _ := s.Get(ctx); ok {
		t.Error("stale singleton row should miss")
	}

	res, err := s.Fetch(ctx, func(ctx context.Context) (string, error) { return "v2", nil })
	if err != nil {
		t.Fatal(err)
	}
	if res.FromDatabase || res.Value != "v2" {
		t.Errorf("refresh = %+v, want computed v2", res)
	}
}

func TestSingletonComputeErrorPropagates(t *testing.T) {
	s := NewSingleton[string](newFakeStore(), "answer", time.Hour)

	boom := errors.New("engine unavailable")
	_, err := s.Fetch(context.Background(), func(ctx context.Context) (string, error) {
		return "", boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("Fetch error = %v, want %v", err, boom)
	}
}
