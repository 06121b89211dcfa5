package loader

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum-mive/blockqueue/internal/block"
	"github.com/ethereum-mive/blockqueue/internal/normalizer"
	"github.com/ethereum-mive/blockqueue/internal/queue"
)

func TestAdjustBasePreloadCountIncreasesOnSlowdown(t *testing.T) {
	s := &PullStrategy{basePreloadCount: 5, prevDuration: 1000 * time.Millisecond, lastDuration: 1400 * time.Millisecond}
	s.adjustBasePreloadCount()
	if s.basePreloadCount != 7 {
		t.Fatalf("basePreloadCount = %d, want 7", s.basePreloadCount)
	}
}

func TestAdjustBasePreloadCountDecreasesOnSpeedup(t *testing.T) {
	s := &PullStrategy{basePreloadCount: 5, prevDuration: 1000 * time.Millisecond, lastDuration: 600 * time.Millisecond}
	s.adjustBasePreloadCount()
	if s.basePreloadCount != 4 {
		t.Fatalf("basePreloadCount = %d, want 4", s.basePreloadCount)
	}
}

func TestAdjustBasePreloadCountUnchangedWithinBand(t *testing.T) {
	s := &PullStrategy{basePreloadCount: 5, prevDuration: 1000 * time.Millisecond, lastDuration: 1100 * time.Millisecond}
	s.adjustBasePreloadCount()
	if s.basePreloadCount != 5 {
		t.Fatalf("basePreloadCount = %d, want 5 (ratio within [0.8, 1.2])", s.basePreloadCount)
	}
}

func TestSelectStrategyPullWhenConfigured(t *testing.T) {
	q := queue.New(100, 10_000_000, 1_000_000)
	l := New(Config{StrategyName: StrategyPull}, &fakeProviderSource{conn: newFakeProvider(100)}, q, normalizer.New(block.NetworkConfig{}))
	if got := l.selectStrategy(200); got != Strategy(l.pull) {
		t.Fatal("selectStrategy: want pull when configured strategy is pull")
	}
}

func TestSelectStrategyGapAboveThresholdRoutesToPull(t *testing.T) {
	q := queue.New(100, 10_000_000, 1_000_000)
	l := New(Config{StrategyName: StrategySubscribe, StrategyThreshold: 20}, &fakeProviderSource{conn: newFakeProvider(100)}, q, normalizer.New(block.NetworkConfig{}))
	if got := l.selectStrategy(121); got != Strategy(l.pull) {
		t.Fatal("selectStrategy: want pull, gap (21) exceeds threshold (20)")
	}
	if got := l.selectStrategy(120); got != Strategy(l.subscribe) {
		t.Fatal("selectStrategy: want subscribe, gap (20) does not exceed threshold (20)")
	}
}

func TestPullStrategyPreloadAndDrain(t *testing.T) {
	q := queue.New(100, 10_000_000, 1_000_000)
	prov := newFakeProvider(110)
	n := normalizer.New(block.NetworkConfig{})
	s := NewPullStrategy(&fakeProviderSource{conn: prov}, q, n, 10_000, 5)

	if err := s.Load(context.Background(), 110); err != nil {
		t.Fatalf("Load (preload phase): %v", err)
	}
	if len(s.buffer) != 5 {
		t.Fatalf("buffer length after preload = %d, want 5", len(s.buffer))
	}

	if err := s.Load(context.Background(), 110); err != nil {
		t.Fatalf("Load (drain phase): %v", err)
	}
	if got := q.LastHeight(); got != 105 {
		t.Fatalf("queue.LastHeight() = %d, want 105", got)
	}
	if len(s.buffer) != 0 {
		t.Fatalf("buffer should be empty after drain, got %d", len(s.buffer))
	}
}

func TestPullStrategyCompletesWhenCaughtUp(t *testing.T) {
	q := queue.New(100, 10_000_000, 1_000_000)
	prov := newFakeProvider(100)
	n := normalizer.New(block.NetworkConfig{})
	s := NewPullStrategy(&fakeProviderSource{conn: prov}, q, n, 10_000, 5)

	if err := s.Load(context.Background(), 100); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(s.buffer) != 0 {
		t.Fatalf("buffer = %d, want 0 (already caught up)", len(s.buffer))
	}
}
