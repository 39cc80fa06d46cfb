package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"dealerdesk_backend/internal/leads/reclaim"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type countingSweeper struct {
	runs   atomic.Int32
	during func()
}

func (s *countingSweeper) Run(context.Context) reclaim.SweepResult {
	s.runs.Add(1)
	if s.during != nil {
		s.during()
	}
	return reclaim.SweepResult{Scanned: 3, Reclaimed: 1}
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRunOnceReleasesLock(t *testing.T) {
	mr, rdb := newRedis(t)
	sweeper := &countingSweeper{}
	runner := NewLeaseSweepRunner(sweeper, rdb, nil, time.Minute)

	res, ran := runner.RunOnce(context.Background())
	if !ran {
		t.Fatal("expected the sweep to run")
	}
	if res.Reclaimed != 1 {
		t.Fatalf("expected sweep result to be returned, got %+v", res)
	}
	if mr.Exists(leaseSweepLockKey) {
		t.Fatal("expected lock to be released after the sweep")
	}

	if _, ran := runner.RunOnce(context.Background()); !ran {
		t.Fatal("expected a second sweep once the lock is free")
	}
	if sweeper.runs.Load() != 2 {
		t.Fatalf("expected 2 runs, got %d", sweeper.runs.Load())
	}
}

func TestOnlyOneInstanceSweepsAtATime(t *testing.T) {
	_, rdb := newRedis(t)
	other := &countingSweeper{}
	otherRunner := NewLeaseSweepRunner(other, rdb, nil, time.Minute)

	var nestedRan bool
	first := &countingSweeper{during: func() {
		_, nestedRan = otherRunner.RunOnce(context.Background())
	}}
	runner := NewLeaseSweepRunner(first, rdb, nil, time.Minute)

	if _, ran := runner.RunOnce(context.Background()); !ran {
		t.Fatal("expected first instance to sweep")
	}
	if nestedRan || other.runs.Load() != 0 {
		t.Fatal("expected second instance to skip while the lock is held")
	}
}

func TestForeignLockIsNotReleased(t *testing.T) {
	mr, rdb := newRedis(t)
	if err := mr.Set(leaseSweepLockKey, "someone-else"); err != nil {
		t.Fatalf("seed lock: %v", err)
	}
	sweeper := &countingSweeper{}
	runner := NewLeaseSweepRunner(sweeper, rdb, nil, time.Minute)

	if _, ran := runner.RunOnce(context.Background()); ran {
		t.Fatal("expected sweep to be skipped")
	}
	got, _ := mr.Get(leaseSweepLockKey)
	if got != "someone-else" {
		t.Fatalf("foreign lock was modified: %q", got)
	}
}

func TestExpiredLockAllowsSweep(t *testing.T) {
	mr, rdb := newRedis(t)
	mr.Set(leaseSweepLockKey, "crashed-instance")
	mr.SetTTL(leaseSweepLockKey, time.Minute)
	mr.FastForward(2 * time.Minute)

	sweeper := &countingSweeper{}
	runner := NewLeaseSweepRunner(sweeper, rdb, nil, time.Minute)
	if _, ran := runner.RunOnce(context.Background()); !ran {
		t.Fatal("expected sweep after the stale lock expired")
	}
}

func TestRunOnceWithoutRedis(t *testing.T) {
	sweeper := &countingSweeper{}
	runner := NewLeaseSweepRunner(sweeper, nil, nil, 0)

	if _, ran := runner.RunOnce(context.Background()); !ran {
		t.Fatal("expected sweep without a lock backend")
	}
	if runner.interval != defaultLeaseSweepInterval {
		t.Fatalf("expected default interval, got %s", runner.interval)
	}
}

func TestRedisErrorSkipsSweep(t *testing.T) {
	mr, rdb := newRedis(t)
	mr.Close()

	sweeper := &countingSweeper{}
	runner := NewLeaseSweepRunner(sweeper, rdb, nil, time.Minute)
	if _, ran := runner.RunOnce(context.Background()); ran {
		t.Fatal("expected sweep to be skipped when redis is unreachable")
	}
	if sweeper.runs.Load() != 0 {
		t.Fatal("sweeper must not run without the lock")
	}
}

func TestLongSweepKeepsLock(t *testing.T) {
	mr, rdb := newRedis(t)

	var heldAfterOriginalTTL bool
	sweeper := &countingSweeper{during: func() {
		// Past two thirds of the TTL, then wait for a renewal to push it back up.
		mr.FastForward(200 * time.Millisecond)
		deadline := time.Now().Add(2 * time.Second)
		for mr.TTL(leaseSweepLockKey) <= 100*time.Millisecond && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		mr.FastForward(200 * time.Millisecond)
		heldAfterOriginalTTL = mr.Exists(leaseSweepLockKey)
	}}
	runner := NewLeaseSweepRunner(sweeper, rdb, nil, time.Minute)
	runner.lockTTL = 300 * time.Millisecond

	if _, ran := runner.RunOnce(context.Background()); !ran {
		t.Fatal("expected the sweep to run")
	}
	if !heldAfterOriginalTTL {
		t.Fatal("expected the lock to outlive its initial TTL while the sweep runs")
	}
	if mr.Exists(leaseSweepLockKey) {
		t.Fatal("expected lock to be released after the sweep")
	}
}

func TestRenewalStopsWhenLockIsTakenOver(t *testing.T) {
	mr, rdb := newRedis(t)

	sweeper := &countingSweeper{during: func() {
		if err := mr.Set(leaseSweepLockKey, "other-instance"); err != nil {
			t.Errorf("set: %v", err)
		}
		time.Sleep(150 * time.Millisecond)
	}}
	runner := NewLeaseSweepRunner(sweeper, rdb, nil, time.Minute)
	runner.lockTTL = 90 * time.Millisecond

	if _, ran := runner.RunOnce(context.Background()); !ran {
		t.Fatal("expected the sweep to run")
	}
	got, err := mr.Get(leaseSweepLockKey)
	if err != nil {
		t.Fatalf("expected the other instance's lock to survive: %v", err)
	}
	if got != "other-instance" {
		t.Fatalf("expected foreign token to be kept, got %q", got)
	}
}
