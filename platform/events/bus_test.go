package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type pingEvent struct {
	BaseEvent
	n int
}

func (pingEvent) EventName() string { return "test.ping" }

func TestPublishDeliversToAllHandlers(t *testing.T) {
	bus := NewInMemoryBus(nil, WithWorkers(2))

	var calls atomic.Int32
	for i := 0; i < 3; i++ {
		bus.Subscribe("test.ping", HandlerFunc(func(ctx context.Context, event Event) error {
			calls.Add(1)
			return nil
		}))
	}

	bus.Publish(context.Background(), pingEvent{BaseEvent: NewBaseEvent(), n: 1})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := bus.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 handler calls, got %d", got)
	}
}

func TestPublishBoundsConcurrency(t *testing.T) {
	bus := NewInMemoryBus(nil, WithWorkers(2))

	var (
		mu      sync.Mutex
		running int
		peak    int
	)
	for i := 0; i < 6; i++ {
		bus.Subscribe("test.ping", HandlerFunc(func(ctx context.Context, event Event) error {
			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			running--
			mu.Unlock()
			return nil
		}))
	}

	bus.Publish(context.Background(), pingEvent{BaseEvent: NewBaseEvent()})
	if err := bus.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if peak > 2 {
		t.Fatalf("expected at most 2 concurrent handlers, saw %d", peak)
	}
}

func TestPublishSurvivesPanickingHandler(t *testing.T) {
	bus := NewInMemoryBus(nil)

	var delivered atomic.Bool
	bus.Subscribe("test.ping", HandlerFunc(func(ctx context.Context, event Event) error {
		panic("boom")
	}))
	bus.Subscribe("test.ping", HandlerFunc(func(ctx context.Context, event Event) error {
		delivered.Store(true)
		return nil
	}))

	bus.Publish(context.Background(), pingEvent{BaseEvent: NewBaseEvent()})
	if err := bus.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !delivered.Load() {
		t.Fatal("expected sibling handler to run despite panic")
	}
}

func TestPublishDetachesFromCallerCancellation(t *testing.T) {
	bus := NewInMemoryBus(nil)

	got := make(chan error, 1)
	bus.Subscribe("test.ping", HandlerFunc(func(ctx context.Context, event Event) error {
		time.Sleep(5 * time.Millisecond)
		got <- ctx.Err()
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	bus.Publish(ctx, pingEvent{BaseEvent: NewBaseEvent()})
	cancel()

	if err := <-got; err != nil {
		t.Fatalf("handler context should outlive the request, got %v", err)
	}
}

func TestPublishSyncJoinsErrors(t *testing.T) {
	bus := NewInMemoryBus(nil)
	errA := errors.New("a")
	errB := errors.New("b")
	bus.Subscribe("test.ping", HandlerFunc(func(ctx context.Context, event Event) error { return errA }))
	bus.Subscribe("test.ping", HandlerFunc(func(ctx context.Context, event Event) error { return errB }))

	err := bus.PublishSync(context.Background(), pingEvent{BaseEvent: NewBaseEvent()})
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("expected joined errors, got %v", err)
	}
}

func TestPublishDoesNotWaitForBusyWorkers(t *testing.T) {
	bus := NewInMemoryBus(nil, WithWorkers(2))

	release := make(chan struct{})
	var calls atomic.Int32
	bus.Subscribe("test.ping", HandlerFunc(func(ctx context.Context, event Event) error {
		<-release
		calls.Add(1)
		return nil
	}))

	start := time.Now()
	for i := 0; i < 6; i++ {
		bus.Publish(context.Background(), pingEvent{BaseEvent: NewBaseEvent(), n: i})
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("expected Publish to return while workers are busy, took %s", elapsed)
	}
	if got := calls.Load(); got != 0 {
		t.Fatalf("expected no handler to finish yet, got %d", got)
	}

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := bus.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if got := calls.Load(); got != 6 {
		t.Fatalf("expected every queued handler to run, got %d", got)
	}
}
