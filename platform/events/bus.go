package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dealerdesk_backend/platform/logger"

	"golang.org/x/sync/semaphore"
)

const (
	defaultWorkers        = 16
	defaultHandlerTimeout = 2 * time.Minute
)

// InMemoryBus dispatches events to handlers registered in the same process.
// Asynchronous deliveries share a fixed number of worker slots. Publish
// never waits for a slot or for handler completion.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler

	slots          *semaphore.Weighted
	handlerTimeout time.Duration
	inflight       sync.WaitGroup
	log            *logger.Logger
}

// Option configures an InMemoryBus.
type Option func(*InMemoryBus)

// WithWorkers bounds the number of handlers running concurrently.
func WithWorkers(n int) Option {
	return func(b *InMemoryBus) {
		if n > 0 {
			b.slots = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithHandlerTimeout bounds how long a single asynchronous handler may run.
func WithHandlerTimeout(d time.Duration) Option {
	return func(b *InMemoryBus) {
		if d > 0 {
			b.handlerTimeout = d
		}
	}
}

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(log *logger.Logger, opts ...Option) *InMemoryBus {
	if log == nil {
		log = logger.Nop()
	}
	b := &InMemoryBus{
		handlers:       make(map[string][]Handler),
		slots:          semaphore.NewWeighted(defaultWorkers),
		handlerTimeout: defaultHandlerTimeout,
		log:            log,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for a specific event type.
func (b *InMemoryBus) Subscribe(eventName string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], handler)
}

func (b *InMemoryBus) handlersFor(eventName string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	hs := b.handlers[eventName]
	out := make([]Handler, len(hs))
	copy(out, hs)
	return out
}

// Publish hands every handler for the event to its own goroutine and returns
// at once. Handlers wait there for a worker slot, so at most the configured
// number run at a time while the publisher never waits. Handler errors and
// panics are logged, never returned. The caller's context only carries
// values into handlers; its cancellation does not stop them.
func (b *InMemoryBus) Publish(ctx context.Context, event Event) {
	handlers := b.handlersFor(event.EventName())
	if len(handlers) == 0 {
		return
	}

	detached := context.WithoutCancel(ctx)
	for _, h := range handlers {
		b.inflight.Add(1)
		go func(h Handler) {
			defer b.inflight.Done()
			if err := b.slots.Acquire(detached, 1); err != nil {
				b.log.Error("event bus slot acquire failed", "event", event.EventName(), "error", err)
				return
			}
			defer b.slots.Release(1)

			hctx, cancel := context.WithTimeout(detached, b.handlerTimeout)
			defer cancel()

			if err := b.invoke(hctx, h, event); err != nil {
				b.log.Warn("event handler failed",
					slog.String("event", event.EventName()),
					slog.String("error", err.Error()),
				)
			}
		}(h)
	}
}

// PublishSync runs handlers one after another and returns their joined errors.
func (b *InMemoryBus) PublishSync(ctx context.Context, event Event) error {
	var errs []error
	for _, h := range b.handlersFor(event.EventName()) {
		if err := b.invoke(ctx, h, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Wait blocks until all asynchronous deliveries finished or ctx is done.
func (b *InMemoryBus) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *InMemoryBus) invoke(ctx context.Context, h Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic for %s: %v", event.EventName(), r)
		}
	}()
	return h.Handle(ctx, event)
}

var _ Bus = (*InMemoryBus)(nil)
