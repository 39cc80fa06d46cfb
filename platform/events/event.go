// Package events is an in-process publish/subscribe bus. Handlers run on a
// bounded worker set; publishers never wait for them.
package events

import (
	"context"
	"time"
)

type Event interface {
	// EventName is the subscription key.
	EventName() string
	OccurredAt() time.Time
}

// BaseEvent is embedded by concrete events to supply OccurredAt.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now().UTC()}
}

type Handler interface {
	Handle(ctx context.Context, event Event) error
}

type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error { return f(ctx, event) }

// Publisher is what services depend on. Publish returns once the event is
// queued; handler errors are logged by the bus.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

type Bus interface {
	Publisher
	// PublishSync runs every handler and joins their errors.
	PublishSync(ctx context.Context, event Event) error
	Subscribe(eventName string, handler Handler)
}
