// Package events re-exports the platform event bus for convenience.
// This allows internal modules to import events from internal/events
// while the implementation lives in platform/events.
package events

import (
	platformevents "dealerdesk_backend/platform/events"
	"dealerdesk_backend/platform/logger"
)

// InMemoryBus is a type alias to the platform InMemoryBus
type InMemoryBus = platformevents.InMemoryBus

// BusOption is a type alias to the platform bus option.
type BusOption = platformevents.Option

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(log *logger.Logger, opts ...BusOption) *InMemoryBus {
	return platformevents.NewInMemoryBus(log, opts...)
}

// WithWorkers bounds concurrent asynchronous handlers.
var WithWorkers = platformevents.WithWorkers
