// Package realtime relays lead state changes to connected browsers and,
// when configured, to other processes over AMQP.
package realtime

import (
	"context"
	"log/slog"

	"dealerdesk_backend/internal/events"
	"dealerdesk_backend/internal/notification/sse"
	"dealerdesk_backend/platform/logger"

	"github.com/google/uuid"
)

// Streamer is the browser-facing side. *sse.Service implements it.
type Streamer interface {
	PublishToOrganization(orgID uuid.UUID, event sse.Event) int
	Broadcast(event sse.Event) int
}

// Relay forwards state changes to another transport.
type Relay interface {
	PublishStateChange(ctx context.Context, e events.LeadStateChanged) error
}

// Broadcaster subscribes to LeadStateChanged and fans it out.
type Broadcaster struct {
	stream Streamer
	relay  Relay
	log    *logger.Logger
}

// NewBroadcaster creates a broadcaster. stream and relay may each be nil.
func NewBroadcaster(stream Streamer, relay Relay, log *logger.Logger) *Broadcaster {
	if log == nil {
		log = logger.Nop()
	}
	return &Broadcaster{stream: stream, relay: relay, log: log}
}

func (b *Broadcaster) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.LeadStateChanged{}.EventName(), b)
}

// Handle never returns an error: a lost realtime update is not worth a retry.
func (b *Broadcaster) Handle(ctx context.Context, event events.Event) error {
	e, ok := event.(events.LeadStateChanged)
	if !ok {
		return nil
	}

	if b.stream != nil {
		streamChange(b.stream, e)
	}

	if b.relay != nil {
		if err := b.relay.PublishStateChange(ctx, e); err != nil {
			b.log.Warn("state change relay failed",
				slog.String("leadId", e.LeadID.String()),
				slog.String("changeKind", e.ChangeKind),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

func streamChange(s Streamer, e events.LeadStateChanged) {
	leadID := e.LeadID
	msg := sse.Event{
		Type:    sse.EventLeadStateChanged,
		LeadID:  &leadID,
		Message: e.ChangeKind,
		Data:    e.Payload,
	}
	// Global pool leads are visible to every dealership.
	if e.TenantID != nil {
		s.PublishToOrganization(*e.TenantID, msg)
		return
	}
	s.Broadcast(msg)
}
