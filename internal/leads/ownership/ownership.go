// Package ownership decides who owns a lead. It holds the claim engine,
// the conflict monitor and the coordinator that every lead action goes
// through.
package ownership

import (
	"context"
	"time"

	"dealerdesk_backend/internal/events"
	"dealerdesk_backend/internal/leads/domain"
	"dealerdesk_backend/platform/logger"

	"github.com/google/uuid"
)

// Clock returns the current time. Tests inject a fixed clock.
type Clock func() time.Time

type options struct {
	publisher events.Publisher
	log       *logger.Logger
	now       Clock
}

type Option func(*options)

// WithPublisher sets the bus used for post-commit events.
func WithPublisher(p events.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

func WithLogger(log *logger.Logger) Option {
	return func(o *options) { o.log = log }
}

func WithClock(now Clock) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Nop()
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// publish hands events to the bus after the state change committed.
// Delivery is fire-and-forget.
func (o options) publish(ctx context.Context, evts ...events.Event) {
	if o.publisher == nil {
		return
	}
	for _, e := range evts {
		o.publisher.Publish(ctx, e)
	}
}

func stateChanged(lead domain.Lead, kind string, payload map[string]any) events.LeadStateChanged {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["state"] = string(lead.State())
	payload["stageId"] = lead.StageID.String()
	if lead.OwnerID != nil {
		payload["ownerId"] = lead.OwnerID.String()
	}
	return events.LeadStateChanged{
		BaseEvent:  events.NewBaseEvent(),
		LeadID:     lead.ID,
		TenantID:   copyID(lead.TenantID),
		ChangeKind: kind,
		Payload:    payload,
	}
}

func copyID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
