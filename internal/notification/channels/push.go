package channels

import (
	"context"

	"dealerdesk_backend/internal/notification/dispatch"
	"dealerdesk_backend/internal/notification/sse"
)

// PushSink streams the notification to the recipient's open SSE connections.
// An offline recipient is not a failure; the in-app record covers them.
type PushSink struct {
	sse *sse.Service
}

func NewPushSink(s *sse.Service) *PushSink {
	if s == nil {
		return nil
	}
	return &PushSink{sse: s}
}

func (p *PushSink) Send(ctx context.Context, d dispatch.Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	event := sse.Event{
		Type:    sse.EventNotification,
		LeadID:  d.Message.LeadID,
		Message: d.Message.Title,
		Data: map[string]any{
			"notificationId": d.RecordID,
			"title":          d.Message.Title,
			"content":        d.Message.Body,
			"link":           d.Message.Link,
			"kind":           d.Message.Kind,
		},
	}
	p.sse.Publish(d.Recipient.ID, event)
	return nil
}
