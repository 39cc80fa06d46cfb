package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"dealerdesk_backend/internal/events"
	"dealerdesk_backend/platform/config"
	"dealerdesk_backend/platform/logger"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	defaultExchange = "ex.lead-state"
	routingPrefix   = "lead."
)

// stateMessage is the wire body published for each state change.
type stateMessage struct {
	Event      string         `json:"event"`
	LeadID     uuid.UUID      `json:"leadId"`
	TenantID   *uuid.UUID     `json:"tenantId,omitempty"`
	ChangeKind string         `json:"changeKind"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
	Origin     string         `json:"origin"`
}

// AMQPRelay publishes state changes to a topic exchange. Routing keys are
// "lead.<changeKind>".
type AMQPRelay struct {
	conn     *amqp.Connection
	mu       sync.Mutex
	ch       *amqp.Channel
	exchange string
	// origin tags messages from this process so Consume can skip them.
	origin string
}

// DialAMQP connects and declares the exchange. It returns nil without error
// when AMQP_URL is unset.
func DialAMQP(cfg config.RealtimeConfig) (*AMQPRelay, error) {
	if !cfg.IsAMQPEnabled() {
		return nil, nil
	}
	exchange := cfg.GetAMQPExchange()
	if exchange == "" {
		exchange = defaultExchange
	}

	conn, err := amqp.Dial(cfg.GetAMQPURL())
	if err != nil {
		return nil, fmt.Errorf("connect amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &AMQPRelay{conn: conn, ch: ch, exchange: exchange, origin: uuid.NewString()}, nil
}

// PublishStateChange is safe for concurrent use; publishes on the shared
// channel are serialized.
func (r *AMQPRelay) PublishStateChange(ctx context.Context, e events.LeadStateChanged) error {
	key, body, err := encodeStateChange(e, r.origin)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ch.PublishWithContext(ctx, r.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		MessageId:    uuid.NewString(),
		Timestamp:    e.Timestamp,
		Body:         body,
	})
}

func (r *AMQPRelay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ch.Close(); err != nil {
		_ = r.conn.Close()
		return err
	}
	return r.conn.Close()
}

func encodeStateChange(e events.LeadStateChanged, origin string) (string, []byte, error) {
	body, err := json.Marshal(stateMessage{
		Event:      e.EventName(),
		LeadID:     e.LeadID,
		TenantID:   e.TenantID,
		ChangeKind: e.ChangeKind,
		Payload:    e.Payload,
		OccurredAt: e.Timestamp,
		Origin:     origin,
	})
	if err != nil {
		return "", nil, fmt.Errorf("encode state change: %w", err)
	}
	return routingPrefix + e.ChangeKind, body, nil
}

// Consume streams state changes published by other processes to the local
// SSE clients. It blocks until ctx is done or the broker closes the channel.
func (r *AMQPRelay) Consume(ctx context.Context, s Streamer, log *logger.Logger) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, routingPrefix+"#", r.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	for d := range deliveries {
		e, origin, err := decodeStateChange(d.Body)
		if err != nil {
			log.Warn("dropping malformed state change", "error", err)
			continue
		}
		if origin == r.origin {
			continue
		}
		streamChange(s, e)
	}
	return ctx.Err()
}

func decodeStateChange(body []byte) (events.LeadStateChanged, string, error) {
	var msg stateMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return events.LeadStateChanged{}, "", fmt.Errorf("decode state change: %w", err)
	}
	return events.LeadStateChanged{
		BaseEvent:  events.BaseEvent{Timestamp: msg.OccurredAt},
		LeadID:     msg.LeadID,
		TenantID:   msg.TenantID,
		ChangeKind: msg.ChangeKind,
		Payload:    msg.Payload,
	}, msg.Origin, nil
}
