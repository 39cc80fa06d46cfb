package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"dealerdesk_backend/internal/events"
	"dealerdesk_backend/internal/notification/sse"

	"github.com/google/uuid"
)

type recordingStreamer struct {
	byOrg     map[uuid.UUID][]sse.Event
	broadcast []sse.Event
}

func newRecordingStreamer() *recordingStreamer {
	return &recordingStreamer{byOrg: map[uuid.UUID][]sse.Event{}}
}

func (s *recordingStreamer) PublishToOrganization(orgID uuid.UUID, event sse.Event) int {
	s.byOrg[orgID] = append(s.byOrg[orgID], event)
	return 1
}

func (s *recordingStreamer) Broadcast(event sse.Event) int {
	s.broadcast = append(s.broadcast, event)
	return 1
}

type failingRelay struct{ calls int }

func (r *failingRelay) PublishStateChange(context.Context, events.LeadStateChanged) error {
	r.calls++
	return errors.New("broker down")
}

func TestTenantChangesStayInsideTheTenant(t *testing.T) {
	stream := newRecordingStreamer()
	b := NewBroadcaster(stream, nil, nil)
	tenant := uuid.New()

	err := b.Handle(context.Background(), events.LeadStateChanged{
		BaseEvent:  events.NewBaseEvent(),
		LeadID:     uuid.New(),
		TenantID:   &tenant,
		ChangeKind: events.ChangeClaimed,
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if len(stream.byOrg[tenant]) != 1 {
		t.Fatalf("expected 1 tenant event, got %d", len(stream.byOrg[tenant]))
	}
	if len(stream.broadcast) != 0 {
		t.Fatalf("tenant change must not be broadcast")
	}
	if got := stream.byOrg[tenant][0]; got.Type != sse.EventLeadStateChanged || got.Message != events.ChangeClaimed {
		t.Fatalf("unexpected sse event %+v", got)
	}
}

func TestGlobalPoolChangesAreBroadcast(t *testing.T) {
	stream := newRecordingStreamer()
	b := NewBroadcaster(stream, nil, nil)

	_ = b.Handle(context.Background(), events.LeadStateChanged{
		BaseEvent:  events.NewBaseEvent(),
		LeadID:     uuid.New(),
		ChangeKind: events.ChangeReclaimed,
	})
	if len(stream.broadcast) != 1 {
		t.Fatalf("expected broadcast, got %d", len(stream.broadcast))
	}
}

func TestRelayFailureIsSwallowed(t *testing.T) {
	relay := &failingRelay{}
	b := NewBroadcaster(nil, relay, nil)

	err := b.Handle(context.Background(), events.LeadStateChanged{LeadID: uuid.New(), ChangeKind: events.ChangeStage})
	if err != nil {
		t.Fatalf("relay errors must not surface, got %v", err)
	}
	if relay.calls != 1 {
		t.Fatalf("expected relay to be called once, got %d", relay.calls)
	}
}

func TestOtherEventsAreIgnored(t *testing.T) {
	stream := newRecordingStreamer()
	b := NewBroadcaster(stream, nil, nil)

	_ = b.Handle(context.Background(), events.LeadClaimed{LeadID: uuid.New()})
	if len(stream.broadcast)+len(stream.byOrg) != 0 {
		t.Fatal("expected non state-change events to be ignored")
	}
}

func TestSubscribedThroughTheBus(t *testing.T) {
	stream := newRecordingStreamer()
	bus := events.NewInMemoryBus(nil)
	NewBroadcaster(stream, nil, nil).RegisterHandlers(bus)

	if err := bus.PublishSync(context.Background(), events.LeadStateChanged{LeadID: uuid.New(), ChangeKind: events.ChangeCreated}); err != nil {
		t.Fatalf("PublishSync returned error: %v", err)
	}
	if len(stream.broadcast) != 1 {
		t.Fatalf("expected the bus to reach the broadcaster")
	}
}

func TestEncodeStateChangeRoutingKey(t *testing.T) {
	tenant := uuid.New()
	at := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	e := events.LeadStateChanged{
		BaseEvent:  events.BaseEvent{Timestamp: at},
		LeadID:     uuid.New(),
		TenantID:   &tenant,
		ChangeKind: events.ChangeReassigned,
		Payload:    map[string]any{"ownerId": "x"},
	}

	key, body, err := encodeStateChange(e, "api-1")
	if err != nil {
		t.Fatalf("encode returned error: %v", err)
	}
	if key != "lead.reassigned" {
		t.Fatalf("unexpected routing key %q", key)
	}

	var msg stateMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		t.Fatalf("body is not json: %v", err)
	}
	if msg.Event != "leads.state.changed" || msg.LeadID != e.LeadID || msg.TenantID == nil || *msg.TenantID != tenant {
		t.Fatalf("unexpected message %+v", msg)
	}
	if !msg.OccurredAt.Equal(at) {
		t.Fatalf("expected occurredAt %s, got %s", at, msg.OccurredAt)
	}

	decoded, origin, err := decodeStateChange(body)
	if err != nil {
		t.Fatalf("decode returned error: %v", err)
	}
	if origin != "api-1" || decoded.ChangeKind != events.ChangeReassigned || decoded.Payload["ownerId"] != "x" {
		t.Fatalf("unexpected decoded event %+v from %q", decoded, origin)
	}
}

func TestDecodeStateChangeRejectsGarbage(t *testing.T) {
	if _, _, err := decodeStateChange([]byte("not json")); err == nil {
		t.Fatal("expected decode error")
	}
}

type disabledConfig struct{}

func (disabledConfig) GetAMQPURL() string      { return "" }
func (disabledConfig) GetAMQPExchange() string { return "" }
func (disabledConfig) IsAMQPEnabled() bool     { return false }

func TestDialAMQPDisabled(t *testing.T) {
	relay, err := DialAMQP(disabledConfig{})
	if err != nil || relay != nil {
		t.Fatalf("expected nil relay without error, got %v %v", relay, err)
	}
}
