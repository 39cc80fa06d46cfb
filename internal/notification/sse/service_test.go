package sse

import (
	"testing"

	"github.com/google/uuid"
)

func TestPublishToOrganizationReachesEachConnection(t *testing.T) {
	s := New(nil)
	org := uuid.New()
	userA, userB := uuid.New(), uuid.New()

	a1 := &client{userID: userA, orgID: org, events: make(chan Event, 1)}
	a2 := &client{userID: userA, orgID: org, events: make(chan Event, 1)}
	b := &client{userID: userB, orgID: org, events: make(chan Event, 1)}
	outsider := &client{userID: uuid.New(), orgID: uuid.New(), events: make(chan Event, 1)}
	for _, c := range []*client{a1, a2, b, outsider} {
		s.addClient(c)
	}

	if got := s.PublishToOrganization(org, Event{Type: EventLeadStateChanged}); got != 3 {
		t.Fatalf("expected 3 deliveries, got %d", got)
	}
	if len(outsider.events) != 0 {
		t.Fatal("outsider should not receive org events")
	}
}

func TestRemoveClientUpdatesMembership(t *testing.T) {
	s := New(nil)
	org := uuid.New()
	user := uuid.New()
	c := &client{userID: user, orgID: org, events: make(chan Event, 1)}
	s.addClient(c)
	s.removeClient(c)

	if s.Connected(user) {
		t.Fatal("expected user to be disconnected")
	}
	if got := s.PublishToOrganization(org, Event{Type: EventNotification}); got != 0 {
		t.Fatalf("expected no deliveries after disconnect, got %d", got)
	}
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	s := New(nil)
	user := uuid.New()
	s.addClient(&client{userID: user, events: make(chan Event, 1)})

	if got := s.Publish(user, Event{Type: EventNotification}); got != 1 {
		t.Fatalf("expected first publish to deliver, got %d", got)
	}
	if got := s.Publish(user, Event{Type: EventNotification}); got != 0 {
		t.Fatalf("expected full buffer to drop, got %d", got)
	}
}

func TestCloseThenRemoveDoesNotPanic(t *testing.T) {
	s := New(nil)
	c := &client{userID: uuid.New(), events: make(chan Event, 1)}
	s.addClient(c)
	s.Close()
	s.removeClient(c)
}

func TestBroadcastReachesEveryUser(t *testing.T) {
	s := New(nil)
	a := &client{userID: uuid.New(), orgID: uuid.New(), events: make(chan Event, 1)}
	b := &client{userID: uuid.New(), orgID: uuid.New(), events: make(chan Event, 1)}
	s.addClient(a)
	s.addClient(b)

	if got := s.Broadcast(Event{Type: EventLeadStateChanged}); got != 2 {
		t.Fatalf("expected 2 deliveries, got %d", got)
	}
}
