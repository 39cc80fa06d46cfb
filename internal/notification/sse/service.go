// Package sse provides Server-Sent Events support for real-time notifications.
package sse

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"dealerdesk_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EventType represents different types of SSE events
type EventType string

const (
	EventNotification     EventType = "notification"
	EventLeadStateChanged EventType = "lead_state_changed"
)

// Event represents an SSE event payload
type Event struct {
	Type    EventType  `json:"type"`
	LeadID  *uuid.UUID `json:"leadId,omitempty"`
	Message string     `json:"message,omitempty"`
	Data    any        `json:"data,omitempty"`
}

const clientBuffer = 32

// client represents a connected SSE client
type client struct {
	userID uuid.UUID
	orgID  uuid.UUID
	events chan Event
}

// Service manages SSE connections and event broadcasting
type Service struct {
	mu      sync.RWMutex
	clients map[uuid.UUID][]*client         // userID -> clients
	orgMap  map[uuid.UUID]map[uuid.UUID]int // orgID -> userID -> connection count
	log     *logger.Logger
}

// New creates a new SSE service
func New(log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		clients: make(map[uuid.UUID][]*client),
		orgMap:  make(map[uuid.UUID]map[uuid.UUID]int),
		log:     log,
	}
}

func (s *Service) addClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clients[c.userID] = append(s.clients[c.userID], c)

	if c.orgID != uuid.Nil {
		members := s.orgMap[c.orgID]
		if members == nil {
			members = make(map[uuid.UUID]int)
			s.orgMap[c.orgID] = members
		}
		members[c.userID]++
	}
}

func (s *Service) removeClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clients := s.clients[c.userID]
	found := false
	for i, cl := range clients {
		if cl == c {
			s.clients[c.userID] = append(clients[:i], clients[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		return
	}
	if len(s.clients[c.userID]) == 0 {
		delete(s.clients, c.userID)
	}

	if members := s.orgMap[c.orgID]; members != nil {
		members[c.userID]--
		if members[c.userID] <= 0 {
			delete(members, c.userID)
		}
		if len(members) == 0 {
			delete(s.orgMap, c.orgID)
		}
	}

	close(c.events)
}

// Publish sends an event to every open connection of a user and returns the
// number of connections that accepted it.
func (s *Service) Publish(userID uuid.UUID, event Event) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	delivered := 0
	for _, c := range s.clients[userID] {
		select {
		case c.events <- event:
			delivered++
		default:
			s.log.Warn("sse buffer full", slog.String("user_id", userID.String()))
		}
	}
	return delivered
}

// PublishToOrganization broadcasts an event to all connected org members
func (s *Service) PublishToOrganization(orgID uuid.UUID, event Event) int {
	s.mu.RLock()
	userIDs := make([]uuid.UUID, 0, len(s.orgMap[orgID]))
	for userID := range s.orgMap[orgID] {
		userIDs = append(userIDs, userID)
	}
	s.mu.RUnlock()

	delivered := 0
	for _, userID := range userIDs {
		delivered += s.Publish(userID, event)
	}
	return delivered
}

// Broadcast sends an event to every connected user.
func (s *Service) Broadcast(event Event) int {
	s.mu.RLock()
	userIDs := make([]uuid.UUID, 0, len(s.clients))
	for userID := range s.clients {
		userIDs = append(userIDs, userID)
	}
	s.mu.RUnlock()

	delivered := 0
	for _, userID := range userIDs {
		delivered += s.Publish(userID, event)
	}
	return delivered
}

// Connected reports whether the user has at least one open stream.
func (s *Service) Connected(userID uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients[userID]) > 0
}

// Handler returns a Gin handler for SSE connections
func (s *Service) Handler(getUserID func(*gin.Context) (uuid.UUID, bool), getOrgID func(*gin.Context) (uuid.UUID, bool)) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := getUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		orgID, _ := getOrgID(c)

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")

		cl := &client{
			userID: userID,
			orgID:  orgID,
			events: make(chan Event, clientBuffer),
		}
		s.addClient(cl)
		defer s.removeClient(cl)

		c.SSEvent("connected", gin.H{"userId": userID, "orgId": orgID})
		c.Writer.Flush()

		s.log.Debug("sse client connected", slog.String("user_id", userID.String()), slog.String("org_id", orgID.String()))

		clientGone := c.Request.Context().Done()
		for {
			select {
			case <-clientGone:
				s.log.Debug("sse client disconnected", slog.String("user_id", userID.String()))
				return
			case event, ok := <-cl.events:
				if !ok {
					return
				}
				data, err := json.Marshal(event)
				if err != nil {
					continue
				}
				c.SSEvent(string(event.Type), string(data))
				c.Writer.Flush()
			}
		}
	}
}

// Close shuts down the SSE service
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, clients := range s.clients {
		for _, c := range clients {
			close(c.events)
		}
	}
	s.clients = make(map[uuid.UUID][]*client)
	s.orgMap = make(map[uuid.UUID]map[uuid.UUID]int)
}
