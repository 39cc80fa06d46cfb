// Package notification turns lead ownership events into multi-channel
// notifications. Domain modules publish events; this module decides who
// hears about them and how.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"dealerdesk_backend/internal/events"
	apphttp "dealerdesk_backend/internal/http"
	"dealerdesk_backend/internal/leads/domain"
	"dealerdesk_backend/internal/notification/dispatch"
	notifhandler "dealerdesk_backend/internal/notification/handler"
	"dealerdesk_backend/internal/notification/inapp"
	notificationoutbox "dealerdesk_backend/internal/notification/outbox"
	"dealerdesk_backend/internal/notification/sse"
	"dealerdesk_backend/platform/config"
	"dealerdesk_backend/platform/httpkit"
	"dealerdesk_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	maxOutboxRetryAttempts = 5
	outboxRetryBaseDelay   = 30 * time.Second
	outboxRetryMaxDelay    = 30 * time.Minute

	invalidOutboxPayloadPrefix = "invalid payload: "
)

// MemberDirectory resolves salespeople and their channel preferences.
type MemberDirectory interface {
	GetSalesperson(ctx context.Context, id uuid.UUID) (domain.Salesperson, error)
	ListActiveMembers(ctx context.Context, tenantID uuid.UUID) ([]domain.Salesperson, error)
}

// Fanout delivers one message to many recipients over the given channels.
type Fanout interface {
	Dispatch(ctx context.Context, recipients []domain.Salesperson, msg dispatch.Message, channels []dispatch.Channel, opts dispatch.SendOptions) dispatch.Result
}

// teamChannels carries team-wide announcements. Whole-dealership email and
// SMS blasts are reserved for messages addressed to one person.
var teamChannels = []dispatch.Channel{dispatch.ChannelPush}

// Module handles all notification-related event subscriptions.
type Module struct {
	cfg          config.NotificationConfig
	log          *logger.Logger
	members      MemberDirectory
	fanout       Fanout
	outbox       notificationoutbox.Store
	sse          *sse.Service
	inAppService *inapp.Service
	inAppHandler *notifhandler.HTTPHandler
	now          func() time.Time
}

// New creates a new notification module.
func New(records inapp.Store, members MemberDirectory, fanout Fanout, cfg config.NotificationConfig, log *logger.Logger) *Module {
	if log == nil {
		log = logger.Nop()
	}
	inAppSvc := inapp.NewService(records)
	return &Module{
		cfg:          cfg,
		log:          log,
		members:      members,
		fanout:       fanout,
		inAppService: inAppSvc,
		inAppHandler: notifhandler.NewHTTPHandler(inAppSvc),
		now:          time.Now,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string { return "notification" }

// RegisterRoutes registers notification API routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	notifications := ctx.Protected.Group("/notifications")
	m.inAppHandler.RegisterRoutes(notifications)

	if m.sse != nil {
		ctx.Protected.GET("/events/stream", m.sse.Handler(streamUserID, streamTenantID))
	}
}

func streamUserID(c *gin.Context) (uuid.UUID, bool) {
	id := httpkit.GetIdentity(c)
	if !id.IsAuthenticated() {
		return uuid.Nil, false
	}
	return id.UserID(), true
}

func streamTenantID(c *gin.Context) (uuid.UUID, bool) {
	tenant := httpkit.GetIdentity(c).TenantID()
	if tenant == nil {
		return uuid.Nil, false
	}
	return *tenant, true
}

// SetSSE injects the SSE service that backs the event stream route.
func (m *Module) SetSSE(s *sse.Service) { m.sse = s }

// SetOutbox switches delivery to the durable outbox. Records are picked up by
// the scheduler and delivered via NotificationOutboxDue.
func (m *Module) SetOutbox(store notificationoutbox.Store) { m.outbox = store }

// InAppService exposes the in-app notification service for integration points.
func (m *Module) InAppService() *inapp.Service { return m.inAppService }

// RegisterHandlers subscribes to all relevant domain events on the event bus.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.LeadClaimed{}.EventName(), m)
	bus.Subscribe(events.LeadConflictAlerted{}.EventName(), m)
	bus.Subscribe(events.LeadReclaimed{}.EventName(), m)
	bus.Subscribe(events.LeadReassigned{}.EventName(), m)
	bus.Subscribe(events.NotificationOutboxDue{}.EventName(), m)

	m.log.Info("notification module registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.LeadClaimed:
		return m.handleLeadClaimed(ctx, e)
	case events.LeadConflictAlerted:
		return m.handleLeadConflictAlerted(ctx, e)
	case events.LeadReclaimed:
		return m.handleLeadReclaimed(ctx, e)
	case events.LeadReassigned:
		return m.handleLeadReassigned(ctx, e)
	case events.NotificationOutboxDue:
		return m.handleNotificationOutboxDue(ctx, e)
	default:
		m.log.Warn("unhandled event type", "event", event.EventName())
		return nil
	}
}

// delivery is one message bound for a recipient list. A nil channels
// means every channel.
type delivery struct {
	recipients []domain.Salesperson
	msg        dispatch.Message
	channels   []dispatch.Channel
}

func (m *Module) handleLeadClaimed(ctx context.Context, e events.LeadClaimed) error {
	owner, err := m.members.GetSalesperson(ctx, e.OwnerID)
	if err != nil {
		return fmt.Errorf("resolve owner: %w", err)
	}

	tenant := e.TenantID
	plans := []delivery{{
		recipients: []domain.Salesperson{owner},
		msg: m.leadMessage(e.LeadID, &tenant, kindLeadClaimed,
			"Lead claimed", fmt.Sprintf("You now own lead %s.", e.LeadName)),
	}}

	if e.Promoted {
		team, err := m.teamExcluding(ctx, e.TenantID, e.OwnerID)
		if err != nil {
			return err
		}
		plans = append(plans, delivery{
			recipients: team,
			msg: m.leadMessage(e.LeadID, &tenant, kindLeadPromoted,
				"New lead for the team", fmt.Sprintf("%s claimed lead %s from the shared pool.", ownerName(e.OwnerName, owner), e.LeadName)),
			channels: teamChannels,
		})
	}

	return m.deliver(ctx, plans)
}

func (m *Module) handleLeadConflictAlerted(ctx context.Context, e events.LeadConflictAlerted) error {
	owner, err := m.members.GetSalesperson(ctx, e.OwnerID)
	if err != nil {
		return fmt.Errorf("resolve owner: %w", err)
	}

	team, err := m.teamExcluding(ctx, e.TenantID, e.OwnerID, e.ActorID)
	if err != nil {
		return err
	}

	tenant := e.TenantID
	plans := []delivery{
		{
			recipients: []domain.Salesperson{owner},
			msg: m.leadMessage(e.LeadID, &tenant, kindConflictOwner,
				"Someone acted on your lead", ownerConflictText(e.ActorName, e.LeadName, e.ActionLabel)),
		},
		{
			recipients: team,
			msg: m.leadMessage(e.LeadID, &tenant, kindConflictTeam,
				"Lead conflict", teamConflictText(e.ActorName, e.LeadName, ownerName(e.OwnerName, owner), e.ActionLabel)),
			channels: teamChannels,
		},
	}
	return m.deliver(ctx, plans)
}

func (m *Module) handleLeadReclaimed(ctx context.Context, e events.LeadReclaimed) error {
	former, err := m.members.GetSalesperson(ctx, e.FormerOwnerID)
	if err != nil {
		return fmt.Errorf("resolve former owner: %w", err)
	}

	pool := "your team's pool"
	if e.ToGlobalPool {
		pool = "the shared pool"
	}
	return m.deliver(ctx, []delivery{{
		recipients: []domain.Salesperson{former},
		msg: m.leadMessage(e.LeadID, e.FormerTenantID, kindLeadReclaimed,
			"Lead reclaimed", fmt.Sprintf("Lead %s had no activity from you and was returned to %s.", e.LeadName, pool)),
	}})
}

func (m *Module) handleLeadReassigned(ctx context.Context, e events.LeadReassigned) error {
	newOwner, err := m.members.GetSalesperson(ctx, e.NewOwnerID)
	if err != nil {
		return fmt.Errorf("resolve new owner: %w", err)
	}

	tenant := e.TenantID
	plans := []delivery{{
		recipients: []domain.Salesperson{newOwner},
		msg: m.leadMessage(e.LeadID, &tenant, kindLeadReassigned,
			"Lead assigned to you", fmt.Sprintf("%s assigned lead %s to you.", e.ActorName, e.LeadName)),
	}}

	if e.PreviousOwnerID != nil && *e.PreviousOwnerID != e.NewOwnerID {
		previous, err := m.members.GetSalesperson(ctx, *e.PreviousOwnerID)
		if err != nil {
			m.log.Warn("previous owner not notified", "leadId", e.LeadID, "error", err)
		} else {
			plans = append(plans, delivery{
				recipients: []domain.Salesperson{previous},
				msg: m.leadMessage(e.LeadID, &tenant, kindLeadReassigned,
					"Lead reassigned", fmt.Sprintf("%s reassigned lead %s to %s.", e.ActorName, e.LeadName, ownerName(e.NewOwnerName, newOwner))),
			})
		}
	}

	return m.deliver(ctx, plans)
}

func (m *Module) teamExcluding(ctx context.Context, tenantID uuid.UUID, exclude ...uuid.UUID) ([]domain.Salesperson, error) {
	members, err := m.members.ListActiveMembers(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list tenant members: %w", err)
	}
	skip := make(map[uuid.UUID]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	out := make([]domain.Salesperson, 0, len(members))
	for _, member := range members {
		if _, ok := skip[member.ID]; ok || !member.Active {
			continue
		}
		out = append(out, member)
	}
	return out, nil
}

func (m *Module) leadMessage(leadID uuid.UUID, tenantID *uuid.UUID, kind, title, body string) dispatch.Message {
	id := leadID
	return dispatch.Message{
		Title:    title,
		Body:     body,
		Link:     m.leadLink(leadID),
		Kind:     kind,
		LeadID:   &id,
		TenantID: tenantID,
	}
}

func (m *Module) leadLink(leadID uuid.UUID) string {
	base := ""
	if m.cfg != nil {
		base = strings.TrimRight(m.cfg.GetAppBaseURL(), "/")
	}
	if base == "" {
		return ""
	}
	return base + "/leads/" + leadID.String()
}

// deliver sends every plan inline, or persists it to the outbox when one is set.
func (m *Module) deliver(ctx context.Context, plans []delivery) error {
	var errs []error
	for _, p := range plans {
		if len(p.recipients) == 0 {
			continue
		}
		if m.outbox != nil {
			if err := m.enqueue(ctx, p); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		res := m.fanout.Dispatch(ctx, p.recipients, p.msg, p.channels, dispatch.SendOptions{})
		m.log.Debug("notification fanout complete",
			"kind", p.msg.Kind,
			"recipients", len(p.recipients),
			"succeeded", res.Succeeded(),
			"failed", res.Failed(),
		)
	}
	return errors.Join(errs...)
}

// fanoutPayload is the outbox form of a delivery. Recipients are stored by
// ID so channel preferences are read at send time.
type fanoutPayload struct {
	RecipientIDs []uuid.UUID `json:"recipientIds"`
	Title        string      `json:"title"`
	Body         string      `json:"body"`
	Link         string      `json:"link,omitempty"`
	Kind         string      `json:"kind"`
	LeadID       *uuid.UUID  `json:"leadId,omitempty"`
	TenantID     *uuid.UUID  `json:"tenantId,omitempty"`
	// Channels is empty for every channel.
	Channels []dispatch.Channel `json:"channels,omitempty"`
}

func (m *Module) enqueue(ctx context.Context, p delivery) error {
	ids := make([]uuid.UUID, 0, len(p.recipients))
	for _, r := range p.recipients {
		ids = append(ids, r.ID)
	}
	_, err := m.outbox.Insert(ctx, notificationoutbox.InsertParams{
		TenantID: p.msg.TenantID,
		Kind:     notificationoutbox.KindFanout,
		Payload: fanoutPayload{
			RecipientIDs: ids,
			Title:        p.msg.Title,
			Body:         p.msg.Body,
			Link:         p.msg.Link,
			Kind:         p.msg.Kind,
			LeadID:       p.msg.LeadID,
			TenantID:     p.msg.TenantID,
			Channels:     p.channels,
		},
	})
	if err != nil {
		return fmt.Errorf("enqueue %s notification: %w", p.msg.Kind, err)
	}
	return nil
}

func (m *Module) handleNotificationOutboxDue(ctx context.Context, e events.NotificationOutboxDue) error {
	if m.outbox == nil {
		m.log.Debug("notification outbox not configured; skipping outbox due event", "outboxId", e.OutboxID)
		return nil
	}
	rec, process, err := m.prepareOutboxRecord(ctx, e.OutboxID)
	if err != nil || !process {
		if err != nil {
			m.log.Error("failed to prepare outbox record", "outboxId", e.OutboxID, "error", err)
		}
		return err
	}

	if rec.Kind != notificationoutbox.KindFanout {
		_ = m.outbox.MarkFailed(ctx, rec.ID, "unsupported outbox kind: "+rec.Kind)
		m.log.Warn("notification outbox kind unsupported", "outboxId", rec.ID.String(), "kind", rec.Kind)
		return nil
	}

	var payload fanoutPayload
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		_ = m.outbox.MarkFailed(ctx, rec.ID, invalidOutboxPayloadPrefix+err.Error())
		return nil
	}

	recipients, err := m.resolveRecipients(ctx, payload.RecipientIDs)
	if err != nil {
		m.handleOutboxDeliveryError(ctx, rec, err)
		return err
	}

	res := m.fanout.Dispatch(ctx, recipients, dispatch.Message{
		Title:    payload.Title,
		Body:     payload.Body,
		Link:     payload.Link,
		Kind:     payload.Kind,
		LeadID:   payload.LeadID,
		TenantID: payload.TenantID,
	}, payload.Channels, dispatch.SendOptions{})
	if err := m.outbox.MarkSucceeded(ctx, rec.ID); err != nil {
		return err
	}
	m.log.Info("outbox record processed",
		"outboxId", rec.ID.String(),
		"recipients", len(recipients),
		"succeeded", res.Succeeded(),
		"failed", res.Failed(),
	)
	return nil
}

func (m *Module) resolveRecipients(ctx context.Context, ids []uuid.UUID) ([]domain.Salesperson, error) {
	out := make([]domain.Salesperson, 0, len(ids))
	for _, id := range ids {
		sp, err := m.members.GetSalesperson(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve recipient %s: %w", id, err)
		}
		if sp.Active {
			out = append(out, sp)
		}
	}
	return out, nil
}

func (m *Module) prepareOutboxRecord(ctx context.Context, outboxID uuid.UUID) (notificationoutbox.Record, bool, error) {
	rec, err := m.outbox.GetByID(ctx, outboxID)
	if err != nil {
		return notificationoutbox.Record{}, false, err
	}
	if rec.Status == notificationoutbox.StatusSucceeded || rec.Status == notificationoutbox.StatusFailed {
		m.log.Debug("outbox record already settled; skipping", "outboxId", rec.ID.String(), "status", rec.Status)
		return rec, false, nil
	}
	if err := m.outbox.MarkProcessing(ctx, rec.ID); err != nil {
		return notificationoutbox.Record{}, false, err
	}
	return rec, true, nil
}

func (m *Module) handleOutboxDeliveryError(ctx context.Context, rec notificationoutbox.Record, deliveryErr error) {
	attempt := rec.Attempts + 1
	if attempt >= maxOutboxRetryAttempts {
		_ = m.outbox.MarkFailed(ctx, rec.ID, deliveryErr.Error())
		m.log.Warn("notification outbox exhausted retries",
			"outboxId", rec.ID.String(),
			"attempt", attempt,
			"error", deliveryErr,
		)
		return
	}

	retryAt := m.now().UTC().Add(computeOutboxRetryDelay(attempt))
	if err := m.outbox.ScheduleRetry(ctx, rec.ID, retryAt, deliveryErr.Error()); err != nil {
		_ = m.outbox.MarkFailed(ctx, rec.ID, deliveryErr.Error())
		m.log.Error("notification outbox retry scheduling failed; marked failed",
			"outboxId", rec.ID.String(),
			"error", err,
		)
		return
	}

	m.log.Warn("notification outbox scheduled retry",
		"outboxId", rec.ID.String(),
		"attempt", attempt,
		"retryAt", retryAt,
		"error", deliveryErr,
	)
}

func computeOutboxRetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := outboxRetryBaseDelay << (attempt - 1)
	if delay > outboxRetryMaxDelay {
		return outboxRetryMaxDelay
	}
	return delay
}
