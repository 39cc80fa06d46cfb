package scheduler

import (
	"context"
	"time"

	"dealerdesk_backend/internal/notification/outbox"
	"dealerdesk_backend/platform/logger"
)

const (
	outboxPollInterval = 2 * time.Second
	outboxClaimBatch   = 50
	// Records stuck in enqueued/processing longer than this go back to pending.
	outboxStaleAfter = 10 * time.Minute
	requeueEvery     = 30
)

// OutboxEnqueuer hands a claimed record to the task queue. *Client
// implements it.
type OutboxEnqueuer interface {
	EnqueueOutboxDue(ctx context.Context, payload NotificationOutboxDuePayload, runAt time.Time) error
}

// NotificationOutboxDispatcher moves due outbox records onto the task queue.
type NotificationOutboxDispatcher struct {
	queue    OutboxEnqueuer
	repo     outbox.Store
	log      *logger.Logger
	interval time.Duration
}

func NewNotificationOutboxDispatcher(queue OutboxEnqueuer, repo outbox.Store, log *logger.Logger) *NotificationOutboxDispatcher {
	if log == nil {
		log = logger.Nop()
	}
	return &NotificationOutboxDispatcher{
		queue:    queue,
		repo:     repo,
		log:      log,
		interval: outboxPollInterval,
	}
}

func (d *NotificationOutboxDispatcher) Run(ctx context.Context) {
	if d == nil || d.queue == nil || d.repo == nil {
		return
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for tick := 0; ; tick++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if tick%requeueEvery == 0 {
			d.requeueStale(ctx)
		}
		d.dispatchOnce(ctx)
	}
}

// dispatchOnce claims one batch and enqueues it. A record that cannot be
// enqueued goes back to pending with the error recorded.
func (d *NotificationOutboxDispatcher) dispatchOnce(ctx context.Context) int {
	records, err := d.repo.ClaimPending(ctx, outboxClaimBatch)
	if err != nil {
		d.log.Warn("outbox claim failed", "error", err)
		return 0
	}

	enqueued := 0
	for _, rec := range records {
		payload := NotificationOutboxDuePayload{OutboxID: rec.ID.String()}
		if rec.TenantID != nil {
			payload.TenantID = rec.TenantID.String()
		}
		if err := d.queue.EnqueueOutboxDue(ctx, payload, rec.RunAt); err != nil {
			msg := err.Error()
			_ = d.repo.MarkPending(ctx, rec.ID, &msg)
			continue
		}
		enqueued++
	}
	return enqueued
}

func (d *NotificationOutboxDispatcher) requeueStale(ctx context.Context) {
	n, err := d.repo.RequeueStale(ctx, outboxStaleAfter)
	if err != nil {
		d.log.Warn("outbox requeue failed", "error", err)
		return
	}
	if n > 0 {
		d.log.Info("outbox records requeued", "count", n)
	}
}
