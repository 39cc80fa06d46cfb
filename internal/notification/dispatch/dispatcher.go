// Package dispatch fans one notification out to many recipients across
// every channel they have enabled. One failing (recipient, channel) pair
// never blocks or fails the rest.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"dealerdesk_backend/internal/leads/domain"
	"dealerdesk_backend/internal/notification/inapp"
	"dealerdesk_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"
)

// Channel is one outbound delivery mechanism.
type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Channels lists every channel in fixed send order.
var Channels = []Channel{ChannelPush, ChannelEmail, ChannelSMS}

// SendOptions tunes a single Dispatch call.
type SendOptions struct {
	// SendTimeout overrides the dispatcher's per-send timeout when positive.
	SendTimeout time.Duration
}

const (
	defaultWorkers     = 8
	defaultSendTimeout = 10 * time.Second
)

var sendsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notification_sends_total",
		Help: "Channel sends by channel and outcome",
	},
	[]string{"channel", "outcome"},
)

// Message is the channel-independent content of one fanout.
type Message struct {
	Title    string
	Body     string
	Link     string
	Kind     string
	LeadID   *uuid.UUID
	TenantID *uuid.UUID
}

// Delivery is a single (recipient, channel) send.
type Delivery struct {
	Recipient domain.Salesperson
	Message   Message
	// RecordID is the in-app record created for this recipient, or uuid.Nil
	// when record creation failed.
	RecordID uuid.UUID
}

// Sink sends a delivery over one channel.
type Sink interface {
	Send(ctx context.Context, d Delivery) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, d Delivery) error

func (f SinkFunc) Send(ctx context.Context, d Delivery) error { return f(ctx, d) }

// RecordStore persists the per-recipient in-app record.
type RecordStore interface {
	Create(ctx context.Context, p inapp.CreateParams) (inapp.Notification, error)
	RecordAttempts(ctx context.Context, id uuid.UUID, attempts []inapp.ChannelAttempt) error
}

// ChannelCount tallies sends for one channel.
type ChannelCount struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Result is the outcome of a fanout. It is informational only.
type Result struct {
	Channels     map[Channel]ChannelCount `json:"channels"`
	Records      int                      `json:"records"`
	RecordErrors int                      `json:"recordErrors"`
}

// Succeeded totals successful sends across channels.
func (r Result) Succeeded() int {
	total := 0
	for _, c := range r.Channels {
		total += c.Succeeded
	}
	return total
}

// Failed totals failed sends across channels.
func (r Result) Failed() int {
	total := 0
	for _, c := range r.Channels {
		total += c.Failed
	}
	return total
}

type Option func(*Dispatcher)

// WithWorkers bounds the number of concurrent sends.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithSendTimeout bounds each individual send.
func WithSendTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.sendTimeout = timeout
		}
	}
}

// WithSink registers the sink for a channel. A channel without a sink is skipped.
func WithSink(channel Channel, sink Sink) Option {
	return func(d *Dispatcher) {
		if sink != nil {
			d.sinks[channel] = sink
		}
	}
}

type Dispatcher struct {
	records     RecordStore
	sinks       map[Channel]Sink
	workers     int
	sendTimeout time.Duration
	log         *logger.Logger
	now         func() time.Time
}

func New(records RecordStore, log *logger.Logger, opts ...Option) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	d := &Dispatcher{
		records:     records,
		sinks:       make(map[Channel]Sink),
		workers:     defaultWorkers,
		sendTimeout: defaultSendTimeout,
		log:         log,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type job struct {
	recipient domain.Salesperson
	channel   Channel
	recordID  uuid.UUID
}

// Dispatch creates one in-app record per recipient, then sends over the
// requested channels concurrently. A nil or empty channels means every
// channel. It returns once every send finished or hit its timeout.
func (d *Dispatcher) Dispatch(ctx context.Context, recipients []domain.Salesperson, msg Message, channels []Channel, opts SendOptions) Result {
	res := Result{Channels: make(map[Channel]ChannelCount, len(Channels))}
	timeout := d.sendTimeout
	if opts.SendTimeout > 0 {
		timeout = opts.SendTimeout
	}
	recipients = dedupe(recipients)
	if len(recipients) == 0 {
		return res
	}

	recordIDs := make(map[uuid.UUID]uuid.UUID, len(recipients))
	for _, r := range recipients {
		id, err := d.createRecord(ctx, r, msg)
		if err != nil {
			res.RecordErrors++
			d.log.Error("notification record create failed",
				slog.String("recipient_id", r.ID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		res.Records++
		recordIDs[r.ID] = id
	}

	jobs := d.plan(recipients, recordIDs, selectChannels(channels))
	if len(jobs) == 0 {
		return res
	}

	var (
		mu       sync.Mutex
		attempts = make(map[uuid.UUID][]inapp.ChannelAttempt, len(recordIDs))
	)

	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	g.SetLimit(d.workers)
	for _, j := range jobs {
		g.Go(func() error {
			err := d.send(gctx, j, msg, timeout)
			attempt := inapp.ChannelAttempt{
				Channel:     string(j.channel),
				Succeeded:   err == nil,
				AttemptedAt: d.now().UTC(),
			}
			if err != nil {
				attempt.Error = err.Error()
				d.log.ChannelDeliveryFailed(string(j.channel), j.recipient.ID.String(), err)
			}

			mu.Lock()
			count := res.Channels[j.channel]
			count.Attempted++
			if err == nil {
				count.Succeeded++
			} else {
				count.Failed++
			}
			res.Channels[j.channel] = count
			if j.recordID != uuid.Nil {
				attempts[j.recordID] = append(attempts[j.recordID], attempt)
			}
			mu.Unlock()

			outcome := "succeeded"
			if err != nil {
				outcome = "failed"
			}
			sendsTotal.WithLabelValues(string(j.channel), outcome).Inc()
			return nil
		})
	}
	_ = g.Wait()

	if d.records != nil {
		for id, list := range attempts {
			if err := d.records.RecordAttempts(context.WithoutCancel(ctx), id, list); err != nil {
				d.log.Warn("notification attempts not recorded",
					slog.String("notification_id", id.String()),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	return res
}

func (d *Dispatcher) createRecord(ctx context.Context, r domain.Salesperson, msg Message) (uuid.UUID, error) {
	if d.records == nil {
		return uuid.Nil, fmt.Errorf("no record store configured")
	}
	n, err := d.records.Create(ctx, inapp.CreateParams{
		RecipientID: r.ID,
		TenantID:    msg.TenantID,
		Title:       msg.Title,
		Content:     msg.Body,
		Link:        msg.Link,
		Kind:        msg.Kind,
		LeadID:      msg.LeadID,
	})
	if err != nil {
		return uuid.Nil, err
	}
	return n.ID, nil
}

func (d *Dispatcher) plan(recipients []domain.Salesperson, recordIDs map[uuid.UUID]uuid.UUID, channels []Channel) []job {
	jobs := make([]job, 0, len(recipients)*len(channels))
	for _, r := range recipients {
		for _, ch := range channels {
			if _, ok := d.sinks[ch]; !ok || !Enabled(r, ch) {
				continue
			}
			jobs = append(jobs, job{recipient: r, channel: ch, recordID: recordIDs[r.ID]})
		}
	}
	return jobs
}

// selectChannels keeps the known channels of requested in send order.
func selectChannels(requested []Channel) []Channel {
	if len(requested) == 0 {
		return Channels
	}
	out := make([]Channel, 0, len(Channels))
	for _, ch := range Channels {
		if slices.Contains(requested, ch) {
			out = append(out, ch)
		}
	}
	return out
}

// send gives up at the deadline even when the sink ignores its context. The
// sink goroutine is left to finish on its own; its result is discarded.
func (d *Dispatcher) send(ctx context.Context, j job, msg Message, timeout time.Duration) error {
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("%s sink panicked: %v", j.channel, rec)
			}
		}()
		done <- d.sinks[j.channel].Send(sendCtx, Delivery{
			Recipient: j.recipient,
			Message:   msg,
			RecordID:  j.recordID,
		})
	}()

	select {
	case err := <-done:
		return err
	case <-sendCtx.Done():
		return fmt.Errorf("%s send: %w", j.channel, sendCtx.Err())
	}
}

// Enabled reports whether the recipient accepts the channel and has the
// address it needs.
func Enabled(r domain.Salesperson, ch Channel) bool {
	switch ch {
	case ChannelPush:
		return r.PushEnabled
	case ChannelEmail:
		return r.EmailEnabled && r.Email != ""
	case ChannelSMS:
		return r.SMSEnabled && r.Phone != ""
	default:
		return false
	}
}

func dedupe(recipients []domain.Salesperson) []domain.Salesperson {
	seen := make(map[uuid.UUID]struct{}, len(recipients))
	out := make([]domain.Salesperson, 0, len(recipients))
	for _, r := range recipients {
		if r.ID == uuid.Nil {
			continue
		}
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}
