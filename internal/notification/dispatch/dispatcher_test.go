package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dealerdesk_backend/internal/leads/domain"
	"dealerdesk_backend/internal/notification/inapp"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func member(name string) domain.Salesperson {
	tenant := uuid.New()
	return domain.Salesperson{
		ID:           uuid.New(),
		TenantID:     &tenant,
		Name:         name,
		Role:         domain.RoleStandard,
		Active:       true,
		Email:        name + "@example.com",
		Phone:        "+15551234567",
		PushEnabled:  true,
		EmailEnabled: true,
		SMSEnabled:   true,
	}
}

type recordingSink struct {
	mu    sync.Mutex
	calls []Delivery
	fail  func(d Delivery) error
}

func (s *recordingSink) Send(_ context.Context, d Delivery) error {
	s.mu.Lock()
	s.calls = append(s.calls, d)
	s.mu.Unlock()
	if s.fail != nil {
		return s.fail(d)
	}
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func TestDispatchIsolatesSingleFailure(t *testing.T) {
	recipients := make([]domain.Salesperson, 0, 5)
	for _, name := range []string{"ana", "ben", "cai", "dee", "eli"} {
		recipients = append(recipients, member(name))
	}
	broken := recipients[2].ID

	push := &recordingSink{}
	email := &recordingSink{fail: func(d Delivery) error {
		if d.Recipient.ID == broken {
			return errors.New("smtp 550 mailbox unavailable")
		}
		return nil
	}}
	sms := &recordingSink{}

	store := inapp.NewMemoryStore()
	d := New(store, nil,
		WithSink(ChannelPush, push),
		WithSink(ChannelEmail, email),
		WithSink(ChannelSMS, sms),
	)

	res := d.Dispatch(context.Background(), recipients, Message{Title: "Lead claimed", Body: "body", Kind: "lead_claimed"}, nil, SendOptions{})

	require.Equal(t, 5, res.Records)
	assert.Equal(t, 0, res.RecordErrors)
	assert.Equal(t, 14, res.Succeeded())
	assert.Equal(t, 1, res.Failed())
	assert.Equal(t, ChannelCount{Attempted: 5, Succeeded: 4, Failed: 1}, res.Channels[ChannelEmail])
	assert.Equal(t, 5, push.count())
	assert.Equal(t, 5, sms.count())

	records := store.ForRecipient(broken)
	require.Len(t, records, 1)
	require.Len(t, records[0].ChannelAttempts, 3)
	failed := 0
	for _, a := range records[0].ChannelAttempts {
		if !a.Succeeded {
			failed++
			assert.Equal(t, string(ChannelEmail), a.Channel)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestDispatchSkipsDisabledChannels(t *testing.T) {
	r := member("fay")
	r.SMSEnabled = false
	r.Email = ""

	push := &recordingSink{}
	email := &recordingSink{}
	sms := &recordingSink{}
	d := New(inapp.NewMemoryStore(), nil,
		WithSink(ChannelPush, push),
		WithSink(ChannelEmail, email),
		WithSink(ChannelSMS, sms),
	)

	res := d.Dispatch(context.Background(), []domain.Salesperson{r, r}, Message{Title: "t", Body: "b"}, nil, SendOptions{})

	assert.Equal(t, 1, res.Records)
	assert.Equal(t, 1, push.count())
	assert.Equal(t, 0, email.count())
	assert.Equal(t, 0, sms.count())
}

func TestDispatchTimesOutSlowSink(t *testing.T) {
	slow := SinkFunc(func(ctx context.Context, _ Delivery) error {
		<-ctx.Done()
		return ctx.Err()
	})
	fast := &recordingSink{}
	d := New(inapp.NewMemoryStore(), nil,
		WithSendTimeout(20*time.Millisecond),
		WithSink(ChannelPush, fast),
		WithSink(ChannelEmail, slow),
	)

	start := time.Now()
	res := d.Dispatch(context.Background(), []domain.Salesperson{member("gus")}, Message{Title: "t", Body: "b"}, nil, SendOptions{})

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 1, res.Channels[ChannelPush].Succeeded)
	assert.Equal(t, 1, res.Channels[ChannelEmail].Failed)
}

func TestDispatchRecoversSinkPanic(t *testing.T) {
	d := New(inapp.NewMemoryStore(), nil,
		WithSink(ChannelPush, SinkFunc(func(context.Context, Delivery) error { panic("boom") })),
		WithSink(ChannelSMS, &recordingSink{}),
	)

	res := d.Dispatch(context.Background(), []domain.Salesperson{member("hal")}, Message{Title: "t", Body: "b"}, nil, SendOptions{})

	assert.Equal(t, 1, res.Channels[ChannelPush].Failed)
	assert.Equal(t, 1, res.Channels[ChannelSMS].Succeeded)
}

type failingRecords struct{ inapp.MemoryStore }

func (f *failingRecords) Create(context.Context, inapp.CreateParams) (inapp.Notification, error) {
	return inapp.Notification{}, errors.New("db down")
}

func TestDispatchSendsWhenRecordCreationFails(t *testing.T) {
	push := &recordingSink{}
	d := New(&failingRecords{}, nil, WithSink(ChannelPush, push))

	res := d.Dispatch(context.Background(), []domain.Salesperson{member("ivy")}, Message{Title: "t", Body: "b"}, nil, SendOptions{})

	assert.Equal(t, 0, res.Records)
	assert.Equal(t, 1, res.RecordErrors)
	assert.Equal(t, 1, push.count())
}

func TestDispatchBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	sink := SinkFunc(func(context.Context, Delivery) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	})

	recipients := make([]domain.Salesperson, 0, 20)
	for i := 0; i < 20; i++ {
		recipients = append(recipients, member("m"))
	}
	d := New(inapp.NewMemoryStore(), nil, WithWorkers(3), WithSink(ChannelPush, sink))

	res := d.Dispatch(context.Background(), recipients, Message{Title: "t", Body: "b"}, nil, SendOptions{})

	assert.Equal(t, 20, res.Succeeded())
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestDispatchAbandonsSinkThatIgnoresDeadline(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	stuck := SinkFunc(func(context.Context, Delivery) error {
		<-release
		return nil
	})
	d := New(inapp.NewMemoryStore(), nil,
		WithSendTimeout(50*time.Millisecond),
		WithSink(ChannelPush, stuck),
	)

	start := time.Now()
	res := d.Dispatch(context.Background(), []domain.Salesperson{member("jon")}, Message{Title: "t", Body: "b"}, nil, SendOptions{})

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, ChannelCount{Attempted: 1, Succeeded: 0, Failed: 1}, res.Channels[ChannelPush])
}

func TestDispatchPerCallTimeoutOverridesDefault(t *testing.T) {
	slow := SinkFunc(func(ctx context.Context, _ Delivery) error {
		select {
		case <-time.After(200 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	d := New(inapp.NewMemoryStore(), nil, WithSendTimeout(time.Minute), WithSink(ChannelEmail, slow))

	res := d.Dispatch(context.Background(), []domain.Salesperson{member("kim")}, Message{Title: "t", Body: "b"},
		nil, SendOptions{SendTimeout: 20 * time.Millisecond})

	assert.Equal(t, 1, res.Channels[ChannelEmail].Failed)
}

func TestDispatchLimitedToRequestedChannels(t *testing.T) {
	push := &recordingSink{}
	email := &recordingSink{}
	sms := &recordingSink{}
	store := inapp.NewMemoryStore()
	d := New(store, nil,
		WithSink(ChannelPush, push),
		WithSink(ChannelEmail, email),
		WithSink(ChannelSMS, sms),
	)
	recipients := []domain.Salesperson{member("lea"), member("max")}

	res := d.Dispatch(context.Background(), recipients, Message{Title: "t", Body: "b"}, []Channel{ChannelPush, "fax"}, SendOptions{})

	assert.Equal(t, 2, res.Records)
	assert.Equal(t, 2, push.count())
	assert.Equal(t, 0, email.count())
	assert.Equal(t, 0, sms.count())
	assert.Equal(t, 2, res.Succeeded())
	_, emailed := res.Channels[ChannelEmail]
	assert.False(t, emailed)
	assert.Len(t, store.All(), 2)
}
