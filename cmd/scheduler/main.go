package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dealerdesk_backend/internal/events"
	"dealerdesk_backend/internal/leads/reclaim"
	leadrepo "dealerdesk_backend/internal/leads/repository"
	"dealerdesk_backend/internal/leads/stages"
	"dealerdesk_backend/internal/notification"
	"dealerdesk_backend/internal/notification/channels"
	"dealerdesk_backend/internal/notification/dispatch"
	"dealerdesk_backend/internal/notification/inapp"
	"dealerdesk_backend/internal/notification/outbox"
	"dealerdesk_backend/internal/realtime"
	"dealerdesk_backend/internal/scheduler"
	"dealerdesk_backend/platform/config"
	"dealerdesk_backend/platform/db"
	"dealerdesk_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "sweepInterval", cfg.GetLeaseSweepInterval())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log, events.WithWorkers(cfg.GetEventBusWorkers()))
	leadStore := leadrepo.New(pool)
	outboxStore := outbox.New(pool)

	// The scheduler has no browser connections, so there is no push sink.
	// Recipients still get the in-app record plus email and SMS.
	records := inapp.NewRepository(pool)
	fanout := dispatch.New(records, log, channels.DispatchOptions(cfg, nil)...)
	notificationModule := notification.New(records, leadStore, fanout, cfg, log)
	notificationModule.SetOutbox(outboxStore)
	notificationModule.RegisterHandlers(eventBus)

	relay, err := realtime.DialAMQP(cfg)
	if err != nil {
		log.Error("failed to connect realtime relay", "error", err)
		panic("failed to connect realtime relay: " + err.Error())
	}
	if relay != nil {
		defer func() { _ = relay.Close() }()
		realtime.NewBroadcaster(nil, relay, log).RegisterHandlers(eventBus)
	}

	rdb, err := scheduler.NewRedisClient(cfg)
	if err != nil {
		log.Error("failed to initialize redis client", "error", err)
		panic("failed to initialize redis client: " + err.Error())
	}
	defer func() { _ = rdb.Close() }()

	// The API seeds the stages; the scheduler only reads them.
	registry := stages.NewRegistry(stages.NewRepository(pool))
	if err := registry.Load(ctx); err != nil {
		log.Error("failed to load stage registry", "error", err)
		panic("failed to load stage registry: " + err.Error())
	}

	opts := append(reclaim.FromConfig(cfg), reclaim.WithPublisher(eventBus))
	sweeper := reclaim.New(leadStore, registry, log, opts...)
	go scheduler.NewLeaseSweepRunner(sweeper, rdb, log, cfg.GetLeaseSweepInterval()).Run(ctx)

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()
	go scheduler.NewNotificationOutboxDispatcher(client, outboxStore, log).Run(ctx)

	worker, err := scheduler.NewWorker(cfg, eventBus, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)

	waitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := eventBus.Wait(waitCtx); err != nil {
		log.Warn("event handlers still running at shutdown", "error", err)
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
