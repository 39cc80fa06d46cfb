package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dealerdesk_backend/internal/events"
	apphttp "dealerdesk_backend/internal/http"
	"dealerdesk_backend/internal/http/router"
	"dealerdesk_backend/internal/leads"
	"dealerdesk_backend/internal/leads/reclaim"
	leadrepo "dealerdesk_backend/internal/leads/repository"
	"dealerdesk_backend/internal/leads/stages"
	"dealerdesk_backend/internal/notification"
	"dealerdesk_backend/internal/notification/channels"
	"dealerdesk_backend/internal/notification/dispatch"
	"dealerdesk_backend/internal/notification/inapp"
	"dealerdesk_backend/internal/notification/outbox"
	"dealerdesk_backend/internal/notification/sse"
	"dealerdesk_backend/internal/realtime"
	"dealerdesk_backend/internal/scheduler"
	"dealerdesk_backend/platform/config"
	"dealerdesk_backend/platform/db"
	"dealerdesk_backend/platform/logger"
	"dealerdesk_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr, "deliveryMode", cfg.GetDeliveryMode())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

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
	log.Info("database connection established")

	eventBus := events.NewInMemoryBus(log, events.WithWorkers(cfg.GetEventBusWorkers()))
	val := validator.New()
	stream := sse.New(log)

	registry := stages.NewRegistry(stages.NewRepository(pool))
	if err := registry.SeedDefaults(ctx); err != nil {
		log.Error("failed to seed default stages", "error", err)
		panic("failed to seed default stages: " + err.Error())
	}
	if err := registry.Load(ctx); err != nil {
		log.Error("failed to load stage registry", "error", err)
		panic("failed to load stage registry: " + err.Error())
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	leadStore := leadrepo.New(pool)
	records := inapp.NewRepository(pool)
	fanout := dispatch.New(records, log, channels.DispatchOptions(cfg, stream)...)

	notificationModule := notification.New(records, leadStore, fanout, cfg, log)
	notificationModule.SetSSE(stream)
	if cfg.GetDeliveryMode() == config.DeliveryModeOutbox {
		notificationModule.SetOutbox(outbox.New(pool))
	}
	notificationModule.RegisterHandlers(eventBus)

	relay, err := realtime.DialAMQP(cfg)
	if err != nil {
		log.Error("failed to connect realtime relay", "error", err)
		panic("failed to connect realtime relay: " + err.Error())
	}
	var stateRelay realtime.Relay
	if relay != nil {
		defer func() { _ = relay.Close() }()
		stateRelay = relay
		go func() {
			if err := relay.Consume(ctx, stream, log); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("realtime consumer stopped", "error", err)
			}
		}()
	}
	realtime.NewBroadcaster(stream, stateRelay, log).RegisterHandlers(eventBus)

	leadsModule := leads.NewModule(leadStore, registry, eventBus, val, log)

	// Without redis there is no scheduler process; sweep in-process instead.
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; running lease sweeps in the API process")
		opts := append(reclaim.FromConfig(cfg), reclaim.WithPublisher(eventBus))
		sweeper := reclaim.New(leadStore, registry, log, opts...)
		go scheduler.NewLeaseSweepRunner(sweeper, nil, log, cfg.GetLeaseSweepInterval()).Run(ctx)
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config: cfg,
		Logger: log,
		Health: pool,
		Modules: []apphttp.Module{
			leadsModule,
			notificationModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
		if err := eventBus.Wait(shutdownCtx); err != nil {
			log.Warn("event handlers still running at shutdown", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
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
