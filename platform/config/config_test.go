package config

import (
	"testing"
	"time"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL is empty")
	}
}

func TestLoadAppliesLeaseDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/crm")
	t.Setenv("LEASE_STALE_THRESHOLD", "not-a-duration")
	t.Setenv("LEASE_SWEEP_INTERVAL", "-5m")
	t.Setenv("CORS_ALLOW_CREDENTIALS", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.GetLeaseStaleThreshold() != 72*time.Hour {
		t.Fatalf("expected 72h stale threshold, got %s", cfg.GetLeaseStaleThreshold())
	}
	if cfg.GetLeaseSweepInterval() != time.Hour {
		t.Fatalf("expected hourly sweep, got %s", cfg.GetLeaseSweepInterval())
	}
	if !cfg.GetReclaimToGlobalPool() {
		t.Fatal("expected reclamation to the global pool by default")
	}
	if cfg.GetDeliveryMode() != DeliveryModeInline {
		t.Fatalf("expected inline delivery mode, got %q", cfg.GetDeliveryMode())
	}
}

func TestLoadOutboxModeRequiresRedis(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/crm")
	t.Setenv("NOTIFICATION_DELIVERY_MODE", "outbox")
	t.Setenv("REDIS_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected outbox mode without REDIS_URL to fail")
	}
}

func TestReclaimToTenantPoolSwitch(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/crm")
	t.Setenv("RECLAIM_TO_GLOBAL_POOL", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.GetReclaimToGlobalPool() {
		t.Fatal("expected RECLAIM_TO_GLOBAL_POOL=false to keep leads in the tenant pool")
	}
}
