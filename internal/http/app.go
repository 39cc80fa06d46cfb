package http

import (
	"context"

	"dealerdesk_backend/platform/config"
	"dealerdesk_backend/platform/logger"
)

// RouterConfig is the configuration the router reads.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// HealthChecker backs the readiness endpoint. *pgxpool.Pool satisfies it.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App is assembled by the composition root and passed to the router.
type App struct {
	Config RouterConfig
	Logger *logger.Logger
	// Health is optional; without it the health endpoint always reports ok.
	Health  HealthChecker
	Modules []Module
}
