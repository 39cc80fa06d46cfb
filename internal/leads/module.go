// Package leads provides the lead ownership bounded context module.
// This file defines the module that wires its services and registers routes.
package leads

import (
	"dealerdesk_backend/internal/events"
	apphttp "dealerdesk_backend/internal/http"
	"dealerdesk_backend/internal/leads/handler"
	"dealerdesk_backend/internal/leads/ownership"
	"dealerdesk_backend/internal/leads/repository"
	"dealerdesk_backend/internal/leads/service"
	"dealerdesk_backend/internal/leads/stages"
	"dealerdesk_backend/platform/logger"
	"dealerdesk_backend/platform/validator"
)

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler     *handler.Handler
	service     *service.Service
	coordinator *ownership.Coordinator
}

// NewModule creates the leads module. registry must already be loaded.
func NewModule(store repository.Store, registry *stages.Registry, bus events.Publisher, val *validator.Validator, log *logger.Logger) *Module {
	coordinator := ownership.NewCoordinator(store,
		ownership.WithPublisher(bus),
		ownership.WithLogger(log),
	)
	svc := service.New(store, registry, coordinator, bus, log)

	return &Module{
		handler:     handler.New(svc, val),
		service:     svc,
		coordinator: coordinator,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// Service exposes the lead actions for other entry points.
func (m *Module) Service() *service.Service {
	return m.service
}

// Coordinator exposes the ownership coordinator for other modules that act on leads.
func (m *Module) Coordinator() *ownership.Coordinator {
	return m.coordinator
}

// RegisterRoutes mounts leads routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/leads"))
	m.handler.RegisterAdminRoutes(ctx.Admin)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
