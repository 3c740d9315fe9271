// Package partners provides the partners bounded context module.
package partners

import (
	"portal_usap_backend/internal/events"
	apphttp "portal_usap_backend/internal/http"
	"portal_usap_backend/internal/partners/handler"
	"portal_usap_backend/internal/partners/repository"
	"portal_usap_backend/internal/partners/service"
	"portal_usap_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the partners bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and initializes the partners module with all its dependencies.
func NewModule(pool *pgxpool.Pool, eventBus events.Bus, val *validator.Validator) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, eventBus)
	return &Module{handler: handler.New(svc, val), service: svc}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "partners"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts partner routes under /api/v1/admin/partners.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Admin.Group("/partners"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
