// Package deals provides the deals bounded context module.
package deals

import (
	"portal_usap_backend/internal/deals/handler"
	"portal_usap_backend/internal/deals/repository"
	"portal_usap_backend/internal/deals/service"
	"portal_usap_backend/internal/events"
	apphttp "portal_usap_backend/internal/http"
	"portal_usap_backend/platform/logger"
	"portal_usap_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Deps are the collaborators the deal upsert needs from other modules.
type Deps struct {
	Matcher  service.LeadMatcher
	Owners   service.OwnerResolver
	History  service.HistoryWriter
	Activity service.ActivityRecorder
	EventBus events.Bus
	Logger   *logger.Logger
}

// Module is the deals bounded context module implementing http.Module.
type Module struct {
	handler  *handler.Handler
	repo     *repository.Repository
	upserter *service.Upserter
}

// NewModule creates the deals module.
func NewModule(pool *pgxpool.Pool, val *validator.Validator, deps Deps) *Module {
	repo := repository.New(pool)
	upserter := service.NewUpserter(repo, deps.Matcher, deps.Owners, deps.History, deps.Activity, deps.EventBus, deps.Logger)
	return &Module{
		handler:  handler.New(service.New(repo), val),
		repo:     repo,
		upserter: upserter,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "deals"
}

// Upserter returns the shared deal upsert used by webhooks and sync.
func (m *Module) Upserter() *service.Upserter {
	return m.upserter
}

// Repository exposes the deal store.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// RegisterRoutes mounts deal routes under /api/v1/deals.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/deals"))
}

var _ apphttp.Module = (*Module)(nil)
