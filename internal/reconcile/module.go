package reconcile

import (
	apphttp "portal_usap_backend/internal/http"
)

// Module exposes the operator sync endpoints.
type Module struct {
	handler    *Handler
	reconciler *Reconciler
}

// NewModule wraps a reconciler for HTTP.
func NewModule(reconciler *Reconciler, deps HandlerDeps) *Module {
	return &Module{handler: NewHandler(reconciler, deps), reconciler: reconciler}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "sync"
}

// Reconciler returns the underlying reconciler.
func (m *Module) Reconciler() *Reconciler {
	return m.reconciler
}

// RegisterRoutes mounts routes under /api/v1/admin/sync.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Admin.Group("/sync"))
}

var _ apphttp.Module = (*Module)(nil)
