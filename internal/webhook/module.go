// Package webhook provides the CRM webhook bounded context module.
package webhook

import (
	apphttp "portal_usap_backend/internal/http"
	"portal_usap_backend/platform/logger"
	"portal_usap_backend/platform/validator"
)

// Module is the webhook bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	secret  string
	log     *logger.Logger
}

// NewModule creates the webhook module. secret is the shared value the CRM
// sends in the X-Webhook-Secret header.
func NewModule(deps Deps, val *validator.Validator, secret string) *Module {
	return &Module{
		handler: NewHandler(NewService(deps), val, deps.Logger),
		secret:  secret,
		log:     deps.Logger,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts the CRM webhooks under /api/v1/webhooks/zoho. The
// group already carries the IP rate limit and request timeout.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	zoho := ctx.Webhooks.Group("/zoho")
	zoho.Use(SharedSecretMiddleware(m.secret, m.log))
	zoho.POST("/partner", m.handler.HandlePartner)
	zoho.POST("/lead-status", m.handler.HandleLeadStatus)
	zoho.POST("/deal", m.handler.HandleDeal)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
