// Package leads provides the lead bounded context module.
// This file defines the module that encapsulates all leads setup and route registration.
package leads

import (
	"context"

	"portal_usap_backend/internal/events"
	apphttp "portal_usap_backend/internal/http"
	"portal_usap_backend/internal/leads/handler"
	"portal_usap_backend/internal/leads/repository"
	"portal_usap_backend/internal/leads/service"
	"portal_usap_backend/platform/logger"
	"portal_usap_backend/platform/validator"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Deps are the collaborators the leads module needs from other modules.
type Deps struct {
	History  service.HistoryWriter
	Activity service.ActivityRecorder
	Partners service.PartnerReader
	CRM      service.CRMWriter
	// Queue defers CRM pushes to the worker. Nil pushes inline.
	Queue    service.PushQueue
	EventBus events.Bus
	Logger   *logger.Logger
}

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	repo    *repository.Repository
	service *service.Service
	pusher  *service.Pusher
}

// NewModule creates the leads module and subscribes the CRM push to portal
// lead events.
func NewModule(pool *pgxpool.Pool, val *validator.Validator, deps Deps) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, deps.History, deps.Activity, deps.EventBus, deps.Logger)
	pusher := service.NewPusher(repo, deps.CRM, deps.Partners, deps.Activity, deps.Logger)

	queue := deps.Queue
	if queue == nil {
		queue = service.NewInlineQueue(pusher)
	}
	subscribePush(deps.EventBus, queue, deps.Logger)

	return &Module{
		handler: handler.New(svc, val),
		repo:    repo,
		service: svc,
		pusher:  pusher,
	}
}

func subscribePush(bus events.Bus, queue service.PushQueue, log *logger.Logger) {
	enqueue := func(ctx context.Context, leadID uuid.UUID) error {
		if err := queue.EnqueueLeadPush(ctx, leadID); err != nil {
			log.Error("lead push failed", "leadId", leadID, "error", err)
			return err
		}
		return nil
	}

	events.On(bus, func(ctx context.Context, e events.LeadSubmitted) error {
		return enqueue(ctx, e.LeadID)
	})
	events.On(bus, func(ctx context.Context, e events.LeadStatusChangedByPortal) error {
		return enqueue(ctx, e.LeadID)
	})
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// Repository exposes the lead store to the conversion matcher, webhooks and sync.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// Service returns the portal lead service.
func (m *Module) Service() *service.Service {
	return m.service
}

// Pusher returns the CRM push executed by the lead push task.
func (m *Module) Pusher() *service.Pusher {
	return m.pusher
}

// RegisterRoutes mounts leads routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/leads"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
