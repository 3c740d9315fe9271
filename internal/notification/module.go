// Package notification provides event handlers for sending notifications
// in response to domain events.
// This module subscribes to events and inverts the dependency: domain modules
// no longer need to know about email providers or templates.
package notification

import (
	"context"
	"fmt"
	"strings"

	"portal_usap_backend/internal/email"
	"portal_usap_backend/internal/events"
	apphttp "portal_usap_backend/internal/http"
	notifhandler "portal_usap_backend/internal/notification/handler"
	"portal_usap_backend/internal/notification/inapp"
	partnerrepo "portal_usap_backend/internal/partners/repository"
	"portal_usap_backend/platform/config"
	"portal_usap_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	resourceTypeDeal = "deal"
	resourceTypeLead = "lead"
)

// ContactReader resolves a user to an e-mail address.
type ContactReader interface {
	GetUserContact(ctx context.Context, userID uuid.UUID) (partnerrepo.UserContact, error)
}

// OwnerResolver returns a partner's admin user, nil if it has none.
type OwnerResolver interface {
	AdminUserID(ctx context.Context, partnerID uuid.UUID) (*uuid.UUID, error)
}

// Module handles all notification-related event subscriptions.
type Module struct {
	sender       email.Sender
	contacts     ContactReader
	owners       OwnerResolver
	cfg          config.NotificationConfig
	log          *logger.Logger
	inAppService *inapp.Service
	inAppHandler *notifhandler.HTTPHandler
}

// New creates a new notification module backed by Postgres.
func New(pool *pgxpool.Pool, sender email.Sender, contacts ContactReader, owners OwnerResolver, cfg config.NotificationConfig, log *logger.Logger) *Module {
	return newModule(inapp.NewRepository(pool), sender, contacts, owners, cfg, log)
}

func newModule(store inapp.Store, sender email.Sender, contacts ContactReader, owners OwnerResolver, cfg config.NotificationConfig, log *logger.Logger) *Module {
	inAppSvc := inapp.NewService(store, log)
	return &Module{
		sender:       sender,
		contacts:     contacts,
		owners:       owners,
		cfg:          cfg,
		log:          log,
		inAppService: inAppSvc,
		inAppHandler: notifhandler.NewHTTPHandler(inAppSvc),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "notifications"
}

// RegisterRoutes mounts the in-app notification inbox.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.inAppHandler.RegisterRoutes(ctx.Protected.Group("/notifications"))
}

// RegisterHandlers subscribes the module to the domain events it reacts to.
func (m *Module) RegisterHandlers(bus events.Bus) {
	events.On(bus, m.handlePartnerProvisioned)
	events.On(bus, m.handleLeadConverted)
	events.On(bus, m.handleDealStageChanged)
	events.On(bus, m.handleSyncCompleted)
}

func (m *Module) handlePartnerProvisioned(ctx context.Context, e events.PartnerProvisioned) error {
	loginURL := m.appURL("/login")
	if err := m.sender.SendPartnerWelcomeEmail(ctx, e.Email, e.Name, loginURL, e.TemporaryPassword); err != nil {
		m.log.Error("failed to send partner welcome email", "error", err, "partnerId", e.PartnerID)
		return err
	}

	return m.inAppService.Send(ctx, inapp.SendParams{
		UserID:   e.AdminUserID,
		Title:    "Welcome to the partner portal",
		Content:  fmt.Sprintf("Your account for %s is ready. Leads you submit here are sent to the CRM automatically.", e.Name),
		Category: inapp.CategorySuccess,
		Metadata: map[string]any{"partnerId": e.PartnerID.String()},
	})
}

func (m *Module) handleLeadConverted(ctx context.Context, e events.LeadConverted) error {
	recipient := m.recipient(ctx, e.OwnerID, e.PartnerID)
	if recipient == nil {
		m.log.Warn("lead conversion has no recipient", "leadId", e.LeadID, "partnerId", e.PartnerID)
		return nil
	}

	content := fmt.Sprintf("%s was converted to a deal.", e.LeadName)
	if e.DealName != "" {
		content = fmt.Sprintf("%s was converted to the deal %s.", e.LeadName, e.DealName)
	}
	resourceID, resourceType := e.DealID, resourceTypeDeal
	if resourceID == nil {
		resourceID, resourceType = &e.LeadID, resourceTypeLead
	}

	if err := m.inAppService.Send(ctx, inapp.SendParams{
		UserID:       *recipient,
		Title:        "Lead converted",
		Content:      content,
		ResourceID:   resourceID,
		ResourceType: resourceType,
		Category:     inapp.CategorySuccess,
		Metadata:     map[string]any{"leadId": e.LeadID.String(), "source": e.Source},
	}); err != nil {
		return err
	}

	dealURL := ""
	if e.DealID != nil {
		dealURL = m.appURL("/deals/" + e.DealID.String())
	}
	return m.sendEmail(ctx, *recipient, func(to string) error {
		return m.sender.SendLeadConvertedEmail(ctx, to, e.LeadName, e.DealName, dealURL)
	})
}

func (m *Module) handleDealStageChanged(ctx context.Context, e events.DealStageChanged) error {
	recipient := m.recipient(ctx, e.OwnerID, e.PartnerID)
	if recipient == nil {
		m.log.Warn("deal stage change has no recipient", "dealId", e.DealID, "partnerId", e.PartnerID)
		return nil
	}

	content := fmt.Sprintf("%s is now %s.", e.DealName, e.NewStage)
	if e.OldStage != "" {
		content = fmt.Sprintf("%s moved from %s to %s.", e.DealName, e.OldStage, e.NewStage)
	}

	if err := m.inAppService.Send(ctx, inapp.SendParams{
		UserID:       *recipient,
		Title:        "Deal updated",
		Content:      content,
		ResourceID:   &e.DealID,
		ResourceType: resourceTypeDeal,
		Category:     stageCategory(e.NewStage),
		Metadata:     map[string]any{"oldStage": e.OldStage, "newStage": e.NewStage},
	}); err != nil {
		return err
	}

	dealURL := m.appURL("/deals/" + e.DealID.String())
	return m.sendEmail(ctx, *recipient, func(to string) error {
		return m.sender.SendDealStageEmail(ctx, to, e.DealName, e.NewStage, dealURL)
	})
}

func (m *Module) handleSyncCompleted(_ context.Context, e events.SyncCompleted) error {
	if !e.Success {
		m.log.Warn("crm sync completed with errors", "runId", e.RunID, "trigger", e.Trigger, "partners", e.PartnerCount, "errors", e.ErrorCount)
		return nil
	}
	m.log.Info("crm sync completed", "runId", e.RunID, "trigger", e.Trigger, "partners", e.PartnerCount)
	return nil
}

// recipient is the record owner, else the partner's admin.
func (m *Module) recipient(ctx context.Context, owner *uuid.UUID, partnerID uuid.UUID) *uuid.UUID {
	if owner != nil && *owner != uuid.Nil {
		return owner
	}
	admin, err := m.owners.AdminUserID(ctx, partnerID)
	if err != nil {
		m.log.Warn("failed to resolve partner admin", "partnerId", partnerID, "error", err)
		return nil
	}
	return admin
}

func (m *Module) sendEmail(ctx context.Context, userID uuid.UUID, send func(to string) error) error {
	contact, err := m.contacts.GetUserContact(ctx, userID)
	if err != nil {
		m.log.Warn("failed to resolve notification contact", "userId", userID, "error", err)
		return nil
	}
	if strings.TrimSpace(contact.Email) == "" {
		return nil
	}
	if err := send(contact.Email); err != nil {
		m.log.Error("failed to send notification email", "userId", userID, "error", err)
		return err
	}
	return nil
}

func (m *Module) appURL(path string) string {
	return strings.TrimRight(m.cfg.GetAppBaseURL(), "/") + path
}

func stageCategory(stage string) string {
	switch stage {
	case "approved", "live":
		return inapp.CategorySuccess
	case "declined", "closed_lost":
		return inapp.CategoryWarning
	default:
		return inapp.CategoryInfo
	}
}

var _ apphttp.Module = (*Module)(nil)
