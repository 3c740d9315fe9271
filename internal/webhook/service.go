// Package webhook ingests the CRM's workflow webhooks: partner provisioning,
// lead status changes and deal create-or-update events. Every handler is
// idempotent under at-least-once delivery.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"portal_usap_backend/internal/activity"
	"portal_usap_backend/internal/crm/mapping"
	dealsvc "portal_usap_backend/internal/deals/service"
	"portal_usap_backend/internal/events"
	"portal_usap_backend/internal/history"
	leaddomain "portal_usap_backend/internal/leads/domain"
	partnerrepo "portal_usap_backend/internal/partners/repository"
	partnersvc "portal_usap_backend/internal/partners/service"
	"portal_usap_backend/platform/apperr"
	"portal_usap_backend/platform/db"
	"portal_usap_backend/platform/logger"
	"portal_usap_backend/platform/metrics"

	"github.com/google/uuid"
)

const (
	sourceLeadWebhook = "webhook_lead"
	maxLeadAttempts   = 2
)

// Partners is the partner capability the ingestor needs. Satisfied by the
// partners service.
type Partners interface {
	Provision(ctx context.Context, in partnersvc.ProvisionInput) (partnerrepo.ProvisionResult, error)
	GetByExternalID(ctx context.Context, externalID string) (partnerrepo.Partner, error)
	AdminUserID(ctx context.Context, partnerID uuid.UUID) (*uuid.UUID, error)
}

// LeadStore reads and writes leads.
type LeadStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (leaddomain.Lead, error)
	GetByExternalID(ctx context.Context, externalID string) (leaddomain.Lead, error)
	Update(ctx context.Context, lead leaddomain.Lead) (leaddomain.Lead, error)
}

// LeadConsumer deletes a converted lead and its history.
type LeadConsumer interface {
	Consume(ctx context.Context, lead leaddomain.Lead) error
}

// HistoryWriter replaces an entity's single history row.
type HistoryWriter interface {
	Replace(ctx context.Context, table history.Table, row history.Row) error
}

// DealUpserter is the shared deal create-or-update.
type DealUpserter interface {
	Upsert(ctx context.Context, in dealsvc.Input) (dealsvc.Result, error)
}

// ActivityRecorder writes audit entries.
type ActivityRecorder interface {
	Record(ctx context.Context, e activity.Entry)
}

// Outcomes of a lead-status event.
const (
	OutcomeConverted = "converted"
	OutcomeUpdated   = "updated"
	OutcomeUnchanged = "unchanged"
)

// PartnerResult is returned by HandlePartner.
type PartnerResult struct {
	PartnerID   uuid.UUID `json:"partnerId"`
	AdminUserID uuid.UUID `json:"adminUserId"`
	Created     bool      `json:"created"`
}

// LeadStatusResult is returned by HandleLeadStatus.
type LeadStatusResult struct {
	LeadID    uuid.UUID `json:"leadId"`
	Outcome   string    `json:"outcome"`
	OldStatus string    `json:"oldStatus"`
	NewStatus string    `json:"newStatus,omitempty"`
}

// DealResult is returned by HandleDeal.
type DealResult struct {
	DealID          uuid.UUID  `json:"dealId"`
	Created         bool       `json:"created"`
	StageChanged    bool       `json:"stageChanged"`
	Stage           string     `json:"stage"`
	ConvertedLeadID *uuid.UUID `json:"convertedLeadId,omitempty"`
}

// Service is the webhook ingestor.
type Service struct {
	partners Partners
	leads    LeadStore
	consumer LeadConsumer
	history  HistoryWriter
	deals    DealUpserter
	activity ActivityRecorder
	eventBus events.Bus
	log      *logger.Logger
	now      func() time.Time
}

// Deps groups the collaborators of the ingestor.
type Deps struct {
	Partners Partners
	Leads    LeadStore
	Consumer LeadConsumer
	History  HistoryWriter
	Deals    DealUpserter
	Activity ActivityRecorder
	EventBus events.Bus
	Logger   *logger.Logger
}

// NewService creates a new webhook ingestor.
func NewService(deps Deps) *Service {
	return &Service{
		partners: deps.Partners,
		leads:    deps.Leads,
		consumer: deps.Consumer,
		history:  deps.History,
		deals:    deps.Deals,
		activity: deps.Activity,
		eventBus: deps.EventBus,
		log:      deps.Logger,
		now:      time.Now,
	}
}

// HandlePartner provisions the partner and its first admin user. A replay
// returns the existing partner with Created=false.
func (s *Service) HandlePartner(ctx context.Context, p PartnerPayload) (PartnerResult, error) {
	res, err := s.partners.Provision(ctx, partnersvc.ProvisionInput{
		ExternalID: p.ID,
		Name:       p.VendorName,
		Email:      p.Email,
	})
	if err != nil {
		return PartnerResult{}, err
	}

	if res.Created {
		s.activity.Record(ctx, activity.Entry{
			PartnerID:   &res.Partner.ID,
			UserID:      &res.AdminUserID,
			EntityType:  activity.EntityPartner,
			EntityID:    &res.Partner.ID,
			Action:      activity.ActionPartnerProvisioned,
			Description: fmt.Sprintf("Partner %s provisioned from CRM", res.Partner.Name),
			Metadata:    map[string]any{"externalId": p.ID, "email": res.Partner.Email},
		})
	}
	return PartnerResult{PartnerID: res.Partner.ID, AdminUserID: res.AdminUserID, Created: res.Created}, nil
}

// HandleLeadStatus applies a CRM lead status change. A converted status
// deletes the lead and returns without touching its status.
func (s *Service) HandleLeadStatus(ctx context.Context, p LeadStatusPayload) (LeadStatusResult, error) {
	const op = "webhook.lead_status"
	externalID := strings.TrimSpace(p.ID)
	if externalID == "" {
		return LeadStatusResult{}, apperr.Validation("id is required").WithOp(op)
	}

	lead, err := s.leads.GetByExternalID(ctx, externalID)
	if err != nil {
		return LeadStatusResult{}, err
	}

	raw := strings.TrimSpace(p.LeadStatus)
	if mapping.IsConvertedStatus(raw) {
		return s.convertLead(ctx, lead, raw)
	}

	newStatus := mapping.ToPortalStatus(raw)
	actor := s.resolveActor(ctx, p.StrategicPartnerID, lead)

	for attempt := 1; attempt <= maxLeadAttempts; attempt++ {
		oldStatus := lead.Status
		if newStatus == oldStatus {
			return LeadStatusResult{LeadID: lead.ID, Outcome: OutcomeUnchanged, OldStatus: string(oldStatus), NewStatus: string(newStatus)}, nil
		}

		next := lead
		now := s.now().UTC()
		next.Status = newStatus
		next.ExternalStatusRaw = &raw
		next.SyncState = leaddomain.SyncSynced
		next.LastSyncAt = &now

		updated, err := s.leads.Update(ctx, next)
		if errors.Is(err, db.ErrVersionConflict) {
			if lead, err = s.leads.GetByID(ctx, lead.ID); err != nil {
				return LeadStatusResult{}, err
			}
			continue
		}
		if err != nil {
			return LeadStatusResult{}, err
		}

		old := string(oldStatus)
		if err := s.history.Replace(ctx, history.LeadStatus, history.Row{
			OwnerID:   updated.ID,
			Old:       &old,
			New:       string(newStatus),
			ChangedBy: actor,
			Notes:     fmt.Sprintf("Status updated from CRM: %s", raw),
		}); err != nil {
			s.log.WithContext(ctx).Error("failed to write lead status history", "leadId", updated.ID, "error", err)
		}

		s.activity.Record(ctx, activity.Entry{
			PartnerID:   &updated.PartnerID,
			UserID:      actor,
			EntityType:  activity.EntityLead,
			EntityID:    &updated.ID,
			Action:      activity.ActionLeadStatusChanged,
			Description: fmt.Sprintf("Lead %s moved from %s to %s", updated.FullName(), old, newStatus),
			Metadata: map[string]any{
				"externalId":     externalID,
				"oldStatus":      old,
				"newStatus":      string(newStatus),
				"externalStatus": raw,
			},
		})
		return LeadStatusResult{LeadID: updated.ID, Outcome: OutcomeUpdated, OldStatus: old, NewStatus: string(newStatus)}, nil
	}
	return LeadStatusResult{}, apperr.Conflict("lead was modified concurrently").WithOp(op)
}

func (s *Service) convertLead(ctx context.Context, lead leaddomain.Lead, raw string) (LeadStatusResult, error) {
	if err := s.consumer.Consume(ctx, lead); err != nil {
		return LeadStatusResult{}, fmt.Errorf("consume converted lead %s: %w", lead.ID, err)
	}
	metrics.RecordLeadConversion(sourceLeadWebhook)

	s.activity.Record(ctx, activity.Entry{
		PartnerID:   &lead.PartnerID,
		UserID:      lead.CreatedBy,
		EntityType:  activity.EntityLead,
		EntityID:    &lead.ID,
		Action:      activity.ActionLeadConverted,
		Description: fmt.Sprintf("Lead %s converted in CRM", lead.FullName()),
		Metadata: map[string]any{
			"leadId":         lead.ID,
			"oldStatus":      string(lead.Status),
			"externalStatus": raw,
			"source":         sourceLeadWebhook,
		},
	})
	if s.eventBus != nil {
		s.eventBus.Publish(ctx, events.LeadConverted{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    lead.ID,
			PartnerID: lead.PartnerID,
			OwnerID:   lead.CreatedBy,
			LeadName:  lead.FullName(),
			Source:    sourceLeadWebhook,
		})
	}
	return LeadStatusResult{LeadID: lead.ID, Outcome: OutcomeConverted, OldStatus: string(lead.Status)}, nil
}

// resolveActor attributes a CRM-driven change to the strategic partner's
// admin, falling back to the lead's creator.
func (s *Service) resolveActor(ctx context.Context, strategicPartnerID string, lead leaddomain.Lead) *uuid.UUID {
	if id := strings.TrimSpace(strategicPartnerID); id != "" {
		partner, err := s.partners.GetByExternalID(ctx, id)
		if err == nil {
			admin, err := s.partners.AdminUserID(ctx, partner.ID)
			if err == nil && admin != nil {
				return admin
			}
		} else if !apperr.Is(err, apperr.KindNotFound) {
			s.log.WithContext(ctx).Warn("failed to resolve strategic partner", "externalId", id, "error", err)
		}
	}
	return lead.CreatedBy
}

// HandleDeal creates or updates the deal keyed on its CRM id.
func (s *Service) HandleDeal(ctx context.Context, p DealPayload) (DealResult, error) {
	const op = "webhook.deal"
	dealID := p.DealID()
	if dealID == "" {
		return DealResult{}, apperr.Validation("zohoDealId is required").WithOp(op)
	}
	vendorID := p.PartnerExternalID()
	if vendorID == "" {
		return DealResult{}, apperr.Validation("one of Partners_Id, StrategicPartnerId or Vendor.id is required").WithOp(op)
	}

	partner, err := s.partners.GetByExternalID(ctx, vendorID)
	if err != nil {
		return DealResult{}, err
	}

	res, err := s.deals.Upsert(ctx, dealsvc.Input{
		ExternalID:   dealID,
		PartnerID:    partner.ID,
		Name:         p.DealName,
		StageRaw:     p.Stage,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		Email:        p.Email,
		Phone:        p.Phone,
		Company:      p.Company(),
		ApprovalDate: p.ApprovalTime(),
		Source:       dealsvc.SourceWebhook,
	})
	if err != nil {
		return DealResult{}, err
	}
	return DealResult{
		DealID:          res.Deal.ID,
		Created:         res.Created,
		StageChanged:    res.StageChanged,
		Stage:           string(res.Deal.Stage),
		ConvertedLeadID: res.ConvertedLeadID,
	}, nil
}
