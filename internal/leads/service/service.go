// Package service holds the portal-side lead operations: partner users
// submitting leads, changing their status and the push of those changes to
// the CRM.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"portal_usap_backend/internal/activity"
	"portal_usap_backend/internal/events"
	"portal_usap_backend/internal/history"
	"portal_usap_backend/internal/leads/domain"
	"portal_usap_backend/internal/leads/repository"
	"portal_usap_backend/platform/apperr"
	"portal_usap_backend/platform/db"
	"portal_usap_backend/platform/logger"
	"portal_usap_backend/platform/phone"

	"github.com/google/uuid"
)

const (
	leadNotFoundMsg  = "lead not found"
	maxWriteAttempts = 2
)

// Store is the lead persistence the service needs.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	ListByPartner(ctx context.Context, params repository.ListParams) ([]domain.Lead, int, error)
	Create(ctx context.Context, lead domain.Lead) (domain.Lead, error)
	Update(ctx context.Context, lead domain.Lead) (domain.Lead, error)
}

// HistoryWriter replaces a lead's single history row.
type HistoryWriter interface {
	Replace(ctx context.Context, table history.Table, row history.Row) error
}

// ActivityRecorder writes audit entries.
type ActivityRecorder interface {
	Record(ctx context.Context, e activity.Entry)
}

// CreateInput is a lead submitted by a partner user.
type CreateInput struct {
	PartnerID uuid.UUID
	UserID    uuid.UUID
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Company   string
}

type Service struct {
	repo     Store
	history  HistoryWriter
	activity ActivityRecorder
	eventBus events.Bus
	log      *logger.Logger
	now      func() time.Time
}

func New(repo Store, hist HistoryWriter, rec ActivityRecorder, eventBus events.Bus, log *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		history:  hist,
		activity: rec,
		eventBus: eventBus,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a portal lead as pending and announces it so the CRM push runs.
func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Lead, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.FirstName == "" || in.LastName == "" || in.Email == "" {
		return domain.Lead{}, apperr.Validation("firstName, lastName and email are required").WithOp("leads.create")
	}

	createdBy := in.UserID
	lead, err := s.repo.Create(ctx, domain.Lead{
		PartnerID: in.PartnerID,
		CreatedBy: &createdBy,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Phone:     phone.NormalizeE164(in.Phone),
		Company:   strings.TrimSpace(in.Company),
		Status:    domain.StatusNew,
		SyncState: domain.SyncPending,
	})
	if err != nil {
		return domain.Lead{}, err
	}

	if err := s.history.Replace(ctx, history.LeadStatus, history.Row{
		OwnerID:   lead.ID,
		New:       string(lead.Status),
		ChangedBy: &createdBy,
		Notes:     "Submitted in portal",
	}); err != nil {
		s.log.Warn("failed to write lead history", "leadId", lead.ID, "error", err)
	}

	s.activity.Record(ctx, activity.Entry{
		PartnerID:   &lead.PartnerID,
		UserID:      &createdBy,
		EntityType:  activity.EntityLead,
		EntityID:    &lead.ID,
		Action:      activity.ActionLeadCreated,
		Description: "Lead " + lead.FullName() + " submitted in portal",
		Metadata:    map[string]any{"source": "portal"},
	})

	s.eventBus.Publish(ctx, events.LeadSubmitted{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		PartnerID: lead.PartnerID,
	})
	return lead, nil
}

// UpdateStatus changes a lead's portal status. partnerID scopes the lookup; nil
// means an operator. An unchanged status is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, partnerID *uuid.UUID, userID uuid.UUID, status domain.Status) (domain.Lead, error) {
	const op = "leads.update_status"
	if !domain.IsKnownStatus(status) {
		return domain.Lead{}, apperr.Validation("unknown lead status").WithOp(op)
	}

	for attempt := 1; ; attempt++ {
		current, err := s.Get(ctx, id, partnerID)
		if err != nil {
			return domain.Lead{}, err
		}
		if current.Status == status {
			return current, nil
		}

		oldStatus := current.Status
		next := current
		next.Status = status
		next.SyncState = domain.SyncPending

		updated, err := s.repo.Update(ctx, next)
		if errors.Is(err, db.ErrVersionConflict) {
			if attempt < maxWriteAttempts {
				continue
			}
			return domain.Lead{}, apperr.Wrap(apperr.KindConflict, "lead was modified concurrently", err).WithOp(op)
		}
		if err != nil {
			return domain.Lead{}, err
		}

		s.recordStatusChange(ctx, updated, oldStatus, userID)
		return updated, nil
	}
}

func (s *Service) recordStatusChange(ctx context.Context, lead domain.Lead, oldStatus domain.Status, userID uuid.UUID) {
	old := string(oldStatus)
	if err := s.history.Replace(ctx, history.LeadStatus, history.Row{
		OwnerID:   lead.ID,
		Old:       &old,
		New:       string(lead.Status),
		ChangedBy: &userID,
		Notes:     "Changed in portal",
	}); err != nil {
		s.log.Warn("failed to write lead history", "leadId", lead.ID, "error", err)
	}

	s.activity.Record(ctx, activity.Entry{
		PartnerID:   &lead.PartnerID,
		UserID:      &userID,
		EntityType:  activity.EntityLead,
		EntityID:    &lead.ID,
		Action:      activity.ActionLeadStatusChanged,
		Description: "Status changed from " + old + " to " + string(lead.Status),
		Metadata:    map[string]any{"oldStatus": old, "newStatus": string(lead.Status), "source": "portal"},
	})

	s.eventBus.Publish(ctx, events.LeadStatusChangedByPortal{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		PartnerID: lead.PartnerID,
		OldStatus: old,
		NewStatus: string(lead.Status),
		ChangedBy: userID,
	})
}

// Get returns a lead visible to partnerID. A nil partnerID sees every partner.
func (s *Service) Get(ctx context.Context, id uuid.UUID, partnerID *uuid.UUID) (domain.Lead, error) {
	lead, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Lead{}, err
	}
	if partnerID != nil && lead.PartnerID != *partnerID {
		return domain.Lead{}, apperr.NotFound(leadNotFoundMsg).WithOp("leads.get")
	}
	return lead, nil
}

// List returns one page of a partner's leads.
func (s *Service) List(ctx context.Context, params repository.ListParams) ([]domain.Lead, int, error) {
	return s.repo.ListByPartner(ctx, params)
}
