package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"portal_usap_backend/internal/activity"
	"portal_usap_backend/internal/crm"
	"portal_usap_backend/internal/crm/mapping"
	"portal_usap_backend/internal/leads/domain"
	partnerrepo "portal_usap_backend/internal/partners/repository"
	"portal_usap_backend/platform/apperr"
	"portal_usap_backend/platform/db"
	"portal_usap_backend/platform/logger"

	"github.com/google/uuid"
)

// CRMWriter is the part of the CRM client the push needs.
type CRMWriter interface {
	CreateLead(ctx context.Context, in crm.LeadInput) (string, error)
	UpdateLead(ctx context.Context, id string, in crm.LeadInput) error
}

// PartnerReader resolves the lead's partner to its CRM id.
type PartnerReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (partnerrepo.Partner, error)
}

// Pusher writes portal leads to the CRM and records the outcome on the lead.
type Pusher struct {
	repo     Store
	crm      CRMWriter
	partners PartnerReader
	activity ActivityRecorder
	log      *logger.Logger
	now      func() time.Time
}

func NewPusher(repo Store, client CRMWriter, partners PartnerReader, rec ActivityRecorder, log *logger.Logger) *Pusher {
	return &Pusher{
		repo:     repo,
		crm:      client,
		partners: partners,
		activity: rec,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Push creates the CRM lead, or updates it once the lead carries an external
// id. A CRM failure leaves the lead in SyncError and is returned so the task
// can be retried. A lead converted in the meantime returns NotFound.
func (p *Pusher) Push(ctx context.Context, leadID uuid.UUID) error {
	lead, err := p.repo.GetByID(ctx, leadID)
	if err != nil {
		return err
	}

	partner, err := p.partners.GetByID(ctx, lead.PartnerID)
	if err != nil {
		return err
	}
	if partner.ExternalID == nil || *partner.ExternalID == "" {
		// Nothing to push against until the partner is linked; retrying would not help.
		p.log.Warn("lead push skipped: partner has no CRM id", "leadId", lead.ID, "partnerId", partner.ID)
		p.markError(ctx, lead)
		return nil
	}

	input := crm.LeadInput{
		FirstName:          lead.FirstName,
		LastName:           lead.LastName,
		Email:              lead.Email,
		Phone:              lead.Phone,
		Company:            lead.Company,
		LeadStatus:         mapping.ToExternalStatus(lead.Status),
		StrategicPartnerID: *partner.ExternalID,
	}

	externalID := ""
	if lead.HasExternalID() {
		externalID = *lead.ExternalID
		err = p.crm.UpdateLead(ctx, externalID, input)
	} else {
		externalID, err = p.crm.CreateLead(ctx, input)
	}
	if err != nil {
		p.markError(ctx, lead)
		return fmt.Errorf("push lead %s: %w", lead.ID, err)
	}

	updated, err := p.markSynced(ctx, lead.ID, externalID, input.LeadStatus)
	if err != nil {
		return err
	}

	p.activity.Record(ctx, activity.Entry{
		PartnerID:   &updated.PartnerID,
		EntityType:  activity.EntityLead,
		EntityID:    &updated.ID,
		Action:      activity.ActionLeadPushed,
		Description: "Lead " + updated.FullName() + " pushed to CRM",
		Metadata:    map[string]any{"externalId": externalID, "externalStatus": input.LeadStatus},
	})
	return nil
}

// markSynced re-reads the lead on a version conflict so a concurrent webhook
// or sync write is not overwritten.
func (p *Pusher) markSynced(ctx context.Context, leadID uuid.UUID, externalID, externalStatus string) (domain.Lead, error) {
	for attempt := 1; ; attempt++ {
		lead, err := p.repo.GetByID(ctx, leadID)
		if err != nil {
			return domain.Lead{}, err
		}
		if !lead.HasExternalID() {
			lead.ExternalID = &externalID
		}
		now := p.now()
		lead.ExternalStatusRaw = &externalStatus
		lead.SyncState = domain.SyncSynced
		lead.LastSyncAt = &now

		updated, err := p.repo.Update(ctx, lead)
		if errors.Is(err, db.ErrVersionConflict) && attempt < maxWriteAttempts {
			continue
		}
		if errors.Is(err, db.ErrVersionConflict) {
			return domain.Lead{}, apperr.Wrap(apperr.KindConflict, "lead was modified concurrently", err).WithOp("leads.push")
		}
		return updated, err
	}
}

func (p *Pusher) markError(ctx context.Context, lead domain.Lead) {
	if lead.SyncState == domain.SyncError {
		return
	}
	lead.SyncState = domain.SyncError
	if _, err := p.repo.Update(ctx, lead); err != nil {
		p.log.Warn("failed to mark lead sync error", "leadId", lead.ID, "error", err)
	}
}
