package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"portal_usap_backend/internal/activity"
	"portal_usap_backend/internal/crm"
	"portal_usap_backend/internal/crm/mapping"
	"portal_usap_backend/internal/history"
	leaddomain "portal_usap_backend/internal/leads/domain"
	partnerrepo "portal_usap_backend/internal/partners/repository"
	"portal_usap_backend/platform/apperr"
	"portal_usap_backend/platform/db"
	"portal_usap_backend/platform/metrics"
	"portal_usap_backend/platform/phone"
	"portal_usap_backend/platform/sanitize"

	"github.com/google/uuid"
)

const maxLeadAttempts = 2

type leadOutcome int

const (
	leadSkipped leadOutcome = iota
	leadCreated
	leadUpdated
	leadRemoved
)

var errMalformed = errors.New("missing required fields")

func (r *Reconciler) syncLeads(ctx context.Context, p partnerrepo.Partner, admin *uuid.UUID, raws []crm.RawLead) EntityResult {
	res := EntityResult{Total: len(raws)}
	for _, raw := range raws {
		outcome, err := r.syncLead(ctx, p, admin, raw)
		switch {
		case errors.Is(err, errMalformed):
			res.Skipped++
		case err != nil:
			res.Skipped++
			res.Errors = append(res.Errors, fmt.Sprintf("lead %s: %v", raw.ID, err))
		case outcome == leadCreated:
			res.Created++
		case outcome == leadUpdated:
			res.Updated++
		case outcome == leadRemoved:
			res.Updated++
			res.Removed++
		default:
			res.Skipped++
		}
	}
	return res
}

// syncLead mirrors one CRM lead. Lookup cascades from the CRM id to the
// partner-scoped email; a lead found by email gets its CRM id backfilled.
func (r *Reconciler) syncLead(ctx context.Context, p partnerrepo.Partner, admin *uuid.UUID, raw crm.RawLead) (leadOutcome, error) {
	externalID := strings.TrimSpace(raw.ID)
	email := sanitize.Email(raw.Email)
	first := sanitize.Text(raw.FirstName)
	last := sanitize.Text(raw.LastName)
	if externalID == "" || email == "" || first == "" || last == "" {
		r.Logger.WithContext(ctx).Debug("sync: skipping malformed lead", "externalId", externalID, "partnerId", p.ID)
		return leadSkipped, errMalformed
	}

	existing, found, err := r.findLead(ctx, p.ID, externalID, email)
	if err != nil {
		return leadSkipped, err
	}

	rawStatus := strings.TrimSpace(raw.LeadStatus)
	if mapping.IsConvertedStatus(rawStatus) {
		if !found {
			r.Logger.WithContext(ctx).Debug("sync: skipping converted lead unknown locally", "externalId", externalID, "partnerId", p.ID)
			return leadSkipped, nil
		}
		if err := r.Consumer.Consume(ctx, existing); err != nil {
			return leadSkipped, fmt.Errorf("delete converted lead: %w", err)
		}
		metrics.RecordLeadConversion("sync")
		r.Activity.Record(ctx, activity.Entry{
			PartnerID:   &p.ID,
			UserID:      existing.CreatedBy,
			EntityType:  activity.EntityLead,
			EntityID:    &existing.ID,
			Action:      activity.ActionLeadConverted,
			Description: fmt.Sprintf("Lead %s converted in CRM", existing.FullName()),
			Metadata: map[string]any{
				"leadId":         existing.ID,
				"oldStatus":      string(existing.Status),
				"externalStatus": rawStatus,
				"source":         "sync",
			},
		})
		return leadRemoved, nil
	}

	if !found {
		return r.createLead(ctx, p, admin, raw, externalID, email, first, last)
	}

	for attempt := 1; attempt <= maxLeadAttempts; attempt++ {
		updated, oldStatus, err := r.updateLead(ctx, existing, raw, externalID, email, first, last)
		if errors.Is(err, db.ErrVersionConflict) {
			if existing, err = r.Leads.GetByID(ctx, existing.ID); err != nil {
				return leadSkipped, err
			}
			continue
		}
		if err != nil {
			return leadSkipped, err
		}
		if oldStatus != updated.Status {
			r.writeStatusHistory(ctx, updated, &oldStatus, admin, "Status synced from CRM: "+rawStatus)
			old := string(oldStatus)
			r.Activity.Record(ctx, activity.Entry{
				PartnerID:   &p.ID,
				UserID:      admin,
				EntityType:  activity.EntityLead,
				EntityID:    &updated.ID,
				Action:      activity.ActionLeadStatusChanged,
				Description: fmt.Sprintf("Lead %s moved from %s to %s", updated.FullName(), old, updated.Status),
				Metadata: map[string]any{
					"externalId":     externalID,
					"oldStatus":      old,
					"newStatus":      string(updated.Status),
					"externalStatus": rawStatus,
					"source":         "sync",
				},
			})
		}
		return leadUpdated, nil
	}
	return leadSkipped, apperr.Conflict("lead was modified concurrently")
}

func (r *Reconciler) findLead(ctx context.Context, partnerID uuid.UUID, externalID, email string) (leaddomain.Lead, bool, error) {
	lead, err := r.Leads.GetByExternalID(ctx, externalID)
	if err == nil {
		return lead, true, nil
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return leaddomain.Lead{}, false, err
	}
	lead, err = r.Leads.FindByEmail(ctx, partnerID, email)
	if err == nil {
		return lead, true, nil
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return leaddomain.Lead{}, false, err
	}
	return leaddomain.Lead{}, false, nil
}

func (r *Reconciler) createLead(ctx context.Context, p partnerrepo.Partner, admin *uuid.UUID, raw crm.RawLead, externalID, email, first, last string) (leadOutcome, error) {
	now := r.now().UTC()
	rawStatus := strings.TrimSpace(raw.LeadStatus)
	lead := leaddomain.Lead{
		ExternalID: &externalID,
		PartnerID:  p.ID,
		CreatedBy:  admin,
		FirstName:  first,
		LastName:   last,
		Email:      email,
		Phone:      phone.NormalizeE164(raw.Phone),
		Company:    sanitize.Text(raw.Company),
		Status:     mapping.ToPortalStatus(rawStatus),
		SyncState:  leaddomain.SyncSynced,
		LastSyncAt: &now,
	}
	if rawStatus != "" {
		lead.ExternalStatusRaw = &rawStatus
	}

	created, err := r.Leads.Create(ctx, lead)
	if err != nil {
		return leadSkipped, err
	}
	r.writeStatusHistory(ctx, created, nil, admin, "Imported from CRM")
	r.Activity.Record(ctx, activity.Entry{
		PartnerID:   &p.ID,
		UserID:      admin,
		EntityType:  activity.EntityLead,
		EntityID:    &created.ID,
		Action:      activity.ActionLeadCreated,
		Description: fmt.Sprintf("Lead %s imported from CRM", created.FullName()),
		Metadata:    map[string]any{"externalId": externalID, "source": "sync"},
	})
	return leadCreated, nil
}

// updateLead mirrors every CRM field onto existing and returns the prior status.
func (r *Reconciler) updateLead(ctx context.Context, existing leaddomain.Lead, raw crm.RawLead, externalID, email, first, last string) (leaddomain.Lead, leaddomain.Status, error) {
	now := r.now().UTC()
	rawStatus := strings.TrimSpace(raw.LeadStatus)

	next := existing
	if !next.HasExternalID() {
		next.ExternalID = &externalID
	}
	next.FirstName = first
	next.LastName = last
	next.Email = email
	if v := phone.NormalizeE164(raw.Phone); v != "" {
		next.Phone = v
	}
	if v := sanitize.Text(raw.Company); v != "" {
		next.Company = v
	}
	next.Status = mapping.ToPortalStatus(rawStatus)
	if rawStatus != "" {
		next.ExternalStatusRaw = &rawStatus
	}
	next.SyncState = leaddomain.SyncSynced
	next.LastSyncAt = &now

	updated, err := r.Leads.Update(ctx, next)
	return updated, existing.Status, err
}

func (r *Reconciler) writeStatusHistory(ctx context.Context, lead leaddomain.Lead, old *leaddomain.Status, changedBy *uuid.UUID, notes string) {
	var oldValue *string
	if old != nil {
		v := string(*old)
		oldValue = &v
	}
	if err := r.History.Replace(ctx, history.LeadStatus, history.Row{
		OwnerID:   lead.ID,
		Old:       oldValue,
		New:       string(lead.Status),
		ChangedBy: changedBy,
		Notes:     notes,
	}); err != nil {
		r.Logger.WithContext(ctx).Error("sync: failed to write lead status history", "leadId", lead.ID, "error", err)
	}
}
