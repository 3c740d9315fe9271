// Package service holds the deal upsert shared by webhooks and reconciliation.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"portal_usap_backend/internal/activity"
	"portal_usap_backend/internal/conversion"
	"portal_usap_backend/internal/crm/mapping"
	"portal_usap_backend/internal/deals/domain"
	"portal_usap_backend/internal/events"
	"portal_usap_backend/internal/history"
	leaddomain "portal_usap_backend/internal/leads/domain"
	"portal_usap_backend/platform/apperr"
	"portal_usap_backend/platform/db"
	"portal_usap_backend/platform/logger"
	"portal_usap_backend/platform/metrics"
	"portal_usap_backend/platform/phone"
	"portal_usap_backend/platform/sanitize"

	"github.com/google/uuid"
)

// Sources label where an upsert came from.
const (
	SourceWebhook = "webhook_deal"
	SourceSync    = "sync"
)

const maxUpsertAttempts = 2

// DealStore is the deal persistence capability.
type DealStore interface {
	GetByExternalID(ctx context.Context, externalID string) (domain.Deal, error)
	Create(ctx context.Context, deal domain.Deal) (domain.Deal, error)
	Update(ctx context.Context, deal domain.Deal) (domain.Deal, error)
}

// LeadMatcher finds and consumes the lead a deal was converted from.
type LeadMatcher interface {
	Find(ctx context.Context, c conversion.Candidate) (*conversion.Match, error)
	Consume(ctx context.Context, lead leaddomain.Lead) error
}

// OwnerResolver returns a partner's designated admin user, nil if none.
type OwnerResolver interface {
	AdminUserID(ctx context.Context, partnerID uuid.UUID) (*uuid.UUID, error)
}

// HistoryWriter replaces an entity's single history row.
type HistoryWriter interface {
	Replace(ctx context.Context, table history.Table, row history.Row) error
}

// ActivityRecorder writes audit entries.
type ActivityRecorder interface {
	Record(ctx context.Context, e activity.Entry)
}

// Input is a deal as the CRM describes it. Empty contact fields never
// overwrite stored values.
type Input struct {
	ExternalID   string
	PartnerID    uuid.UUID
	Name         string
	StageRaw     string
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	Company      string
	ApprovalDate *time.Time
	Source       string
}

// Result reports what Upsert did.
type Result struct {
	Deal            domain.Deal
	Created         bool
	Changed         bool
	StageChanged    bool
	ConvertedLeadID *uuid.UUID
	MatchStrategy   conversion.Strategy
}

// Upserter creates or updates deals keyed on their CRM id.
type Upserter struct {
	deals    DealStore
	matcher  LeadMatcher
	owners   OwnerResolver
	history  HistoryWriter
	activity ActivityRecorder
	bus      events.Bus
	log      *logger.Logger
	now      func() time.Time
}

// NewUpserter wires an upserter.
func NewUpserter(deals DealStore, matcher LeadMatcher, owners OwnerResolver, hist HistoryWriter, rec ActivityRecorder, bus events.Bus, log *logger.Logger) *Upserter {
	return &Upserter{
		deals:    deals,
		matcher:  matcher,
		owners:   owners,
		history:  hist,
		activity: rec,
		bus:      bus,
		log:      log,
		now:      time.Now,
	}
}

// Upsert applies in. Conversion matching runs on create and, for deals that
// have no provenance yet, on every update. A stale write is retried once.
func (u *Upserter) Upsert(ctx context.Context, in Input) (Result, error) {
	const op = "deals.upsert"
	in.ExternalID = strings.TrimSpace(in.ExternalID)
	if in.ExternalID == "" {
		return Result{}, apperr.Validation("deal external id is required").WithOp(op)
	}
	if in.PartnerID == uuid.Nil {
		return Result{}, apperr.Validation("deal partner is required").WithOp(op)
	}
	in.Name = sanitize.Text(in.Name)
	in.FirstName = sanitize.Text(in.FirstName)
	in.LastName = sanitize.Text(in.LastName)
	in.Email = sanitize.Email(in.Email)
	in.Company = sanitize.Text(in.Company)
	in.Phone = phone.NormalizeE164(in.Phone)
	if in.Name == "" {
		in.Name = strings.TrimSpace(in.FirstName + " " + in.LastName)
	}

	var lastErr error
	for attempt := 1; attempt <= maxUpsertAttempts; attempt++ {
		existing, err := u.deals.GetByExternalID(ctx, in.ExternalID)
		switch {
		case err == nil:
			res, err := u.update(ctx, existing, in)
			if errors.Is(err, db.ErrVersionConflict) {
				lastErr = err
				continue
			}
			return res, err
		case apperr.Is(err, apperr.KindNotFound):
			res, err := u.create(ctx, in)
			if apperr.Is(err, apperr.KindConflict) {
				lastErr = err
				continue
			}
			return res, err
		default:
			return Result{}, fmt.Errorf("load deal %s: %w", in.ExternalID, err)
		}
	}
	return Result{}, apperr.Wrap(apperr.KindConflict, "deal was modified concurrently", lastErr).WithOp(op)
}

func (u *Upserter) create(ctx context.Context, in Input) (Result, error) {
	match, err := u.matcher.Find(ctx, candidateFrom(in))
	if err != nil {
		return Result{}, err
	}

	owner := u.resolveOwner(ctx, in.PartnerID, match)
	stage := mapping.ToPortalStage(in.StageRaw)
	now := u.now().UTC()

	deal := domain.Deal{
		ExternalID:   in.ExternalID,
		PartnerID:    in.PartnerID,
		CreatedBy:    owner,
		Name:         in.Name,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        in.Email,
		Phone:        in.Phone,
		Company:      in.Company,
		Stage:        stage,
		ApprovalDate: in.ApprovalDate,
		LastSyncAt:   &now,
	}
	if raw := strings.TrimSpace(in.StageRaw); raw != "" {
		deal.ExternalStageRaw = &raw
	}
	if match != nil {
		leadID := match.Lead.ID
		deal.ConvertedFromLeadID = &leadID
		fillContactFromLead(&deal, match.Lead)
	}

	created, err := u.deals.Create(ctx, deal)
	if err != nil {
		return Result{}, err
	}

	notes := "Deal created"
	if match != nil {
		notes = fmt.Sprintf("Converted from lead %s (matched by %s)", match.Lead.FullName(), match.Strategy)
	}
	u.replaceHistory(ctx, created, nil, notes, owner)

	result := Result{Deal: created, Created: true, Changed: true, StageChanged: true}
	if match != nil {
		u.consume(ctx, created, *match, in.Source)
		result.ConvertedLeadID = created.ConvertedFromLeadID
		result.MatchStrategy = match.Strategy
	}

	u.activity.Record(ctx, activity.Entry{
		PartnerID:   &created.PartnerID,
		UserID:      owner,
		EntityType:  activity.EntityDeal,
		EntityID:    &created.ID,
		Action:      activity.ActionDealCreated,
		Description: fmt.Sprintf("Deal %s created from CRM", created.Name),
		Metadata: map[string]any{
			"externalId":          created.ExternalID,
			"stage":               string(created.Stage),
			"externalStage":       in.StageRaw,
			"source":              in.Source,
			"convertedFromLeadId": created.ConvertedFromLeadID,
		},
	})
	u.publishStage(ctx, created, "")
	return result, nil
}

func (u *Upserter) update(ctx context.Context, existing domain.Deal, in Input) (Result, error) {
	next := existing
	next.PartnerID = in.PartnerID
	setIfPresent(&next.Name, in.Name)
	setIfPresent(&next.FirstName, in.FirstName)
	setIfPresent(&next.LastName, in.LastName)
	setIfPresent(&next.Email, in.Email)
	setIfPresent(&next.Phone, in.Phone)
	setIfPresent(&next.Company, in.Company)
	if in.ApprovalDate != nil {
		next.ApprovalDate = in.ApprovalDate
	}
	if raw := strings.TrimSpace(in.StageRaw); raw != "" {
		next.ExternalStageRaw = &raw
		next.Stage = mapping.ToPortalStage(raw)
	}

	var match *conversion.Match
	if !existing.IsConverted() {
		m, err := u.matcher.Find(ctx, candidateFrom(in))
		if err != nil {
			return Result{}, err
		}
		if m != nil {
			match = m
			leadID := m.Lead.ID
			next.ConvertedFromLeadID = &leadID
			if m.Lead.CreatedBy != nil {
				next.CreatedBy = m.Lead.CreatedBy
			}
			fillContactFromLead(&next, m.Lead)
		}
	}
	if next.CreatedBy == nil {
		next.CreatedBy = u.resolveOwner(ctx, next.PartnerID, nil)
	}

	changed := dealChanged(existing, next)
	now := u.now().UTC()
	next.LastSyncAt = &now

	updated, err := u.deals.Update(ctx, next)
	if err != nil {
		return Result{}, err
	}

	result := Result{Deal: updated, Changed: changed}
	if existing.Stage != updated.Stage {
		result.StageChanged = true
		old := string(existing.Stage)
		notes := fmt.Sprintf("Stage changed from %s to %s", existing.Stage, updated.Stage)
		u.replaceHistory(ctx, updated, &old, notes, updated.CreatedBy)
		u.activity.Record(ctx, activity.Entry{
			PartnerID:   &updated.PartnerID,
			UserID:      updated.CreatedBy,
			EntityType:  activity.EntityDeal,
			EntityID:    &updated.ID,
			Action:      activity.ActionDealStageChanged,
			Description: notes,
			Metadata: map[string]any{
				"externalId":    updated.ExternalID,
				"oldStage":      old,
				"newStage":      string(updated.Stage),
				"externalStage": in.StageRaw,
				"source":        in.Source,
			},
		})
		u.publishStage(ctx, updated, old)
	} else if changed {
		u.activity.Record(ctx, activity.Entry{
			PartnerID:   &updated.PartnerID,
			UserID:      updated.CreatedBy,
			EntityType:  activity.EntityDeal,
			EntityID:    &updated.ID,
			Action:      activity.ActionDealUpdated,
			Description: fmt.Sprintf("Deal %s updated from CRM", updated.Name),
			Metadata:    map[string]any{"externalId": updated.ExternalID, "source": in.Source},
		})
	}

	if match != nil {
		u.consume(ctx, updated, *match, in.Source)
		result.ConvertedLeadID = updated.ConvertedFromLeadID
		result.MatchStrategy = match.Strategy
	}
	return result, nil
}

// consume deletes the matched lead. Failure is recorded, never returned: the
// deal already exists and the lead can be cleaned up by the next sync.
func (u *Upserter) consume(ctx context.Context, deal domain.Deal, match conversion.Match, source string) {
	lead := match.Lead
	if err := u.matcher.Consume(ctx, lead); err != nil {
		u.log.WithContext(ctx).Error("failed to delete converted lead",
			"leadId", lead.ID, "dealId", deal.ID, "error", err)
		u.activity.Record(ctx, activity.Entry{
			PartnerID:   &deal.PartnerID,
			EntityType:  activity.EntityLead,
			EntityID:    &lead.ID,
			Action:      activity.ActionLeadDeleteFailed,
			Description: fmt.Sprintf("Lead %s matched deal %s but could not be deleted", lead.FullName(), deal.Name),
			Metadata: map[string]any{
				"dealId":   deal.ID,
				"strategy": string(match.Strategy),
				"error":    err.Error(),
			},
		})
		return
	}

	metrics.RecordLeadConversion(source)
	u.activity.Record(ctx, activity.Entry{
		PartnerID:   &deal.PartnerID,
		UserID:      lead.CreatedBy,
		EntityType:  activity.EntityLead,
		EntityID:    &lead.ID,
		Action:      activity.ActionLeadConverted,
		Description: fmt.Sprintf("Lead %s converted to deal %s", lead.FullName(), deal.Name),
		Metadata: map[string]any{
			"leadId":         lead.ID,
			"dealId":         deal.ID,
			"dealExternalId": deal.ExternalID,
			"strategy":       string(match.Strategy),
			"leadStatus":     string(lead.Status),
			"source":         source,
		},
	})
	if u.bus != nil {
		dealID := deal.ID
		u.bus.Publish(ctx, events.LeadConverted{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    lead.ID,
			DealID:    &dealID,
			PartnerID: deal.PartnerID,
			OwnerID:   deal.CreatedBy,
			LeadName:  lead.FullName(),
			DealName:  deal.Name,
			Source:    source,
		})
	}
}

// resolveOwner picks the converted lead's creator, then the partner admin.
// No owner is allowed but recorded.
func (u *Upserter) resolveOwner(ctx context.Context, partnerID uuid.UUID, match *conversion.Match) *uuid.UUID {
	if match != nil && match.Lead.CreatedBy != nil {
		return match.Lead.CreatedBy
	}
	admin, err := u.owners.AdminUserID(ctx, partnerID)
	if err != nil {
		u.log.WithContext(ctx).Warn("failed to resolve partner admin", "partnerId", partnerID, "error", err)
		return nil
	}
	if admin == nil {
		u.log.WithContext(ctx).Warn("deal has no owner: partner has no admin user", "partnerId", partnerID)
		u.activity.Record(ctx, activity.Entry{
			PartnerID:   &partnerID,
			EntityType:  activity.EntityDeal,
			Action:      activity.ActionOwnerUnresolved,
			Description: "Deal owner could not be resolved",
		})
	}
	return admin
}

func (u *Upserter) replaceHistory(ctx context.Context, deal domain.Deal, old *string, notes string, changedBy *uuid.UUID) {
	err := u.history.Replace(ctx, history.DealStage, history.Row{
		OwnerID:   deal.ID,
		Old:       old,
		New:       string(deal.Stage),
		ChangedBy: changedBy,
		Notes:     notes,
	})
	if err != nil {
		u.log.WithContext(ctx).Error("failed to write deal stage history", "dealId", deal.ID, "error", err)
	}
}

func (u *Upserter) publishStage(ctx context.Context, deal domain.Deal, oldStage string) {
	if u.bus == nil {
		return
	}
	u.bus.Publish(ctx, events.DealStageChanged{
		BaseEvent: events.NewBaseEvent(),
		DealID:    deal.ID,
		PartnerID: deal.PartnerID,
		OwnerID:   deal.CreatedBy,
		DealName:  deal.Name,
		OldStage:  oldStage,
		NewStage:  string(deal.Stage),
	})
}

func candidateFrom(in Input) conversion.Candidate {
	return conversion.Candidate{
		PartnerID: in.PartnerID,
		Email:     in.Email,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Company:   in.Company,
	}
}

func fillContactFromLead(deal *domain.Deal, lead leaddomain.Lead) {
	setIfEmpty(&deal.FirstName, lead.FirstName)
	setIfEmpty(&deal.LastName, lead.LastName)
	setIfEmpty(&deal.Email, lead.Email)
	setIfEmpty(&deal.Phone, lead.Phone)
	setIfEmpty(&deal.Company, lead.Company)
}

func setIfPresent(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setIfEmpty(dst *string, v string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = v
	}
}

func dealChanged(a, b domain.Deal) bool {
	return a.Name != b.Name ||
		a.FirstName != b.FirstName ||
		a.LastName != b.LastName ||
		a.Email != b.Email ||
		a.Phone != b.Phone ||
		a.Company != b.Company ||
		a.Stage != b.Stage ||
		a.PartnerID != b.PartnerID ||
		!sameUUID(a.CreatedBy, b.CreatedBy) ||
		!sameUUID(a.ConvertedFromLeadID, b.ConvertedFromLeadID) ||
		!sameTime(a.ApprovalDate, b.ApprovalDate)
}

func sameUUID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
