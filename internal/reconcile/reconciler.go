// Package reconcile mirrors every approved, CRM-linked partner's leads and
// deals from the CRM into local storage. Runs never overlap, one partner's
// failure never stops the others and malformed records are skipped.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"portal_usap_backend/internal/activity"
	"portal_usap_backend/internal/crm"
	dealsvc "portal_usap_backend/internal/deals/service"
	"portal_usap_backend/internal/events"
	"portal_usap_backend/internal/history"
	leaddomain "portal_usap_backend/internal/leads/domain"
	partnerrepo "portal_usap_backend/internal/partners/repository"
	"portal_usap_backend/platform/apperr"
	"portal_usap_backend/platform/logger"
	"portal_usap_backend/platform/metrics"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPartnerDelay   = time.Second
	defaultPartnerTimeout = 2 * time.Minute
)

// Partners lists and resolves sync units.
type Partners interface {
	ListSyncable(ctx context.Context) ([]partnerrepo.Partner, error)
	GetByID(ctx context.Context, id uuid.UUID) (partnerrepo.Partner, error)
	AdminUserID(ctx context.Context, partnerID uuid.UUID) (*uuid.UUID, error)
}

// CRM fetches a partner's full record sets.
type CRM interface {
	SearchLeadsByPartner(ctx context.Context, partnerExternalID string) ([]crm.RawLead, error)
	SearchDealsByPartner(ctx context.Context, partnerExternalID string) ([]crm.RawDeal, error)
}

// LeadStore is the lead persistence the reconciler writes through.
type LeadStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (leaddomain.Lead, error)
	GetByExternalID(ctx context.Context, externalID string) (leaddomain.Lead, error)
	FindByEmail(ctx context.Context, partnerID uuid.UUID, email string) (leaddomain.Lead, error)
	Create(ctx context.Context, lead leaddomain.Lead) (leaddomain.Lead, error)
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

// Locker guards against overlapping runs. Acquire fails with an apperr
// Conflict when a run is already in flight.
type Locker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// LockExtender is implemented by locks that expire. The reconciler renews the
// hold before every partner after the first.
type LockExtender interface {
	Extend(ctx context.Context) error
}

// StatusRecorder keeps the last run summary.
type StatusRecorder interface {
	Save(ctx context.Context, result RunResult) error
}

// Archiver stores the full report of a run.
type Archiver interface {
	Archive(ctx context.Context, result RunResult) error
}

// Options tune pacing.
type Options struct {
	// PartnerDelay is the pause between partners to stay under CRM rate limits.
	PartnerDelay time.Duration
	// PartnerTimeout bounds one partner's reconciliation.
	PartnerTimeout time.Duration
}

// Deps groups the reconciler's collaborators. Status, Archive and EventBus
// are optional.
type Deps struct {
	Partners Partners
	CRM      CRM
	Leads    LeadStore
	Consumer LeadConsumer
	History  HistoryWriter
	Deals    DealUpserter
	Activity ActivityRecorder
	Lock     Locker
	Status   StatusRecorder
	Archive  Archiver
	EventBus events.Bus
	Logger   *logger.Logger
}

// Reconciler runs full and single-partner reconciliation.
type Reconciler struct {
	Deps
	opts  Options
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a reconciler.
func New(deps Deps, opts Options) *Reconciler {
	if opts.PartnerDelay < 0 {
		opts.PartnerDelay = 0
	} else if opts.PartnerDelay == 0 {
		opts.PartnerDelay = defaultPartnerDelay
	}
	if opts.PartnerTimeout <= 0 {
		opts.PartnerTimeout = defaultPartnerTimeout
	}
	return &Reconciler{Deps: deps, opts: opts, now: time.Now, sleep: sleepCtx}
}

// RunAll reconciles every syncable partner in sequence. The only error is a
// run already being in flight; everything else is reported in the result.
func (r *Reconciler) RunAll(ctx context.Context, trigger string) (RunResult, error) {
	release, err := r.Lock.Acquire(ctx)
	if err != nil {
		return RunResult{}, err
	}
	defer release()

	result := r.start(trigger)
	partners, err := r.Partners.ListSyncable(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list partners: %v", err))
		return r.complete(ctx, result), nil
	}

	for i, p := range partners {
		if i > 0 {
			if err := r.sleep(ctx, r.opts.PartnerDelay); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("run cancelled before partner %s: %v", p.Name, err))
				break
			}
			if err := r.extendLock(ctx); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("run stopped before partner %s: %v", p.Name, err))
				break
			}
		}
		pr := r.syncPartner(ctx, p)
		if pr.Failed() {
			for _, e := range pr.Errors {
				result.Errors = append(result.Errors, fmt.Sprintf("partner %s: %s", p.Name, e))
			}
		}
		result.Partners = append(result.Partners, pr)
	}
	return r.complete(ctx, result), nil
}

// RunPartner reconciles a single partner under the same run lock.
func (r *Reconciler) RunPartner(ctx context.Context, partnerID uuid.UUID) (RunResult, error) {
	partner, err := r.Partners.GetByID(ctx, partnerID)
	if err != nil {
		return RunResult{}, err
	}
	if !partner.Approved {
		return RunResult{}, apperr.Forbidden("partner is not approved").WithOp("reconcile.run_partner")
	}
	release, err := r.Lock.Acquire(ctx)
	if err != nil {
		return RunResult{}, err
	}
	defer release()

	result := r.start(TriggerPartner)
	pr := r.syncPartner(ctx, partner)
	for _, e := range pr.Errors {
		result.Errors = append(result.Errors, fmt.Sprintf("partner %s: %s", partner.Name, e))
	}
	result.Partners = append(result.Partners, pr)
	return r.complete(ctx, result), nil
}

// extendLock renews the run lock. Only a lost lock stops the run; a failed
// renewal is logged and retried before the next partner.
func (r *Reconciler) extendLock(ctx context.Context) error {
	ext, ok := r.Lock.(LockExtender)
	if !ok {
		return nil
	}
	err := ext.Extend(ctx)
	if err == nil || apperr.Is(err, apperr.KindConflict) {
		return err
	}
	r.Logger.WithContext(ctx).Warn("sync: failed to extend run lock", "error", err)
	return nil
}

func (r *Reconciler) start(trigger string) RunResult {
	return RunResult{
		RunID:     uuid.New(),
		Trigger:   trigger,
		StartedAt: r.now().UTC(),
		Partners:  []PartnerResult{},
		Errors:    []string{},
	}
}

// syncPartner never returns an error: failures land in the result.
func (r *Reconciler) syncPartner(ctx context.Context, p partnerrepo.Partner) PartnerResult {
	started := r.now()
	pr := PartnerResult{PartnerID: p.ID, Name: p.Name}
	if p.ExternalID != nil {
		pr.ExternalID = *p.ExternalID
	}
	defer func() {
		pr.DurationMs = r.now().Sub(started).Milliseconds()
	}()

	if pr.ExternalID == "" {
		pr.Errors = append(pr.Errors, "partner has no CRM id")
		r.recordPartnerFailure(ctx, p, pr.Errors)
		return pr
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.PartnerTimeout)
	defer cancel()

	var (
		rawLeads []crm.RawLead
		rawDeals []crm.RawDeal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rawLeads, err = r.CRM.SearchLeadsByPartner(gctx, pr.ExternalID)
		if err != nil {
			return fmt.Errorf("fetch leads: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		rawDeals, err = r.CRM.SearchDealsByPartner(gctx, pr.ExternalID)
		if err != nil {
			return fmt.Errorf("fetch deals: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		pr.Errors = append(pr.Errors, err.Error())
		r.recordPartnerFailure(ctx, p, pr.Errors)
		r.Logger.SyncPartner(p.ID.String(), 0, 0, 0, len(pr.Errors))
		return pr
	}

	admin, err := r.Partners.AdminUserID(ctx, p.ID)
	if err != nil {
		r.Logger.WithContext(ctx).Warn("sync: failed to resolve partner admin", "partnerId", p.ID, "error", err)
	}

	pr.Leads = r.syncLeads(ctx, p, admin, rawLeads)
	pr.Deals = r.syncDeals(ctx, p, rawDeals)

	recordEntityMetrics("lead", pr.Leads)
	recordEntityMetrics("deal", pr.Deals)
	r.Logger.SyncPartner(p.ID.String(),
		pr.Leads.Created+pr.Deals.Created,
		pr.Leads.Updated+pr.Deals.Updated,
		pr.Leads.Skipped+pr.Deals.Skipped,
		len(pr.Leads.Errors)+len(pr.Deals.Errors))
	return pr
}

func (r *Reconciler) syncDeals(ctx context.Context, p partnerrepo.Partner, raws []crm.RawDeal) EntityResult {
	res := EntityResult{Total: len(raws)}
	for _, raw := range raws {
		if raw.ID == "" {
			res.Skipped++
			continue
		}
		out, err := r.Deals.Upsert(ctx, dealsvc.Input{
			ExternalID:   raw.ID,
			PartnerID:    p.ID,
			Name:         raw.DealName,
			StageRaw:     raw.Stage,
			FirstName:    raw.FirstName,
			LastName:     raw.LastName,
			Email:        raw.Email,
			Phone:        raw.Phone,
			Company:      raw.Company(),
			ApprovalDate: raw.ApprovalTime(),
			Source:       dealsvc.SourceSync,
		})
		if err != nil {
			res.Skipped++
			res.Errors = append(res.Errors, fmt.Sprintf("deal %s: %v", raw.ID, err))
			continue
		}
		if out.Created {
			res.Created++
		} else {
			res.Updated++
		}
	}
	return res
}

func (r *Reconciler) recordPartnerFailure(ctx context.Context, p partnerrepo.Partner, errs []string) {
	r.Logger.WithContext(ctx).Error("sync: partner failed", "partnerId", p.ID, "errors", errs)
	r.Activity.Record(ctx, activity.Entry{
		PartnerID:   &p.ID,
		EntityType:  activity.EntitySync,
		EntityID:    &p.ID,
		Action:      activity.ActionSyncPartnerFailed,
		Description: fmt.Sprintf("Reconciliation failed for partner %s", p.Name),
		Metadata:    map[string]any{"errors": errs},
	})
}

// complete stamps totals and fans out the summary. Side-effect failures are
// logged, never returned.
func (r *Reconciler) complete(ctx context.Context, result RunResult) RunResult {
	result.finish(r.now().UTC())
	metrics.ObserveSyncRun(result.Trigger, result.Success, result.FinishedAt.Sub(result.StartedAt))

	r.Activity.Record(ctx, activity.Entry{
		EntityType:  activity.EntitySync,
		EntityID:    &result.RunID,
		Action:      activity.ActionSyncRunCompleted,
		Description: fmt.Sprintf("Reconciliation %s finished for %d partners", result.Trigger, result.Totals.Partners),
		Metadata: map[string]any{
			"runId":   result.RunID,
			"trigger": result.Trigger,
			"success": result.Success,
			"leads":   result.Totals.Leads,
			"deals":   result.Totals.Deals,
			"errors":  result.Errors,
		},
	})

	log := r.Logger.WithContext(ctx)
	if r.Status != nil {
		if err := r.Status.Save(ctx, result); err != nil {
			log.Warn("sync: failed to save run status", "runId", result.RunID, "error", err)
		}
	}
	if r.Archive != nil {
		if err := r.Archive.Archive(ctx, result); err != nil {
			log.Warn("sync: failed to archive run report", "runId", result.RunID, "error", err)
		}
	}
	if r.EventBus != nil {
		r.EventBus.Publish(ctx, events.SyncCompleted{
			BaseEvent:    events.NewBaseEvent(),
			RunID:        result.RunID,
			Trigger:      result.Trigger,
			Success:      result.Success,
			PartnerCount: result.Totals.Partners,
			ErrorCount:   len(result.Errors),
		})
	}
	log.Info("sync run finished",
		"runId", result.RunID,
		"trigger", result.Trigger,
		"success", result.Success,
		"partners", result.Totals.Partners,
		"errors", len(result.Errors))
	return result
}

func recordEntityMetrics(entity string, res EntityResult) {
	metrics.RecordSyncRecords(entity, "created", res.Created)
	metrics.RecordSyncRecords(entity, "updated", res.Updated-res.Removed)
	metrics.RecordSyncRecords(entity, "removed", res.Removed)
	metrics.RecordSyncRecords(entity, "skipped", res.Skipped)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
