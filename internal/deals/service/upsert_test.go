package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"portal_usap_backend/internal/activity"
	"portal_usap_backend/internal/conversion"
	"portal_usap_backend/internal/deals/domain"
	"portal_usap_backend/internal/events"
	"portal_usap_backend/internal/history"
	leaddomain "portal_usap_backend/internal/leads/domain"
	"portal_usap_backend/internal/testkit/memstore"
	"portal_usap_backend/platform/apperr"
	"portal_usap_backend/platform/logger"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

type fixture struct {
	leads    *memstore.Leads
	deals    *memstore.Deals
	history  *memstore.History
	owners   *memstore.Owners
	activity *memstore.Activity
	bus      *memstore.Bus
	upserter *Upserter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.New("development")
	f := &fixture{
		leads:    memstore.NewLeads(),
		deals:    memstore.NewDeals(),
		history:  memstore.NewHistory(),
		owners:   memstore.NewOwners(),
		activity: &memstore.Activity{},
		bus:      &memstore.Bus{},
	}
	enforcer := history.NewEnforcer(f.history)
	matcher := conversion.NewMatcher(f.leads, f.leads, enforcer, log)
	f.upserter = NewUpserter(f.deals, matcher, f.owners, enforcer, f.activity, f.bus, log)
	return f
}

func (f *fixture) seedLead(t *testing.T, partnerID uuid.UUID, creator *uuid.UUID, first, last, email string) leaddomain.Lead {
	t.Helper()
	lead, err := f.leads.Create(context.Background(), leaddomain.Lead{
		PartnerID: partnerID,
		CreatedBy: creator,
		FirstName: first,
		LastName:  last,
		Email:     email,
		Status:    leaddomain.StatusContacted,
	})
	if err != nil {
		t.Fatalf("seed lead: %v", err)
	}
	return lead
}

func TestUpsertCreateConvertsMatchingLead(t *testing.T) {
	f := newFixture(t)
	partnerID := uuid.New()
	creator := uuid.New()
	lead := f.seedLead(t, partnerID, &creator, "Ann", "Lee", "a@x.com")

	res, err := f.upserter.Upsert(context.Background(), Input{
		ExternalID: "D1",
		PartnerID:  partnerID,
		Name:       "Acme Deal",
		StageRaw:   "Approved",
		Email:      "A@X.com",
		Source:     SourceWebhook,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !res.Created {
		t.Fatal("expected deal to be created")
	}
	if res.Deal.Stage != domain.StageApproved {
		t.Fatalf("stage = %q, want approved", res.Deal.Stage)
	}
	if res.Deal.CreatedBy == nil || *res.Deal.CreatedBy != creator {
		t.Fatalf("createdBy = %v, want lead creator %s", res.Deal.CreatedBy, creator)
	}
	if res.ConvertedLeadID == nil || *res.ConvertedLeadID != lead.ID {
		t.Fatalf("convertedLeadId = %v, want %s", res.ConvertedLeadID, lead.ID)
	}
	if res.MatchStrategy != conversion.StrategyEmail {
		t.Fatalf("strategy = %q, want email", res.MatchStrategy)
	}
	if f.leads.Count() != 0 {
		t.Fatalf("converted lead still stored")
	}

	rows := f.history.Rows(history.DealStage, res.Deal.ID)
	if len(rows) != 1 {
		t.Fatalf("history rows = %d, want 1", len(rows))
	}
	if rows[0].Old != nil || rows[0].New != string(domain.StageApproved) {
		t.Fatalf("unexpected history row %+v", rows[0])
	}
	if want := "Converted from lead Ann Lee (matched by email)"; rows[0].Notes != want {
		t.Fatalf("notes = %q, want %q", rows[0].Notes, want)
	}

	wantActions := []string{activity.ActionLeadConverted, activity.ActionDealCreated}
	if diff := cmp.Diff(wantActions, f.activity.Actions()); diff != "" {
		t.Fatalf("activity mismatch (-want +got):\n%s", diff)
	}
	wantEvents := []string{events.LeadConverted{}.EventName(), events.DealStageChanged{}.EventName()}
	if diff := cmp.Diff(wantEvents, f.bus.Names()); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestUpsertReplayUpdatesStageAndReplacesHistory(t *testing.T) {
	f := newFixture(t)
	partnerID := uuid.New()
	creator := uuid.New()
	f.seedLead(t, partnerID, &creator, "Ann", "Lee", "a@x.com")

	in := Input{ExternalID: "D1", PartnerID: partnerID, Name: "Acme Deal", StageRaw: "Approved", Email: "a@x.com", Source: SourceWebhook}
	first, err := f.upserter.Upsert(context.Background(), in)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	in.StageRaw = "Declined"
	second, err := f.upserter.Upsert(context.Background(), in)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.Created {
		t.Fatal("replay must not create a second deal")
	}
	if second.Deal.ID != first.Deal.ID {
		t.Fatalf("deal id changed on replay")
	}
	if !second.StageChanged || second.Deal.Stage != domain.StageDeclined {
		t.Fatalf("stage = %q changed=%v, want declined", second.Deal.Stage, second.StageChanged)
	}
	if n := len(f.deals.All()); n != 1 {
		t.Fatalf("deals stored = %d, want 1", n)
	}

	rows := f.history.Rows(history.DealStage, first.Deal.ID)
	if len(rows) != 1 {
		t.Fatalf("history rows = %d, want 1", len(rows))
	}
	if rows[0].Old == nil || *rows[0].Old != string(domain.StageApproved) || rows[0].New != string(domain.StageDeclined) {
		t.Fatalf("unexpected history row %+v", rows[0])
	}
	if second.Deal.CreatedBy == nil || *second.Deal.CreatedBy != creator {
		t.Fatalf("owner lost on replay")
	}
}

func TestUpsertIdenticalReplayIsNoChange(t *testing.T) {
	f := newFixture(t)
	partnerID := uuid.New()
	admin := uuid.New()
	f.owners.Set(partnerID, admin)

	in := Input{ExternalID: "D2", PartnerID: partnerID, Name: "Solo", StageRaw: "In Underwriting", Source: SourceSync}
	if _, err := f.upserter.Upsert(context.Background(), in); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	res, err := f.upserter.Upsert(context.Background(), in)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.Changed || res.StageChanged {
		t.Fatalf("identical replay reported changes: %+v", res)
	}
	if len(f.history.Rows(history.DealStage, res.Deal.ID)) != 1 {
		t.Fatal("identical replay must keep exactly one history row")
	}
}

func TestUpsertStandaloneDealOwnedByPartnerAdmin(t *testing.T) {
	f := newFixture(t)
	partnerID := uuid.New()
	admin := uuid.New()
	f.owners.Set(partnerID, admin)

	res, err := f.upserter.Upsert(context.Background(), Input{
		ExternalID: "D3", PartnerID: partnerID, Name: "No Lead", StageRaw: "Something New", Source: SourceSync,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if res.Deal.CreatedBy == nil || *res.Deal.CreatedBy != admin {
		t.Fatalf("createdBy = %v, want admin", res.Deal.CreatedBy)
	}
	if res.Deal.Stage != domain.StageNewDeal {
		t.Fatalf("unknown stage should default, got %q", res.Deal.Stage)
	}
	if res.ConvertedLeadID != nil {
		t.Fatal("standalone deal must not carry provenance")
	}
}

func TestUpsertWithoutOwnerRecordsActivity(t *testing.T) {
	f := newFixture(t)
	res, err := f.upserter.Upsert(context.Background(), Input{
		ExternalID: "D4", PartnerID: uuid.New(), Name: "Orphan", StageRaw: "Approved",
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if res.Deal.CreatedBy != nil {
		t.Fatalf("expected nil owner, got %v", res.Deal.CreatedBy)
	}
	found := false
	for _, a := range f.activity.Actions() {
		if a == activity.ActionOwnerUnresolved {
			found = true
		}
	}
	if !found {
		t.Fatalf("owner_unresolved not recorded: %v", f.activity.Actions())
	}
}

func TestUpsertMatchesOnLaterUpdate(t *testing.T) {
	f := newFixture(t)
	partnerID := uuid.New()
	if _, err := f.upserter.Upsert(context.Background(), Input{
		ExternalID: "D5", PartnerID: partnerID, Name: "Later", StageRaw: "New Deal",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	creator := uuid.New()
	lead := f.seedLead(t, partnerID, &creator, "Bo", "Ng", "bo@x.com")
	res, err := f.upserter.Upsert(context.Background(), Input{
		ExternalID: "D5", PartnerID: partnerID, StageRaw: "New Deal", Email: "bo@x.com",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.ConvertedLeadID == nil || *res.ConvertedLeadID != lead.ID {
		t.Fatalf("expected conversion on update, got %v", res.ConvertedLeadID)
	}
	if res.Deal.CreatedBy == nil || *res.Deal.CreatedBy != creator {
		t.Fatal("owner should move to the lead creator")
	}
	if res.Deal.FirstName != "Bo" {
		t.Fatalf("contact not backfilled from lead: %+v", res.Deal)
	}
}

func TestUpsertRetriesOnceAfterVersionConflict(t *testing.T) {
	f := newFixture(t)
	partnerID := uuid.New()
	created, err := f.upserter.Upsert(context.Background(), Input{ExternalID: "D6", PartnerID: partnerID, Name: "Race", StageRaw: "New Deal"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	calls := 0
	f.deals.BeforeUpdate = func(domain.Deal) {
		calls++
		if calls == 1 {
			f.deals.Bump(created.Deal.ID)
		}
	}
	res, err := f.upserter.Upsert(context.Background(), Input{ExternalID: "D6", PartnerID: partnerID, StageRaw: "Approved"})
	if err != nil {
		t.Fatalf("upsert after conflict: %v", err)
	}
	if calls != 2 {
		t.Fatalf("update attempts = %d, want 2", calls)
	}
	if res.Deal.Stage != domain.StageApproved {
		t.Fatalf("stage = %q", res.Deal.Stage)
	}
}

func TestUpsertGivesUpAfterRepeatedConflicts(t *testing.T) {
	f := newFixture(t)
	partnerID := uuid.New()
	created, err := f.upserter.Upsert(context.Background(), Input{ExternalID: "D7", PartnerID: partnerID, Name: "Hot", StageRaw: "New Deal"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f.deals.BeforeUpdate = func(domain.Deal) { f.deals.Bump(created.Deal.ID) }

	_, err = f.upserter.Upsert(context.Background(), Input{ExternalID: "D7", PartnerID: partnerID, StageRaw: "Approved"})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestUpsertLeadDeleteFailureKeepsDeal(t *testing.T) {
	f := newFixture(t)
	partnerID := uuid.New()
	f.seedLead(t, partnerID, nil, "Cy", "Po", "cy@x.com")
	f.leads.DeleteErr = errors.New("db down")

	res, err := f.upserter.Upsert(context.Background(), Input{ExternalID: "D8", PartnerID: partnerID, Name: "Kept", Email: "cy@x.com", StageRaw: "Approved"})
	if err != nil {
		t.Fatalf("delete failure must not fail the upsert: %v", err)
	}
	if !res.Created || res.ConvertedLeadID == nil {
		t.Fatalf("deal should exist with provenance: %+v", res)
	}
	found := false
	for _, a := range f.activity.Actions() {
		if a == activity.ActionLeadDeleteFailed {
			found = true
		}
	}
	if !found {
		t.Fatalf("lead_delete_failed not recorded: %v", f.activity.Actions())
	}
}

func TestUpsertValidatesInput(t *testing.T) {
	f := newFixture(t)
	cases := []Input{
		{PartnerID: uuid.New()},
		{ExternalID: "  ", PartnerID: uuid.New()},
		{ExternalID: "D9"},
	}
	for _, in := range cases {
		if _, err := f.upserter.Upsert(context.Background(), in); !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("input %+v: expected validation error, got %v", in, err)
		}
	}
}

func TestUpsertKeepsApprovalDate(t *testing.T) {
	f := newFixture(t)
	approved := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	res, err := f.upserter.Upsert(context.Background(), Input{
		ExternalID: "D10", PartnerID: uuid.New(), Name: "Dated", StageRaw: "Approved", ApprovalDate: &approved,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if res.Deal.ApprovalDate == nil || !res.Deal.ApprovalDate.Equal(approved) {
		t.Fatalf("approval date = %v", res.Deal.ApprovalDate)
	}
}
