package service

import (
	"context"
	"testing"

	"portal_usap_backend/internal/activity"
	"portal_usap_backend/internal/events"
	"portal_usap_backend/internal/history"
	"portal_usap_backend/internal/leads/domain"
	"portal_usap_backend/internal/testkit/memstore"
	"portal_usap_backend/platform/apperr"
	"portal_usap_backend/platform/logger"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

type fixture struct {
	leads    *memstore.Leads
	history  *memstore.History
	activity *memstore.Activity
	bus      *memstore.Bus
	svc      *Service
}

func newFixture() *fixture {
	f := &fixture{
		leads:    memstore.NewLeads(),
		history:  memstore.NewHistory(),
		activity: &memstore.Activity{},
		bus:      &memstore.Bus{},
	}
	f.svc = New(f.leads, history.NewEnforcer(f.history), f.activity, f.bus, logger.New("development"))
	return f
}

func TestCreateStoresPendingLead(t *testing.T) {
	f := newFixture()
	partnerID, userID := uuid.New(), uuid.New()

	lead, err := f.svc.Create(context.Background(), CreateInput{
		PartnerID: partnerID,
		UserID:    userID,
		FirstName: " Ann ",
		LastName:  "Lee",
		Email:     "Ann@Example.com ",
		Phone:     "(201) 555-0123",
		Company:   "Acme",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if lead.FirstName != "Ann" || lead.Email != "ann@example.com" {
		t.Fatalf("expected trimmed, lowercased fields, got %q %q", lead.FirstName, lead.Email)
	}
	if lead.Phone != "+12015550123" {
		t.Fatalf("expected E.164 phone, got %q", lead.Phone)
	}
	if lead.Status != domain.StatusNew || lead.SyncState != domain.SyncPending {
		t.Fatalf("expected new/pending, got %s/%s", lead.Status, lead.SyncState)
	}
	if lead.CreatedBy == nil || *lead.CreatedBy != userID {
		t.Fatalf("expected createdBy %s, got %v", userID, lead.CreatedBy)
	}

	rows := f.history.Rows(history.LeadStatus, lead.ID)
	if len(rows) != 1 || rows[0].New != "new" || rows[0].Old != nil {
		t.Fatalf("expected one initial history row, got %+v", rows)
	}
	if diff := cmp.Diff([]string{activity.ActionLeadCreated}, f.activity.Actions()); diff != "" {
		t.Fatalf("activity mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{events.LeadSubmitted{}.EventName()}, f.bus.Names()); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateRequiresIdentityFields(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Create(context.Background(), CreateInput{PartnerID: uuid.New(), FirstName: "Ann", Email: "a@x.com"})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if f.leads.Count() != 0 {
		t.Fatal("expected nothing stored")
	}
}

func TestUpdateStatusReplacesHistory(t *testing.T) {
	f := newFixture()
	partnerID, userID := uuid.New(), uuid.New()
	lead, _ := f.svc.Create(context.Background(), CreateInput{PartnerID: partnerID, UserID: userID, FirstName: "Ann", LastName: "Lee", Email: "a@x.com"})

	updated, err := f.svc.UpdateStatus(context.Background(), lead.ID, &partnerID, userID, domain.StatusQualified)
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if updated.Status != domain.StatusQualified || updated.SyncState != domain.SyncPending {
		t.Fatalf("unexpected lead after update: %s/%s", updated.Status, updated.SyncState)
	}

	rows := f.history.Rows(history.LeadStatus, lead.ID)
	if len(rows) != 1 {
		t.Fatalf("expected exactly one history row, got %d", len(rows))
	}
	if rows[0].Old == nil || *rows[0].Old != "new" || rows[0].New != "qualified" {
		t.Fatalf("unexpected history row %+v", rows[0])
	}

	last := f.bus.Events()[len(f.bus.Events())-1]
	changed, ok := last.(events.LeadStatusChangedByPortal)
	if !ok || changed.OldStatus != "new" || changed.NewStatus != "qualified" || changed.ChangedBy != userID {
		t.Fatalf("unexpected event %#v", last)
	}
}

func TestUpdateStatusUnchangedIsNoop(t *testing.T) {
	f := newFixture()
	partnerID, userID := uuid.New(), uuid.New()
	lead, _ := f.svc.Create(context.Background(), CreateInput{PartnerID: partnerID, UserID: userID, FirstName: "Ann", LastName: "Lee", Email: "a@x.com"})

	got, err := f.svc.UpdateStatus(context.Background(), lead.ID, &partnerID, userID, domain.StatusNew)
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if got.Version != lead.Version {
		t.Fatalf("expected no write, version moved %d -> %d", lead.Version, got.Version)
	}
	if len(f.bus.Names()) != 1 {
		t.Fatalf("expected no status event, got %v", f.bus.Names())
	}
}

func TestUpdateStatusScopedToPartner(t *testing.T) {
	f := newFixture()
	partnerID, userID := uuid.New(), uuid.New()
	lead, _ := f.svc.Create(context.Background(), CreateInput{PartnerID: partnerID, UserID: userID, FirstName: "Ann", LastName: "Lee", Email: "a@x.com"})

	other := uuid.New()
	_, err := f.svc.UpdateStatus(context.Background(), lead.ID, &other, userID, domain.StatusLost)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for another partner, got %v", err)
	}

	if _, err := f.svc.UpdateStatus(context.Background(), lead.ID, nil, userID, domain.Status("bogus")); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for unknown status, got %v", err)
	}
}
