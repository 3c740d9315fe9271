package service

import (
	"context"
	"errors"
	"testing"

	"portal_usap_backend/internal/activity"
	"portal_usap_backend/internal/crm"
	"portal_usap_backend/internal/leads/domain"
	partnerrepo "portal_usap_backend/internal/partners/repository"
	"portal_usap_backend/internal/testkit/memstore"
	"portal_usap_backend/platform/apperr"
	"portal_usap_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeCRM struct {
	created   []crm.LeadInput
	updated   map[string]crm.LeadInput
	nextID    string
	err       error
	onRequest func()
}

func (f *fakeCRM) CreateLead(_ context.Context, in crm.LeadInput) (string, error) {
	if f.onRequest != nil {
		f.onRequest()
	}
	if f.err != nil {
		return "", f.err
	}
	f.created = append(f.created, in)
	return f.nextID, nil
}

func (f *fakeCRM) UpdateLead(_ context.Context, id string, in crm.LeadInput) error {
	if f.onRequest != nil {
		f.onRequest()
	}
	if f.err != nil {
		return f.err
	}
	if f.updated == nil {
		f.updated = map[string]crm.LeadInput{}
	}
	f.updated[id] = in
	return nil
}

type fakePartners map[uuid.UUID]partnerrepo.Partner

func (f fakePartners) GetByID(_ context.Context, id uuid.UUID) (partnerrepo.Partner, error) {
	p, ok := f[id]
	if !ok {
		return partnerrepo.Partner{}, apperr.NotFound("partner not found")
	}
	return p, nil
}

func newPushFixture(t *testing.T, partnerExternalID string) (*memstore.Leads, *fakeCRM, *memstore.Activity, *Pusher, domain.Lead) {
	t.Helper()
	leads := memstore.NewLeads()
	client := &fakeCRM{nextID: "zl-1"}
	rec := &memstore.Activity{}

	partnerID := uuid.New()
	partner := partnerrepo.Partner{ID: partnerID, Name: "Acme"}
	if partnerExternalID != "" {
		partner.ExternalID = &partnerExternalID
	}

	lead, err := leads.Create(context.Background(), domain.Lead{
		PartnerID: partnerID,
		FirstName: "Ann",
		LastName:  "Lee",
		Email:     "a@x.com",
		Status:    domain.StatusContacted,
	})
	if err != nil {
		t.Fatalf("seed lead: %v", err)
	}
	pusher := NewPusher(leads, client, fakePartners{partnerID: partner}, rec, logger.New("development"))
	return leads, client, rec, pusher, lead
}

func TestPushCreatesCRMLead(t *testing.T) {
	leads, client, rec, pusher, lead := newPushFixture(t, "zp-9")

	if err := pusher.Push(context.Background(), lead.ID); err != nil {
		t.Fatalf("Push: %v", err)
	}

	if len(client.created) != 1 {
		t.Fatalf("expected one create, got %d", len(client.created))
	}
	in := client.created[0]
	if in.StrategicPartnerID != "zp-9" || in.LeadStatus != "Contacted" || in.Email != "a@x.com" {
		t.Fatalf("unexpected CRM input %+v", in)
	}

	got, _ := leads.GetByID(context.Background(), lead.ID)
	if got.ExternalID == nil || *got.ExternalID != "zl-1" {
		t.Fatalf("expected external id zl-1, got %v", got.ExternalID)
	}
	if got.SyncState != domain.SyncSynced || got.LastSyncAt == nil {
		t.Fatalf("expected synced with timestamp, got %s %v", got.SyncState, got.LastSyncAt)
	}
	if actions := rec.Actions(); len(actions) != 1 || actions[0] != activity.ActionLeadPushed {
		t.Fatalf("unexpected activity %v", actions)
	}
}

func TestPushUpdatesLinkedLead(t *testing.T) {
	leads, client, _, pusher, lead := newPushFixture(t, "zp-9")
	ext := "zl-existing"
	lead.ExternalID = &ext
	lead, _ = leads.Update(context.Background(), lead)

	if err := pusher.Push(context.Background(), lead.ID); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if len(client.created) != 0 {
		t.Fatal("expected no create for a linked lead")
	}
	if _, ok := client.updated["zl-existing"]; !ok {
		t.Fatalf("expected update of zl-existing, got %v", client.updated)
	}
}

func TestPushFailureMarksError(t *testing.T) {
	leads, client, _, pusher, lead := newPushFixture(t, "zp-9")
	client.err = apperr.Upstream("crm unavailable", errors.New("503"))

	err := pusher.Push(context.Background(), lead.ID)
	if !apperr.Is(err, apperr.KindUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	got, _ := leads.GetByID(context.Background(), lead.ID)
	if got.SyncState != domain.SyncError {
		t.Fatalf("expected sync error state, got %s", got.SyncState)
	}
}

func TestPushWithoutPartnerCRMIDIsDropped(t *testing.T) {
	leads, client, _, pusher, lead := newPushFixture(t, "")

	if err := pusher.Push(context.Background(), lead.ID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(client.created) != 0 {
		t.Fatal("expected no CRM call")
	}
	got, _ := leads.GetByID(context.Background(), lead.ID)
	if got.SyncState != domain.SyncError {
		t.Fatalf("expected sync error state, got %s", got.SyncState)
	}
}

func TestPushSurvivesConcurrentWrite(t *testing.T) {
	leads, client, _, pusher, lead := newPushFixture(t, "zp-9")
	client.onRequest = func() {
		// A webhook writes the lead while the CRM call is in flight.
		current, _ := leads.GetByID(context.Background(), lead.ID)
		current.Status = domain.StatusQualified
		_, _ = leads.Update(context.Background(), current)
	}

	if err := pusher.Push(context.Background(), lead.ID); err != nil {
		t.Fatalf("Push: %v", err)
	}
	got, _ := leads.GetByID(context.Background(), lead.ID)
	if got.Status != domain.StatusQualified {
		t.Fatalf("concurrent status change lost, got %s", got.Status)
	}
	if got.ExternalID == nil || *got.ExternalID != "zl-1" || got.SyncState != domain.SyncSynced {
		t.Fatalf("expected linked and synced lead, got %+v", got)
	}
}

func TestPushConvertedLeadReturnsNotFound(t *testing.T) {
	leads, _, _, pusher, lead := newPushFixture(t, "zp-9")
	_ = leads.Delete(context.Background(), lead.ID)

	if err := pusher.Push(context.Background(), lead.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
