package service

import (
	"context"
	"testing"

	"portal_usap_backend/internal/events"
	"portal_usap_backend/internal/partners/repository"
	"portal_usap_backend/platform/apperr"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type fakeRepo struct {
	Repository
	byExternal map[string]repository.Partner
	lastParams repository.ProvisionParams
}

func (f *fakeRepo) ProvisionWithAdmin(_ context.Context, p repository.ProvisionParams) (repository.ProvisionResult, error) {
	f.lastParams = p
	if existing, ok := f.byExternal[p.ExternalID]; ok {
		return repository.ProvisionResult{Partner: existing}, nil
	}
	ext := p.ExternalID
	partner := repository.Partner{ID: uuid.New(), ExternalID: &ext, Name: p.Name, Email: p.Email, Approved: true}
	f.byExternal[p.ExternalID] = partner
	return repository.ProvisionResult{Partner: partner, AdminUserID: uuid.New(), Created: true}, nil
}

type recordingBus struct {
	published []events.Event
}

func (b *recordingBus) Publish(_ context.Context, e events.Event) {
	b.published = append(b.published, e)
}
func (b *recordingBus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	return nil
}
func (b *recordingBus) Subscribe(string, events.Handler) {}

func TestProvisionCreatesOnceAndPublishes(t *testing.T) {
	repo := &fakeRepo{byExternal: map[string]repository.Partner{}}
	bus := &recordingBus{}
	svc := New(repo, bus)
	in := ProvisionInput{ExternalID: "V1", Name: " Vendor <b>One</b> ", Email: "Owner@Vendor.COM "}

	first, err := svc.Provision(context.Background(), in)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if !first.Created {
		t.Fatal("expected first provision to create")
	}
	if repo.lastParams.Name != "Vendor One" || repo.lastParams.Email != "owner@vendor.com" {
		t.Fatalf("expected sanitized input, got %+v", repo.lastParams)
	}

	published, ok := bus.published[0].(events.PartnerProvisioned)
	if !ok {
		t.Fatalf("expected PartnerProvisioned, got %T", bus.published[0])
	}
	if err := bcrypt.CompareHashAndPassword([]byte(repo.lastParams.AdminPasswordHash), []byte(published.TemporaryPassword)); err != nil {
		t.Fatalf("stored hash does not match published temporary password: %v", err)
	}

	second, err := svc.Provision(context.Background(), in)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if second.Created || second.Partner.ID != first.Partner.ID {
		t.Fatalf("expected replay to return existing partner, got %+v", second)
	}
	if len(bus.published) != 1 {
		t.Fatalf("expected one event across replays, got %d", len(bus.published))
	}
}

func TestProvisionRequiresFields(t *testing.T) {
	svc := New(&fakeRepo{byExternal: map[string]repository.Partner{}}, nil)

	_, err := svc.Provision(context.Background(), ProvisionInput{ExternalID: "V1", Name: "Vendor"})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
