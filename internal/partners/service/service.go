package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"portal_usap_backend/internal/events"
	"portal_usap_backend/internal/partners/repository"
	"portal_usap_backend/platform/apperr"
	"portal_usap_backend/platform/sanitize"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const temporaryPasswordBytes = 12

// Repository is the storage capability the service needs.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (repository.Partner, error)
	GetByExternalID(ctx context.Context, externalID string) (repository.Partner, error)
	ListSyncable(ctx context.Context) ([]repository.Partner, error)
	AdminUserID(ctx context.Context, partnerID uuid.UUID) (*uuid.UUID, error)
	GetUserContact(ctx context.Context, userID uuid.UUID) (repository.UserContact, error)
	ProvisionWithAdmin(ctx context.Context, params repository.ProvisionParams) (repository.ProvisionResult, error)
	SetApproved(ctx context.Context, id uuid.UUID, approved bool) (repository.Partner, error)
	List(ctx context.Context) ([]repository.Partner, error)
}

// ProvisionInput is the CRM vendor payload.
type ProvisionInput struct {
	ExternalID string
	Name       string
	Email      string
}

// Service provides business logic for partners.
type Service struct {
	repo     Repository
	eventBus events.Bus
}

// New creates a new partners service.
func New(repo Repository, eventBus events.Bus) *Service {
	return &Service{repo: repo, eventBus: eventBus}
}

// Provision creates the partner and its first admin user. Replays of the same
// vendor return the existing partner with Created=false and send nothing.
func (s *Service) Provision(ctx context.Context, in ProvisionInput) (repository.ProvisionResult, error) {
	externalID := strings.TrimSpace(in.ExternalID)
	name := sanitize.Text(in.Name)
	email := sanitize.Email(in.Email)
	if externalID == "" || name == "" || email == "" {
		return repository.ProvisionResult{}, apperr.Validation("id, VendorName and Email are required").WithOp("partners.provision")
	}

	password, err := generateTemporaryPassword()
	if err != nil {
		return repository.ProvisionResult{}, fmt.Errorf("generate temporary password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return repository.ProvisionResult{}, fmt.Errorf("hash temporary password: %w", err)
	}

	result, err := s.repo.ProvisionWithAdmin(ctx, repository.ProvisionParams{
		ExternalID:        externalID,
		Name:              name,
		Email:             email,
		AdminPasswordHash: string(hash),
	})
	if err != nil {
		return repository.ProvisionResult{}, err
	}

	if result.Created && s.eventBus != nil {
		s.eventBus.Publish(ctx, events.PartnerProvisioned{
			BaseEvent:         events.NewBaseEvent(),
			PartnerID:         result.Partner.ID,
			AdminUserID:       result.AdminUserID,
			Name:              result.Partner.Name,
			Email:             result.Partner.Email,
			TemporaryPassword: password,
		})
	}
	return result, nil
}

func (s *Service) GetByExternalID(ctx context.Context, externalID string) (repository.Partner, error) {
	return s.repo.GetByExternalID(ctx, strings.TrimSpace(externalID))
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (repository.Partner, error) {
	return s.repo.GetByID(ctx, id)
}

// ListSyncable returns approved partners linked to the CRM.
func (s *Service) ListSyncable(ctx context.Context) ([]repository.Partner, error) {
	return s.repo.ListSyncable(ctx)
}

// AdminUserID returns the partner's designated admin, or nil if it has none.
func (s *Service) AdminUserID(ctx context.Context, partnerID uuid.UUID) (*uuid.UUID, error) {
	return s.repo.AdminUserID(ctx, partnerID)
}

func (s *Service) GetUserContact(ctx context.Context, userID uuid.UUID) (repository.UserContact, error) {
	return s.repo.GetUserContact(ctx, userID)
}

func (s *Service) List(ctx context.Context) ([]repository.Partner, error) {
	return s.repo.List(ctx)
}

// SetApproved gates whether the partner takes part in reconciliation.
func (s *Service) SetApproved(ctx context.Context, id uuid.UUID, approved bool) (repository.Partner, error) {
	return s.repo.SetApproved(ctx, id, approved)
}

func generateTemporaryPassword() (string, error) {
	b := make([]byte, temporaryPasswordBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
