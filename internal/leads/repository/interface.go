package repository

import (
	"context"

	"portal_usap_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// =====================================
// Segregated Interfaces (Interface Segregation Principle)
// =====================================

// LeadReader provides read-only access to lead data.
type LeadReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	GetByExternalID(ctx context.Context, externalID string) (domain.Lead, error)
	ListByPartner(ctx context.Context, params ListParams) ([]domain.Lead, int, error)
}

// LeadMatcher provides the partner-scoped natural-key lookups used to detect
// conversions and to self-heal missing external ids.
type LeadMatcher interface {
	FindByEmail(ctx context.Context, partnerID uuid.UUID, email string) (domain.Lead, error)
	FindByNameAndCompany(ctx context.Context, partnerID uuid.UUID, firstName, lastName, company string) (domain.Lead, error)
	FindLatestByName(ctx context.Context, partnerID uuid.UUID, firstName, lastName string) (domain.Lead, error)
}

// LeadWriter provides write operations. Update is a compare-and-set on Version.
type LeadWriter interface {
	Create(ctx context.Context, lead domain.Lead) (domain.Lead, error)
	Update(ctx context.Context, lead domain.Lead) (domain.Lead, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// LeadRepository is the full lead store.
type LeadRepository interface {
	LeadReader
	LeadMatcher
	LeadWriter
}

var _ LeadRepository = (*Repository)(nil)
