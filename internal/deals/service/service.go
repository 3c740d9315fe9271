package service

import (
	"context"

	"portal_usap_backend/internal/deals/domain"
	"portal_usap_backend/internal/deals/repository"
	"portal_usap_backend/platform/apperr"

	"github.com/google/uuid"
)

// Reader is the read side of the deal store.
type Reader interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Deal, error)
	ListByPartner(ctx context.Context, params repository.ListParams) ([]domain.Deal, int, error)
}

// Service serves the portal's read-only deal views.
type Service struct {
	repo Reader
}

// New creates a deal query service.
func New(repo Reader) *Service {
	return &Service{repo: repo}
}

// List returns one page of a partner's deals.
func (s *Service) List(ctx context.Context, params repository.ListParams) ([]domain.Deal, int, error) {
	return s.repo.ListByPartner(ctx, params)
}

// Get returns a deal visible to partnerID. A nil partnerID means an operator
// who can see every partner.
func (s *Service) Get(ctx context.Context, id uuid.UUID, partnerID *uuid.UUID) (domain.Deal, error) {
	deal, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Deal{}, err
	}
	if partnerID != nil && deal.PartnerID != *partnerID {
		return domain.Deal{}, apperr.NotFound("deal not found").WithOp("deals.get")
	}
	return deal, nil
}
