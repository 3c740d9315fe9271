// Package conversion detects which existing lead a CRM deal was converted from
// and consumes that lead once the deal exists.
package conversion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"portal_usap_backend/internal/history"
	leaddomain "portal_usap_backend/internal/leads/domain"
	"portal_usap_backend/platform/apperr"
	"portal_usap_backend/platform/logger"
	"portal_usap_backend/platform/sanitize"

	"github.com/google/uuid"
)

// Strategy names the rule that produced a match.
type Strategy string

const (
	StrategyEmail       Strategy = "email"
	StrategyNameCompany Strategy = "name_company"
	// StrategyName accepts the newest lead with the same first and last name.
	// Two customers sharing a name within one partner can be confused.
	StrategyName Strategy = "name"
)

// Candidate is the contact identity carried by a deal payload. Any field but
// PartnerID may be empty.
type Candidate struct {
	PartnerID uuid.UUID
	Email     string
	FirstName string
	LastName  string
	Company   string
}

// Match is the lead a deal was converted from.
type Match struct {
	Lead     leaddomain.Lead
	Strategy Strategy
}

// LeadFinder provides the partner-scoped lookups, each returning an
// apperr NotFound when nothing matches.
type LeadFinder interface {
	FindByEmail(ctx context.Context, partnerID uuid.UUID, email string) (leaddomain.Lead, error)
	FindByNameAndCompany(ctx context.Context, partnerID uuid.UUID, firstName, lastName, company string) (leaddomain.Lead, error)
	FindLatestByName(ctx context.Context, partnerID uuid.UUID, firstName, lastName string) (leaddomain.Lead, error)
}

// LeadDeleter hard-deletes a lead.
type LeadDeleter interface {
	Delete(ctx context.Context, id uuid.UUID) error
}

// HistoryClearer removes history rows for an owner.
type HistoryClearer interface {
	Clear(ctx context.Context, table history.Table, ownerID uuid.UUID) error
}

// Matcher runs the strategy chain and the consume step.
type Matcher struct {
	finder  LeadFinder
	deleter LeadDeleter
	history HistoryClearer
	log     *logger.Logger
}

// NewMatcher creates a matcher.
func NewMatcher(finder LeadFinder, deleter LeadDeleter, history HistoryClearer, log *logger.Logger) *Matcher {
	return &Matcher{finder: finder, deleter: deleter, history: history, log: log}
}

// Find returns the best matching lead, or nil when the deal is standalone.
// Strategies run in order and the first hit wins: email, then first name +
// last name + company, then first name + last name alone.
func (m *Matcher) Find(ctx context.Context, c Candidate) (*Match, error) {
	if c.PartnerID == uuid.Nil {
		return nil, apperr.Validation("partner id is required for conversion matching").WithOp("conversion.find")
	}

	email := sanitize.Email(c.Email)
	first := strings.TrimSpace(c.FirstName)
	last := strings.TrimSpace(c.LastName)
	company := strings.TrimSpace(c.Company)

	type step struct {
		strategy Strategy
		enabled  bool
		lookup   func() (leaddomain.Lead, error)
	}
	steps := []step{
		{StrategyEmail, email != "", func() (leaddomain.Lead, error) {
			return m.finder.FindByEmail(ctx, c.PartnerID, email)
		}},
		{StrategyNameCompany, first != "" && last != "" && company != "", func() (leaddomain.Lead, error) {
			return m.finder.FindByNameAndCompany(ctx, c.PartnerID, first, last, company)
		}},
		{StrategyName, first != "" && last != "", func() (leaddomain.Lead, error) {
			return m.finder.FindLatestByName(ctx, c.PartnerID, first, last)
		}},
	}

	for _, s := range steps {
		if !s.enabled {
			continue
		}
		lead, err := s.lookup()
		if err == nil {
			if s.strategy == StrategyName && m.log != nil {
				m.log.WithContext(ctx).Warn("conversion matched by name only",
					"leadId", lead.ID, "partnerId", c.PartnerID)
			}
			return &Match{Lead: lead, Strategy: s.strategy}, nil
		}
		if !apperr.Is(err, apperr.KindNotFound) {
			return nil, fmt.Errorf("conversion match by %s: %w", s.strategy, err)
		}
	}
	return nil, nil
}

// Consume deletes the lead's history rows and then the lead itself. Both are
// attempted; the returned error joins whatever failed.
func (m *Matcher) Consume(ctx context.Context, lead leaddomain.Lead) error {
	var errs []error
	if err := m.history.Clear(ctx, history.LeadStatus, lead.ID); err != nil {
		errs = append(errs, err)
	}
	if err := m.deleter.Delete(ctx, lead.ID); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
