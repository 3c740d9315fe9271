// Package memstore provides goroutine-safe in-memory implementations of the
// lead, deal, history and activity stores for tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"portal_usap_backend/internal/activity"
	dealdomain "portal_usap_backend/internal/deals/domain"
	"portal_usap_backend/internal/events"
	"portal_usap_backend/internal/history"
	leaddomain "portal_usap_backend/internal/leads/domain"
	leadrepo "portal_usap_backend/internal/leads/repository"
	"portal_usap_backend/platform/apperr"
	"portal_usap_backend/platform/db"

	"github.com/google/uuid"
)

// Leads is an in-memory lead repository with version compare-and-set.
type Leads struct {
	mu        sync.Mutex
	rows      map[uuid.UUID]leaddomain.Lead
	DeleteErr error
	clock     time.Time
}

// NewLeads creates an empty lead store.
func NewLeads() *Leads {
	return &Leads{rows: map[uuid.UUID]leaddomain.Lead{}, clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// tick returns strictly increasing timestamps so "newest" is deterministic.
func (s *Leads) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *Leads) GetByID(_ context.Context, id uuid.UUID) (leaddomain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rows[id]
	if !ok {
		return leaddomain.Lead{}, apperr.NotFound("lead not found")
	}
	return l, nil
}

func (s *Leads) GetByExternalID(_ context.Context, externalID string) (leaddomain.Lead, error) {
	return s.newest(func(l leaddomain.Lead) bool { return l.ExternalID != nil && *l.ExternalID == externalID })
}

func (s *Leads) FindByEmail(_ context.Context, partnerID uuid.UUID, email string) (leaddomain.Lead, error) {
	return s.newest(func(l leaddomain.Lead) bool {
		return l.PartnerID == partnerID && strings.EqualFold(l.Email, strings.TrimSpace(email))
	})
}

func (s *Leads) FindByNameAndCompany(_ context.Context, partnerID uuid.UUID, first, last, company string) (leaddomain.Lead, error) {
	return s.newest(func(l leaddomain.Lead) bool {
		return l.PartnerID == partnerID && strings.EqualFold(l.FirstName, first) &&
			strings.EqualFold(l.LastName, last) && strings.EqualFold(l.Company, company)
	})
}

func (s *Leads) FindLatestByName(_ context.Context, partnerID uuid.UUID, first, last string) (leaddomain.Lead, error) {
	return s.newest(func(l leaddomain.Lead) bool {
		return l.PartnerID == partnerID && strings.EqualFold(l.FirstName, first) && strings.EqualFold(l.LastName, last)
	})
}

func (s *Leads) newest(match func(leaddomain.Lead) bool) (leaddomain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *leaddomain.Lead
	for _, l := range s.rows {
		l := l
		if match(l) && (best == nil || l.CreatedAt.After(best.CreatedAt)) {
			best = &l
		}
	}
	if best == nil {
		return leaddomain.Lead{}, apperr.NotFound("lead not found")
	}
	return *best, nil
}

func (s *Leads) Create(_ context.Context, lead leaddomain.Lead) (leaddomain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lead.ExternalID != nil {
		for _, existing := range s.rows {
			if existing.ExternalID != nil && *existing.ExternalID == *lead.ExternalID {
				return leaddomain.Lead{}, apperr.Conflict("lead already exists for external id")
			}
		}
	}
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	if lead.Status == "" {
		lead.Status = leaddomain.StatusNew
	}
	if lead.SyncState == "" {
		lead.SyncState = leaddomain.SyncPending
	}
	now := s.tick()
	lead.Version = 1
	lead.CreatedAt = now
	lead.UpdatedAt = now
	s.rows[lead.ID] = lead
	return lead, nil
}

func (s *Leads) Update(_ context.Context, lead leaddomain.Lead) (leaddomain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.rows[lead.ID]
	if !ok {
		return leaddomain.Lead{}, apperr.NotFound("lead not found")
	}
	if current.Version != lead.Version {
		return leaddomain.Lead{}, db.ErrVersionConflict
	}
	lead.CreatedAt = current.CreatedAt
	lead.PartnerID = current.PartnerID
	lead.CreatedBy = current.CreatedBy
	lead.Version = current.Version + 1
	lead.UpdatedAt = s.tick()
	s.rows[lead.ID] = lead
	return lead, nil
}

func (s *Leads) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	delete(s.rows, id)
	return nil
}

func (s *Leads) ListByPartner(_ context.Context, params leadrepo.ListParams) ([]leaddomain.Lead, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]leaddomain.Lead, 0)
	for _, l := range s.rows {
		if l.PartnerID == params.PartnerID && (params.Status == "" || string(l.Status) == params.Status) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, len(out), nil
}

// Bump increments a lead's version behind the caller's back, simulating a
// concurrent writer.
func (s *Leads) Bump(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.rows[id]
	l.Version++
	s.rows[id] = l
}

// Count returns the number of stored leads.
func (s *Leads) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// Deals is an in-memory deal repository with a unique external id.
type Deals struct {
	mu   sync.Mutex
	rows map[uuid.UUID]dealdomain.Deal
	// BeforeUpdate, when set, runs before each Update; tests use it to inject
	// concurrent writes.
	BeforeUpdate func(d dealdomain.Deal)
}

// NewDeals creates an empty deal store.
func NewDeals() *Deals {
	return &Deals{rows: map[uuid.UUID]dealdomain.Deal{}}
}

func (s *Deals) GetByID(_ context.Context, id uuid.UUID) (dealdomain.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.rows[id]
	if !ok {
		return dealdomain.Deal{}, apperr.NotFound("deal not found")
	}
	return d, nil
}

func (s *Deals) GetByExternalID(_ context.Context, externalID string) (dealdomain.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.rows {
		if d.ExternalID == externalID {
			return d, nil
		}
	}
	return dealdomain.Deal{}, apperr.NotFound("deal not found")
}

func (s *Deals) Create(_ context.Context, deal dealdomain.Deal) (dealdomain.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.rows {
		if d.ExternalID == deal.ExternalID {
			return dealdomain.Deal{}, apperr.Conflict("deal already exists for external id")
		}
	}
	if deal.ID == uuid.Nil {
		deal.ID = uuid.New()
	}
	now := time.Now().UTC()
	deal.Version = 1
	deal.CreatedAt = now
	deal.UpdatedAt = now
	s.rows[deal.ID] = deal
	return deal, nil
}

func (s *Deals) Update(_ context.Context, deal dealdomain.Deal) (dealdomain.Deal, error) {
	if s.BeforeUpdate != nil {
		s.BeforeUpdate(deal)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.rows[deal.ID]
	if !ok {
		return dealdomain.Deal{}, apperr.NotFound("deal not found")
	}
	if current.Version != deal.Version {
		return dealdomain.Deal{}, db.ErrVersionConflict
	}
	deal.CreatedAt = current.CreatedAt
	deal.Version = current.Version + 1
	deal.UpdatedAt = time.Now().UTC()
	s.rows[deal.ID] = deal
	return deal, nil
}

// Bump increments a deal's version, simulating a concurrent writer.
func (s *Deals) Bump(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.rows[id]
	d.Version++
	s.rows[id] = d
}

// All returns every stored deal.
func (s *Deals) All() []dealdomain.Deal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]dealdomain.Deal, 0, len(s.rows))
	for _, d := range s.rows {
		out = append(out, d)
	}
	return out
}

// History implements history.Store with staged transactions.
type History struct {
	mu   sync.Mutex
	rows map[string]map[uuid.UUID][]history.Row
	tx   bool
}

// NewHistory creates an empty history store.
func NewHistory() *History {
	return &History{rows: map[string]map[uuid.UUID][]history.Row{}}
}

func (h *History) WithinTx(ctx context.Context, fn func(tx history.Store) error) error {
	h.mu.Lock()
	staged := &History{rows: map[string]map[uuid.UUID][]history.Row{}, tx: true}
	for table, owners := range h.rows {
		staged.rows[table] = map[uuid.UUID][]history.Row{}
		for owner, rows := range owners {
			staged.rows[table][owner] = append([]history.Row(nil), rows...)
		}
	}
	h.mu.Unlock()

	if err := fn(staged); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for table, owners := range staged.rows {
		h.rows[table] = owners
	}
	return nil
}

func (h *History) DeleteAll(_ context.Context, table history.Table, ownerID uuid.UUID) (int64, error) {
	h.lock()
	defer h.unlock()
	n := int64(len(h.rows[table.Name()][ownerID]))
	delete(h.rows[table.Name()], ownerID)
	return n, nil
}

func (h *History) Insert(_ context.Context, table history.Table, row history.Row) error {
	h.lock()
	defer h.unlock()
	if h.rows[table.Name()] == nil {
		h.rows[table.Name()] = map[uuid.UUID][]history.Row{}
	}
	h.rows[table.Name()][row.OwnerID] = append(h.rows[table.Name()][row.OwnerID], row)
	return nil
}

func (h *History) lock() {
	if !h.tx {
		h.mu.Lock()
	}
}

func (h *History) unlock() {
	if !h.tx {
		h.mu.Unlock()
	}
}

// Rows returns the history rows for an owner.
func (h *History) Rows(table history.Table, ownerID uuid.UUID) []history.Row {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]history.Row(nil), h.rows[table.Name()][ownerID]...)
}

// Owners maps partners to their admin users.
type Owners struct {
	mu     sync.Mutex
	admins map[uuid.UUID]uuid.UUID
}

// NewOwners creates an empty resolver.
func NewOwners() *Owners {
	return &Owners{admins: map[uuid.UUID]uuid.UUID{}}
}

// Set registers a partner's admin.
func (o *Owners) Set(partnerID, adminID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.admins[partnerID] = adminID
}

func (o *Owners) AdminUserID(_ context.Context, partnerID uuid.UUID) (*uuid.UUID, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	id, ok := o.admins[partnerID]
	if !ok {
		return nil, nil
	}
	return &id, nil
}

// Activity captures recorded entries.
type Activity struct {
	mu      sync.Mutex
	entries []activity.Entry
}

func (a *Activity) Record(_ context.Context, e activity.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

// Actions returns the recorded actions in order.
func (a *Activity) Actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

// Entries returns a copy of the recorded entries.
func (a *Activity) Entries() []activity.Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]activity.Entry(nil), a.entries...)
}

// Bus records published events synchronously.
type Bus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *Bus) Publish(_ context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *Bus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	return nil
}

func (b *Bus) Subscribe(string, events.Handler) {}

// Names returns the names of published events in order.
func (b *Bus) Names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.EventName())
	}
	return out
}

// Events returns a copy of the published events.
func (b *Bus) Events() []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]events.Event(nil), b.events...)
}

var (
	_ leadrepo.LeadRepository = (*Leads)(nil)
	_ history.Store           = (*History)(nil)
	_ events.Bus              = (*Bus)(nil)
)
