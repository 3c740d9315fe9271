package history

import (
	"context"
	"errors"
	"testing"

	"portal_usap_backend/platform/apperr"

	"github.com/google/uuid"
)

// memStore mimics transactional semantics by staging writes on a copy.
type memStore struct {
	rows      map[string]map[uuid.UUID][]Row
	failWrite bool
}

func newMemStore() *memStore {
	return &memStore{rows: map[string]map[uuid.UUID][]Row{}}
}

func (m *memStore) clone() *memStore {
	c := newMemStore()
	c.failWrite = m.failWrite
	for table, owners := range m.rows {
		c.rows[table] = map[uuid.UUID][]Row{}
		for owner, rows := range owners {
			c.rows[table][owner] = append([]Row(nil), rows...)
		}
	}
	return c
}

func (m *memStore) WithinTx(_ context.Context, fn func(tx Store) error) error {
	staged := m.clone()
	if err := fn(staged); err != nil {
		return err
	}
	m.rows = staged.rows
	return nil
}

func (m *memStore) DeleteAll(_ context.Context, table Table, ownerID uuid.UUID) (int64, error) {
	n := int64(len(m.rows[table.name][ownerID]))
	if m.rows[table.name] != nil {
		delete(m.rows[table.name], ownerID)
	}
	return n, nil
}

func (m *memStore) Insert(_ context.Context, table Table, row Row) error {
	if m.failWrite {
		return errors.New("insert failed")
	}
	if m.rows[table.name] == nil {
		m.rows[table.name] = map[uuid.UUID][]Row{}
	}
	m.rows[table.name][row.OwnerID] = append(m.rows[table.name][row.OwnerID], row)
	return nil
}

func (m *memStore) count(table Table, owner uuid.UUID) int {
	return len(m.rows[table.name][owner])
}

func strPtr(s string) *string { return &s }

func TestReplaceKeepsExactlyOneRow(t *testing.T) {
	store := newMemStore()
	enforcer := NewEnforcer(store)
	leadID := uuid.New()
	ctx := context.Background()

	transitions := []struct{ old, new string }{
		{"", "new"},
		{"new", "contacted"},
		{"contacted", "qualified"},
	}
	for _, tr := range transitions {
		row := Row{OwnerID: leadID, New: tr.new}
		if tr.old != "" {
			row.Old = strPtr(tr.old)
		}
		if err := enforcer.Replace(ctx, LeadStatus, row); err != nil {
			t.Fatalf("replace %s: %v", tr.new, err)
		}
		if got := store.count(LeadStatus, leadID); got != 1 {
			t.Fatalf("expected 1 history row after %s, got %d", tr.new, got)
		}
	}

	latest := store.rows[LeadStatus.name][leadID][0]
	if latest.New != "qualified" || latest.Old == nil || *latest.Old != "contacted" {
		t.Fatalf("expected latest transition contacted->qualified, got %+v", latest)
	}
}

func TestReplaceIsolatesOwnersAndTables(t *testing.T) {
	store := newMemStore()
	enforcer := NewEnforcer(store)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	_ = enforcer.Replace(ctx, LeadStatus, Row{OwnerID: a, New: "new"})
	_ = enforcer.Replace(ctx, LeadStatus, Row{OwnerID: b, New: "new"})
	_ = enforcer.Replace(ctx, DealStage, Row{OwnerID: a, New: "approved"})

	if store.count(LeadStatus, a) != 1 || store.count(LeadStatus, b) != 1 || store.count(DealStage, a) != 1 {
		t.Fatalf("unexpected row counts: %+v", store.rows)
	}
}

func TestReplaceRollsBackOnInsertFailure(t *testing.T) {
	store := newMemStore()
	enforcer := NewEnforcer(store)
	ctx := context.Background()
	dealID := uuid.New()

	if err := enforcer.Replace(ctx, DealStage, Row{OwnerID: dealID, New: "new_deal"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	store.failWrite = true
	if err := enforcer.Replace(ctx, DealStage, Row{OwnerID: dealID, New: "approved"}); err == nil {
		t.Fatal("expected replace to fail")
	}
	if got := store.count(DealStage, dealID); got != 1 {
		t.Fatalf("expected prior row to survive failed replace, got %d rows", got)
	}
}

func TestReplaceValidatesInput(t *testing.T) {
	enforcer := NewEnforcer(newMemStore())

	err := enforcer.Replace(context.Background(), LeadStatus, Row{New: "new"})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for missing owner, got %v", err)
	}
	err = enforcer.Replace(context.Background(), LeadStatus, Row{OwnerID: uuid.New()})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for missing value, got %v", err)
	}
}

func TestClearRemovesAllRows(t *testing.T) {
	store := newMemStore()
	enforcer := NewEnforcer(store)
	ctx := context.Background()
	leadID := uuid.New()

	_ = enforcer.Replace(ctx, LeadStatus, Row{OwnerID: leadID, New: "contacted"})
	if err := enforcer.Clear(ctx, LeadStatus, leadID); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got := store.count(LeadStatus, leadID); got != 0 {
		t.Fatalf("expected no rows after clear, got %d", got)
	}
}
