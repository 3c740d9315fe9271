package history

import (
	"context"
	"fmt"
	"time"

	"portal_usap_backend/platform/apperr"

	"github.com/google/uuid"
)

// Store is the storage capability the enforcer needs. WithinTx must run fn
// against a Store bound to a single transaction.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Store) error) error
	DeleteAll(ctx context.Context, table Table, ownerID uuid.UUID) (int64, error)
	Insert(ctx context.Context, table Table, row Row) error
}

// Enforcer applies the one-row-per-entity rule.
type Enforcer struct {
	store Store
	now   func() time.Time
}

// NewEnforcer creates an enforcer over store.
func NewEnforcer(store Store) *Enforcer {
	return &Enforcer{store: store, now: time.Now}
}

// Replace deletes every history row for row.OwnerID in table and inserts row,
// inside one transaction.
func (e *Enforcer) Replace(ctx context.Context, table Table, row Row) error {
	if row.OwnerID == uuid.Nil {
		return apperr.Validation("history owner id is required").WithOp("history.replace")
	}
	if row.New == "" {
		return apperr.Validation("history new value is required").WithOp("history.replace")
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = e.now().UTC()
	}

	return e.store.WithinTx(ctx, func(tx Store) error {
		if _, err := tx.DeleteAll(ctx, table, row.OwnerID); err != nil {
			return fmt.Errorf("clear %s: %w", table.name, err)
		}
		if err := tx.Insert(ctx, table, row); err != nil {
			return fmt.Errorf("insert %s: %w", table.name, err)
		}
		return nil
	})
}

// Clear removes all history rows for ownerID. Used when a lead is consumed by
// a conversion.
func (e *Enforcer) Clear(ctx context.Context, table Table, ownerID uuid.UUID) error {
	if _, err := e.store.DeleteAll(ctx, table, ownerID); err != nil {
		return fmt.Errorf("clear %s: %w", table.name, err)
	}
	return nil
}
