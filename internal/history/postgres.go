package history

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore implements Store on a pgx pool or on an open transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

// NewPostgresStore creates a pool-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) db() execer {
	if s.tx != nil {
		return s.tx
	}
	return s.pool
}

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if s.tx != nil {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&PostgresStore{pool: s.pool, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit history tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteAll(ctx context.Context, table Table, ownerID uuid.UUID) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, table.name, table.ownerColumn)
	tag, err := s.db().Exec(ctx, query, ownerID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) Insert(ctx context.Context, table Table, row Row) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, %s, %s, %s, changed_by, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, table.name, table.ownerColumn, table.oldColumn, table.newColumn)
	_, err := s.db().Exec(ctx, query, row.ID, row.OwnerID, row.Old, row.New, row.ChangedBy, row.Notes, row.CreatedAt)
	return err
}
