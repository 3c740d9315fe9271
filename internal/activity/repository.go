package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Repository persists activity entries. There is no update or delete.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an activity repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListParams filters the activity feed.
type ListParams struct {
	PartnerID  *uuid.UUID
	EntityType string
	Limit      int
}

func (r *Repository) Append(ctx context.Context, e Entry) error {
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal activity metadata: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO activity_logs (id, partner_id, user_id, entity_type, entity_id, action, description, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.PartnerID, e.UserID, e.EntityType, e.EntityID, e.Action, e.Description, metaJSON, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (r *Repository) List(ctx context.Context, params ListParams) ([]Entry, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, partner_id, user_id, entity_type, entity_id, action, description, metadata, created_at
		FROM activity_logs
		WHERE ($1::uuid IS NULL OR partner_id = $1)
		  AND ($2 = '' OR entity_type = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, params.PartnerID, params.EntityType, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		var metaJSON []byte
		if err := rows.Scan(&e.ID, &e.PartnerID, &e.UserID, &e.EntityType, &e.EntityID, &e.Action, &e.Description, &metaJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode activity metadata: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}
	return entries, nil
}
