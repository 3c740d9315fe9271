package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"portal_usap_backend/internal/deals/domain"
	"portal_usap_backend/platform/apperr"
	"portal_usap_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dealNotFoundMsg = "deal not found"

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// DealRepository is the store used by webhooks, sync and the portal.
type DealRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Deal, error)
	GetByExternalID(ctx context.Context, externalID string) (domain.Deal, error)
	Create(ctx context.Context, deal domain.Deal) (domain.Deal, error)
	Update(ctx context.Context, deal domain.Deal) (domain.Deal, error)
	ListByPartner(ctx context.Context, params ListParams) ([]domain.Deal, int, error)
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ DealRepository = (*Repository)(nil)

// ListParams filters a partner's deals.
type ListParams struct {
	PartnerID uuid.UUID
	Stage     string
	Page      int
	PageSize  int
}

const dealColumns = `
	id, external_id, partner_id, created_by, converted_from_lead_id, name,
	first_name, last_name, email, phone, company, stage, external_stage_raw,
	approval_date, last_sync_at, version, created_at, updated_at`

func scanDeal(row pgx.Row) (domain.Deal, error) {
	var d domain.Deal
	var stage string
	err := row.Scan(
		&d.ID,
		&d.ExternalID,
		&d.PartnerID,
		&d.CreatedBy,
		&d.ConvertedFromLeadID,
		&d.Name,
		&d.FirstName,
		&d.LastName,
		&d.Email,
		&d.Phone,
		&d.Company,
		&stage,
		&d.ExternalStageRaw,
		&d.ApprovalDate,
		&d.LastSyncAt,
		&d.Version,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	d.Stage = domain.Stage(stage)
	return d, err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (domain.Deal, error) {
	deal, err := scanDeal(r.pool.QueryRow(ctx, `SELECT `+dealColumns+` FROM deals WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Deal{}, apperr.NotFound(dealNotFoundMsg).WithOp("deals.get_by_id")
		}
		return domain.Deal{}, fmt.Errorf("get deal: %w", err)
	}
	return deal, nil
}

func (r *Repository) GetByExternalID(ctx context.Context, externalID string) (domain.Deal, error) {
	deal, err := scanDeal(r.pool.QueryRow(ctx, `SELECT `+dealColumns+` FROM deals WHERE external_id = $1`, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Deal{}, apperr.NotFound(dealNotFoundMsg).WithOp("deals.get_by_external_id")
		}
		return domain.Deal{}, fmt.Errorf("get deal by external id: %w", err)
	}
	return deal, nil
}

// Create inserts a deal. A concurrent insert of the same external id surfaces
// as a Conflict so the caller can fall back to the update path.
func (r *Repository) Create(ctx context.Context, deal domain.Deal) (domain.Deal, error) {
	if deal.ID == uuid.Nil {
		deal.ID = uuid.New()
	}
	now := time.Now().UTC()

	created, err := scanDeal(r.pool.QueryRow(ctx, `
		INSERT INTO deals (
			id, external_id, partner_id, created_by, converted_from_lead_id, name,
			first_name, last_name, email, phone, company, stage, external_stage_raw,
			approval_date, last_sync_at, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 1, $16, $16)
		RETURNING `+dealColumns,
		deal.ID,
		deal.ExternalID,
		deal.PartnerID,
		deal.CreatedBy,
		deal.ConvertedFromLeadID,
		deal.Name,
		deal.FirstName,
		deal.LastName,
		deal.Email,
		deal.Phone,
		deal.Company,
		string(deal.Stage),
		deal.ExternalStageRaw,
		deal.ApprovalDate,
		deal.LastSyncAt,
		now,
	))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return domain.Deal{}, apperr.Wrap(apperr.KindConflict, "deal already exists for external id", err).WithOp("deals.create")
		}
		return domain.Deal{}, fmt.Errorf("create deal: %w", err)
	}
	return created, nil
}

// Update is a compare-and-set on Version; see leads repository Update.
func (r *Repository) Update(ctx context.Context, deal domain.Deal) (domain.Deal, error) {
	updated, err := scanDeal(r.pool.QueryRow(ctx, `
		UPDATE deals SET
			partner_id = $3,
			created_by = $4,
			converted_from_lead_id = $5,
			name = $6,
			first_name = $7,
			last_name = $8,
			email = $9,
			phone = $10,
			company = $11,
			stage = $12,
			external_stage_raw = $13,
			approval_date = $14,
			last_sync_at = $15,
			version = version + 1,
			updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING `+dealColumns,
		deal.ID,
		deal.Version,
		deal.PartnerID,
		deal.CreatedBy,
		deal.ConvertedFromLeadID,
		deal.Name,
		deal.FirstName,
		deal.LastName,
		deal.Email,
		deal.Phone,
		deal.Company,
		string(deal.Stage),
		deal.ExternalStageRaw,
		deal.ApprovalDate,
		deal.LastSyncAt,
	))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Deal{}, fmt.Errorf("update deal: %w", err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM deals WHERE id = $1)`, deal.ID).Scan(&exists); err != nil {
		return domain.Deal{}, fmt.Errorf("check deal exists: %w", err)
	}
	if !exists {
		return domain.Deal{}, apperr.NotFound(dealNotFoundMsg).WithOp("deals.update")
	}
	return domain.Deal{}, db.ErrVersionConflict
}

func (r *Repository) ListByPartner(ctx context.Context, params ListParams) ([]domain.Deal, int, error) {
	page := params.Page
	if page < 1 {
		page = 1
	}
	size := params.PageSize
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM deals WHERE partner_id = $1 AND ($2 = '' OR stage = $2)
	`, params.PartnerID, params.Stage).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count deals: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+dealColumns+`
		FROM deals
		WHERE partner_id = $1 AND ($2 = '' OR stage = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, params.PartnerID, params.Stage, size, (page-1)*size)
	if err != nil {
		return nil, 0, fmt.Errorf("list deals: %w", err)
	}
	defer rows.Close()

	deals := make([]domain.Deal, 0, size)
	for rows.Next() {
		deal, err := scanDeal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan deal: %w", err)
		}
		deals = append(deals, deal)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate deals: %w", err)
	}
	return deals, total, nil
}
