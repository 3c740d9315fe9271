package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"portal_usap_backend/internal/leads/domain"
	"portal_usap_backend/platform/apperr"
	"portal_usap_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const leadNotFoundMsg = "lead not found"

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListParams filters a partner's leads.
type ListParams struct {
	PartnerID uuid.UUID
	Status    string
	Page      int
	PageSize  int
}

const leadColumns = `
	id, external_id, partner_id, created_by, first_name, last_name, email, phone, company,
	status, external_status_raw, sync_state, last_sync_at, version, created_at, updated_at`

func scanLead(row pgx.Row) (domain.Lead, error) {
	var l domain.Lead
	var status, syncState string
	err := row.Scan(
		&l.ID,
		&l.ExternalID,
		&l.PartnerID,
		&l.CreatedBy,
		&l.FirstName,
		&l.LastName,
		&l.Email,
		&l.Phone,
		&l.Company,
		&status,
		&l.ExternalStatusRaw,
		&syncState,
		&l.LastSyncAt,
		&l.Version,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	l.Status = domain.Status(status)
	l.SyncState = domain.SyncState(syncState)
	return l, err
}

func (r *Repository) getOne(ctx context.Context, op, where string, args ...any) (domain.Lead, error) {
	lead, err := scanLead(r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE `+where, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Lead{}, apperr.NotFound(leadNotFoundMsg).WithOp(op)
		}
		return domain.Lead{}, fmt.Errorf("%s: %w", op, err)
	}
	return lead, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	return r.getOne(ctx, "leads.get_by_id", `id = $1`, id)
}

func (r *Repository) GetByExternalID(ctx context.Context, externalID string) (domain.Lead, error) {
	return r.getOne(ctx, "leads.get_by_external_id", `external_id = $1`, externalID)
}

// FindByEmail matches case-insensitively within one partner. When several
// leads share the address the newest wins.
func (r *Repository) FindByEmail(ctx context.Context, partnerID uuid.UUID, email string) (domain.Lead, error) {
	return r.getOne(ctx, "leads.find_by_email",
		`partner_id = $1 AND lower(email) = lower($2) ORDER BY created_at DESC LIMIT 1`,
		partnerID, strings.TrimSpace(email))
}

func (r *Repository) FindByNameAndCompany(ctx context.Context, partnerID uuid.UUID, firstName, lastName, company string) (domain.Lead, error) {
	return r.getOne(ctx, "leads.find_by_name_company",
		`partner_id = $1 AND lower(first_name) = lower($2) AND lower(last_name) = lower($3) AND lower(company) = lower($4)
		 ORDER BY created_at DESC LIMIT 1`,
		partnerID, strings.TrimSpace(firstName), strings.TrimSpace(lastName), strings.TrimSpace(company))
}

func (r *Repository) FindLatestByName(ctx context.Context, partnerID uuid.UUID, firstName, lastName string) (domain.Lead, error) {
	return r.getOne(ctx, "leads.find_latest_by_name",
		`partner_id = $1 AND lower(first_name) = lower($2) AND lower(last_name) = lower($3)
		 ORDER BY created_at DESC LIMIT 1`,
		partnerID, strings.TrimSpace(firstName), strings.TrimSpace(lastName))
}

func (r *Repository) Create(ctx context.Context, lead domain.Lead) (domain.Lead, error) {
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	now := time.Now().UTC()

	created, err := scanLead(r.pool.QueryRow(ctx, `
		INSERT INTO leads (
			id, external_id, partner_id, created_by, first_name, last_name, email, phone, company,
			status, external_status_raw, sync_state, last_sync_at, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1, $14, $14)
		RETURNING `+leadColumns,
		lead.ID,
		lead.ExternalID,
		lead.PartnerID,
		lead.CreatedBy,
		lead.FirstName,
		lead.LastName,
		lead.Email,
		lead.Phone,
		lead.Company,
		string(lead.Status),
		lead.ExternalStatusRaw,
		string(lead.SyncState),
		lead.LastSyncAt,
		now,
	))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return domain.Lead{}, apperr.Wrap(apperr.KindConflict, "lead already exists for external id", err).WithOp("leads.create")
		}
		return domain.Lead{}, fmt.Errorf("create lead: %w", err)
	}
	return created, nil
}

// Update writes every mutable field if the stored version still equals
// lead.Version, and bumps the version. A stale version returns
// db.ErrVersionConflict; a missing row returns NotFound.
func (r *Repository) Update(ctx context.Context, lead domain.Lead) (domain.Lead, error) {
	updated, err := scanLead(r.pool.QueryRow(ctx, `
		UPDATE leads SET
			external_id = $3,
			first_name = $4,
			last_name = $5,
			email = $6,
			phone = $7,
			company = $8,
			status = $9,
			external_status_raw = $10,
			sync_state = $11,
			last_sync_at = $12,
			version = version + 1,
			updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING `+leadColumns,
		lead.ID,
		lead.Version,
		lead.ExternalID,
		lead.FirstName,
		lead.LastName,
		lead.Email,
		lead.Phone,
		lead.Company,
		string(lead.Status),
		lead.ExternalStatusRaw,
		string(lead.SyncState),
		lead.LastSyncAt,
	))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		if db.IsUniqueViolation(err) {
			return domain.Lead{}, apperr.Wrap(apperr.KindConflict, "external id already linked to another lead", err).WithOp("leads.update")
		}
		return domain.Lead{}, fmt.Errorf("update lead: %w", err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM leads WHERE id = $1)`, lead.ID).Scan(&exists); err != nil {
		return domain.Lead{}, fmt.Errorf("check lead exists: %w", err)
	}
	if !exists {
		return domain.Lead{}, apperr.NotFound(leadNotFoundMsg).WithOp("leads.update")
	}
	return domain.Lead{}, db.ErrVersionConflict
}

// Delete hard-deletes the lead. Deleting an already-deleted lead is not an error.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM leads WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete lead: %w", err)
	}
	return nil
}

func (r *Repository) ListByPartner(ctx context.Context, params ListParams) ([]domain.Lead, int, error) {
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
		SELECT COUNT(*) FROM leads WHERE partner_id = $1 AND ($2 = '' OR status = $2)
	`, params.PartnerID, params.Status).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count leads: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE partner_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, params.PartnerID, params.Status, size, (page-1)*size)
	if err != nil {
		return nil, 0, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	leads := make([]domain.Lead, 0, size)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan lead: %w", err)
		}
		leads = append(leads, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate leads: %w", err)
	}
	return leads, total, nil
}
