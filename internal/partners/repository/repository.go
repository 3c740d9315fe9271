package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"portal_usap_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const partnerNotFoundMsg = "partner not found"
const userNotFoundMsg = "user not found"

// Repository provides database operations for partners and their users.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new partners repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Partner is the synchronization unit. ExternalID is the CRM vendor id.
type Partner struct {
	ID         uuid.UUID
	ExternalID *string
	Name       string
	Email      string
	Approved   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// UserContact is the minimum needed to address a notification.
type UserContact struct {
	ID        uuid.UUID
	Email     string
	FirstName *string
}

// ProvisionParams describes a partner and its first admin user.
type ProvisionParams struct {
	ExternalID        string
	Name              string
	Email             string
	AdminPasswordHash string
}

// ProvisionResult reports what ProvisionWithAdmin did.
type ProvisionResult struct {
	Partner     Partner
	AdminUserID uuid.UUID
	Created     bool
}

const partnerColumns = `id, external_id, name, email, approved, created_at, updated_at`

func scanPartner(row pgx.Row) (Partner, error) {
	var p Partner
	err := row.Scan(&p.ID, &p.ExternalID, &p.Name, &p.Email, &p.Approved, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Partner, error) {
	p, err := scanPartner(r.pool.QueryRow(ctx, `SELECT `+partnerColumns+` FROM partners WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Partner{}, apperr.NotFound(partnerNotFoundMsg)
		}
		return Partner{}, fmt.Errorf("get partner: %w", err)
	}
	return p, nil
}

func (r *Repository) GetByExternalID(ctx context.Context, externalID string) (Partner, error) {
	p, err := scanPartner(r.pool.QueryRow(ctx, `SELECT `+partnerColumns+` FROM partners WHERE external_id = $1`, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Partner{}, apperr.NotFound(partnerNotFoundMsg)
		}
		return Partner{}, fmt.Errorf("get partner by external id: %w", err)
	}
	return p, nil
}

// ListSyncable returns approved partners that are linked to a CRM vendor.
func (r *Repository) ListSyncable(ctx context.Context) ([]Partner, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+partnerColumns+`
		FROM partners
		WHERE approved = true AND external_id IS NOT NULL AND external_id <> ''
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list syncable partners: %w", err)
	}
	defer rows.Close()

	partners := make([]Partner, 0)
	for rows.Next() {
		p, err := scanPartner(rows)
		if err != nil {
			return nil, fmt.Errorf("scan partner: %w", err)
		}
		partners = append(partners, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate partners: %w", err)
	}
	return partners, nil
}

// AdminUserID returns the partner's designated admin: the oldest active
// partner_admin. A nil result with a nil error means the partner has none.
func (r *Repository) AdminUserID(ctx context.Context, partnerID uuid.UUID) (*uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		SELECT id FROM users
		WHERE partner_id = $1 AND role = 'partner_admin' AND is_active = true
		ORDER BY created_at ASC
		LIMIT 1
	`, partnerID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get partner admin: %w", err)
	}
	return &id, nil
}

func (r *Repository) GetUserContact(ctx context.Context, userID uuid.UUID) (UserContact, error) {
	var u UserContact
	err := r.pool.QueryRow(ctx, `SELECT id, email, first_name FROM users WHERE id = $1`, userID).
		Scan(&u.ID, &u.Email, &u.FirstName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserContact{}, apperr.NotFound(userNotFoundMsg)
		}
		return UserContact{}, fmt.Errorf("get user contact: %w", err)
	}
	return u, nil
}

// ProvisionWithAdmin creates a partner and its first admin user in one
// transaction. A partner that already exists for the external id is returned
// unchanged with Created=false, which makes webhook replays harmless.
func (r *Repository) ProvisionWithAdmin(ctx context.Context, params ProvisionParams) (ProvisionResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return ProvisionResult{}, fmt.Errorf("begin provision: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	partner, err := scanPartner(tx.QueryRow(ctx, `
		INSERT INTO partners (external_id, name, email, approved)
		VALUES ($1, $2, $3, true)
		ON CONFLICT (external_id) DO NOTHING
		RETURNING `+partnerColumns,
		params.ExternalID, params.Name, params.Email,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		existing, getErr := scanPartner(tx.QueryRow(ctx, `SELECT `+partnerColumns+` FROM partners WHERE external_id = $1`, params.ExternalID))
		if getErr != nil {
			return ProvisionResult{}, fmt.Errorf("load existing partner: %w", getErr)
		}
		var adminID uuid.UUID
		_ = tx.QueryRow(ctx, `
			SELECT id FROM users WHERE partner_id = $1 AND role = 'partner_admin'
			ORDER BY created_at ASC LIMIT 1
		`, existing.ID).Scan(&adminID)
		return ProvisionResult{Partner: existing, AdminUserID: adminID, Created: false}, nil
	}
	if err != nil {
		return ProvisionResult{}, fmt.Errorf("insert partner: %w", err)
	}

	var adminID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO users (partner_id, email, password_hash, first_name, role, must_reset_password)
		VALUES ($1, $2, $3, $4, 'partner_admin', true)
		RETURNING id
	`, partner.ID, params.Email, params.AdminPasswordHash, params.Name).Scan(&adminID)
	if err != nil {
		return ProvisionResult{}, fmt.Errorf("insert partner admin: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return ProvisionResult{}, fmt.Errorf("commit provision: %w", err)
	}

	return ProvisionResult{Partner: partner, AdminUserID: adminID, Created: true}, nil
}

func (r *Repository) List(ctx context.Context) ([]Partner, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+partnerColumns+` FROM partners ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list partners: %w", err)
	}
	defer rows.Close()

	partners := make([]Partner, 0)
	for rows.Next() {
		p, err := scanPartner(rows)
		if err != nil {
			return nil, fmt.Errorf("scan partner: %w", err)
		}
		partners = append(partners, p)
	}
	return partners, rows.Err()
}

func (r *Repository) SetApproved(ctx context.Context, id uuid.UUID, approved bool) (Partner, error) {
	p, err := scanPartner(r.pool.QueryRow(ctx, `
		UPDATE partners SET approved = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+partnerColumns, id, approved))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Partner{}, apperr.NotFound(partnerNotFoundMsg)
		}
		return Partner{}, fmt.Errorf("set partner approval: %w", err)
	}
	return p, nil
}
