package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"

	"github.com/recollector/auth-service/internal/models"
	"github.com/recollector/auth-service/internal/utils"
)

const uniqueViolation = "23505"

/* ------------------------------------------------------------------
   Public interface
------------------------------------------------------------------ */

// PrincipalRepository persists accounts. Lookups return (nil, nil) when the
// principal does not exist.
type PrincipalRepository interface {
	Create(ctx context.Context, p *models.Principal) error

	GetByEmail(ctx context.Context, email string) (*models.Principal, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Principal, error)

	// UpdateWithRetry reloads the principal, applies mutate and writes it
	// back guarded by row_version.
	UpdateWithRetry(ctx context.Context, id uuid.UUID, mutate func(*models.Principal) error) error
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error

	// Delete removes the principal. Revoked token rows go with it (FK cascade).
	Delete(ctx context.Context, id uuid.UUID) error
}

/* ------------------------------------------------------------------
   Implementation
------------------------------------------------------------------ */

type principalRepo struct {
	db    DB
	clock utils.Clock
}

// NewPrincipalRepository stamps created_at from clock so account age and
// token issuance are measured on the same timeline.
func NewPrincipalRepository(db DB, clock utils.Clock) PrincipalRepository {
	if clock == nil {
		clock = utils.SystemClock
	}
	return &principalRepo{db: db, clock: clock}
}

/* ---------- Create ---------- */

func (r *principalRepo) Create(ctx context.Context, p *models.Principal) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	err := r.db.QueryRow(ctx, `
		INSERT INTO principals (
			id,email,password_hash,
			created_at,updated_at,row_version
		) VALUES (
			$1,$2,$3,
			$4,$4,1
		)
		RETURNING created_at,updated_at,row_version`,
		p.ID, p.Email, p.PasswordHash, r.clock.Now(),
	).Scan(&p.CreatedAt, &p.UpdatedAt, &p.RowVersion)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return utils.ErrEmailExists
	}
	return err
}

/* ---------- Reads ---------- */

func (r *principalRepo) GetByEmail(ctx context.Context, email string) (*models.Principal, error) {
	row := r.db.QueryRow(ctx, baseSelectPrincipal()+" WHERE email=$1", email)
	return scanPrincipalOrNil(row)
}

func (r *principalRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Principal, error) {
	row := r.db.QueryRow(ctx, baseSelectPrincipal()+" WHERE id=$1", id)
	return scanPrincipalOrNil(row)
}

/* ---------- Updates ---------- */

func (r *principalRepo) UpdateWithRetry(ctx context.Context, id uuid.UUID, mutate func(*models.Principal) error) error {
	getByID := func(ctx context.Context, _ string) (*models.Principal, error) {
		return r.GetByID(ctx, id)
	}
	err := WithRetry(ctx, 3, id.String(), getByID, r.updateIfVersion, mutate)
	if errors.Is(err, pgx.ErrNoRows) {
		return utils.ErrPrincipalNotFound
	}
	return err
}

func (r *principalRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE principals SET last_login=$1 WHERE id=$2`, at, id)
	return err
}

func (r *principalRepo) updateIfVersion(ctx context.Context, p *models.Principal, expected int64) (pgconn.CommandTag, error) {
	return r.db.Exec(ctx, `
		UPDATE principals SET
			email=$1,password_hash=$2,
			reset_token=$3,reset_token_expiry=$4,
			updated_at=NOW(),row_version=row_version+1
		WHERE id=$5 AND row_version=$6`,
		p.Email, p.PasswordHash,
		p.ResetToken, p.ResetTokenExpiry,
		p.ID, expected,
	)
}

/* ---------- Delete ---------- */

func (r *principalRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM principals WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return utils.ErrPrincipalNotFound
	}
	return nil
}

/* ---------- internals ---------- */

func baseSelectPrincipal() string {
	return `
		SELECT id,email,password_hash,
		       reset_token,reset_token_expiry,last_login,
		       row_version,created_at,updated_at
		FROM principals`
}

func scanPrincipalOrNil(row pgx.Row) (*models.Principal, error) {
	var p models.Principal
	err := row.Scan(
		&p.ID, &p.Email, &p.PasswordHash,
		&p.ResetToken, &p.ResetTokenExpiry, &p.LastLogin,
		&p.RowVersion, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan principal: %w", err)
	}
	return &p, nil
}
