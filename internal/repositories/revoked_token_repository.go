package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/recollector/auth-service/internal/models"
	"github.com/recollector/auth-service/internal/utils"
)

// RevokedTokenRepository is the revocation list. Every infrastructure failure
// is wrapped in utils.ErrRevocationStoreUnavailable while keeping the driver
// error reachable through errors.Is / errors.As.
type RevokedTokenRepository interface {
	// IsRevoked reports whether rawToken has been revoked for subjectID.
	// Rows are matched regardless of their expires_at.
	IsRevoked(ctx context.Context, subjectID uuid.UUID, rawToken string) (bool, error)

	// Revoke records rawToken for subjectID. Revoking the same pair twice
	// leaves exactly one row.
	Revoke(ctx context.Context, subjectID uuid.UUID, rawToken string, expiresAt time.Time) error

	// SweepExpired deletes every row whose expires_at is strictly before
	// the given instant and returns how many went.
	SweepExpired(ctx context.Context, before time.Time) (int64, error)
}

type revokedTokenRepo struct {
	db    DB
	clock utils.Clock
}

func NewRevokedTokenRepository(db DB, clock utils.Clock) RevokedTokenRepository {
	if clock == nil {
		clock = utils.SystemClock
	}
	return &revokedTokenRepo{db: db, clock: clock}
}

func (r *revokedTokenRepo) IsRevoked(ctx context.Context, subjectID uuid.UUID, rawToken string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM revoked_tokens
			WHERE subject_id = $1 AND token = $2
		)
	`
	var exists bool
	if err := r.db.QueryRow(ctx, query, subjectID, rawToken).Scan(&exists); err != nil {
		return false, storeErr("is-revoked", err)
	}
	return exists, nil
}

func (r *revokedTokenRepo) Revoke(ctx context.Context, subjectID uuid.UUID, rawToken string, expiresAt time.Time) error {
	if rawToken == "" {
		return fmt.Errorf("revoke: empty token")
	}
	if len(rawToken) > models.MaxRevokedTokenLength {
		return fmt.Errorf("revoke: token is %d chars, limit %d", len(rawToken), models.MaxRevokedTokenLength)
	}

	already, err := r.IsRevoked(ctx, subjectID, rawToken)
	if err != nil {
		return err
	}
	if already {
		utils.Logger.Debugf("token %s already revoked for %s", utils.TokenFingerprint(rawToken), subjectID)
		return nil
	}

	// The unique index settles the race between two concurrent revokes that
	// both passed the check above.
	query := `
		INSERT INTO revoked_tokens (id, subject_id, token, expires_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (subject_id, token) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, query, uuid.New(), subjectID, rawToken, expiresAt.UTC(), r.clock.Now()); err != nil {
		return storeErr("revoke", err)
	}
	return nil
}

func (r *revokedTokenRepo) SweepExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM revoked_tokens WHERE expires_at < $1`, before.UTC())
	if err != nil {
		return 0, storeErr("sweep", err)
	}
	return tag.RowsAffected(), nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", utils.ErrRevocationStoreUnavailable, op, err)
}
