package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"

	"github.com/recollector/auth-service/internal/utils"
)

// RateLimitRepository keeps fixed-window counters keyed by an arbitrary string.
type RateLimitRepository interface {
	// IncrementAndCheck bumps the counter for key, starting a fresh window
	// when the old one has lapsed, and reports whether the new count is
	// within limit.
	IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (bool, error)

	// CleanupExpired removes counters whose window has closed.
	CleanupExpired(ctx context.Context) (int64, error)
}

type rateLimitRepository struct {
	db    DB
	clock utils.Clock
}

func NewRateLimitRepository(db DB, clock utils.Clock) RateLimitRepository {
	if clock == nil {
		clock = utils.SystemClock
	}
	return &rateLimitRepository{db: db, clock: clock}
}

func (r *rateLimitRepository) IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := r.clock.Now()
	query := `
        INSERT INTO rate_limit_attempts (key, attempt_count, expires_at)
        VALUES ($1, 1, $2)
        ON CONFLICT (key) DO UPDATE
        SET attempt_count = CASE
            WHEN rate_limit_attempts.expires_at <= $3 THEN 1
            ELSE rate_limit_attempts.attempt_count + 1
        END,
        expires_at = CASE
            WHEN rate_limit_attempts.expires_at <= $3 THEN EXCLUDED.expires_at
            ELSE rate_limit_attempts.expires_at
        END
        RETURNING attempt_count
    `

	var count int
	err := r.db.QueryRow(ctx, query, key, now.Add(window), now).Scan(&count)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}
	return count <= limit, nil
}

func (r *rateLimitRepository) CleanupExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM rate_limit_attempts WHERE expires_at <= $1`, r.clock.Now())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
