package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgconn"
	"github.com/robfig/cron/v3"

	"github.com/recollector/auth-service/internal/repositories"
	"github.com/recollector/auth-service/internal/utils"
)

// ────────────────────────────────────────────────────────────
// Retry policy: one retry on transient network errors (EOF,
// closed connection) after a short pause.
// ────────────────────────────────────────────────────────────
var cleanupRetryDelay = 3 * time.Second

// TokenCleanupService evicts revocation rows whose token has expired.
// Start and Stop belong to the process lifecycle; RunOnce is one sweep.
type TokenCleanupService interface {
	Start() error
	Stop(ctx context.Context) error
	RunOnce(ctx context.Context) (int64, error)
}

type tokenCleanupService struct {
	revoked  repositories.RevokedTokenRepository
	clock    utils.Clock
	schedule string

	mu      sync.Mutex
	cron    *cron.Cron
	baseCtx context.Context
	cancel  context.CancelFunc
}

func NewTokenCleanupService(
	revoked repositories.RevokedTokenRepository,
	clock utils.Clock,
	schedule string,
) TokenCleanupService {
	if clock == nil {
		clock = utils.SystemClock
	}
	return &tokenCleanupService{revoked: revoked, clock: clock, schedule: schedule}
}

// runWithRetry executes op(ctx) and, if it returns a transient network
// error (EOF, pgconn safe-to-retry, or the common closed-connection
// message), waits a moment then retries once.
func (s *tokenCleanupService) runWithRetry(
	ctx context.Context,
	op func(context.Context) error,
) error {
	if err := op(ctx); err != nil {
		if errors.Is(err, io.EOF) || pgconn.SafeToRetry(err) ||
			strings.Contains(err.Error(), "connection was closed") {
			utils.Logger.WithError(err).Warn("token cleanup hit transient DB error; retrying once")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cleanupRetryDelay):
			}
			return op(ctx)
		}
		return err
	}
	return nil
}

// RunOnce deletes every row that expired strictly before now.
func (s *tokenCleanupService) RunOnce(ctx context.Context) (int64, error) {
	var deleted int64
	err := s.runWithRetry(ctx, func(ctx context.Context) error {
		n, err := s.revoked.SweepExpired(ctx, s.clock.Now())
		deleted = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (s *tokenCleanupService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("token cleanup already started")
	}

	c := cron.New()
	ctx, cancel := context.WithCancel(context.Background())
	_, err := c.AddFunc(s.schedule, func() {
		n, err := s.RunOnce(ctx)
		if err != nil {
			utils.Logger.WithError(err).Error("Revoked token sweep failed")
			return
		}
		if n > 0 {
			utils.Logger.Infof("Revoked token sweep removed %d expired rows", n)
		} else {
			utils.Logger.Debug("Revoked token sweep found nothing to remove")
		}
	})
	if err != nil {
		cancel()
		return err
	}

	c.Start()
	s.cron, s.baseCtx, s.cancel = c, ctx, cancel
	utils.Logger.Infof("Revoked token sweeper scheduled (%s)", s.schedule)
	return nil
}

// Stop cancels any in-flight sweep and waits for it, or for ctx.
func (s *tokenCleanupService) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel, s.baseCtx = nil, nil, nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	cancel()
	done := c.Stop()
	select {
	case <-done.Done():
		utils.Logger.Info("Revoked token sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
