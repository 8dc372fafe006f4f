package services

import (
	"context"

	"github.com/recollector/auth-service/internal/repositories"
	"github.com/recollector/auth-service/internal/utils"
)

// RateLimitCleanupService removes expired rate limit counters.
type RateLimitCleanupService interface {
	CleanupDaily(ctx context.Context) error
}

type rateLimitCleanupService struct {
	repo repositories.RateLimitRepository
}

func NewRateLimitCleanupService(repo repositories.RateLimitRepository) RateLimitCleanupService {
	return &rateLimitCleanupService{repo: repo}
}

func (s *rateLimitCleanupService) CleanupDaily(ctx context.Context) error {
	n, err := s.repo.CleanupExpired(ctx)
	if err != nil {
		utils.Logger.WithError(err).Error("Failed to cleanup expired rate_limit_attempts")
		return err
	}

	utils.Logger.Infof("Rate limit counter cleanup removed %d keys", n)
	return nil
}
