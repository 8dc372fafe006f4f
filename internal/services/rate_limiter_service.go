package services

import (
	"context"
	"fmt"
	"time"

	"github.com/recollector/auth-service/internal/repositories"
	"github.com/recollector/auth-service/internal/utils"
)

// EmailLimits bounds how many password-reset emails go out per window.
type EmailLimits struct {
	Global     int
	PerIP      int
	PerAddress int
	Window     time.Duration
}

// RateLimiterService guards the outbound email path.
type RateLimiterService interface {
	CheckEmailRateLimits(ctx context.Context, ip, emailAddress string) error
}

type rateLimiterService struct {
	repo   repositories.RateLimitRepository
	limits EmailLimits
}

func NewRateLimiterService(repo repositories.RateLimitRepository, limits EmailLimits) RateLimiterService {
	return &rateLimiterService{repo: repo, limits: limits}
}

// CheckEmailRateLimits checks global, per-IP and per-address limits in that
// order and stops at the first one exceeded.
func (s *rateLimiterService) CheckEmailRateLimits(ctx context.Context, ip, emailAddress string) error {
	checks := []struct {
		key   string
		limit int
	}{
		{"email:global", s.limits.Global},
		{fmt.Sprintf("email:ip:%s", ip), s.limits.PerIP},
		{fmt.Sprintf("email:addr:%s", utils.NormalizeEmail(emailAddress)), s.limits.PerAddress},
	}

	for _, c := range checks {
		allowed, err := s.repo.IncrementAndCheck(ctx, c.key, c.limit, s.limits.Window)
		if err != nil {
			return err
		}
		if !allowed {
			utils.Logger.Warnf("Email rate limit exceeded (key: %s)", c.key)
			return utils.ErrRateLimitExceeded
		}
	}
	return nil
}
