package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/recollector/auth-service/internal/models"
	"github.com/recollector/auth-service/internal/repositories"
	"github.com/recollector/auth-service/internal/tokens"
	"github.com/recollector/auth-service/internal/utils"
)

// RevocationService turns logout, refresh rotation and credential changes into
// rows in the revocation list.
type RevocationService interface {
	// RevokePresented revokes the given access and refresh tokens for p.
	// Failures are logged and swallowed; empty tokens are skipped.
	RevokePresented(ctx context.Context, p *models.Principal, accessToken, refreshToken string)

	// Logout is RevokePresented under its own log line.
	Logout(ctx context.Context, p *models.Principal, accessToken, refreshToken string)

	// Refresh checks refreshToken against subject, revokes the presented
	// access token and mints a new one. The refresh token is handed back
	// unchanged. A replayed (revoked) refresh token revokes the pair again
	// and fails with utils.ErrAuthenticationFailed.
	Refresh(ctx context.Context, subject, accessToken, refreshToken string) (models.TokenPair, error)
}

type revocationService struct {
	principals repositories.PrincipalRepository
	revoked    repositories.RevokedTokenRepository
	jwt        JWTService
	clock      utils.Clock
}

func NewRevocationService(
	principals repositories.PrincipalRepository,
	revoked repositories.RevokedTokenRepository,
	jwt JWTService,
	clock utils.Clock,
) RevocationService {
	if clock == nil {
		clock = utils.SystemClock
	}
	return &revocationService{principals: principals, revoked: revoked, jwt: jwt, clock: clock}
}

func (s *revocationService) Logout(ctx context.Context, p *models.Principal, accessToken, refreshToken string) {
	utils.Logger.WithField("principal_id", p.ID).Info("logging out principal")
	s.RevokePresented(ctx, p, accessToken, refreshToken)
}

func (s *revocationService) RevokePresented(ctx context.Context, p *models.Principal, accessToken, refreshToken string) {
	if accessToken != "" {
		if err := s.revokeAccess(ctx, p, accessToken); err != nil {
			logRevokeFailure(err, p, "access", accessToken)
		}
	}
	if refreshToken != "" {
		if err := s.revokeRefresh(ctx, p, refreshToken); err != nil {
			logRevokeFailure(err, p, "refresh", refreshToken)
		}
	}
}

func (s *revocationService) Refresh(ctx context.Context, subject, accessToken, refreshToken string) (models.TokenPair, error) {
	if res := s.jwt.Refresh().Check(refreshToken, subject); res != tokens.Valid {
		utils.Logger.WithFields(logrus.Fields{
			"result":  res.String(),
			"refresh": utils.TokenFingerprint(refreshToken),
		}).Info("refresh rejected: refresh token did not validate")
		return models.TokenPair{}, utils.ErrAuthenticationFailed
	}

	p, err := s.principals.GetByEmail(ctx, subject)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("%w: principal lookup: %w", utils.ErrRevocationStoreUnavailable, err)
	}
	if p == nil {
		utils.Logger.Info("refresh rejected: subject has no principal")
		return models.TokenPair{}, utils.ErrAuthenticationFailed
	}

	refreshClaims, err := s.jwt.Refresh().Decode(refreshToken)
	if err != nil {
		return models.TokenPair{}, utils.ErrAuthenticationFailed
	}
	if p.Predates(refreshClaims.IssuedAt) {
		utils.Logger.WithField("principal_id", p.ID).
			Info("refresh rejected: refresh token was issued before the account existed")
		return models.TokenPair{}, utils.ErrAuthenticationFailed
	}

	revoked, err := s.revoked.IsRevoked(ctx, p.ID, refreshToken)
	if err != nil {
		return models.TokenPair{}, err
	}
	if revoked {
		utils.Logger.WithField("principal_id", p.ID).
			Warn("revoked refresh token presented; revoking the presented pair again")
		s.RevokePresented(ctx, p, accessToken, refreshToken)
		return models.TokenPair{}, utils.ErrAuthenticationFailed
	}

	if accessToken != "" {
		if err := s.revokeAccess(ctx, p, accessToken); err != nil {
			return models.TokenPair{}, err
		}
	}

	newAccess, accessExp, err := s.rotateAccess(ctx, p, accessToken)
	if err != nil {
		return models.TokenPair{}, err
	}

	return models.TokenPair{
		AccessToken:      newAccess,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshClaims.ExpiresAt.Unix(),
	}, nil
}

// rotateAccess mints the replacement access token. Encoding is deterministic
// per second, so a burst of refreshes would otherwise hand back the presented
// token or one an earlier rotation already revoked; it steps forward a second
// at a time until the token is neither.
func (s *revocationService) rotateAccess(ctx context.Context, p *models.Principal, previous string) (string, int64, error) {
	at := s.clock.Now()
	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		tok, exp, err := s.jwt.IssueAccessTokenAt(p.Email, at)
		if err != nil {
			return "", 0, err
		}
		at = at.Add(time.Second)
		if tok == previous {
			continue
		}

		revoked, err := s.revoked.IsRevoked(ctx, p.ID, tok)
		if err != nil {
			return "", 0, err
		}
		if !revoked {
			return tok, exp, nil
		}
	}
	return "", 0, errors.New("could not mint an access token that is not already revoked")
}

func (s *revocationService) revokeAccess(ctx context.Context, p *models.Principal, raw string) error {
	exp := expiryOrFallback(s.jwt.Access(), raw, utils.Adjust(s.clock.Now(), int64(s.jwt.AccessTTL()/time.Minute), utils.Minutes))
	return s.revoked.Revoke(ctx, p.ID, raw, exp)
}

func (s *revocationService) revokeRefresh(ctx context.Context, p *models.Principal, raw string) error {
	exp := expiryOrFallback(s.jwt.Refresh(), raw, utils.Adjust(s.clock.Now(), int64(s.jwt.RefreshTTL()/time.Hour), utils.Hours))
	return s.revoked.Revoke(ctx, p.ID, raw, exp)
}

// expiryOrFallback reads the token's own expiry so the row outlives the
// token exactly; undecodable tokens fall back to a full TTL from now.
func expiryOrFallback[K tokens.SigningKey](v *tokens.Validator[K], raw string, fallback time.Time) time.Time {
	c, err := v.Decode(raw)
	if err != nil || c.ExpiresAt.IsZero() {
		return fallback
	}
	return c.ExpiresAt
}

func logRevokeFailure(err error, p *models.Principal, class, raw string) {
	entry := utils.Logger.WithError(err).WithFields(logrus.Fields{
		"principal_id": p.ID,
		"class":        class,
		"token":        utils.TokenFingerprint(raw),
	})
	if errors.Is(err, utils.ErrRevocationStoreUnavailable) {
		entry.Error("revocation store unavailable; token not revoked")
		return
	}
	entry.Warn("failed to revoke token")
}
