package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/recollector/auth-service/internal/models"
	"github.com/recollector/auth-service/internal/repositories"
	"github.com/recollector/auth-service/internal/utils"
)

// maxIssueAttempts bounds how many seconds issueFreshPair and refresh
// rotation step past revoked duplicates.
const maxIssueAttempts = 5

// AuthService owns the password-account flows. Every flow that ends a session
// or changes credentials revokes the tokens the caller presented.
type AuthService interface {
	Register(ctx context.Context, email, password, confirm string) (models.TokenPair, error)
	Login(ctx context.Context, email, password string) (models.TokenPair, error)
	ChangePassword(ctx context.Context, p *models.Principal, current, password, confirm, accessToken, refreshToken string) error
	DeleteAccount(ctx context.Context, p *models.Principal, password, confirm, accessToken, refreshToken string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, resetToken, password, confirm string) error
}

type authService struct {
	principals repositories.PrincipalRepository
	revoked    repositories.RevokedTokenRepository
	jwt        JWTService
	revocation RevocationService
	mailer     Mailer
	clock      utils.Clock
	resetTTL   time.Duration
}

func NewAuthService(
	principals repositories.PrincipalRepository,
	revoked repositories.RevokedTokenRepository,
	jwt JWTService,
	revocation RevocationService,
	mailer Mailer,
	clock utils.Clock,
	resetTTL time.Duration,
) AuthService {
	if clock == nil {
		clock = utils.SystemClock
	}
	return &authService{
		principals: principals,
		revoked:    revoked,
		jwt:        jwt,
		revocation: revocation,
		mailer:     mailer,
		clock:      clock,
		resetTTL:   resetTTL,
	}
}

// ----------------------------------------------------------------------
// Register / Login
// ----------------------------------------------------------------------

func (s *authService) Register(ctx context.Context, email, password, confirm string) (models.TokenPair, error) {
	email = utils.NormalizeEmail(email)
	if err := utils.ValidateEmail(email); err != nil {
		return models.TokenPair{}, err
	}
	if err := utils.ValidateNewPassword(password, confirm); err != nil {
		return models.TokenPair{}, err
	}

	existing, err := s.principals.GetByEmail(ctx, email)
	if err != nil {
		return models.TokenPair{}, err
	}
	if existing != nil {
		return models.TokenPair{}, utils.ErrEmailExists
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return models.TokenPair{}, err
	}
	p := &models.Principal{ID: uuid.New(), Email: email, PasswordHash: hash}
	if err := s.principals.Create(ctx, p); err != nil {
		return models.TokenPair{}, err
	}

	utils.Logger.WithField("principal_id", p.ID).Info("registered new principal")
	return s.issueFreshPair(ctx, p)
}

func (s *authService) Login(ctx context.Context, email, password string) (models.TokenPair, error) {
	email = utils.NormalizeEmail(email)

	p, err := s.principals.GetByEmail(ctx, email)
	if err != nil {
		return models.TokenPair{}, err
	}
	if p == nil || !utils.CheckPasswordHash(password, p.PasswordHash) {
		utils.Logger.Info("login rejected: bad credentials")
		return models.TokenPair{}, utils.ErrInvalidCredentials
	}

	if err := s.principals.UpdateLastLogin(ctx, p.ID, s.clock.Now()); err != nil {
		utils.Logger.WithError(err).WithField("principal_id", p.ID).Warn("failed to record last login")
	}

	return s.issueFreshPair(ctx, p)
}

// issueFreshPair issues a pair and makes sure neither token is already on
// the revocation list. Encoding is deterministic per second, so a login in
// the same second as a logout would otherwise reproduce the revoked pair.
func (s *authService) issueFreshPair(ctx context.Context, p *models.Principal) (models.TokenPair, error) {
	at := s.clock.Now()
	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		pair, err := s.jwt.IssuePairAt(p.Email, at)
		if err != nil {
			return models.TokenPair{}, err
		}

		accessRevoked, err := s.revoked.IsRevoked(ctx, p.ID, pair.AccessToken)
		if err != nil {
			return models.TokenPair{}, err
		}
		refreshRevoked, err := s.revoked.IsRevoked(ctx, p.ID, pair.RefreshToken)
		if err != nil {
			return models.TokenPair{}, err
		}
		if !accessRevoked && !refreshRevoked {
			return pair, nil
		}
		at = at.Add(time.Second)
	}
	return models.TokenPair{}, errors.New("could not issue a token pair that is not already revoked")
}

// ----------------------------------------------------------------------
// Credential changes
// ----------------------------------------------------------------------

func (s *authService) ChangePassword(
	ctx context.Context,
	p *models.Principal,
	current, password, confirm string,
	accessToken, refreshToken string,
) error {
	if !utils.CheckPasswordHash(current, p.PasswordHash) {
		return utils.ErrInvalidCredentials
	}
	if err := utils.ValidateNewPassword(password, confirm); err != nil {
		return err
	}
	if password == current {
		return utils.ErrPasswordReused
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.principals.UpdateWithRetry(ctx, p.ID, func(cur *models.Principal) error {
		cur.PasswordHash = hash
		return nil
	}); err != nil {
		return err
	}

	utils.Logger.WithField("principal_id", p.ID).Info("password changed; revoking presented tokens")
	s.revocation.RevokePresented(ctx, p, accessToken, refreshToken)
	return nil
}

func (s *authService) DeleteAccount(
	ctx context.Context,
	p *models.Principal,
	password, confirm string,
	accessToken, refreshToken string,
) error {
	if password != confirm {
		return utils.ErrPasswordMismatch
	}
	if !utils.CheckPasswordHash(password, p.PasswordHash) {
		return utils.ErrInvalidCredentials
	}

	s.revocation.RevokePresented(ctx, p, accessToken, refreshToken)

	if err := s.principals.Delete(ctx, p.ID); err != nil {
		return err
	}
	utils.Logger.WithField("principal_id", p.ID).Info("account deleted")
	return nil
}

// ----------------------------------------------------------------------
// Password reset
// ----------------------------------------------------------------------

// ForgotPassword creates a reset token and mails it. Unknown emails return
// nil so the caller cannot probe which addresses exist.
func (s *authService) ForgotPassword(ctx context.Context, email string) error {
	email = utils.NormalizeEmail(email)

	p, err := s.principals.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if p == nil {
		utils.Logger.Info("password reset requested for unknown email")
		return nil
	}

	now := s.clock.Now()
	token := uuid.NewString()
	expiry := now.Add(s.resetTTL)

	err = s.principals.UpdateWithRetry(ctx, p.ID, func(cur *models.Principal) error {
		if cur.HasActiveResetToken(now) {
			return utils.ErrTooManyResetRequests
		}
		cur.ResetToken = &token
		cur.ResetTokenExpiry = &expiry
		return nil
	})
	if err != nil {
		return err
	}

	utils.Logger.WithFields(logrus.Fields{
		"principal_id": p.ID,
		"expires_at":   expiry,
	}).Info("password reset token issued")
	return s.mailer.SendPasswordReset(ctx, email, token, s.resetTTL)
}

func (s *authService) ResetPassword(ctx context.Context, email, resetToken, password, confirm string) error {
	email = utils.NormalizeEmail(email)

	p, err := s.principals.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if p == nil {
		return utils.ErrResetTokenMismatch
	}
	if err := utils.ValidateNewPassword(password, confirm); err != nil {
		return err
	}

	now := s.clock.Now()
	return s.principals.UpdateWithRetry(ctx, p.ID, func(cur *models.Principal) error {
		if !cur.HasActiveResetToken(now) || *cur.ResetToken != resetToken {
			return utils.ErrResetTokenMismatch
		}
		if utils.CheckPasswordHash(password, cur.PasswordHash) {
			return utils.ErrPasswordReused
		}
		hash, err := utils.HashPassword(password)
		if err != nil {
			return err
		}
		cur.PasswordHash = hash
		cur.ResetToken = nil
		cur.ResetTokenExpiry = nil
		return nil
	})
}
