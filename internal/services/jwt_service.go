package services

import (
	"fmt"
	"time"

	"github.com/recollector/auth-service/internal/models"
	"github.com/recollector/auth-service/internal/tokens"
	"github.com/recollector/auth-service/internal/utils"
)

// ---------------------------------------------------------------------
// JWTService interface
// ---------------------------------------------------------------------

// JWTService mints access/refresh pairs and owns the typed validators for
// each token class.
type JWTService interface {
	IssuePair(subject string) (models.TokenPair, error)

	// IssuePairAt is IssuePair with an explicit issuance instant.
	IssuePairAt(subject string, at time.Time) (models.TokenPair, error)

	// IssueAccessTokenAt mints a lone access token issued at the given
	// instant for refresh rotation and returns its expiry in epoch seconds.
	IssueAccessTokenAt(subject string, at time.Time) (string, int64, error)

	Access() *tokens.Validator[tokens.AccessKey]
	Refresh() *tokens.Validator[tokens.RefreshKey]

	AccessTTL() time.Duration
	RefreshTTL() time.Duration
}

// ---------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------

type jwtService struct {
	accessKey        tokens.AccessKey
	refreshKey       tokens.RefreshKey
	accessTTLMinutes int64
	refreshTTLHours  int64
	clock            utils.Clock

	access  *tokens.Validator[tokens.AccessKey]
	refresh *tokens.Validator[tokens.RefreshKey]
}

func NewJWTService(
	accessKey tokens.AccessKey,
	refreshKey tokens.RefreshKey,
	accessTTLMinutes int64,
	refreshTTLHours int64,
	clock utils.Clock,
) JWTService {
	if clock == nil {
		clock = utils.SystemClock
	}
	return &jwtService{
		accessKey:        accessKey,
		refreshKey:       refreshKey,
		accessTTLMinutes: accessTTLMinutes,
		refreshTTLHours:  refreshTTLHours,
		clock:            clock,
		access:           tokens.NewValidator(accessKey, clock),
		refresh:          tokens.NewValidator(refreshKey, clock),
	}
}

func (j *jwtService) Access() *tokens.Validator[tokens.AccessKey]   { return j.access }
func (j *jwtService) Refresh() *tokens.Validator[tokens.RefreshKey] { return j.refresh }

func (j *jwtService) AccessTTL() time.Duration {
	return time.Duration(j.accessTTLMinutes) * time.Minute
}

func (j *jwtService) RefreshTTL() time.Duration {
	return time.Duration(j.refreshTTLHours) * time.Hour
}

// ---------------------------------------------------------------------
// IssuePair
//  one clock read shared by both tokens; expiries are read back from the
//  signed tokens so the pair reports exactly what was encoded
// ---------------------------------------------------------------------

func (j *jwtService) IssuePair(subject string) (models.TokenPair, error) {
	return j.IssuePairAt(subject, j.clock.Now())
}

func (j *jwtService) IssuePairAt(subject string, now time.Time) (models.TokenPair, error) {
	access, err := j.encodeAccess(subject, now)
	if err != nil {
		return models.TokenPair{}, err
	}
	refresh, err := tokens.Encode(subject, now, utils.Adjust(now, j.refreshTTLHours, utils.Hours), j.refreshKey)
	if err != nil {
		return models.TokenPair{}, err
	}

	ac, err := tokens.Decode(access, j.accessKey)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("read back access token: %w", err)
	}
	rc, err := tokens.Decode(refresh, j.refreshKey)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("read back refresh token: %w", err)
	}

	utils.Logger.Debugf("issued token pair for %s (access %s, refresh %s)",
		subject, utils.TokenFingerprint(access), utils.TokenFingerprint(refresh))

	return models.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  ac.ExpiresAt.Unix(),
		RefreshExpiresAt: rc.ExpiresAt.Unix(),
	}, nil
}

// ---------------------------------------------------------------------
// IssueAccessTokenAt
// ---------------------------------------------------------------------

func (j *jwtService) IssueAccessTokenAt(subject string, at time.Time) (string, int64, error) {
	access, err := j.encodeAccess(subject, at)
	if err != nil {
		return "", 0, err
	}

	c, err := tokens.Decode(access, j.accessKey)
	if err != nil {
		return "", 0, fmt.Errorf("read back access token: %w", err)
	}
	return access, c.ExpiresAt.Unix(), nil
}

func (j *jwtService) encodeAccess(subject string, at time.Time) (string, error) {
	return tokens.Encode(subject, at, utils.Adjust(at, j.accessTTLMinutes, utils.Minutes), j.accessKey)
}
