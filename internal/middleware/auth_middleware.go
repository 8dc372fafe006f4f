package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/recollector/auth-service/internal/models"
	"github.com/recollector/auth-service/internal/tokens"
	"github.com/recollector/auth-service/internal/utils"
)

type contextKey string

const (
	ContextKeyPrincipal   = contextKey("principal")
	ContextKeyAccessToken = contextKey("accessToken")
)

// PrincipalLookup resolves a token subject to its account. (nil, nil) means
// no such principal.
type PrincipalLookup interface {
	GetByEmail(ctx context.Context, email string) (*models.Principal, error)
}

// RevocationChecker answers whether a raw token was revoked for a subject.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, subjectID uuid.UUID, rawToken string) (bool, error)
}

// AuthMiddleware is the authentication gate. It wraps every route and, when
// the request carries a live, unrevoked access token, attaches the principal
// to the request context. Every other outcome leaves the request anonymous;
// the gate itself never writes a response. Store errors during lookup count
// as anonymous too.
func AuthMiddleware(
	principals PrincipalLookup,
	revoked RevocationChecker,
	access *tokens.Validator[tokens.AccessKey],
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			p := authenticate(r.Context(), tokenStr, principals, revoked, access)
			if p == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyPrincipal, p)
			ctx = context.WithValue(ctx, ContextKeyAccessToken, tokenStr)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(
	ctx context.Context,
	tokenStr string,
	principals PrincipalLookup,
	revoked RevocationChecker,
	access *tokens.Validator[tokens.AccessKey],
) *models.Principal {
	log := utils.Logger.WithFields(logrus.Fields{
		"token":      utils.TokenFingerprint(tokenStr),
		"request_id": RequestIDFromContext(ctx),
	})

	claims, err := access.Decode(tokenStr)
	if err != nil {
		log.WithError(err).Debug("gate: undecodable bearer token")
		return nil
	}

	p, err := principals.GetByEmail(ctx, claims.Subject)
	if err != nil {
		log.WithError(err).Error("gate: principal lookup failed; treating request as anonymous")
		return nil
	}
	if p == nil {
		log.Debug("gate: token subject has no principal")
		return nil
	}
	if p.Predates(claims.IssuedAt) {
		log.WithField("principal_id", p.ID).Info("gate: token was issued before the account existed")
		return nil
	}

	if res := access.Check(tokenStr, p.Email); res != tokens.Valid {
		log.WithField("result", res.String()).Debug("gate: token rejected")
		return nil
	}

	isRevoked, err := revoked.IsRevoked(ctx, p.ID, tokenStr)
	if err != nil {
		log.WithError(err).Error("gate: revocation check failed; treating request as anonymous")
		return nil
	}
	if isRevoked {
		log.WithField("principal_id", p.ID).Info("gate: revoked token presented")
		return nil
	}
	return p
}

// bearerToken reads "Authorization: Bearer <token>". Anything else,
// including an empty token, is reported as absent.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return tok, tok != ""
}

// RequireAuth answers 401 unless the gate attached a principal.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if PrincipalFromContext(r.Context()) == nil {
			utils.HandleAppError(w, utils.Unauthenticated(utils.ErrAuthenticationFailed))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PrincipalFromContext returns the authenticated principal, or nil.
func PrincipalFromContext(ctx context.Context) *models.Principal {
	p, _ := ctx.Value(ContextKeyPrincipal).(*models.Principal)
	return p
}

// AccessTokenFromContext returns the raw access token that authenticated
// the request, or "".
func AccessTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(ContextKeyAccessToken).(string)
	return t
}
