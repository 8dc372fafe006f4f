//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recollector/auth-service/internal/config"
	"github.com/recollector/auth-service/internal/controllers"
	"github.com/recollector/auth-service/internal/middleware"
	"github.com/recollector/auth-service/internal/models"
	"github.com/recollector/auth-service/internal/repositories"
	"github.com/recollector/auth-service/internal/services"
	"github.com/recollector/auth-service/internal/tokens"
	"github.com/recollector/auth-service/internal/utils"
)

type stack struct {
	server  *httptest.Server
	cleanup services.TokenCleanupService
}

func newStack(t *testing.T) *stack {
	t.Helper()

	ak, err := tokens.NewAccessKey([]byte("integration-access-secret-0123456789"))
	require.NoError(t, err)
	rk, err := tokens.NewRefreshKey([]byte("integration-refresh-secret-012345678"))
	require.NoError(t, err)

	cfg := &config.Config{LDFlag_CORSHighSecurity: true}
	principals := repositories.NewPrincipalRepository(application.DB, nil)
	revoked := repositories.NewRevokedTokenRepository(application.DB, utils.SystemClock)
	limiter := services.NewRateLimiterService(
		repositories.NewRateLimitRepository(application.DB, utils.SystemClock),
		services.EmailLimits{Global: 1000, PerIP: 1000, PerAddress: 5, Window: time.Hour},
	)

	jwt := services.NewJWTService(ak, rk, 60, 168, utils.SystemClock)
	revocation := services.NewRevocationService(principals, revoked, jwt, utils.SystemClock)
	auth := services.NewAuthService(principals, revoked, jwt, revocation, services.NewMailer(cfg), utils.SystemClock, time.Hour)

	gate := middleware.AuthMiddleware(principals, revoked, jwt.Access())
	router := controllers.NewRouter(
		controllers.NewAuthController(auth, revocation, jwt, limiter, cfg),
		controllers.NewHealthController(application.DB),
		gate,
	)

	s := &stack{
		server:  httptest.NewServer(router),
		cleanup: services.NewTokenCleanupService(revoked, utils.SystemClock, config.DefaultSweepSchedule),
	}
	t.Cleanup(s.server.Close)
	return s
}

func (s *stack) post(t *testing.T, path, bearer string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))

	req, err := http.NewRequest(http.MethodPost, s.server.URL+controllers.APIPrefix+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *stack) me(t *testing.T, bearer string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.server.URL+controllers.APIPrefix+"/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+bearer)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func decodePair(t *testing.T, resp *http.Response) models.TokenPair {
	t.Helper()
	var pair models.TokenPair
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pair))
	return pair
}

func TestAuthFlowAgainstPostgres(t *testing.T) {
	s := newStack(t)
	email := uniqueEmail("flow")

	resp := s.post(t, "/register", "", map[string]string{
		"email": email, "password": "secret1", "password_confirm": "secret1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	pair := decodePair(t, resp)
	t.Cleanup(func() {
		p, err := repositories.NewPrincipalRepository(application.DB, nil).GetByEmail(context.Background(), email)
		if err == nil && p != nil {
			_ = repositories.NewPrincipalRepository(application.DB, nil).Delete(context.Background(), p.ID)
		}
	})

	assert.Equal(t, http.StatusOK, s.me(t, pair.AccessToken))

	time.Sleep(1100 * time.Millisecond)
	resp = s.post(t, "/refresh-token", "", map[string]string{
		"user_email": email, "access_token": pair.AccessToken, "refresh_token": pair.RefreshToken,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rotated := decodePair(t, resp)

	assert.Equal(t, http.StatusUnauthorized, s.me(t, pair.AccessToken), "rotated-out access token is revoked")
	assert.Equal(t, http.StatusOK, s.me(t, rotated.AccessToken))

	resp = s.post(t, "/logout", rotated.AccessToken, map[string]string{"refresh_token": rotated.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, s.me(t, rotated.AccessToken))

	resp = s.post(t, "/refresh-token", "", map[string]string{
		"user_email": email, "access_token": rotated.AccessToken, "refresh_token": rotated.RefreshToken,
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "revoked refresh token cannot rotate")

	// Rows for live tokens survive a sweep.
	_, err := s.cleanup.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, s.me(t, rotated.AccessToken))
}

func TestHealthAgainstPostgres(t *testing.T) {
	s := newStack(t)
	resp, err := http.Get(s.server.URL + controllers.APIPrefix + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
