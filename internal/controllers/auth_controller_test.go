package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/recollector/auth-service/internal/config"
	"github.com/recollector/auth-service/internal/middleware"
	"github.com/recollector/auth-service/internal/models"
	"github.com/recollector/auth-service/internal/services"
	"github.com/recollector/auth-service/internal/testhelpers"
	"github.com/recollector/auth-service/internal/tokens"
	"github.com/recollector/auth-service/internal/utils"
)

type capturedMail struct {
	to, token string
}

type captureMailer struct {
	mu   sync.Mutex
	sent []capturedMail
}

func (m *captureMailer) SendPasswordReset(_ context.Context, to, token string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, capturedMail{to: to, token: token})
	return nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type apiFixture struct {
	clock      *testhelpers.FakeClock
	principals *testhelpers.MemoryPrincipals
	revoked    *testhelpers.MemoryRevokedTokens
	limits     *testhelpers.MemoryRateLimits
	mailer     *captureMailer
	pinger     *fakePinger
	jwt        services.JWTService
	router     http.Handler
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	utils.PasswordHashCost = bcrypt.MinCost

	ak, err := tokens.NewAccessKey([]byte("api-access-secret-0123456789abcdefgh"))
	require.NoError(t, err)
	rk, err := tokens.NewRefreshKey([]byte("api-refresh-secret-0123456789abcdefg"))
	require.NoError(t, err)

	f := &apiFixture{
		clock:  testhelpers.NewFakeClock(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)),
		mailer: &captureMailer{},
		pinger: &fakePinger{},
	}
	f.principals = testhelpers.NewMemoryPrincipals(f.clock)
	f.revoked = testhelpers.NewMemoryRevokedTokens(f.clock)
	f.principals.OnDelete = f.revoked.DeleteSubject
	f.limits = testhelpers.NewMemoryRateLimits(f.clock)

	cfg := &config.Config{LDFlag_CORSHighSecurity: true}
	f.jwt = services.NewJWTService(ak, rk, 1, 168, f.clock)
	revocation := services.NewRevocationService(f.principals, f.revoked, f.jwt, f.clock)
	auth := services.NewAuthService(f.principals, f.revoked, f.jwt, revocation, f.mailer, f.clock, time.Hour)

	limiter := services.NewRateLimiterService(f.limits, services.EmailLimits{Global: 100, PerIP: 5, PerAddress: 1, Window: 2 * time.Hour})

	gate := middleware.AuthMiddleware(f.principals, f.revoked, f.jwt.Access())
	f.router = NewRouter(NewAuthController(auth, revocation, f.jwt, limiter, cfg), NewHealthController(f.pinger), gate)
	return f
}

type call struct {
	method, path string
	body         any
	bearer       string
	cookie       string
}

func (f *apiFixture) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, APIPrefix+c.path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	if c.cookie != "" {
		req.AddCookie(&http.Cookie{Name: utils.RefreshTokenCookieName, Value: c.cookie})
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) register(t *testing.T, email, password string) models.TokenPair {
	t.Helper()
	rec := f.do(t, call{method: http.MethodPost, path: "/register", body: map[string]string{
		"email": email, "password": password, "password_confirm": password,
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var pair models.TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))
	return pair
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body utils.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Code
}

func TestRegisterReturnsPairAndCookie(t *testing.T) {
	f := newAPIFixture(t)
	pair := f.register(t, "ann@example.com", "secret1")

	assert.True(t, f.jwt.Access().Validate(pair.AccessToken, "ann@example.com"))
	assert.Equal(t, f.clock.Now().Add(time.Minute).Unix(), pair.AccessExpiresAt)

	rec := f.do(t, call{method: http.MethodPost, path: "/register", body: map[string]string{
		"email": "ann@example.com", "password": "secret1", "password_confirm": "secret1",
	}})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, call{method: http.MethodPost, path: "/register", body: map[string]string{
		"email": "bob@example.com", "password": "secret1",
	}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, utils.ErrCodeValidation, errorCode(t, rec))
}

func TestLoginSetsRefreshCookie(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "cy@example.com", "secret1")

	rec := f.do(t, call{method: http.MethodPost, path: "/login", body: map[string]string{
		"email": "cy@example.com", "password": "secret1",
	}})
	require.Equal(t, http.StatusOK, rec.Code)

	setCookie := rec.Header().Get("Set-Cookie")
	assert.True(t, strings.HasPrefix(setCookie, utils.RefreshTokenCookieName+"="))
	assert.Contains(t, setCookie, "HttpOnly")
	assert.Contains(t, setCookie, "SameSite=Strict")
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec = f.do(t, call{method: http.MethodPost, path: "/login", body: map[string]string{
		"email": "cy@example.com", "password": "nope123",
	}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"code":"unauthorized","message":"Unauthorized"}`, rec.Body.String())
}

func TestMalformedBodyIsRejected(t *testing.T) {
	f := newAPIFixture(t)
	req := httptest.NewRequest(http.MethodPost, APIPrefix+"/login", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, utils.ErrCodeInvalidPayload, errorCode(t, rec))
}

func TestProtectedRoutesNeedIdentity(t *testing.T) {
	f := newAPIFixture(t)
	pair := f.register(t, "dee@example.com", "secret1")

	for _, path := range []string{"/logout", "/change-password", "/delete-account"} {
		rec := f.do(t, call{method: http.MethodPost, path: path, body: map[string]string{}})
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	rec := f.do(t, call{method: http.MethodGet, path: "/me", bearer: pair.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "refresh token is not a bearer credential")

	rec = f.do(t, call{method: http.MethodGet, path: "/me", bearer: pair.AccessToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email":"dee@example.com"`)
}

func TestLogoutRevokesBothTokens(t *testing.T) {
	f := newAPIFixture(t)
	pair := f.register(t, "eve@example.com", "secret1")

	rec := f.do(t, call{method: http.MethodPost, path: "/logout", bearer: pair.AccessToken, cookie: pair.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "Max-Age=0")
	assert.Len(t, f.revoked.Rows(), 2)

	rec = f.do(t, call{method: http.MethodGet, path: "/me", bearer: pair.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, call{method: http.MethodPost, path: "/refresh-token", cookie: pair.RefreshToken, body: map[string]string{
		"user_email": "eve@example.com", "access_token": pair.AccessToken,
	}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshTokenFromBodyOrCookie(t *testing.T) {
	f := newAPIFixture(t)
	pair := f.register(t, "fin@example.com", "secret1")
	f.clock.Advance(5 * time.Second)

	rec := f.do(t, call{method: http.MethodPost, path: "/refresh-token", body: map[string]string{
		"user_email": "fin@example.com", "access_token": pair.AccessToken, "refresh_token": pair.RefreshToken,
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var rotated models.TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rotated))
	assert.NotEqual(t, pair.AccessToken, rotated.AccessToken)
	assert.Equal(t, pair.RefreshToken, rotated.RefreshToken)

	f.clock.Advance(5 * time.Second)
	rec = f.do(t, call{method: http.MethodPost, path: "/refresh-token", cookie: rotated.RefreshToken, body: map[string]string{
		"user_email": "FIN@example.com", "access_token": rotated.AccessToken,
	}})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, call{method: http.MethodPost, path: "/refresh-token", body: map[string]string{
		"user_email": "fin@example.com", "access_token": rotated.AccessToken,
	}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "no refresh token anywhere")
}

func TestRefreshAnswers503WhenStoreIsDown(t *testing.T) {
	f := newAPIFixture(t)
	pair := f.register(t, "gil@example.com", "secret1")

	f.revoked.Err = errors.New("db down")
	rec := f.do(t, call{method: http.MethodPost, path: "/refresh-token", cookie: pair.RefreshToken, body: map[string]string{
		"user_email": "gil@example.com", "access_token": pair.AccessToken,
	}})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestChangePasswordEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	pair := f.register(t, "hugo@example.com", "secret1")

	rec := f.do(t, call{method: http.MethodPost, path: "/change-password", bearer: pair.AccessToken, body: map[string]string{
		"password_current": "secret1", "password": "secret1", "password_confirm": "secret1",
	}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, utils.ErrCodePasswordReused, errorCode(t, rec))

	rec = f.do(t, call{method: http.MethodPost, path: "/change-password", bearer: pair.AccessToken, cookie: pair.RefreshToken,
		body: map[string]string{"password_current": "secret1", "password": "newpass1", "password_confirm": "newpass1"}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, call{method: http.MethodGet, path: "/me", bearer: pair.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "presented access token is revoked")
}

func TestDeleteAccountEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	pair := f.register(t, "ida@example.com", "secret1")

	rec := f.do(t, call{method: http.MethodPost, path: "/delete-account", bearer: pair.AccessToken, body: map[string]string{
		"password": "secret1", "password_confirm": "secret1",
	}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, call{method: http.MethodPost, path: "/login", body: map[string]string{
		"email": "ida@example.com", "password": "secret1",
	}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, f.revoked.Rows())
}

func TestForgotAndResetPasswordEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "jo@example.com", "secret1")

	for _, email := range []string{"jo@example.com", "jo@example.com", "ghost@example.com"} {
		rec := f.do(t, call{method: http.MethodPost, path: "/forgot-password", body: map[string]string{"email": email}})
		assert.Equal(t, http.StatusOK, rec.Code, "forgot-password always answers 200")
	}
	require.Len(t, f.mailer.sent, 1)
	token := f.mailer.sent[0].token

	rec := f.do(t, call{method: http.MethodPost, path: "/reset-password", body: map[string]string{
		"email": "jo@example.com", "password_reset_token": "wrong", "password": "newpass1", "password_confirm": "newpass1",
	}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, utils.ErrCodeResetTokenInvalid, errorCode(t, rec))

	rec = f.do(t, call{method: http.MethodPost, path: "/reset-password", body: map[string]string{
		"email": "jo@example.com", "password_reset_token": token, "password": "newpass1", "password_confirm": "newpass1",
	}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, call{method: http.MethodPost, path: "/login", body: map[string]string{
		"email": "jo@example.com", "password": "newpass1",
	}})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestForgotPasswordRateLimitStaysSilent(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "kai@example.com", "secret1")
	forgot := func() {
		rec := f.do(t, call{method: http.MethodPost, path: "/forgot-password", body: map[string]string{"email": "kai@example.com"}})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	forgot()
	require.Len(t, f.mailer.sent, 1)

	// The reset token has lapsed but the address is still inside its window.
	f.clock.Advance(61 * time.Minute)
	forgot()
	assert.Len(t, f.mailer.sent, 1)

	f.clock.Advance(2 * time.Hour)
	f.limits.Err = errors.New("db down")
	forgot()
	assert.Len(t, f.mailer.sent, 1, "limiter failure suppresses the send")

	f.limits.Err = nil
	forgot()
	assert.Len(t, f.mailer.sent, 2)
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, call{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"OK"}`, rec.Body.String())

	f.pinger.err = errors.New("connection refused")
	rec = f.do(t, call{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
