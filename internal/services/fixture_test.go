package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/recollector/auth-service/internal/models"
	"github.com/recollector/auth-service/internal/testhelpers"
	"github.com/recollector/auth-service/internal/tokens"
	"github.com/recollector/auth-service/internal/utils"
)

type sentMail struct {
	to, token string
	validFor  time.Duration
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) SendPasswordReset(_ context.Context, to, token string, validFor time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, token: token, validFor: validFor})
	return nil
}

type fixture struct {
	clock      *testhelpers.FakeClock
	principals *testhelpers.MemoryPrincipals
	revoked    *testhelpers.MemoryRevokedTokens
	mailer     *fakeMailer
	jwt        JWTService
	revocation RevocationService
	auth       AuthService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	utils.PasswordHashCost = bcrypt.MinCost

	ak, err := tokens.NewAccessKey([]byte("svc-access-secret-0123456789abcdefgh"))
	require.NoError(t, err)
	rk, err := tokens.NewRefreshKey([]byte("svc-refresh-secret-0123456789abcdefg"))
	require.NoError(t, err)

	f := &fixture{
		clock:  testhelpers.NewFakeClock(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)),
		mailer: &fakeMailer{},
	}
	f.principals = testhelpers.NewMemoryPrincipals(f.clock)
	f.revoked = testhelpers.NewMemoryRevokedTokens(f.clock)
	f.principals.OnDelete = f.revoked.DeleteSubject
	f.jwt = NewJWTService(ak, rk, 1, 168, f.clock)
	f.revocation = NewRevocationService(f.principals, f.revoked, f.jwt, f.clock)
	f.auth = NewAuthService(f.principals, f.revoked, f.jwt, f.revocation, f.mailer, f.clock, time.Hour)
	return f
}

func (f *fixture) register(t *testing.T, email, password string) (*models.Principal, models.TokenPair) {
	t.Helper()
	pair, err := f.auth.Register(context.Background(), email, password, password)
	require.NoError(t, err)
	p, err := f.principals.GetByEmail(context.Background(), email)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p, pair
}
