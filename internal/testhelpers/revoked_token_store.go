package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/recollector/auth-service/internal/models"
	"github.com/recollector/auth-service/internal/utils"
)

type revocationKey struct {
	subject uuid.UUID
	token   string
}

// MemoryRevokedTokens is an in-memory repositories.RevokedTokenRepository.
// Setting Err makes every call fail with it wrapped as a store outage.
type MemoryRevokedTokens struct {
	mu    sync.RWMutex
	rows  map[revocationKey]models.RevokedToken
	clock interface{ Now() time.Time }

	Err error
}

func NewMemoryRevokedTokens(clock interface{ Now() time.Time }) *MemoryRevokedTokens {
	if clock == nil {
		clock = utils.SystemClock
	}
	return &MemoryRevokedTokens{rows: make(map[revocationKey]models.RevokedToken), clock: clock}
}

func (m *MemoryRevokedTokens) fail() error {
	if m.Err != nil {
		return fmt.Errorf("%w: %w", utils.ErrRevocationStoreUnavailable, m.Err)
	}
	return nil
}

func (m *MemoryRevokedTokens) IsRevoked(_ context.Context, subjectID uuid.UUID, rawToken string) (bool, error) {
	if err := m.fail(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rows[revocationKey{subjectID, rawToken}]
	return ok, nil
}

func (m *MemoryRevokedTokens) Revoke(_ context.Context, subjectID uuid.UUID, rawToken string, expiresAt time.Time) error {
	if err := m.fail(); err != nil {
		return err
	}
	if rawToken == "" {
		return fmt.Errorf("revoke: empty token")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := revocationKey{subjectID, rawToken}
	if _, ok := m.rows[k]; ok {
		return nil
	}
	m.rows[k] = models.RevokedToken{
		ID:        uuid.New(),
		SubjectID: subjectID,
		Token:     rawToken,
		ExpiresAt: expiresAt,
		RevokedAt: m.clock.Now(),
	}
	return nil
}

func (m *MemoryRevokedTokens) SweepExpired(_ context.Context, before time.Time) (int64, error) {
	if err := m.fail(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, row := range m.rows {
		if row.ExpiresAt.Before(before) {
			delete(m.rows, k)
			n++
		}
	}
	return n, nil
}

// Rows returns a snapshot of every stored row.
func (m *MemoryRevokedTokens) Rows() []models.RevokedToken {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.RevokedToken, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r)
	}
	return out
}

// Get returns the row for (subjectID, rawToken) if present.
func (m *MemoryRevokedTokens) Get(subjectID uuid.UUID, rawToken string) (models.RevokedToken, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rows[revocationKey{subjectID, rawToken}]
	return r, ok
}

// DeleteSubject drops every row of subjectID, mirroring the FK cascade.
func (m *MemoryRevokedTokens) DeleteSubject(subjectID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.rows {
		if k.subject == subjectID {
			delete(m.rows, k)
		}
	}
}
