package testhelpers

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/recollector/auth-service/internal/models"
	"github.com/recollector/auth-service/internal/utils"
)

// MemoryPrincipals is an in-memory repositories.PrincipalRepository. Err, when
// set, is returned by every call. OnDelete runs after a successful Delete so
// a test can cascade into its revocation store.
type MemoryPrincipals struct {
	mu      sync.RWMutex
	clock   utils.Clock
	byID    map[uuid.UUID]models.Principal
	byEmail map[string]uuid.UUID

	Err      error
	OnDelete func(id uuid.UUID)
}

func NewMemoryPrincipals(clock utils.Clock) *MemoryPrincipals {
	if clock == nil {
		clock = utils.SystemClock
	}
	return &MemoryPrincipals{
		clock:   clock,
		byID:    make(map[uuid.UUID]models.Principal),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (m *MemoryPrincipals) Create(_ context.Context, p *models.Principal) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.byEmail[p.Email]; taken {
		return utils.ErrEmailExists
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := m.clock.Now()
	p.CreatedAt, p.UpdatedAt, p.RowVersion = now, now, 1
	m.byID[p.ID] = *p
	m.byEmail[p.Email] = p.ID
	return nil
}

func (m *MemoryPrincipals) GetByEmail(_ context.Context, email string) (*models.Principal, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[email]
	if !ok {
		return nil, nil
	}
	p := m.byID[id]
	return &p, nil
}

func (m *MemoryPrincipals) GetByID(_ context.Context, id uuid.UUID) (*models.Principal, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *MemoryPrincipals) UpdateWithRetry(ctx context.Context, id uuid.UUID, mutate func(*models.Principal) error) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return utils.ErrPrincipalNotFound
	}
	if err := mutate(&p); err != nil {
		return err
	}
	p.RowVersion++
	p.UpdatedAt = m.clock.Now()
	m.byID[id] = p
	return nil
}

func (m *MemoryPrincipals) UpdateLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return utils.ErrPrincipalNotFound
	}
	p.LastLogin = &at
	m.byID[id] = p
	return nil
}

func (m *MemoryPrincipals) Delete(_ context.Context, id uuid.UUID) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	p, ok := m.byID[id]
	if ok {
		delete(m.byID, id)
		delete(m.byEmail, p.Email)
	}
	m.mu.Unlock()
	if !ok {
		return utils.ErrPrincipalNotFound
	}
	if m.OnDelete != nil {
		m.OnDelete(id)
	}
	return nil
}
