package accounts

import (
	"context"
	"sort"
	"sync"
	"time"

	"mailpilot/internal/models"
)

// MemoryStore keeps everything in process. Used in development mode and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	tenants  map[string]models.Tenant
	accounts map[string]models.MailAccount
	settings map[string]models.AISettings
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:  make(map[string]models.Tenant),
		accounts: make(map[string]models.MailAccount),
		settings: make(map[string]models.AISettings),
	}
}

// PutTenant inserts or replaces a tenant
func (s *MemoryStore) PutTenant(t models.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	s.tenants[t.ID] = t
}

// PutAccount inserts or replaces a mail account
func (s *MemoryStore) PutAccount(a models.MailAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	s.accounts[a.ID] = a
}

// GetTenant loads a tenant by id
func (s *MemoryStore) GetTenant(_ context.Context, id string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

// GetAccount loads a mail account by id
func (s *MemoryStore) GetAccount(_ context.Context, id string) (*models.MailAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

// ListAccounts returns every account of a tenant
func (s *MemoryStore) ListAccounts(_ context.Context, tenantID string) ([]models.MailAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.MailAccount
	for _, a := range s.accounts {
		if a.TenantID == tenantID {
			out = append(out, a)
		}
	}
	sortAccounts(out)
	return out, nil
}

// ListActive returns active accounts of tenants that are not disabled
func (s *MemoryStore) ListActive(_ context.Context) ([]models.MailAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.MailAccount
	for _, a := range s.accounts {
		t, ok := s.tenants[a.TenantID]
		if !a.Active || !ok || t.Disabled {
			continue
		}
		out = append(out, a)
	}
	sortAccounts(out)
	return out, nil
}

// UpdateSyncStatus records the outcome of the latest sync
func (s *MemoryStore) UpdateSyncStatus(_ context.Context, id string, at time.Time, status string) error {
	return s.mutate(id, func(a *models.MailAccount) {
		a.LastSyncAt = &at
		a.LastSyncStatus = status
	})
}

// UpdateCheckpoint stores the highest handled UID and its UIDVALIDITY
func (s *MemoryStore) UpdateCheckpoint(_ context.Context, id string, cp models.Checkpoint) error {
	return s.mutate(id, func(a *models.MailAccount) {
		a.CheckpointUID = cp.UID
		a.UIDValidity = cp.UIDValidity
	})
}

// UpdateAccount applies upd and returns the new row
func (s *MemoryStore) UpdateAccount(_ context.Context, id string, upd AccountUpdate) (*models.MailAccount, error) {
	var out models.MailAccount
	err := s.mutate(id, func(a *models.MailAccount) {
		upd.apply(a)
		out = *a
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSettings returns the tenant's AI settings, or the defaults when none were saved
func (s *MemoryStore) GetSettings(_ context.Context, tenantID string) (models.AISettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.settings[tenantID]; ok {
		return st.Snapshot(), nil
	}
	return models.DefaultAISettings(tenantID), nil
}

// SaveSettings stores a copy of settings
func (s *MemoryStore) SaveSettings(_ context.Context, settings models.AISettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings = settings.Snapshot()
	settings.UpdatedAt = time.Now().UTC()
	s.settings[settings.TenantID] = settings
	return nil
}

func (s *MemoryStore) mutate(id string, fn func(a *models.MailAccount)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	fn(&a)
	a.UpdatedAt = time.Now().UTC()
	s.accounts[id] = a
	return nil
}

func sortAccounts(accs []models.MailAccount) {
	sort.Slice(accs, func(i, j int) bool { return accs[i].ID < accs[j].ID })
}
