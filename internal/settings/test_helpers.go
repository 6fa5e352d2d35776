package settings

import (
	"context"
	"sync"

	"voicedesk/models"

	"github.com/google/uuid"
)

// mockRepository implements Repository in memory for testing
type mockRepository struct {
	mu    sync.Mutex
	keys  []models.StoredProviderKey
	err   error
	// failOn fails single operations, keyed like calls
	failOn map[string]error
	calls  map[string]int
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		failOn: make(map[string]error),
		calls:  make(map[string]int),
	}
}

func (m *mockRepository) record(op string) error {
	m.calls[op]++
	if err, ok := m.failOn[op]; ok {
		return err
	}
	return m.err
}

func (m *mockRepository) ListProviderKeys(ctx context.Context) ([]models.StoredProviderKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("list"); err != nil {
		return nil, err
	}
	out := make([]models.StoredProviderKey, len(m.keys))
	copy(out, m.keys)
	return out, nil
}

func (m *mockRepository) InsertProviderKey(ctx context.Context, key *models.StoredProviderKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("insert"); err != nil {
		return err
	}
	m.keys = append(m.keys, *key)
	return nil
}

// RemoveProviderKey checks every step before mutating, like the transaction it stands in for
func (m *mockRepository) RemoveProviderKey(ctx context.Context, id uuid.UUID, category models.Category, promote uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("delete"); err != nil {
		return false, err
	}
	if promote != uuid.Nil {
		if err := m.record("set_active"); err != nil {
			return false, err
		}
	}

	removed := false
	for i, k := range m.keys {
		if k.ID == id {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			removed = true
			break
		}
	}
	if promote != uuid.Nil {
		for i := range m.keys {
			if m.keys[i].Category == category {
				m.keys[i].IsActive = m.keys[i].ID == promote
			}
		}
	}
	return removed, nil
}

func (m *mockRepository) SetActiveProviderKey(ctx context.Context, category models.Category, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("set_active"); err != nil {
		return err
	}
	for i := range m.keys {
		if m.keys[i].Category == category {
			m.keys[i].IsActive = m.keys[i].ID == id
		}
	}
	return nil
}

func (m *mockRepository) UpdateProviderKeyValidity(ctx context.Context, id uuid.UUID, valid bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("update_validity"); err != nil {
		return err
	}
	for i := range m.keys {
		if m.keys[i].ID == id {
			m.keys[i].IsValid = valid
		}
	}
	return nil
}

func (m *mockRepository) setErr(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *mockRepository) failOp(op string, err error) {
	m.mu.Lock()
	m.failOn[op] = err
	m.mu.Unlock()
}

func (m *mockRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}

func (m *mockRepository) stored(id uuid.UUID) (models.StoredProviderKey, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if k.ID == id {
			return k, true
		}
	}
	return models.StoredProviderKey{}, false
}

// stubValidator returns canned results and can block until released
type stubValidator struct {
	mu      sync.Mutex
	results map[string]*ValidationResult
	errs    map[string]error
	calls   int
	gate    chan struct{}
}

func newStubValidator() *stubValidator {
	return &stubValidator{
		results: make(map[string]*ValidationResult),
		errs:    make(map[string]error),
	}
}

func (s *stubValidator) set(secret string, outcome ValidationOutcome, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[secret] = &ValidationResult{Valid: outcome == OutcomeValid, Outcome: outcome}
	s.errs[secret] = err
}

func (s *stubValidator) ValidateKey(ctx context.Context, provider, secret string) (*ValidationResult, error) {
	s.mu.Lock()
	s.calls++
	gate := s.gate
	result, ok := s.results[secret]
	err := s.errs[secret]
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return &ValidationResult{Provider: provider, Outcome: OutcomeUnreachable}, ctx.Err()
		}
	}
	if !ok {
		return &ValidationResult{Provider: provider, Valid: true, Outcome: OutcomeValid}, nil
	}
	copied := *result
	copied.Provider = provider
	return &copied, err
}
