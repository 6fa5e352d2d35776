package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"voicedesk/billing"
	"voicedesk/models"
	"voicedesk/observability"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// keysFileName is the encrypted snapshot used when no database is configured
const keysFileName = "keys.enc"

// Repository is the persistence the store writes through to
type Repository interface {
	ListProviderKeys(ctx context.Context) ([]models.StoredProviderKey, error)
	InsertProviderKey(ctx context.Context, key *models.StoredProviderKey) error
	// RemoveProviderKey deletes id and activates promote (unless uuid.Nil) atomically
	RemoveProviderKey(ctx context.Context, id uuid.UUID, category models.Category, promote uuid.UUID) (bool, error)
	SetActiveProviderKey(ctx context.Context, category models.Category, id uuid.UUID) error
	UpdateProviderKeyValidity(ctx context.Context, id uuid.UUID, valid bool) error
}

// fileKey is the on-disk form of a key inside the encrypted snapshot
type fileKey struct {
	ID        uuid.UUID       `json:"id"`
	Provider  string          `json:"provider"`
	Category  models.Category `json:"category"`
	Secret    string          `json:"secret"`
	IsValid   bool            `json:"isValid"`
	IsActive  bool            `json:"isActive"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Store owns the billing resolver and persists every key mutation.
// With a repository, changes are written through to PostgreSQL; otherwise the
// whole key set is snapshotted to an encrypted file.
type Store struct {
	mu       sync.Mutex // serializes mutations with their persistence
	resolver *billing.Resolver
	repo     Repository
	crypto   *Crypto
	filePath string
	metrics  *observability.Metrics
}

// NewStore creates a store and loads previously persisted keys.
// A nil repo selects the encrypted file backend under dataDir.
func NewStore(ctx context.Context, dataDir, passphrase string, repo Repository) (*Store, error) {
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".voicedesk")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create settings directory: %w", err)
	}

	crypto, err := NewCrypto(passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize crypto: %w", err)
	}

	s := &Store{
		resolver: billing.NewResolver(billing.DefaultPriceSchedule()),
		repo:     repo,
		crypto:   crypto,
		filePath: filepath.Join(dataDir, keysFileName),
		metrics:  observability.GetMetrics(),
	}

	if err := s.load(ctx); err != nil {
		return nil, err
	}
	s.updateGauges()

	return s, nil
}

// load restores persisted keys into the resolver
func (s *Store) load(ctx context.Context) error {
	if s.repo == nil {
		keys, err := s.readFile()
		if err != nil {
			return err
		}
		s.resolver.Restore(keys)
		return nil
	}

	stored, err := s.repo.ListProviderKeys(ctx)
	if err != nil {
		return fmt.Errorf("failed to load provider keys: %w", err)
	}

	if len(stored) == 0 {
		migrated, err := s.migrateFileToDatabase(ctx)
		if err != nil {
			return err
		}
		stored = migrated
	}

	keys := make([]models.ProviderKey, 0, len(stored))
	for _, sk := range stored {
		secret, err := s.crypto.DecryptString(sk.SecretEncrypted)
		if err != nil {
			return fmt.Errorf("failed to decrypt key %s: %w", sk.ID, err)
		}
		keys = append(keys, models.ProviderKey{
			ID:        sk.ID,
			Provider:  sk.Provider,
			Category:  sk.Category,
			Secret:    secret,
			IsValid:   sk.IsValid,
			IsActive:  sk.IsActive,
			CreatedAt: sk.CreatedAt,
		})
	}
	s.resolver.Restore(keys)

	// Restore may promote a key when the stored set had no active one
	for _, c := range models.AllCategories {
		active, ok := s.resolver.ActiveKey(c)
		if !ok {
			continue
		}
		for _, sk := range stored {
			if sk.ID == active.ID && !sk.IsActive {
				if err := s.repo.SetActiveProviderKey(ctx, c, active.ID); err != nil {
					return fmt.Errorf("failed to persist promoted key: %w", err)
				}
			}
		}
	}

	return nil
}

// migrateFileToDatabase imports a local snapshot into an empty database
func (s *Store) migrateFileToDatabase(ctx context.Context) ([]models.StoredProviderKey, error) {
	keys, err := s.readFile()
	if err != nil || len(keys) == 0 {
		if err != nil {
			observability.Warn("skipping key file migration", "error", err)
		}
		return nil, nil
	}

	// Normalise active flags before they reach the database's uniqueness constraint
	resolver := billing.NewResolver(billing.DefaultPriceSchedule())
	resolver.Restore(keys)

	var migrated []models.StoredProviderKey
	for _, k := range resolver.Keys() {
		sk, err := s.toStored(k)
		if err != nil {
			return nil, err
		}
		if err := s.repo.InsertProviderKey(ctx, &sk); err != nil {
			return nil, fmt.Errorf("failed to migrate key %s: %w", k.ID, err)
		}
		migrated = append(migrated, sk)
	}

	observability.Info("migrated provider keys from file to database", "count", len(migrated))
	return migrated, nil
}

func (s *Store) toStored(k models.ProviderKey) (models.StoredProviderKey, error) {
	sealed, err := s.crypto.EncryptString(k.Secret)
	if err != nil {
		return models.StoredProviderKey{}, fmt.Errorf("failed to encrypt secret: %w", err)
	}
	return models.StoredProviderKey{
		ID:              k.ID,
		Provider:        k.Provider,
		Category:        k.Category,
		SecretEncrypted: sealed,
		IsValid:         k.IsValid,
		IsActive:        k.IsActive,
		CreatedAt:       k.CreatedAt,
	}, nil
}

// readFile decrypts the key snapshot; a missing file is an empty key set
func (s *Store) readFile() ([]models.ProviderKey, error) {
	data, err := os.ReadFile(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	decrypted, err := s.crypto.Decrypt(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt key file: %w", err)
	}

	var stored []fileKey
	if err := json.Unmarshal(decrypted, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal key file: %w", err)
	}

	keys := make([]models.ProviderKey, 0, len(stored))
	for _, fk := range stored {
		keys = append(keys, models.ProviderKey{
			ID:        fk.ID,
			Provider:  fk.Provider,
			Category:  fk.Category,
			Secret:    fk.Secret,
			IsValid:   fk.IsValid,
			IsActive:  fk.IsActive,
			CreatedAt: fk.CreatedAt,
		})
	}
	return keys, nil
}

// writeFile snapshots the resolver's keys to the encrypted file
func (s *Store) writeFile() error {
	keys := s.resolver.Keys()
	stored := make([]fileKey, 0, len(keys))
	for _, k := range keys {
		stored = append(stored, fileKey{
			ID:        k.ID,
			Provider:  k.Provider,
			Category:  k.Category,
			Secret:    k.Secret,
			IsValid:   k.IsValid,
			IsActive:  k.IsActive,
			CreatedAt: k.CreatedAt,
		})
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal keys: %w", err)
	}

	encrypted, err := s.crypto.Encrypt(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt keys: %w", err)
	}

	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, encrypted, 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		return fmt.Errorf("failed to replace key file: %w", err)
	}
	return nil
}

// AddKey stores a new key. The first key of a category becomes active.
func (s *Store) AddKey(ctx context.Context, provider string, category models.Category, secret string) (models.ProviderKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.resolver.AddKey(provider, category, secret)
	if err != nil {
		s.metrics.RecordKeyOperation("add", "rejected")
		return models.ProviderKey{}, err
	}

	if err := s.persistAdd(ctx, key); err != nil {
		s.resolver.RemoveKey(key.ID)
		s.metrics.RecordKeyOperation("add", "error")
		return models.ProviderKey{}, err
	}

	s.metrics.RecordKeyOperation("add", "success")
	s.updateGauges()
	observability.WithCategory(string(key.Category)).Info("provider key added",
		"provider", key.Provider, "key_id", key.ID, "active", key.IsActive)
	return key, nil
}

func (s *Store) persistAdd(ctx context.Context, key models.ProviderKey) error {
	if s.repo == nil {
		return s.writeFile()
	}
	sk, err := s.toStored(key)
	if err != nil {
		return err
	}
	return s.repo.InsertProviderKey(ctx, &sk)
}

// RemoveKey deletes a key. Unknown ids are a no-op reported as false.
func (s *Store) RemoveKey(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.resolver.Keys()
	removedKey, ok := s.resolver.Key(id)
	if !ok || !s.resolver.RemoveKey(id) {
		return false, nil
	}

	if err := s.persistRemove(ctx, removedKey); err != nil {
		s.resolver.Restore(before)
		s.metrics.RecordKeyOperation("remove", "error")
		return false, err
	}

	s.metrics.RecordKeyOperation("remove", "success")
	s.updateGauges()
	observability.WithCategory(string(removedKey.Category)).Info("provider key removed",
		"provider", removedKey.Provider, "key_id", id)
	return true, nil
}

func (s *Store) persistRemove(ctx context.Context, removed models.ProviderKey) error {
	if s.repo == nil {
		return s.writeFile()
	}
	promote := uuid.Nil
	if removed.IsActive {
		if promoted, ok := s.resolver.ActiveKey(removed.Category); ok {
			promote = promoted.ID
		}
	}
	_, err := s.repo.RemoveProviderKey(ctx, removed.ID, removed.Category, promote)
	return err
}

// SetActiveKey makes id the active key of its category. Unknown ids report false.
func (s *Store) SetActiveKey(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.resolver.Key(id)
	if !ok {
		return false, nil
	}
	if key.IsActive {
		return true, nil
	}

	before := s.resolver.Keys()
	s.resolver.SetActiveKey(id)

	var err error
	if s.repo == nil {
		err = s.writeFile()
	} else {
		err = s.repo.SetActiveProviderKey(ctx, key.Category, id)
	}
	if err != nil {
		s.resolver.Restore(before)
		s.metrics.RecordKeyOperation("activate", "error")
		return false, err
	}

	s.metrics.RecordKeyOperation("activate", "success")
	observability.WithCategory(string(key.Category)).Info("provider key activated",
		"provider", key.Provider, "key_id", id)
	return true, nil
}

// SetValidity records a validation outcome. Unknown ids report false.
func (s *Store) SetValidity(ctx context.Context, id uuid.UUID, valid bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.resolver.Key(id)
	if !ok {
		return false, nil
	}
	if key.IsValid == valid {
		return true, nil
	}

	s.resolver.SetValidity(id, valid)

	var err error
	if s.repo == nil {
		err = s.writeFile()
	} else {
		err = s.repo.UpdateProviderKeyValidity(ctx, id, valid)
	}
	if err != nil {
		s.resolver.SetValidity(id, key.IsValid)
		s.metrics.RecordKeyOperation("set_validity", "error")
		return false, err
	}

	s.metrics.RecordKeyOperation("set_validity", "success")
	return true, nil
}

// Key returns a key by id, including its secret
func (s *Store) Key(id uuid.UUID) (models.ProviderKey, bool) {
	return s.resolver.Key(id)
}

// Keys returns all keys in insertion order, including secrets
func (s *Store) Keys() []models.ProviderKey {
	return s.resolver.Keys()
}

// KeysByType returns the keys of one category in insertion order
func (s *Store) KeysByType(category models.Category) []models.ProviderKey {
	return s.resolver.KeysByType(category)
}

// ActiveKey returns the active key of a category
func (s *Store) ActiveKey(category models.Category) (models.ProviderKey, bool) {
	return s.resolver.ActiveKey(category)
}

// MaskedKeys returns keys safe to display. An empty category returns every key.
func (s *Store) MaskedKeys(category models.Category) []models.MaskedProviderKey {
	var keys []models.ProviderKey
	if category == "" {
		keys = s.resolver.Keys()
	} else {
		keys = s.resolver.KeysByType(category)
	}

	masked := make([]models.MaskedProviderKey, 0, len(keys))
	for _, k := range keys {
		masked = append(masked, k.Masked())
	}
	return masked
}

// HasAnyKeyForType reports whether any key is stored for the category
func (s *Store) HasAnyKeyForType(category models.Category) bool {
	return s.resolver.HasAnyKeyForType(category)
}

// BillingMode returns the billing mode of every category
func (s *Store) BillingMode() models.BillingModes {
	return s.resolver.BillingMode()
}

// EstimatedCostPerMinute returns the blended cost per minute
func (s *Store) EstimatedCostPerMinute() decimal.Decimal {
	return s.resolver.EstimatedCostPerMinute()
}

// TotalKeyCount returns the number of stored keys
func (s *Store) TotalKeyCount() int {
	return s.resolver.TotalKeyCount()
}

// Summary returns the billing summary shown in the UI
func (s *Store) Summary() models.BillingSummary {
	return s.resolver.Summary()
}

// Schedule returns the price schedule used for estimates
func (s *Store) Schedule() billing.PriceSchedule {
	return s.resolver.Schedule()
}

// UsesDatabase reports whether keys are written through to a repository
func (s *Store) UsesDatabase() bool {
	return s.repo != nil
}

func (s *Store) updateGauges() {
	modes := s.resolver.BillingMode()
	for _, c := range models.AllCategories {
		s.metrics.SetProviderKeyCount(string(c), len(s.resolver.KeysByType(c)))
		s.metrics.SetBillingMode(string(c), modes[c] == models.BillingModeBYOK)
	}
	s.metrics.SetEstimatedCost(s.resolver.EstimatedCostPerMinute().InexactFloat64())
}
