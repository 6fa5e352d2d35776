// Package billing derives per-category billing modes and the blended
// per-minute cost from the set of provider keys a user has registered.
package billing

import (
	"errors"
	"strings"
	"sync"
	"time"

	"voicedesk/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrEmptySecret      = errors.New("secret is required")
	ErrProviderRequired = errors.New("provider is required")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrDuplicateKey     = errors.New("key already registered for this provider")
)

// Resolver holds the registered provider keys and computes billing state from them
type Resolver struct {
	mu       sync.RWMutex
	keys     []models.ProviderKey // insertion order
	schedule PriceSchedule
	newID    func() uuid.UUID
	now      func() time.Time
}

// NewResolver creates an empty resolver priced with the given schedule
func NewResolver(schedule PriceSchedule) *Resolver {
	return &Resolver{
		schedule: schedule,
		newID:    uuid.New,
		now:      time.Now,
	}
}

// Schedule returns the price schedule used by the resolver
func (r *Resolver) Schedule() PriceSchedule {
	return r.schedule
}

// AddKey registers a new key. It starts out valid and is made active only
// when it is the first key of its category.
func (r *Resolver) AddKey(provider string, category models.Category, secret string) (models.ProviderKey, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	secret = strings.TrimSpace(secret)

	if secret == "" {
		return models.ProviderKey{}, ErrEmptySecret
	}
	if provider == "" {
		return models.ProviderKey{}, ErrProviderRequired
	}
	if !category.IsValid() {
		return models.ProviderKey{}, ErrUnknownCategory
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, k := range r.keys {
		if k.Category == category && k.Provider == provider && k.Secret == secret {
			return models.ProviderKey{}, ErrDuplicateKey
		}
	}

	key := models.ProviderKey{
		ID:        r.newID(),
		Provider:  provider,
		Category:  category,
		Secret:    secret,
		IsValid:   true,
		IsActive:  !r.hasAnyLocked(category),
		CreatedAt: r.now().UTC(),
	}
	r.keys = append(r.keys, key)

	return key, nil
}

// RemoveKey deletes a key. When the removed key was active, the oldest
// remaining key of the same category takes over. Unknown ids are ignored.
func (r *Resolver) RemoveKey(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexLocked(id)
	if idx < 0 {
		return false
	}

	removed := r.keys[idx]
	r.keys = append(r.keys[:idx], r.keys[idx+1:]...)

	if removed.IsActive {
		for i := range r.keys {
			if r.keys[i].Category == removed.Category {
				r.keys[i].IsActive = true
				break
			}
		}
	}

	return true
}

// SetActiveKey makes the key the active one of its category. Unknown ids are ignored.
func (r *Resolver) SetActiveKey(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexLocked(id)
	if idx < 0 {
		return false
	}

	category := r.keys[idx].Category
	for i := range r.keys {
		if r.keys[i].Category == category {
			r.keys[i].IsActive = i == idx
		}
	}

	return true
}

// SetValidity records the outcome of a vendor check. Unknown ids are ignored.
func (r *Resolver) SetValidity(id uuid.UUID, valid bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexLocked(id)
	if idx < 0 {
		return false
	}
	r.keys[idx].IsValid = valid
	return true
}

// Restore replaces the current keys with previously persisted ones, oldest first.
// The active-key invariant is repaired: the first active key of a category wins,
// and a category without an active key gets its oldest key activated.
func (r *Resolver) Restore(keys []models.ProviderKey) {
	restored := make([]models.ProviderKey, 0, len(keys))
	seenActive := make(map[models.Category]bool)

	for _, k := range keys {
		if !k.Category.IsValid() {
			continue
		}
		if k.IsActive {
			if seenActive[k.Category] {
				k.IsActive = false
			} else {
				seenActive[k.Category] = true
			}
		}
		restored = append(restored, k)
	}

	for i := range restored {
		category := restored[i].Category
		if !seenActive[category] {
			restored[i].IsActive = true
			seenActive[category] = true
		}
	}

	r.mu.Lock()
	r.keys = restored
	r.mu.Unlock()
}

// Key returns the key with the given id
func (r *Resolver) Key(id uuid.UUID) (models.ProviderKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := r.indexLocked(id)
	if idx < 0 {
		return models.ProviderKey{}, false
	}
	return r.keys[idx], true
}

// Keys returns all keys in insertion order
func (r *Resolver) Keys() []models.ProviderKey {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]models.ProviderKey, len(r.keys))
	copy(result, r.keys)
	return result
}

// KeysByType returns the keys of a category in insertion order
func (r *Resolver) KeysByType(category models.Category) []models.ProviderKey {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]models.ProviderKey, 0)
	for _, k := range r.keys {
		if k.Category == category {
			result = append(result, k)
		}
	}
	return result
}

// ActiveKey returns the preferred key of a category
func (r *Resolver) ActiveKey(category models.Category) (models.ProviderKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, k := range r.keys {
		if k.Category == category && k.IsActive {
			return k, true
		}
	}
	return models.ProviderKey{}, false
}

// HasAnyKeyForType reports whether at least one key exists for the category
func (r *Resolver) HasAnyKeyForType(category models.Category) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hasAnyLocked(category)
}

// BillingMode returns the mode of every category. Any stored key switches its
// category to BYOK, whether or not it has been validated.
func (r *Resolver) BillingMode() models.BillingModes {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.billingModeLocked()
}

// EstimatedCostPerMinute returns the platform fee plus the rates of every
// category still billed by the platform
func (r *Resolver) EstimatedCostPerMinute() decimal.Decimal {
	return r.schedule.Cost(r.BillingMode())
}

// TotalKeyCount returns the number of stored keys across all categories
func (r *Resolver) TotalKeyCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keys)
}

// Summary returns the billing summary shown in the settings panel
func (r *Resolver) Summary() models.BillingSummary {
	r.mu.RLock()
	modes := r.billingModeLocked()
	total := len(r.keys)
	r.mu.RUnlock()

	return models.BillingSummary{
		EstimatedCostPerMinute: r.schedule.Cost(modes).Round(3).InexactFloat64(),
		PlatformFee:            r.schedule.PlatformFee.Round(3).InexactFloat64(),
		TotalKeyCount:          total,
		ByokCategoryCount:      modes.ByokCount(),
		BillingMode:            modes,
		Breakdown:              r.schedule.Breakdown(modes),
	}
}

func (r *Resolver) billingModeLocked() models.BillingModes {
	modes := make(models.BillingModes, len(models.AllCategories))
	for _, category := range models.AllCategories {
		if r.hasAnyLocked(category) {
			modes[category] = models.BillingModeBYOK
		} else {
			modes[category] = models.BillingModePlatform
		}
	}
	return modes
}

func (r *Resolver) hasAnyLocked(category models.Category) bool {
	for _, k := range r.keys {
		if k.Category == category {
			return true
		}
	}
	return false
}

func (r *Resolver) indexLocked(id uuid.UUID) int {
	for i, k := range r.keys {
		if k.ID == id {
			return i
		}
	}
	return -1
}
