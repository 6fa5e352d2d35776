package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"voicedesk/observability"

	"github.com/google/uuid"
)

// ErrKeyNotFound is returned when validating an id the store does not hold
var ErrKeyNotFound = errors.New("provider key not found")

// KeyValidation reports one validation run and whether its verdict was stored
type KeyValidation struct {
	KeyID   uuid.UUID         `json:"keyId"`
	Applied bool              `json:"applied"`
	IsValid bool              `json:"isValid"`
	Result  *ValidationResult `json:"result"`
}

// Refresher validates stored keys and records the verdicts.
// A verdict is stored only if the key still exists and no newer validation of
// the same key started in the meantime. Inconclusive outcomes never change validity.
type Refresher struct {
	store     *Store
	validator KeyValidator
	timeout   time.Duration
	sem       chan struct{}

	mu          sync.Mutex
	counter     uint64
	generations map[uuid.UUID]uint64
}

// NewRefresher creates a refresher running at most concurrency validations at once
func NewRefresher(store *Store, validator KeyValidator, timeout time.Duration, concurrency int) *Refresher {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Refresher{
		store:       store,
		validator:   validator,
		timeout:     timeout,
		sem:         make(chan struct{}, concurrency),
		generations: make(map[uuid.UUID]uint64),
	}
}

func (r *Refresher) begin(id uuid.UUID) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counter++
	r.generations[id] = r.counter
	return r.counter
}

// finish reports whether gen is still the newest validation of id
func (r *Refresher) finish(id uuid.UUID, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.generations[id] != gen {
		return false
	}
	delete(r.generations, id)
	return true
}

// Validate checks one stored key against its vendor
func (r *Refresher) Validate(ctx context.Context, id uuid.UUID) (*KeyValidation, error) {
	key, ok := r.store.Key(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, id)
	}
	gen := r.begin(id)

	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	case <-ctx.Done():
		r.finish(id, gen)
		return nil, ctx.Err()
	}

	vctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, verr := r.validator.ValidateKey(vctx, key.Provider, key.Secret)

	out := &KeyValidation{KeyID: id, Result: result, IsValid: key.IsValid}
	latest := r.finish(id, gen)
	if result == nil || !result.Outcome.Definitive() {
		if verr != nil {
			observability.WithKey(id.String(), key.Provider, string(key.Category)).Warn("key validation inconclusive, keeping previous validity",
				"error", verr)
		}
		return out, nil
	}
	if !latest {
		observability.WithKey(id.String(), key.Provider, string(key.Category)).Debug("discarding superseded validation")
		return out, nil
	}

	applied, err := r.store.SetValidity(ctx, id, result.Valid)
	if err != nil {
		return out, fmt.Errorf("failed to record validation: %w", err)
	}
	out.Applied = applied
	if applied {
		out.IsValid = result.Valid
	}
	return out, nil
}

// ValidateAll checks every stored key, in insertion order of the results
func (r *Refresher) ValidateAll(ctx context.Context) ([]KeyValidation, error) {
	keys := r.store.Keys()
	results := make([]KeyValidation, len(keys))
	errs := make([]error, len(keys))

	var wg sync.WaitGroup
	for i, k := range keys {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			kv, err := r.Validate(ctx, id)
			if err != nil {
				// Keys removed while the batch runs are simply skipped
				if !errors.Is(err, ErrKeyNotFound) {
					errs[i] = err
				}
				results[i] = KeyValidation{KeyID: id}
				return
			}
			results[i] = *kv
		}(i, k.ID)
	}
	wg.Wait()

	return results, errors.Join(errs...)
}
