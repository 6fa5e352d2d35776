package repository

import (
	"context"

	"voicedesk/models"

	"github.com/google/uuid"
)

// ProviderKeyRepository defines the persistence operations for provider keys
type ProviderKeyRepository interface {
	// Health and lifecycle
	Close()
	Health(ctx context.Context) error

	// Provider keys
	ListProviderKeys(ctx context.Context) ([]models.StoredProviderKey, error)
	InsertProviderKey(ctx context.Context, key *models.StoredProviderKey) error
	DeleteProviderKey(ctx context.Context, id uuid.UUID) (bool, error)
	SetActiveProviderKey(ctx context.Context, category models.Category, id uuid.UUID) error
	RemoveProviderKey(ctx context.Context, id uuid.UUID, category models.Category, promote uuid.UUID) (bool, error)
	UpdateProviderKeyValidity(ctx context.Context, id uuid.UUID, valid bool) error
}

// Compile-time interface verification
var _ ProviderKeyRepository = (*Repository)(nil)
