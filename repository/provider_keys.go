package repository

import (
	"context"
	"fmt"

	"voicedesk/models"
	"voicedesk/observability"

	"github.com/google/uuid"
)

const providerKeysTable = "provider_keys"

// ListProviderKeys returns every stored key in insertion order
func (r *Repository) ListProviderKeys(ctx context.Context) ([]models.StoredProviderKey, error) {
	if err := r.checkDB(); err != nil {
		return nil, err
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("select", providerKeysTable)

	rows, err := r.db.Query(ctx, `
		SELECT id, provider, category, secret_encrypted, is_valid, is_active, created_at
		FROM provider_keys
		ORDER BY seq
	`)
	if err != nil {
		metrics.RecordDBError("select", providerKeysTable)
		return nil, fmt.Errorf("failed to query provider keys: %w", err)
	}
	defer rows.Close()

	var keys []models.StoredProviderKey
	for rows.Next() {
		var key models.StoredProviderKey
		var category string
		if err := rows.Scan(
			&key.ID,
			&key.Provider,
			&category,
			&key.SecretEncrypted,
			&key.IsValid,
			&key.IsActive,
			&key.CreatedAt,
		); err != nil {
			metrics.RecordDBError("select", providerKeysTable)
			return nil, fmt.Errorf("failed to scan provider key: %w", err)
		}
		key.Category = models.Category(category)
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		metrics.RecordDBError("select", providerKeysTable)
		return nil, fmt.Errorf("error iterating provider keys: %w", err)
	}

	return keys, nil
}

// InsertProviderKey stores a new key
func (r *Repository) InsertProviderKey(ctx context.Context, key *models.StoredProviderKey) error {
	if err := r.checkDB(); err != nil {
		return err
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("insert", providerKeysTable)

	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO provider_keys (id, provider, category, secret_encrypted, is_valid, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`,
		key.ID,
		key.Provider,
		string(key.Category),
		key.SecretEncrypted,
		key.IsValid,
		key.IsActive,
		key.CreatedAt,
	)
	if err != nil {
		metrics.RecordDBError("insert", providerKeysTable)
		return fmt.Errorf("failed to insert provider key: %w", err)
	}

	return nil
}

// DeleteProviderKey removes a key by id. It reports whether a row was deleted.
func (r *Repository) DeleteProviderKey(ctx context.Context, id uuid.UUID) (bool, error) {
	if err := r.checkDB(); err != nil {
		return false, err
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("delete", providerKeysTable)

	tag, err := r.db.Exec(ctx, `DELETE FROM provider_keys WHERE id = $1`, id)
	if err != nil {
		metrics.RecordDBError("delete", providerKeysTable)
		return false, fmt.Errorf("failed to delete provider key: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// SetActiveProviderKey makes id the only active key of its category
func (r *Repository) SetActiveProviderKey(ctx context.Context, category models.Category, id uuid.UUID) error {
	if err := r.checkDB(); err != nil {
		return err
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("update", providerKeysTable)

	tx, txRepo, err := r.BeginTx(ctx)
	if err != nil {
		metrics.RecordDBError("update", providerKeysTable)
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := txRepo.activate(ctx, category, id); err != nil {
		metrics.RecordDBError("update", providerKeysTable)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.RecordDBError("update", providerKeysTable)
		return fmt.Errorf("failed to commit activation: %w", err)
	}

	return nil
}

// RemoveProviderKey deletes id and, unless promote is uuid.Nil, makes promote the
// active key of category. Both happen in one transaction: on error nothing changed.
func (r *Repository) RemoveProviderKey(ctx context.Context, id uuid.UUID, category models.Category, promote uuid.UUID) (bool, error) {
	if err := r.checkDB(); err != nil {
		return false, err
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("delete", providerKeysTable)

	tx, txRepo, err := r.BeginTx(ctx)
	if err != nil {
		metrics.RecordDBError("delete", providerKeysTable)
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := txRepo.db.Exec(ctx, `DELETE FROM provider_keys WHERE id = $1`, id)
	if err != nil {
		metrics.RecordDBError("delete", providerKeysTable)
		return false, fmt.Errorf("failed to delete provider key: %w", err)
	}

	if promote != uuid.Nil {
		if err := txRepo.activate(ctx, category, promote); err != nil {
			metrics.RecordDBError("delete", providerKeysTable)
			return false, fmt.Errorf("failed to promote provider key: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.RecordDBError("delete", providerKeysTable)
		return false, fmt.Errorf("failed to commit removal: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// activate runs the activation statements on r's connection, normally a transaction
func (r *Repository) activate(ctx context.Context, category models.Category, id uuid.UUID) error {
	// Deactivate first so the partial unique index never sees two active rows
	if _, err := r.db.Exec(ctx, `
		UPDATE provider_keys SET is_active = FALSE, updated_at = NOW()
		WHERE category = $1 AND is_active AND id <> $2
	`, string(category), id); err != nil {
		return fmt.Errorf("failed to deactivate provider keys: %w", err)
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE provider_keys SET is_active = TRUE, updated_at = NOW()
		WHERE id = $1 AND category = $2
	`, id, string(category))
	if err != nil {
		return fmt.Errorf("failed to activate provider key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("provider key %s not found in category %s", id, category)
	}
	return nil
}

// UpdateProviderKeyValidity records the latest validation outcome for a key
func (r *Repository) UpdateProviderKeyValidity(ctx context.Context, id uuid.UUID, valid bool) error {
	if err := r.checkDB(); err != nil {
		return err
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("update", providerKeysTable)

	_, err := r.db.Exec(ctx, `
		UPDATE provider_keys SET is_valid = $2, updated_at = NOW()
		WHERE id = $1
	`, id, valid)
	if err != nil {
		metrics.RecordDBError("update", providerKeysTable)
		return fmt.Errorf("failed to update provider key validity: %w", err)
	}

	return nil
}
