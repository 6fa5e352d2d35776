package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"voicedesk/models"

	"github.com/google/uuid"
)

// getTestDB returns a migrated repository connected to the test database.
// If DATABASE_URL is not set, the test is skipped.
func getTestDB(t *testing.T) *Repository {
	t.Helper()

	connString := os.Getenv("DATABASE_URL")
	if connString == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	repo, err := NewRepository(ctx, connString)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	if err := repo.Migrate(ctx); err != nil {
		repo.Close()
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return repo
}

// cleanupProviderKeys removes all test keys
func cleanupProviderKeys(t *testing.T, repo *Repository) {
	t.Helper()
	ctx := context.Background()
	repo.pool.Exec(ctx, "DELETE FROM provider_keys WHERE provider LIKE 'test-%'")
}

func newTestKey(category models.Category, active bool) *models.StoredProviderKey {
	return &models.StoredProviderKey{
		ID:              uuid.New(),
		Provider:        "test-vendor",
		Category:        category,
		SecretEncrypted: []byte("ciphertext"),
		IsValid:         true,
		IsActive:        active,
		CreatedAt:       time.Now().UTC(),
	}
}

func findKey(keys []models.StoredProviderKey, id uuid.UUID) *models.StoredProviderKey {
	for i := range keys {
		if keys[i].ID == id {
			return &keys[i]
		}
	}
	return nil
}

func TestRepository_NoDatabase(t *testing.T) {
	repo := &Repository{}
	ctx := context.Background()

	if _, err := repo.ListProviderKeys(ctx); !errors.Is(err, ErrNoDatabase) {
		t.Errorf("ListProviderKeys() error = %v, want ErrNoDatabase", err)
	}
	if err := repo.InsertProviderKey(ctx, newTestKey(models.CategoryLLM, true)); !errors.Is(err, ErrNoDatabase) {
		t.Errorf("InsertProviderKey() error = %v, want ErrNoDatabase", err)
	}
	if _, err := repo.DeleteProviderKey(ctx, uuid.New()); !errors.Is(err, ErrNoDatabase) {
		t.Errorf("DeleteProviderKey() error = %v, want ErrNoDatabase", err)
	}
	if err := repo.SetActiveProviderKey(ctx, models.CategoryLLM, uuid.New()); !errors.Is(err, ErrNoDatabase) {
		t.Errorf("SetActiveProviderKey() error = %v, want ErrNoDatabase", err)
	}
	if _, err := repo.RemoveProviderKey(ctx, uuid.New(), models.CategoryLLM, uuid.Nil); !errors.Is(err, ErrNoDatabase) {
		t.Errorf("RemoveProviderKey() error = %v, want ErrNoDatabase", err)
	}
	if err := repo.UpdateProviderKeyValidity(ctx, uuid.New(), false); !errors.Is(err, ErrNoDatabase) {
		t.Errorf("UpdateProviderKeyValidity() error = %v, want ErrNoDatabase", err)
	}
	if err := repo.Health(ctx); !errors.Is(err, ErrNoDatabase) {
		t.Errorf("Health() error = %v, want ErrNoDatabase", err)
	}
	if err := repo.Migrate(ctx); !errors.Is(err, ErrNoDatabase) {
		t.Errorf("Migrate() error = %v, want ErrNoDatabase", err)
	}
	if _, _, err := repo.BeginTx(ctx); !errors.Is(err, ErrNoDatabase) {
		t.Errorf("BeginTx() error = %v, want ErrNoDatabase", err)
	}

	// Close on an unconnected repository must not panic
	repo.Close()
}

func TestMigrationFilesEmbedded(t *testing.T) {
	data, err := migrationFiles.ReadFile("migrations/001_provider_keys.up.sql")
	if err != nil {
		t.Fatalf("expected embedded migration: %v", err)
	}
	if len(data) == 0 {
		t.Error("migration file is empty")
	}
}

// =============================================================================
// Provider Key Tests
// =============================================================================

func TestRepository_ProviderKeys_CRUD(t *testing.T) {
	repo := getTestDB(t)
	defer repo.Close()
	defer cleanupProviderKeys(t, repo)
	ctx := context.Background()

	first := newTestKey(models.CategoryLLM, true)
	second := newTestKey(models.CategoryLLM, false)

	if err := repo.InsertProviderKey(ctx, first); err != nil {
		t.Fatalf("InsertProviderKey() error = %v", err)
	}
	if err := repo.InsertProviderKey(ctx, second); err != nil {
		t.Fatalf("InsertProviderKey() error = %v", err)
	}

	keys, err := repo.ListProviderKeys(ctx)
	if err != nil {
		t.Fatalf("ListProviderKeys() error = %v", err)
	}
	got := findKey(keys, first.ID)
	if got == nil {
		t.Fatal("inserted key not listed")
	}
	if string(got.SecretEncrypted) != "ciphertext" || !got.IsActive {
		t.Errorf("unexpected stored key %+v", got)
	}

	if err := repo.UpdateProviderKeyValidity(ctx, second.ID, false); err != nil {
		t.Fatalf("UpdateProviderKeyValidity() error = %v", err)
	}

	deleted, err := repo.DeleteProviderKey(ctx, second.ID)
	if err != nil || !deleted {
		t.Fatalf("DeleteProviderKey() = %v, %v", deleted, err)
	}

	deleted, err = repo.DeleteProviderKey(ctx, uuid.New())
	if err != nil || deleted {
		t.Errorf("deleting unknown id should be a no-op, got %v, %v", deleted, err)
	}
}

func TestRepository_SetActiveProviderKey(t *testing.T) {
	repo := getTestDB(t)
	defer repo.Close()
	defer cleanupProviderKeys(t, repo)
	ctx := context.Background()

	first := newTestKey(models.CategorySTT, true)
	second := newTestKey(models.CategorySTT, false)
	for _, k := range []*models.StoredProviderKey{first, second} {
		if err := repo.InsertProviderKey(ctx, k); err != nil {
			t.Fatalf("InsertProviderKey() error = %v", err)
		}
	}

	if err := repo.SetActiveProviderKey(ctx, models.CategorySTT, second.ID); err != nil {
		t.Fatalf("SetActiveProviderKey() error = %v", err)
	}

	keys, err := repo.ListProviderKeys(ctx)
	if err != nil {
		t.Fatalf("ListProviderKeys() error = %v", err)
	}
	if findKey(keys, first.ID).IsActive {
		t.Error("first key should no longer be active")
	}
	if !findKey(keys, second.ID).IsActive {
		t.Error("second key should be active")
	}

	if err := repo.SetActiveProviderKey(ctx, models.CategorySTT, uuid.New()); err == nil {
		t.Error("expected error activating unknown key")
	}
}

func TestRepository_RemoveProviderKey(t *testing.T) {
	repo := getTestDB(t)
	defer repo.Close()
	defer cleanupProviderKeys(t, repo)
	ctx := context.Background()

	active := newTestKey(models.CategoryTTS, true)
	next := newTestKey(models.CategoryTTS, false)
	for _, k := range []*models.StoredProviderKey{active, next} {
		if err := repo.InsertProviderKey(ctx, k); err != nil {
			t.Fatalf("InsertProviderKey() error = %v", err)
		}
	}

	// A promotion that cannot apply rolls the delete back
	if _, err := repo.RemoveProviderKey(ctx, active.ID, models.CategoryTTS, uuid.New()); err == nil {
		t.Fatal("expected error promoting an unknown key")
	}
	keys, _ := repo.ListProviderKeys(ctx)
	if k := findKey(keys, active.ID); k == nil || !k.IsActive {
		t.Fatal("failed removal must leave the active key in place")
	}

	removed, err := repo.RemoveProviderKey(ctx, active.ID, models.CategoryTTS, next.ID)
	if err != nil || !removed {
		t.Fatalf("RemoveProviderKey() = %v, %v", removed, err)
	}
	keys, _ = repo.ListProviderKeys(ctx)
	if findKey(keys, active.ID) != nil {
		t.Error("removed key still listed")
	}
	if k := findKey(keys, next.ID); k == nil || !k.IsActive {
		t.Error("remaining key should have been promoted")
	}

	removed, err = repo.RemoveProviderKey(ctx, uuid.New(), models.CategoryTTS, uuid.Nil)
	if err != nil || removed {
		t.Errorf("removing an unknown id should be a no-op, got %v, %v", removed, err)
	}
}
