package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"voicedesk/billing"
	"voicedesk/config"
	"voicedesk/internal/settings"
	"voicedesk/models"
	"voicedesk/observability"
	"voicedesk/repository"
	"voicedesk/services"

	"github.com/google/uuid"
)

var (
	// ErrInvalidID is returned when a key id is not a UUID
	ErrInvalidID = errors.New("invalid key id")
	// ErrCategoryMismatch is returned when a known vendor's key is filed under another category
	ErrCategoryMismatch = errors.New("provider does not belong to category")
)

// Database is the subset of the repository the app needs for lifecycle and health
type Database interface {
	Health(ctx context.Context) error
	Close()
}

// App wires the key store, vendor validation and configuration together
type App struct {
	cfg       *config.Config
	db        Database
	store     *settings.Store
	refresher *settings.Refresher
	breakers  *services.VendorBreakers
	cache     settings.ValidationCache
	closers   []func()
}

// New creates an App from already constructed parts. db, breakers and cache may be nil.
func New(cfg *config.Config, db Database, store *settings.Store, validator settings.KeyValidator, breakers *services.VendorBreakers, cache settings.ValidationCache) *App {
	timeout := time.Duration(cfg.Validation.TimeoutSeconds) * time.Second
	return &App{
		cfg:       cfg,
		db:        db,
		store:     store,
		refresher: settings.NewRefresher(store, validator, timeout, cfg.Validation.ConcurrencyLimit),
		breakers:  breakers,
		cache:     cache,
	}
}

// Build constructs the App described by cfg: PostgreSQL when DATABASE_URL is set,
// the encrypted key file otherwise, and a Redis validation cache when REDIS_URL is set.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	var (
		db      Database
		keyRepo settings.Repository
		closers []func()
	)

	if cfg.HasDatabase() {
		repo, err := repository.NewRepository(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := repo.Migrate(ctx); err != nil {
			repo.Close()
			return nil, err
		}
		db, keyRepo = repo, repo
		observability.Info("using postgres key storage")
	} else {
		observability.Info("DATABASE_URL not set, using encrypted key file")
	}

	ttl := time.Duration(cfg.Validation.CacheTTLSeconds) * time.Second
	var cache settings.ValidationCache = settings.NewMemoryCache(ttl)
	if cfg.HasRedis() {
		rc, err := settings.NewRedisCache(ctx, cfg.Redis.URL, ttl)
		if err != nil {
			observability.Warn("redis unavailable, falling back to in-memory validation cache", "error", err)
		} else {
			cache = rc
			closers = append(closers, func() { _ = rc.Close() })
		}
	}

	store, err := settings.NewStore(ctx, cfg.Settings.Dir, cfg.Settings.Passphrase, keyRepo)
	if err != nil {
		if db != nil {
			db.Close()
		}
		for _, c := range closers {
			c()
		}
		return nil, err
	}

	breakers := settings.NewVendorBreakers()
	validator := settings.NewValidator(
		settings.WithBaseURLs(cfg.VendorBaseURLs),
		settings.WithCache(cache),
		settings.WithBreakers(breakers),
	)

	a := New(cfg, db, store, validator, breakers, cache)
	a.closers = closers
	return a, nil
}

// Shutdown releases the database pool and cache connections
func (a *App) Shutdown() {
	for _, c := range a.closers {
		c()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// Store returns the key store
func (a *App) Store() *settings.Store {
	return a.store
}

// Config returns the configuration the app was built with
func (a *App) Config() *config.Config {
	return a.cfg
}

// Providers returns the vendor catalog
func (a *App) Providers() []settings.Vendor {
	return settings.Vendors()
}

// ListKeys returns masked keys, all of them when category is empty
func (a *App) ListKeys(category string) ([]models.MaskedProviderKey, error) {
	c := models.Category(strings.ToLower(strings.TrimSpace(category)))
	if c != "" && !c.IsValid() {
		return nil, fmt.Errorf("%w: %q", billing.ErrUnknownCategory, category)
	}
	return a.store.MaskedKeys(c), nil
}

// AddKeyResult is the outcome of adding a key
type AddKeyResult struct {
	Key        models.MaskedProviderKey `json:"key"`
	Validation *settings.KeyValidation  `json:"validation,omitempty"`
	Summary    models.BillingSummary    `json:"summary"`
}

// AddKey stores a key and, when VALIDATE_ON_ADD is set, checks it against the vendor
func (a *App) AddKey(ctx context.Context, provider, category, secret string) (*AddKeyResult, error) {
	c := models.Category(strings.ToLower(strings.TrimSpace(category)))
	if vendor, ok := settings.LookupVendor(provider); ok && c.IsValid() && vendor.Category != c {
		return nil, fmt.Errorf("%w: %s is a %s provider", ErrCategoryMismatch, vendor.Name, vendor.Category)
	}

	key, err := a.store.AddKey(ctx, provider, c, secret)
	if err != nil {
		return nil, err
	}

	result := &AddKeyResult{}
	if a.cfg.Validation.ValidateOnAdd {
		kv, err := a.refresher.Validate(ctx, key.ID)
		if err != nil {
			observability.WithProvider(key.Provider).Warn("validation after add failed", "key_id", key.ID, "error", err)
		} else {
			result.Validation = kv
		}
		if updated, ok := a.store.Key(key.ID); ok {
			key = updated
		}
	}

	result.Key = key.Masked()
	result.Summary = a.store.Summary()
	return result, nil
}

// RemoveKey deletes a key; unknown ids report false without error
func (a *App) RemoveKey(ctx context.Context, id string) (bool, error) {
	keyID, err := ParseUUID(id)
	if err != nil {
		return false, err
	}
	return a.store.RemoveKey(ctx, keyID)
}

// ActivateKey makes a key the active one of its category
func (a *App) ActivateKey(ctx context.Context, id string) (models.MaskedProviderKey, error) {
	keyID, err := ParseUUID(id)
	if err != nil {
		return models.MaskedProviderKey{}, err
	}

	ok, err := a.store.SetActiveKey(ctx, keyID)
	if err != nil {
		return models.MaskedProviderKey{}, err
	}
	key, found := a.store.Key(keyID)
	if !ok || !found {
		return models.MaskedProviderKey{}, fmt.Errorf("%w: %s", settings.ErrKeyNotFound, keyID)
	}
	return key.Masked(), nil
}

// ValidateKey checks one stored key against its vendor
func (a *App) ValidateKey(ctx context.Context, id string) (*settings.KeyValidation, error) {
	keyID, err := ParseUUID(id)
	if err != nil {
		return nil, err
	}
	return a.refresher.Validate(ctx, keyID)
}

// ValidateAll checks every stored key
func (a *App) ValidateAll(ctx context.Context) ([]settings.KeyValidation, error) {
	return a.refresher.ValidateAll(ctx)
}

// Summary returns the current billing summary
func (a *App) Summary() models.BillingSummary {
	return a.store.Summary()
}

// CategoryPrice is the platform rate of one category
type CategoryPrice struct {
	Category      models.Category `json:"category"`
	DisplayName   string          `json:"displayName"`
	CostPerMinute float64         `json:"costPerMinute"`
}

// Pricing is the advertised price schedule
type Pricing struct {
	Currency    string          `json:"currency"`
	PlatformFee float64         `json:"platformFee"`
	Categories  []CategoryPrice `json:"categories"`
	AllPlatform float64         `json:"allPlatformCostPerMinute"`
}

// Pricing returns the price schedule in display order
func (a *App) Pricing() Pricing {
	schedule := a.store.Schedule()

	p := Pricing{
		Currency:    "USD",
		PlatformFee: schedule.PlatformFee.InexactFloat64(),
		AllPlatform: schedule.Cost(models.BillingModes{}).Round(3).InexactFloat64(),
	}
	for _, c := range models.AllCategories {
		p.Categories = append(p.Categories, CategoryPrice{
			Category:      c,
			DisplayName:   c.DisplayName(),
			CostPerMinute: schedule.CategoryCost(c).InexactFloat64(),
		})
	}
	return p
}

// HealthStatus reports the state of the app's dependencies
type HealthStatus struct {
	Status   string                            `json:"status"`
	Storage  string                            `json:"storage"`
	Database string                            `json:"database"`
	Cache    string                            `json:"cache"`
	KeyCount int                               `json:"keyCount"`
	Vendors  map[string]services.BreakerStatus `json:"vendors"`
	// OpenVendors lists vendors whose breaker is open
	OpenVendors []string `json:"openVendors,omitempty"`
}

// Health checks the database and vendor circuit breakers
func (a *App) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:   "ok",
		Storage:  "file",
		Database: "not_configured",
		Cache:    "none",
		KeyCount: a.store.TotalKeyCount(),
	}

	if a.store.UsesDatabase() {
		status.Storage = "postgres"
	}
	if a.db != nil {
		if err := a.db.Health(ctx); err != nil {
			status.Database = "disconnected"
			status.Status = "degraded"
		} else {
			status.Database = "connected"
		}
	}
	if a.cache != nil {
		status.Cache = a.cache.Backend()
	}

	if a.breakers != nil {
		status.Vendors = a.breakers.Status()
		status.OpenVendors = a.breakers.OpenVendors()
		if len(status.OpenVendors) > 0 {
			status.Status = "degraded"
		}
	}

	return status
}

// ParseUUID parses a key id
func ParseUUID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	return parsed, nil
}
