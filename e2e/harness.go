// Package e2e provides end-to-end testing infrastructure for voicedesk.
package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"voicedesk/config"
	"voicedesk/e2e/mocks"
	"voicedesk/internal/api"
	"voicedesk/internal/app"
	"voicedesk/internal/settings"
	"voicedesk/repository"
)

// TestHarness provides the infrastructure for running E2E tests.
// Keys live in PostgreSQL when E2E_DATABASE_URL is set and in an encrypted
// file otherwise; vendors are always served by the mock server.
type TestHarness struct {
	t          *testing.T
	ctx        context.Context
	cancel     context.CancelFunc
	mockServer *mocks.MockServer
	app        *app.App
	router     http.Handler
	config     *config.Config
}

// NewTestHarness creates a new test harness with all dependencies initialized.
func NewTestHarness(t *testing.T) *TestHarness {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)

	return &TestHarness{
		t:      t,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Setup initializes all test dependencies.
func (h *TestHarness) Setup() error {
	// Start mock server for vendor APIs
	h.mockServer = mocks.NewMockServer()

	h.config = h.createTestConfig()

	if h.config.HasDatabase() {
		if err := h.cleanupTestData(); err != nil {
			return err
		}
	}

	var err error
	h.app, err = app.Build(h.ctx, h.config)
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}

	handler := api.NewHandler(h.app, h.config)
	h.router = api.NewRouter(handler, h.config)

	return nil
}

// Restart rebuilds the app against the same storage, as a process restart would.
func (h *TestHarness) Restart() error {
	if h.app != nil {
		h.app.Shutdown()
	}

	var err error
	h.app, err = app.Build(h.ctx, h.config)
	if err != nil {
		return fmt.Errorf("failed to rebuild app: %w", err)
	}
	h.router = api.NewRouter(api.NewHandler(h.app, h.config), h.config)
	return nil
}

// Teardown cleans up all test resources.
func (h *TestHarness) Teardown() {
	if h.app != nil {
		h.app.Shutdown()
	}

	if h.config != nil && h.config.HasDatabase() {
		h.cleanupTestData()
	}

	if h.mockServer != nil {
		h.mockServer.Close()
	}

	if h.cancel != nil {
		h.cancel()
	}
}

// Context returns the test context.
func (h *TestHarness) Context() context.Context {
	return h.ctx
}

// MockServer returns the mock server for configuring responses.
func (h *TestHarness) MockServer() *mocks.MockServer {
	return h.mockServer
}

// App returns the application instance.
func (h *TestHarness) App() *app.App {
	return h.app
}

// Router returns the HTTP router for making requests.
func (h *TestHarness) Router() http.Handler {
	return h.router
}

// Config returns the test configuration.
func (h *TestHarness) Config() *config.Config {
	return h.config
}

// DoRequest performs an HTTP request and returns the response.
func (h *TestHarness) DoRequest(method, path string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

// DecodeJSON decodes a response body into v, failing the test on error.
func (h *TestHarness) DecodeJSON(w *httptest.ResponseRecorder, v interface{}) {
	h.t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		h.t.Fatalf("failed to decode response: %v (body %q)", err, w.Body.String())
	}
}

func (h *TestHarness) createTestConfig() *config.Config {
	cfg := config.NewTestConfig()
	cfg.Database.URL = os.Getenv("E2E_DATABASE_URL")
	cfg.Settings.Dir = h.t.TempDir()
	cfg.Validation.TimeoutSeconds = 5

	// Point every vendor at the mock server
	cfg.VendorBaseURLs = make(map[string]string)
	for _, v := range settings.Vendors() {
		cfg.VendorBaseURLs[v.Name] = h.mockServer.VendorURL(v.Name)
	}

	return cfg
}

func (h *TestHarness) cleanupTestData() error {
	repo, err := repository.NewRepository(h.ctx, h.config.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to test database: %w", err)
	}
	defer repo.Close()

	if err := repo.Migrate(h.ctx); err != nil {
		return err
	}
	if _, err := repo.Pool().Exec(h.ctx, "DELETE FROM provider_keys"); err != nil {
		h.t.Logf("cleanup query failed: %v", err)
	}
	return nil
}

// SkipIfNoDatabase skips the test if E2E_DATABASE_URL is unset or unreachable.
func SkipIfNoDatabase(t *testing.T) {
	t.Helper()

	dbURL := os.Getenv("E2E_DATABASE_URL")
	if dbURL == "" {
		t.Skip("E2E_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	repo, err := repository.NewRepository(ctx, dbURL)
	if err != nil {
		t.Skipf("E2E database not available: %v", err)
	}
	repo.Close()
}
