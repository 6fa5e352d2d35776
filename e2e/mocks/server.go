// Package mocks provides HTTP mock servers for the vendor APIs keys are validated against.
package mocks

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// MockServer impersonates every vendor. Each vendor lives under its own path
// prefix, so /openai/v1/models is OpenAI's model listing.
type MockServer struct {
	mu     sync.RWMutex
	server *httptest.Server

	// accepted secrets per vendor
	accepted map[string]map[string]bool
	// behavior overrides per vendor
	behaviors map[string]VendorBehavior

	// Request tracking for assertions
	requestLog []RequestLog
}

// NewMockServer creates a new mock server that rejects every key until told otherwise.
func NewMockServer() *MockServer {
	m := &MockServer{
		accepted:   make(map[string]map[string]bool),
		behaviors:  make(map[string]VendorBehavior),
		requestLog: make([]RequestLog, 0),
	}
	m.server = httptest.NewServer(m)
	return m
}

// URL returns the mock server's base URL.
func (m *MockServer) URL() string {
	return m.server.URL
}

// VendorURL returns the base URL to configure for a vendor.
func (m *MockServer) VendorURL(vendor string) string {
	return m.server.URL + "/" + vendor
}

// Close shuts down the mock server.
func (m *MockServer) Close() {
	m.server.Close()
}

// ServeHTTP answers a vendor probe based on the credential it carries.
func (m *MockServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	vendor, rest, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	credential := extractCredential(r)

	m.mu.Lock()
	m.requestLog = append(m.requestLog, RequestLog{
		Vendor:     vendor,
		Method:     r.Method,
		Path:       "/" + rest,
		Credential: credential,
	})
	behavior, overridden := m.behaviors[vendor]
	ok := m.accepted[vendor][credential]
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if overridden && behavior.Status != 0 {
		w.WriteHeader(behavior.Status)
		if behavior.Status >= 400 {
			json.NewEncoder(w).Encode(errorBody{Error: errorDetail{Message: behavior.Message}})
		}
		return
	}

	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(errorBody{Error: errorDetail{
			Message: "Invalid API key provided",
			Type:    "invalid_request_error",
		}})
		return
	}

	w.Write([]byte(`{"data":[]}`))
}

// extractCredential returns the secret from whichever auth header the vendor uses
func extractCredential(r *http.Request) string {
	if user, pass, ok := r.BasicAuth(); ok {
		return user + ":" + pass
	}
	for _, h := range []string{"x-api-key", "xi-api-key"} {
		if v := r.Header.Get(h); v != "" {
			return v
		}
	}
	auth := r.Header.Get("Authorization")
	for _, prefix := range []string{"Bearer ", "Token "} {
		if strings.HasPrefix(auth, prefix) {
			return strings.TrimPrefix(auth, prefix)
		}
	}
	return auth
}

// AcceptKey makes the vendor accept secret.
func (m *MockServer) AcceptKey(vendor, secret string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.accepted[vendor] == nil {
		m.accepted[vendor] = make(map[string]bool)
	}
	m.accepted[vendor][secret] = true
}

// RevokeKey makes the vendor reject secret again.
func (m *MockServer) RevokeKey(vendor, secret string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accepted[vendor], secret)
}

// SetBehavior forces a vendor's responses, e.g. a 503 outage or a 429.
func (m *MockServer) SetBehavior(vendor string, b VendorBehavior) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.behaviors[vendor] = b
}

// ClearBehavior restores normal credential checking for a vendor.
func (m *MockServer) ClearBehavior(vendor string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.behaviors, vendor)
}

// GetRequestLog returns all logged requests for assertions.
func (m *MockServer) GetRequestLog() []RequestLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RequestLog{}, m.requestLog...)
}

// RequestCount returns how many probes a vendor received.
func (m *MockServer) RequestCount(vendor string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, l := range m.requestLog {
		if l.Vendor == vendor {
			n++
		}
	}
	return n
}

// ClearRequestLog clears the request log.
func (m *MockServer) ClearRequestLog() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestLog = make([]RequestLog, 0)
}

// Reset forgets accepted keys, behaviors and logged requests.
func (m *MockServer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accepted = make(map[string]map[string]bool)
	m.behaviors = make(map[string]VendorBehavior)
	m.requestLog = make([]RequestLog, 0)
}
