package main

import (
	"encoding/json"
	"net/http"
	"strings"

	"voicedesk/e2e/mocks"
	"voicedesk/observability"
)

// mockVendors wraps the vendor mock server with an HTTP control surface so
// browser tests can accept keys or simulate outages between steps.
type mockVendors struct {
	*mocks.MockServer
}

// newMockVendors starts the mock and accepts the keys listed in accepted,
// a comma-separated list of vendor=secret pairs.
func newMockVendors(accepted string) *mockVendors {
	m := &mockVendors{MockServer: mocks.NewMockServer()}
	for _, pair := range strings.Split(accepted, ",") {
		vendor, secret, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || vendor == "" || secret == "" {
			continue
		}
		m.AcceptKey(vendor, secret)
	}
	observability.Info("mock vendors started", "url", m.URL())
	return m
}

type controlRequest struct {
	Vendor  string `json:"vendor"`
	Secret  string `json:"secret,omitempty"`
	Status  int    `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

// ControlHandler exposes POST /accept, /revoke, /behavior, /reset and GET /requests.
func (m *mockVendors) ControlHandler() http.Handler {
	mux := http.NewServeMux()

	decode := func(w http.ResponseWriter, r *http.Request) (controlRequest, bool) {
		var req controlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Vendor == "" {
			http.Error(w, "vendor is required", http.StatusBadRequest)
			return req, false
		}
		return req, true
	}

	mux.HandleFunc("POST /accept", func(w http.ResponseWriter, r *http.Request) {
		if req, ok := decode(w, r); ok {
			m.AcceptKey(req.Vendor, req.Secret)
			w.WriteHeader(http.StatusNoContent)
		}
	})
	mux.HandleFunc("POST /revoke", func(w http.ResponseWriter, r *http.Request) {
		if req, ok := decode(w, r); ok {
			m.RevokeKey(req.Vendor, req.Secret)
			w.WriteHeader(http.StatusNoContent)
		}
	})
	mux.HandleFunc("POST /behavior", func(w http.ResponseWriter, r *http.Request) {
		req, ok := decode(w, r)
		if !ok {
			return
		}
		if req.Status == 0 {
			m.ClearBehavior(req.Vendor)
		} else {
			m.SetBehavior(req.Vendor, mocks.VendorBehavior{Status: req.Status, Message: req.Message})
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /reset", func(w http.ResponseWriter, r *http.Request) {
		m.Reset()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /requests", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.GetRequestLog())
	})

	return mux
}
