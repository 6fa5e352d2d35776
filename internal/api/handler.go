package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"voicedesk/billing"
	"voicedesk/config"
	"voicedesk/internal/app"
	"voicedesk/internal/settings"
	"voicedesk/observability"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxRequestBody caps the size of JSON request bodies
const maxRequestBody = 64 << 10

// Handler handles HTTP API requests
type Handler struct {
	app *app.App
	cfg *config.Config
}

// NewHandler creates a new Handler
func NewHandler(application *app.App, cfg *config.Config) *Handler {
	return &Handler{app: application, cfg: cfg}
}

// AddKeyRequest is the body of POST /api/keys
type AddKeyRequest struct {
	Provider string `json:"provider"`
	Category string `json:"category"`
	Secret   string `json:"secret"`
}

// HandleHealth returns the health status of the application
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, h.app.Health(r.Context()))
}

// HandleGetProviders returns the vendor catalog
func (h *Handler) HandleGetProviders(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, h.app.Providers())
}

// HandleGetKeys returns masked keys, optionally filtered by ?category=
func (h *Handler) HandleGetKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.app.ListKeys(r.URL.Query().Get("category"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.jsonResponse(w, keys)
}

// HandleAddKey stores a new provider key
func (h *Handler) HandleAddKey(w http.ResponseWriter, r *http.Request) {
	var req AddKeyRequest
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
			h.jsonError(w, "Invalid JSON request", http.StatusBadRequest)
			return
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		if err := r.ParseForm(); err != nil {
			h.jsonError(w, "Failed to parse form", http.StatusBadRequest)
			return
		}
		req.Provider = r.FormValue("provider")
		req.Category = r.FormValue("category")
		req.Secret = r.FormValue("secret")
	}

	result, err := h.app.AddKey(r.Context(), req.Provider, req.Category, req.Secret)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.jsonStatus(w, http.StatusCreated, result)
}

// HandleDeleteKey removes a key. Unknown or malformed ids are a no-op.
func (h *Handler) HandleDeleteKey(w http.ResponseWriter, r *http.Request) {
	removed, err := h.app.RemoveKey(r.Context(), chi.URLParam(r, "id"))
	if err != nil && !errors.Is(err, app.ErrInvalidID) {
		h.handleError(w, r, err)
		return
	}

	h.jsonResponse(w, map[string]interface{}{
		"removed": removed,
		"summary": h.app.Summary(),
	})
}

// HandleActivateKey makes a key the active one of its category
func (h *Handler) HandleActivateKey(w http.ResponseWriter, r *http.Request) {
	key, err := h.app.ActivateKey(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.jsonResponse(w, map[string]interface{}{
		"key":     key,
		"summary": h.app.Summary(),
	})
}

// HandleValidateKey checks one key against its vendor
func (h *Handler) HandleValidateKey(w http.ResponseWriter, r *http.Request) {
	kv, err := h.app.ValidateKey(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.jsonResponse(w, kv)
}

// HandleValidateAll checks every stored key
func (h *Handler) HandleValidateAll(w http.ResponseWriter, r *http.Request) {
	results, err := h.app.ValidateAll(r.Context())

	resp := map[string]interface{}{
		"results": results,
		"summary": h.app.Summary(),
	}
	if err != nil {
		// Verdicts that could not be stored are reported alongside the rest
		observability.WithError(err).Warn("batch validation incomplete", "request_id", middleware.GetReqID(r.Context()))
		resp["error"] = err.Error()
	}
	h.jsonResponse(w, resp)
}

// HandleGetSummary returns the billing summary
func (h *Handler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, h.app.Summary())
}

// HandleGetPricing returns the price schedule
func (h *Handler) HandleGetPricing(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, h.app.Pricing())
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, billing.ErrEmptySecret),
		errors.Is(err, billing.ErrProviderRequired),
		errors.Is(err, billing.ErrUnknownCategory),
		errors.Is(err, app.ErrCategoryMismatch),
		errors.Is(err, app.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, billing.ErrDuplicateKey):
		return http.StatusConflict
	case errors.Is(err, settings.ErrKeyNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		observability.WithError(err).Error("request failed",
			"method", r.Method, "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()))
		h.jsonError(w, "internal error", status)
		return
	}
	h.jsonError(w, err.Error(), status)
}

func (h *Handler) jsonResponse(w http.ResponseWriter, data interface{}) {
	h.jsonStatus(w, http.StatusOK, data)
}

func (h *Handler) jsonStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
