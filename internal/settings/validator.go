package settings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"voicedesk/observability"
	"voicedesk/services"

	"github.com/tidwall/gjson"
)

var (
	// ErrInvalidCredential means the vendor rejected the key
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrVendorUnreachable means no verdict could be obtained from the vendor
	ErrVendorUnreachable = errors.New("vendor unreachable")
	// ErrUnknownProvider means the provider is not in the vendor catalog
	ErrUnknownProvider = errors.New("unknown provider")
)

// ValidationOutcome classifies a validation attempt
type ValidationOutcome string

const (
	OutcomeValid           ValidationOutcome = "valid"
	OutcomeInvalid         ValidationOutcome = "invalid"
	OutcomeUnreachable     ValidationOutcome = "unreachable"
	OutcomeUnknownProvider ValidationOutcome = "unknown_provider"
)

// Definitive reports whether the outcome is a verdict about the key itself
func (o ValidationOutcome) Definitive() bool {
	return o == OutcomeValid || o == OutcomeInvalid
}

// ValidationResult represents the result of validating a provider key
type ValidationResult struct {
	Provider   string            `json:"provider"`
	Valid      bool              `json:"valid"`
	Outcome    ValidationOutcome `json:"outcome"`
	Message    string            `json:"message"`
	DurationMs int64             `json:"durationMs"`
	Cached     bool              `json:"cached"`
}

// KeyValidator checks a credential against its vendor.
// The result is always non-nil; a non-nil error carries one of the Err* kinds above.
type KeyValidator interface {
	ValidateKey(ctx context.Context, provider, secret string) (*ValidationResult, error)
}

// maxErrorBody caps how much of a vendor response is read
const maxErrorBody = 64 << 10

// errorMessagePaths are the places vendors put a human-readable error
var errorMessagePaths = []string{
	"error.message",
	"error.detail",
	"detail.message",
	"detail",
	"message",
	"err_msg",
	"errors.0.detail",
	"errors.0.message",
	"error",
}

// Validator validates provider keys by probing vendor APIs
type Validator struct {
	client   *http.Client
	baseURLs map[string]string
	breakers *services.VendorBreakers
	retry    services.RetryConfig
	cache    ValidationCache
	metrics  *observability.Metrics
}

// ValidatorOption configures a Validator
type ValidatorOption func(*Validator)

// WithHTTPClient replaces the default 10s client
func WithHTTPClient(client *http.Client) ValidatorOption {
	return func(v *Validator) { v.client = client }
}

// WithBaseURLs overrides vendor base URLs by provider name
func WithBaseURLs(urls map[string]string) ValidatorOption {
	return func(v *Validator) {
		for name, u := range urls {
			v.baseURLs[strings.ToLower(name)] = strings.TrimRight(u, "/")
		}
	}
}

// WithCache enables result caching
func WithCache(cache ValidationCache) ValidatorOption {
	return func(v *Validator) { v.cache = cache }
}

// WithRetryConfig sets the backoff used for unreachable vendors
func WithRetryConfig(cfg services.RetryConfig) ValidatorOption {
	return func(v *Validator) {
		cfg.ShouldRetry = v.retry.ShouldRetry
		v.retry = cfg
	}
}

// WithBreakers shares a breaker set, e.g. with the health check
func WithBreakers(breakers *services.VendorBreakers) ValidatorOption {
	return func(v *Validator) { v.breakers = breakers }
}

// NewValidator creates a new provider key validator
func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURLs: make(map[string]string),
		retry: services.RetryConfig{
			MaxRetries:     2,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			ShouldRetry:    isRetryable,
		},
		metrics: observability.GetMetrics(),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.breakers == nil {
		v.breakers = NewVendorBreakers()
	}
	return v
}

// NewVendorBreakers returns a breaker set where only unreachable vendors count as failures
func NewVendorBreakers() *services.VendorBreakers {
	cfg := services.DefaultBreakerConfig
	cfg.CountsAsFailure = countsAgainstVendor
	return services.NewVendorBreakers(cfg)
}

// countsAgainstVendor reports whether a probe error says the vendor is unhealthy.
// A rejected credential does not, and neither does a caller that went away.
func countsAgainstVendor(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrVendorUnreachable) || errors.Is(err, context.DeadlineExceeded)
}

// isRetryable retries unreachable vendors unless their breaker is already open
func isRetryable(err error) bool {
	return errors.Is(err, ErrVendorUnreachable) && !errors.Is(err, services.ErrBreakerOpen)
}

// BaseURL returns the effective base URL for a vendor
func (v *Validator) BaseURL(vendor Vendor) string {
	if u, ok := v.baseURLs[vendor.Name]; ok && u != "" {
		return u
	}
	return vendor.DefaultBaseURL
}

// ValidateKey tests whether a secret is accepted by the provider's API
func (v *Validator) ValidateKey(ctx context.Context, provider, secret string) (*ValidationResult, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	start := time.Now()
	result := &ValidationResult{Provider: provider}

	vendor, ok := LookupVendor(provider)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
		v.finish(result, OutcomeUnknownProvider, err, start)
		return result, err
	}
	if strings.TrimSpace(secret) == "" {
		err := fmt.Errorf("%w: secret is empty", ErrInvalidCredential)
		v.finish(result, OutcomeInvalid, err, start)
		return result, err
	}

	fingerprint := Fingerprint(provider, secret)
	if v.cache != nil {
		cached, hit := v.cache.Get(ctx, fingerprint)
		v.metrics.RecordValidationCache(v.cache.Backend(), hit)
		if hit {
			result.Valid = cached.Valid
			result.Message = cached.Message
			result.Cached = true
			result.Outcome = OutcomeValid
			result.DurationMs = time.Since(start).Milliseconds()
			if !cached.Valid {
				result.Outcome = OutcomeInvalid
				return result, fmt.Errorf("%w: %s", ErrInvalidCredential, cached.Message)
			}
			return result, nil
		}
	}

	err := services.WithRetry(ctx, v.retry, func() error {
		err := v.breakers.Call(ctx, vendor.Name, func(ctx context.Context) error {
			return v.probe(ctx, vendor, secret)
		})
		if errors.Is(err, services.ErrBreakerOpen) {
			return fmt.Errorf("%w: %w", ErrVendorUnreachable, err)
		}
		return err
	})

	switch {
	case err == nil:
		v.finish(result, OutcomeValid, nil, start)
		result.Message = vendor.DisplayName + " accepted the key"
	case errors.Is(err, ErrInvalidCredential):
		v.finish(result, OutcomeInvalid, err, start)
	default:
		if !errors.Is(err, ErrVendorUnreachable) {
			err = fmt.Errorf("%w: %w", ErrVendorUnreachable, err)
		}
		v.finish(result, OutcomeUnreachable, err, start)
	}

	if v.cache != nil && result.Outcome.Definitive() {
		v.cache.Set(ctx, fingerprint, CachedValidation{
			Valid:     result.Valid,
			Message:   result.Message,
			CheckedAt: time.Now().UTC(),
		})
	}

	return result, err
}

func (v *Validator) finish(result *ValidationResult, outcome ValidationOutcome, err error, start time.Time) {
	result.Outcome = outcome
	result.Valid = outcome == OutcomeValid
	if err != nil {
		result.Message = err.Error()
	}
	duration := time.Since(start)
	result.DurationMs = duration.Milliseconds()
	v.metrics.RecordValidation(result.Provider, string(outcome), duration)

	log := observability.WithProvider(result.Provider)
	if outcome == OutcomeUnreachable {
		log.Warn("key validation inconclusive", "error", err, "duration", duration)
	} else {
		log.Debug("key validated", "outcome", outcome, "duration", duration)
	}
}

// probe performs one authenticated request and classifies the response
func (v *Validator) probe(ctx context.Context, vendor Vendor, secret string) error {
	req, err := vendor.newProbe(ctx, v.BaseURL(vendor), secret)
	if err != nil {
		if errors.Is(err, ErrInvalidCredential) {
			return err
		}
		return fmt.Errorf("%w: building request: %v", ErrVendorUnreachable, err)
	}

	timer := v.metrics.NewTimer()

	resp, err := v.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			timer.ObserveVendorProbe(vendor.Name, "cancelled")
			return ctxErr
		}
		timer.ObserveVendorProbe(vendor.Name, "unreachable")
		return fmt.Errorf("%w: connection failed: %v", ErrVendorUnreachable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		timer.ObserveVendorProbe(vendor.Name, "accepted")
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		// Throttling happens after authentication
		timer.ObserveVendorProbe(vendor.Name, "throttled")
		return nil
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= 500:
		timer.ObserveVendorProbe(vendor.Name, "unreachable")
		return fmt.Errorf("%w: %s returned status %d", ErrVendorUnreachable, vendor.DisplayName, resp.StatusCode)
	default:
		timer.ObserveVendorProbe(vendor.Name, "rejected")
		msg := vendorMessage(body)
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return fmt.Errorf("%w: %s: %s", ErrInvalidCredential, vendor.DisplayName, msg)
	}
}

// vendorMessage extracts the vendor's error text from a JSON body
func vendorMessage(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range errorMessagePaths {
		r := gjson.GetBytes(body, path)
		if r.Type == gjson.String && strings.TrimSpace(r.Str) != "" {
			return strings.TrimSpace(r.Str)
		}
	}
	return ""
}

var _ KeyValidator = (*Validator)(nil)
