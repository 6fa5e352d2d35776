// Package services holds the resilience wrappers placed around vendor calls.
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"voicedesk/observability"

	"github.com/sony/gobreaker/v2"
)

// ErrBreakerOpen is returned when a vendor's breaker rejects a call without running it
var ErrBreakerOpen = errors.New("vendor breaker open")

// BreakerConfig holds the thresholds shared by every vendor breaker
type BreakerConfig struct {
	HalfOpenProbes uint32        // calls let through while half-open
	ResetInterval  time.Duration // closed-state window after which counts clear
	OpenTimeout    time.Duration // time spent open before probing again
	MinRequests    uint32
	FailureRatio   float64
	// CountsAsFailure decides which errors count against the vendor. Nil counts every
	// error except context.Canceled, which is never the vendor's fault.
	CountsAsFailure func(err error) bool
}

// DefaultBreakerConfig opens a vendor after half of at least five calls in a minute failed
var DefaultBreakerConfig = BreakerConfig{
	HalfOpenProbes: 5,
	ResetInterval:  time.Minute,
	OpenTimeout:    30 * time.Second,
	MinRequests:    5,
	FailureRatio:   0.5,
}

// VendorBreakers keeps one circuit breaker per vendor, created on first use
type VendorBreakers struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
	cfg      BreakerConfig
}

// NewVendorBreakers creates an empty breaker set
func NewVendorBreakers(cfg BreakerConfig) *VendorBreakers {
	return &VendorBreakers{
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
		cfg:      cfg,
	}
}

func (b *VendorBreakers) breaker(vendor string) *gobreaker.CircuitBreaker[struct{}] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.breakers[vendor]; ok {
		return cb
	}

	cfg := b.cfg
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        vendor,
		MaxRequests: cfg.HalfOpenProbes,
		Interval:    cfg.ResetInterval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			return cfg.CountsAsFailure != nil && !cfg.CountsAsFailure(err)
		},
		OnStateChange: func(vendor string, from, to gobreaker.State) {
			observability.WithProvider(vendor).Warn("vendor breaker state change",
				"from", from.String(),
				"to", to.String())

			metrics := observability.GetMetrics()
			metrics.SetVendorBreakerState(vendor, stateToInt(to))
			if to == gobreaker.StateOpen {
				metrics.RecordVendorBreakerTrip(vendor)
			}
		},
	})
	b.breakers[vendor] = cb
	return cb
}

// Call runs fn through the vendor's breaker. A context that is already done fails fast
// without reaching the breaker; fn returning context.Canceled is not counted as a failure.
func (b *VendorBreakers) Call(ctx context.Context, vendor string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := b.breaker(vendor).Execute(func() (struct{}, error) {
		return struct{}{}, fn(ctx)
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		observability.WithProvider(vendor).Debug("vendor breaker open, skipping call")
		return fmt.Errorf("%w: %s", ErrBreakerOpen, vendor)
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%w: %s: half-open probe limit reached", ErrBreakerOpen, vendor)
	}
	return err
}

// BreakerStatus is a snapshot of one vendor's breaker
type BreakerStatus struct {
	State               string `json:"state"`
	Requests            uint32 `json:"requests"`
	Failures            uint32 `json:"failures"`
	ConsecutiveFailures uint32 `json:"consecutiveFailures"`
}

// Status returns a snapshot of every breaker created so far, keyed by vendor
func (b *VendorBreakers) Status() map[string]BreakerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	status := make(map[string]BreakerStatus, len(b.breakers))
	for vendor, cb := range b.breakers {
		counts := cb.Counts()
		status[vendor] = BreakerStatus{
			State:               cb.State().String(),
			Requests:            counts.Requests,
			Failures:            counts.TotalFailures,
			ConsecutiveFailures: counts.ConsecutiveFailures,
		}
	}
	return status
}

// OpenVendors lists vendors whose breaker is currently open, sorted by name
func (b *VendorBreakers) OpenVendors() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var open []string
	for vendor, cb := range b.breakers {
		if cb.State() == gobreaker.StateOpen {
			open = append(open, vendor)
		}
	}
	sort.Strings(open)
	return open
}

// 0=closed, 1=half-open, 2=open
func stateToInt(state gobreaker.State) int {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
