package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}

	// Verify all metrics are initialized
	if m.KeyOperationsTotal == nil {
		t.Error("KeyOperationsTotal is nil")
	}
	if m.ProviderKeys == nil {
		t.Error("ProviderKeys is nil")
	}
	if m.BillingMode == nil {
		t.Error("BillingMode is nil")
	}
	if m.EstimatedCostPerMinute == nil {
		t.Error("EstimatedCostPerMinute is nil")
	}
	if m.ValidationsTotal == nil {
		t.Error("ValidationsTotal is nil")
	}
	if m.ValidationDuration == nil {
		t.Error("ValidationDuration is nil")
	}
	if m.ValidationCacheTotal == nil {
		t.Error("ValidationCacheTotal is nil")
	}
	if m.VendorProbesTotal == nil {
		t.Error("VendorProbesTotal is nil")
	}
	if m.DBQueryDuration == nil {
		t.Error("DBQueryDuration is nil")
	}
	if m.HTTPRequestsTotal == nil {
		t.Error("HTTPRequestsTotal is nil")
	}
	if m.VendorBreakerState == nil {
		t.Error("VendorBreakerState is nil")
	}
}

func TestRecordKeyOperation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordKeyOperation("add", "success")
	m.RecordKeyOperation("add", "success")
	m.RecordKeyOperation("add", "duplicate")

	if got := testutil.ToFloat64(m.KeyOperationsTotal.WithLabelValues("add", "success")); got != 2 {
		t.Errorf("Expected add/success to be 2, got %f", got)
	}
	if got := testutil.ToFloat64(m.KeyOperationsTotal.WithLabelValues("add", "duplicate")); got != 1 {
		t.Errorf("Expected add/duplicate to be 1, got %f", got)
	}
}

func TestBillingGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SetProviderKeyCount("llm", 3)
	m.SetBillingMode("llm", true)
	m.SetBillingMode("stt", false)
	m.SetEstimatedCost(0.031)

	if got := testutil.ToFloat64(m.ProviderKeys.WithLabelValues("llm")); got != 3 {
		t.Errorf("Expected llm keys to be 3, got %f", got)
	}
	if got := testutil.ToFloat64(m.BillingMode.WithLabelValues("llm")); got != 1 {
		t.Errorf("Expected llm byok gauge to be 1, got %f", got)
	}
	if got := testutil.ToFloat64(m.BillingMode.WithLabelValues("stt")); got != 0 {
		t.Errorf("Expected stt byok gauge to be 0, got %f", got)
	}
	if got := testutil.ToFloat64(m.EstimatedCostPerMinute); got != 0.031 {
		t.Errorf("Expected estimated cost 0.031, got %f", got)
	}
}

func TestRecordValidation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordValidation("openai", "valid", 50*time.Millisecond)
	m.RecordValidation("openai", "invalid", 20*time.Millisecond)
	m.RecordValidation("deepgram", "unreachable", time.Second)

	if got := testutil.ToFloat64(m.ValidationsTotal.WithLabelValues("openai", "valid")); got != 1 {
		t.Errorf("Expected openai/valid to be 1, got %f", got)
	}
	if got := testutil.ToFloat64(m.ValidationsTotal.WithLabelValues("deepgram", "unreachable")); got != 1 {
		t.Errorf("Expected deepgram/unreachable to be 1, got %f", got)
	}
	if count := testutil.CollectAndCount(m.ValidationDuration); count != 2 {
		t.Errorf("Expected 2 duration series, got %d", count)
	}
}

func TestRecordValidationCache(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordValidationCache("memory", true)
	m.RecordValidationCache("memory", false)
	m.RecordValidationCache("memory", false)

	if got := testutil.ToFloat64(m.ValidationCacheTotal.WithLabelValues("memory", "hit")); got != 1 {
		t.Errorf("Expected 1 hit, got %f", got)
	}
	if got := testutil.ToFloat64(m.ValidationCacheTotal.WithLabelValues("memory", "miss")); got != 2 {
		t.Errorf("Expected 2 misses, got %f", got)
	}
}

func TestRecordVendorProbe(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordVendorProbe("anthropic", "accepted", 120*time.Millisecond)
	m.RecordVendorProbe("anthropic", "accepted", 80*time.Millisecond)
	m.RecordVendorProbe("anthropic", "unreachable", 10*time.Second)

	if got := testutil.ToFloat64(m.VendorProbesTotal.WithLabelValues("anthropic", "accepted")); got != 2 {
		t.Errorf("accepted probes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.VendorProbesTotal.WithLabelValues("anthropic", "unreachable")); got != 1 {
		t.Errorf("unreachable probes = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.VendorProbeDuration); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}
}

func TestRecordDBQuery(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordDBQuery("select", "provider_keys", 10*time.Millisecond)
	m.RecordDBQuery("insert", "provider_keys", 5*time.Millisecond)
	m.RecordDBError("select", "provider_keys")

	if got := testutil.ToFloat64(m.DBQueryTotal.WithLabelValues("select", "provider_keys")); got != 1 {
		t.Errorf("Expected 1 select, got %f", got)
	}
	if got := testutil.ToFloat64(m.DBErrorsTotal.WithLabelValues("select", "provider_keys")); got != 1 {
		t.Errorf("Expected 1 select error, got %f", got)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordHTTPRequest("GET", "/api/health", "200", 10*time.Millisecond, 100)
	m.RecordHTTPRequest("POST", "/api/keys", "409", 5*time.Millisecond, 60)

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/health", "200")); got != 1 {
		t.Errorf("Expected health OK to be 1, got %f", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/keys", "409")); got != 1 {
		t.Errorf("Expected key conflict to be 1, got %f", got)
	}
}

func TestVendorBreakerMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.SetVendorBreakerState("openai", 2)
	m.RecordVendorBreakerTrip("openai")
	m.SetVendorBreakerState("openai", 1)

	if got := testutil.ToFloat64(m.VendorBreakerState.WithLabelValues("openai")); got != 1 {
		t.Errorf("state = %v, want half-open (1)", got)
	}
	if got := testutil.ToFloat64(m.VendorBreakerTrips.WithLabelValues("openai")); got != 1 {
		t.Errorf("trips = %v, want 1", got)
	}
}

func TestTimer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	timer := m.NewTimer()
	if timer == nil {
		t.Fatal("NewTimer returned nil")
	}

	// Sleep a small amount to ensure duration is measurable
	time.Sleep(10 * time.Millisecond)

	duration := timer.Duration()
	if duration < 10*time.Millisecond {
		t.Errorf("Expected duration to be at least 10ms, got %v", duration)
	}

	timer.ObserveValidation("openai", "valid")
	if got := testutil.ToFloat64(m.ValidationsTotal.WithLabelValues("openai", "valid")); got != 1 {
		t.Errorf("Expected ObserveValidation to count once, got %f", got)
	}

	timer2 := m.NewTimer()
	timer2.ObserveVendorProbe("openai", "rejected")
	if got := testutil.ToFloat64(m.VendorProbesTotal.WithLabelValues("openai", "rejected")); got != 1 {
		t.Errorf("Expected ObserveVendorProbe to count once, got %f", got)
	}

	timer3 := m.NewTimer()
	timer3.ObserveDB("select", "provider_keys")
	if got := testutil.ToFloat64(m.DBQueryTotal.WithLabelValues("select", "provider_keys")); got != 1 {
		t.Errorf("Expected ObserveDB to count once, got %f", got)
	}
}

func TestGetMetrics_Singleton(t *testing.T) {
	// Save and restore global metrics state
	original := globalMetrics
	defer func() { globalMetrics = original }()

	reg := prometheus.NewRegistry()
	globalMetrics = NewMetrics(reg)

	m1 := GetMetrics()
	if m1 == nil {
		t.Fatal("GetMetrics returned nil")
	}

	m2 := GetMetrics()
	if m1 != m2 {
		t.Error("GetMetrics should return the same instance")
	}
}

func TestSetGlobalMetrics(t *testing.T) {
	original := globalMetrics
	defer func() { globalMetrics = original }()

	m := NewMetrics(prometheus.NewRegistry())
	SetGlobalMetrics(m)

	if GetMetrics() != m {
		t.Error("GetMetrics should return the instance set by SetGlobalMetrics")
	}
}
