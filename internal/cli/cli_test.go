package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"voicedesk/internal/app"
	"voicedesk/internal/settings"
	"voicedesk/models"
)

// setupEnv points the CLI at an isolated key file
func setupEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SETTINGS_DIR", t.TempDir())
	t.Setenv("SETTINGS_PASSPHRASE", "cli-test-passphrase")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("LOG_LEVEL", "error")
}

// run executes the CLI with args and returns stdout
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	out, err := run(t, stdin, args...)
	if err != nil {
		t.Fatalf("voicedesk %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestRootCommand_Tree(t *testing.T) {
	root := NewRootCommand()

	for _, path := range [][]string{
		{"serve"},
		{"keys", "list"},
		{"keys", "add"},
		{"keys", "remove"},
		{"keys", "activate"},
		{"keys", "validate"},
		{"summary"},
		{"pricing"},
		{"providers"},
	} {
		cmd, _, err := root.Find(path)
		if err != nil || cmd == nil || cmd.Name() != path[len(path)-1] {
			t.Errorf("command %v not found", path)
			continue
		}
		if cmd.RunE == nil {
			t.Errorf("command %v has no RunE", path)
		}
	}
}

func TestKeysLifecycle(t *testing.T) {
	setupEnv(t)

	out := mustRun(t, "", "keys", "add", "openai", "llm", "sk-cli-first-1234567890")
	if !strings.Contains(out, "sk-cli****") || !strings.Contains(out, "active") {
		t.Errorf("unexpected add output %q", out)
	}

	// Secret from stdin
	mustRun(t, "sk-cli-second-1234567890\n", "keys", "add", "anthropic", "llm")

	var keys []models.MaskedProviderKey
	if err := json.Unmarshal([]byte(mustRun(t, "", "keys", "list", "--json")), &keys); err != nil {
		t.Fatalf("keys list --json: %v", err)
	}
	if len(keys) != 2 || !keys[0].IsActive || keys[1].IsActive {
		t.Fatalf("unexpected keys %+v", keys)
	}

	mustRun(t, "", "keys", "activate", keys[1].ID.String())

	listed := mustRun(t, "", "keys", "list", "--category", "llm")
	if strings.Contains(listed, "sk-cli-first-1234567890") {
		t.Error("list output leaks a raw secret")
	}
	if !strings.Contains(listed, keys[1].ID.String()) {
		t.Errorf("list output missing key id: %q", listed)
	}

	out = mustRun(t, "", "keys", "remove", keys[1].ID.String())
	if !strings.Contains(out, "Removed key") {
		t.Errorf("unexpected remove output %q", out)
	}
	out = mustRun(t, "", "keys", "remove", keys[1].ID.String())
	if !strings.Contains(out, "No key with id") {
		t.Errorf("removing an unknown id should be a no-op, got %q", out)
	}

	var remaining []models.MaskedProviderKey
	json.Unmarshal([]byte(mustRun(t, "", "keys", "list", "--json")), &remaining)
	if len(remaining) != 1 || remaining[0].ID != keys[0].ID || !remaining[0].IsActive {
		t.Errorf("remaining key should be active again, got %+v", remaining)
	}
}

func TestKeysAdd_Errors(t *testing.T) {
	setupEnv(t)

	if _, err := run(t, "", "keys", "add", "openai", "video", "sk-1234567890abc"); err == nil {
		t.Error("expected an error for an unknown category")
	}
	if _, err := run(t, "\n", "keys", "add", "openai", "llm"); err == nil {
		t.Error("expected an error for an empty secret")
	}
	if _, err := run(t, "", "keys", "activate", "00000000-0000-0000-0000-000000000001"); err == nil {
		t.Error("expected an error activating an unknown key")
	}
}

func TestSummaryAndPricing(t *testing.T) {
	setupEnv(t)

	var empty models.BillingSummary
	if err := json.Unmarshal([]byte(mustRun(t, "", "summary", "--json")), &empty); err != nil {
		t.Fatalf("summary --json: %v", err)
	}
	if empty.EstimatedCostPerMinute != 0.032 {
		t.Errorf("EstimatedCostPerMinute = %v, want 0.032", empty.EstimatedCostPerMinute)
	}

	mustRun(t, "", "keys", "add", "openai", "llm", "sk-sum-1234567890")
	out := mustRun(t, "", "summary")
	if !strings.Contains(out, "$0.031/min") {
		t.Errorf("summary should report 0.031 with one llm key, got %q", out)
	}

	var p app.Pricing
	if err := json.Unmarshal([]byte(mustRun(t, "", "pricing", "--json")), &p); err != nil {
		t.Fatalf("pricing --json: %v", err)
	}
	if p.PlatformFee != 0.008 || len(p.Categories) != 4 {
		t.Errorf("unexpected pricing %+v", p)
	}
	if out := mustRun(t, "", "pricing"); !strings.Contains(out, "Telephony") {
		t.Errorf("pricing table missing telephony row: %q", out)
	}
}

func TestProviders(t *testing.T) {
	setupEnv(t)

	var vendors []settings.Vendor
	if err := json.Unmarshal([]byte(mustRun(t, "", "providers", "--json")), &vendors); err != nil {
		t.Fatalf("providers --json: %v", err)
	}
	if len(vendors) != len(settings.Vendors()) {
		t.Errorf("expected %d vendors, got %d", len(settings.Vendors()), len(vendors))
	}
}

func TestKeysValidate(t *testing.T) {
	setupEnv(t)

	vendor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer sk-good-1234567890" {
			w.Write([]byte(`{"data":[]}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Incorrect API key provided"}}`))
	}))
	defer vendor.Close()
	t.Setenv("VENDOR_OPENAI_BASE_URL", vendor.URL)

	mustRun(t, "", "keys", "add", "openai", "llm", "sk-good-1234567890")
	out := mustRun(t, "", "keys", "add", "--validate", "openai", "llm", "sk-bad-1234567890")
	if !strings.Contains(out, "Incorrect API key provided") {
		t.Errorf("add --validate should print the vendor message, got %q", out)
	}

	var results []settings.KeyValidation
	if err := json.Unmarshal([]byte(mustRun(t, "", "keys", "validate", "--json")), &results); err != nil {
		t.Fatalf("keys validate --json: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].IsValid || results[1].IsValid {
		t.Errorf("unexpected verdicts %+v", results)
	}

	var keys []models.MaskedProviderKey
	json.Unmarshal([]byte(mustRun(t, "", "keys", "list", "--json")), &keys)
	if keys[1].IsValid {
		t.Error("rejected key should be stored as invalid")
	}
}
