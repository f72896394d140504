package config

import (
	"os"
	"path/filepath"
	"testing"

	"dataengine/pkg/datasource"
)

// Test_Load_withSourcesSection verifies env expansion and per-section
// hydration through the full Load path.
func Test_Load_withSourcesSection(t *testing.T) {
	dir := t.TempDir()

	sourcesYAML := []byte(`
default: ashare
sources:
  ashare:
    type: ashare
    class: equity
    base_url: ${ASHARE_BASE}
    market: stock
    app_key: ${ASHARE_APP_KEY}
    secret: ${ASHARE_SECRET}
    timeout: ${ASHARE_TIMEOUT}
    max_retries: 2
`)
	srcPath := filepath.Join(dir, "sources.yaml")
	if err := os.WriteFile(srcPath, sourcesYAML, 0o600); err != nil {
		t.Fatalf("write sources.yaml: %v", err)
	}

	mainYAML := []byte(`
Env: test
TTL:
  Short: 10
  Medium: 60
  Long: 300
Sources:
  File: sources.yaml
Routing:
  "000001": equity
  "BTC": crypto
`)
	mainPath := filepath.Join(dir, "dataengine.yaml")
	if err := os.WriteFile(mainPath, mainYAML, 0o600); err != nil {
		t.Fatalf("write main config: %v", err)
	}

	t.Setenv("ASHARE_BASE", "https://gw.ashare.local")
	t.Setenv("ASHARE_APP_KEY", "test-key")
	t.Setenv("ASHARE_SECRET", "test-secret")
	t.Setenv("ASHARE_TIMEOUT", "7s")

	cfg, err := Load(mainPath)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	if !cfg.IsTestEnv() {
		t.Fatalf("Env not parsed, got %q", cfg.Env)
	}

	if cfg.Sources.Value == nil {
		t.Fatalf("Sources section not hydrated")
	}
	src := cfg.Sources.Value.Sources["ashare"]
	if src == nil {
		t.Fatalf("source 'ashare' missing")
	}
	if got := src.BaseURL; got != "https://gw.ashare.local" {
		t.Fatalf("base_url not expanded, got %q", got)
	}
	if got := src.AppKey; got != "test-key" {
		t.Fatalf("app_key not expanded, got %q", got)
	}
	if src.Timeout.String() != "7s" {
		t.Fatalf("timeout not parsed, got %s", src.Timeout)
	}

	table := cfg.RoutingTable()
	if table["000001"] != datasource.ClassEquity || table["BTC"] != datasource.ClassCrypto {
		t.Fatalf("routing table not converted: %v", table)
	}
}

func TestValidate_TTLBounds(t *testing.T) {
	cfg := &Config{}
	cfg.TTL.Short = 0
	cfg.TTL.Medium = 60
	cfg.TTL.Long = 300
	cfg.Sync.DirectoryMaxAgeHours = 24
	cfg.Sync.InactiveAfterDays = 30
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected ttl.short validation error")
	}
}

func TestValidate_RoutingClass(t *testing.T) {
	cfg := &Config{}
	cfg.TTL = CacheTTL{Short: 10, Medium: 60, Long: 300}
	cfg.Sync.DirectoryMaxAgeHours = 24
	cfg.Sync.InactiveAfterDays = 30
	cfg.Routing = map[string]string{"XAUUSD": "commodity"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected routing class validation error")
	}
}

func TestValidate_SyncEpoch(t *testing.T) {
	cfg := &Config{}
	cfg.TTL = CacheTTL{Short: 10, Medium: 60, Long: 300}
	cfg.Sync.DirectoryMaxAgeHours = 24
	cfg.Sync.InactiveAfterDays = 30
	cfg.Sync.Epoch = "19-12-1990"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected sync.epoch validation error")
	}
	cfg.Sync.Epoch = "1990-12-19"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.EpochTime().Year() != 1990 {
		t.Fatalf("EpochTime got %v", cfg.EpochTime())
	}
}
