package config

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"product-picker/internal/model"
)

var configEnvVars = []string{
	"CONFIG_FILE", "PORT", "ENVIRONMENT", "LOG_LEVEL", "GCP_PROJECT", "CATALOG_SECRET",
	"CATALOG_URL", "CATALOG_API_KEY", "CATALOG_RATE_LIMIT", "UPSTREAM_TLS_FINGERPRINT",
	"SEARCH_DEBOUNCE", "PAGE_SIZE", "SESSION_TTL", "EMPTY_ENTRY_POLICY",
	"PROPAGATE_DISCOUNTS", "MIN_CLIENT_VERSION",
}

// clearEnv blanks every variable Load reads; empty values count as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnvVars {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("CATALOG_URL", "https://catalog.example.com/task/products/search")
	t.Setenv("CATALOG_API_KEY", "key-123")
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SEARCH_DEBOUNCE", "250ms")
	t.Setenv("PAGE_SIZE", "25")
	t.Setenv("SESSION_TTL", "1h")
	t.Setenv("EMPTY_ENTRY_POLICY", "retain")
	t.Setenv("PROPAGATE_DISCOUNTS", "true")
	t.Setenv("CATALOG_RATE_LIMIT", "2.5")
	t.Setenv("UPSTREAM_TLS_FINGERPRINT", "true")
	t.Setenv("MIN_CLIENT_VERSION", "1.4.0")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %s, want 9090", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
	if cfg.Catalog.APIKey != "key-123" {
		t.Errorf("APIKey = %s, want key-123", cfg.Catalog.APIKey)
	}
	if cfg.Catalog.RateLimit != 2.5 {
		t.Errorf("RateLimit = %v, want 2.5", cfg.Catalog.RateLimit)
	}
	if !cfg.Catalog.TLSFingerprint {
		t.Error("TLSFingerprint = false, want true")
	}
	if cfg.Picker.Debounce != 250*time.Millisecond {
		t.Errorf("Debounce = %v, want 250ms", cfg.Picker.Debounce)
	}
	if cfg.Picker.PageSize != 25 {
		t.Errorf("PageSize = %d, want 25", cfg.Picker.PageSize)
	}
	if cfg.Picker.SessionTTL != time.Hour {
		t.Errorf("SessionTTL = %v, want 1h", cfg.Picker.SessionTTL)
	}
	if cfg.Picker.EmptyEntryPolicy != model.RetainEmptyEntry {
		t.Errorf("EmptyEntryPolicy = %s, want retain", cfg.Picker.EmptyEntryPolicy)
	}
	if !cfg.Picker.PropagateDiscounts {
		t.Error("PropagateDiscounts = false, want true")
	}
	if cfg.MinClientVersion != "1.4.0" {
		t.Errorf("MinClientVersion = %s, want 1.4.0", cfg.MinClientVersion)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("CATALOG_URL", "http://localhost:3000/task/products/search")
	t.Setenv("CATALOG_API_KEY", "key")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %s, want 8080", cfg.Port)
	}
	if cfg.Environment != "development" {
		t.Errorf("Environment = %s, want development", cfg.Environment)
	}
	if cfg.Catalog.RateLimit != 5 {
		t.Errorf("RateLimit = %v, want 5", cfg.Catalog.RateLimit)
	}
	if cfg.Picker.Debounce != 500*time.Millisecond {
		t.Errorf("Debounce = %v, want 500ms", cfg.Picker.Debounce)
	}
	if cfg.Picker.PageSize != 10 {
		t.Errorf("PageSize = %d, want 10", cfg.Picker.PageSize)
	}
	if cfg.Picker.SessionTTL != 30*time.Minute {
		t.Errorf("SessionTTL = %v, want 30m", cfg.Picker.SessionTTL)
	}
	if cfg.Picker.EmptyEntryPolicy != model.DropEmptyEntry {
		t.Errorf("EmptyEntryPolicy = %s, want drop", cfg.Picker.EmptyEntryPolicy)
	}
	if cfg.Picker.PropagateDiscounts {
		t.Error("PropagateDiscounts = true, want false")
	}
	if cfg.CatalogSecret != "catalog-api-key" {
		t.Errorf("CatalogSecret = %s, want catalog-api-key", cfg.CatalogSecret)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing catalog url",
			env:     map[string]string{"CATALOG_API_KEY": "key"},
			wantErr: "catalog url is required",
		},
		{
			name:    "missing api key",
			env:     map[string]string{"CATALOG_URL": "https://c.example.com"},
			wantErr: "api_key is required",
		},
		{
			name:    "bad scheme",
			env:     map[string]string{"CATALOG_URL": "ftp://c.example.com", "CATALOG_API_KEY": "key"},
			wantErr: "scheme must be http or https",
		},
		{
			name:    "bad debounce",
			env:     map[string]string{"CATALOG_URL": "https://c.example.com", "CATALOG_API_KEY": "key", "SEARCH_DEBOUNCE": "soon"},
			wantErr: "SEARCH_DEBOUNCE",
		},
		{
			name:    "bad page size",
			env:     map[string]string{"CATALOG_URL": "https://c.example.com", "CATALOG_API_KEY": "key", "PAGE_SIZE": "0"},
			wantErr: "page size must be positive",
		},
		{
			name:    "bad policy",
			env:     map[string]string{"CATALOG_URL": "https://c.example.com", "CATALOG_API_KEY": "key", "EMPTY_ENTRY_POLICY": "keep"},
			wantErr: "EMPTY_ENTRY_POLICY",
		},
		{
			name:    "bad bool",
			env:     map[string]string{"CATALOG_URL": "https://c.example.com", "CATALOG_API_KEY": "key", "PROPAGATE_DISCOUNTS": "maybe"},
			wantErr: "PROPAGATE_DISCOUNTS",
		},
		{
			name:    "bad min version",
			env:     map[string]string{"CATALOG_URL": "https://c.example.com", "CATALOG_API_KEY": "key", "MIN_CLIENT_VERSION": "one"},
			wantErr: "invalid min client version",
		},
		{
			name:    "production without project",
			env:     map[string]string{"ENVIRONMENT": "production", "CATALOG_URL": "https://c.example.com"},
			wantErr: "GCP_PROJECT required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(context.Background())
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Error = %q, want containing %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("TEST_ENV_VAR", "custom")
	if got := envOrDefault("TEST_ENV_VAR", "default"); got != "custom" {
		t.Errorf("envOrDefault with set var = %q, want custom", got)
	}

	os.Unsetenv("TEST_ENV_VAR_UNSET")
	if got := envOrDefault("TEST_ENV_VAR_UNSET", "default"); got != "default" {
		t.Errorf("envOrDefault with unset var = %q, want default", got)
	}
}

func TestWithDefault(t *testing.T) {
	if got := withDefault("value", "default"); got != "value" {
		t.Errorf("withDefault(value, default) = %q, want value", got)
	}
	if got := withDefault("", "default"); got != "default" {
		t.Errorf("withDefault('', default) = %q, want default", got)
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp(t.TempDir(), "config-*.json")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	tmpFile.Close()
	return tmpFile.Name()
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", writeConfigFile(t, `{
		"port": "9090",
		"environment": "test",
		"log_level": "debug",
		"min_client_version": "v1.2.0",
		"catalog": {
			"url": "https://file-catalog.com/task/products/search",
			"api_key": "file-key",
			"tls_fingerprint": true
		},
		"picker": {
			"debounce": "300ms",
			"session_ttl": "5m",
			"empty_entry_policy": "retain",
			"propagate_discounts": true
		}
	}`))

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %s, want 9090", cfg.Port)
	}
	if cfg.Catalog.URL != "https://file-catalog.com/task/products/search" {
		t.Errorf("Catalog.URL = %s", cfg.Catalog.URL)
	}
	if cfg.Catalog.RateLimit != 5 {
		t.Errorf("RateLimit = %v, want default 5", cfg.Catalog.RateLimit)
	}
	if !cfg.Catalog.TLSFingerprint {
		t.Error("TLSFingerprint = false, want true")
	}
	if cfg.Picker.Debounce != 300*time.Millisecond {
		t.Errorf("Debounce = %v, want 300ms", cfg.Picker.Debounce)
	}
	if cfg.Picker.PageSize != 10 {
		t.Errorf("PageSize = %d, want default 10", cfg.Picker.PageSize)
	}
	if cfg.Picker.SessionTTL != 5*time.Minute {
		t.Errorf("SessionTTL = %v, want 5m", cfg.Picker.SessionTTL)
	}
	if cfg.Picker.EmptyEntryPolicy != model.RetainEmptyEntry {
		t.Errorf("EmptyEntryPolicy = %s, want retain", cfg.Picker.EmptyEntryPolicy)
	}
	if !cfg.Picker.PropagateDiscounts {
		t.Error("PropagateDiscounts = false, want true")
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	t.Run("file not found", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CONFIG_FILE", "/nonexistent/config.json")
		if _, err := Load(context.Background()); err == nil {
			t.Error("expected error for nonexistent file")
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CONFIG_FILE", writeConfigFile(t, "{invalid json"))
		if _, err := Load(context.Background()); err == nil {
			t.Error("expected error for invalid JSON")
		}
	})

	t.Run("bad duration", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CONFIG_FILE", writeConfigFile(t,
			`{"catalog": {"url": "https://c.com", "api_key": "k"}, "picker": {"debounce": "fast"}}`))
		_, err := Load(context.Background())
		if err == nil || !strings.Contains(err.Error(), "parsing debounce") {
			t.Errorf("expected debounce error, got: %v", err)
		}
	})

	t.Run("missing catalog", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CONFIG_FILE", writeConfigFile(t, `{"port": "1"}`))
		_, err := Load(context.Background())
		if err == nil || !strings.Contains(err.Error(), "catalog url is required") {
			t.Errorf("expected catalog url error, got: %v", err)
		}
	})
}
