// Package config handles loading and validation of service configuration.
// Supports both development (env vars) and production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"

	"product-picker/internal/model"
	"product-picker/internal/negotiation"
)

// Config holds all service configuration.
// Environment determines whether the catalog API key loads from env vars
// (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject    string
	CatalogSecret string

	// MinClientVersion rejects widgets older than this semver. Empty disables the check.
	MinClientVersion string

	Catalog CatalogConfig
	Picker  PickerConfig
}

// CatalogConfig describes the remote product search endpoint.
type CatalogConfig struct {
	URL            string  `json:"url"`
	APIKey         string  `json:"api_key"`
	RateLimit      float64 `json:"rate_limit,omitempty"` // requests per second
	TLSFingerprint bool    `json:"tls_fingerprint,omitempty"`
}

// PickerConfig tunes picker sessions and selection lists.
type PickerConfig struct {
	Debounce           time.Duration
	PageSize           int
	SessionTTL         time.Duration
	EmptyEntryPolicy   model.EmptyEntryPolicy
	PropagateDiscounts bool
}

const (
	defaultPort          = "8080"
	defaultRateLimit     = 5
	defaultDebounce      = 500 * time.Millisecond
	defaultPageSize      = 10
	defaultSessionTTL    = 30 * time.Minute
	defaultCatalogSecret = "catalog-api-key"
)

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set), then ENV vars / Secret Manager.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{
		Port:             envOrDefault("PORT", defaultPort),
		Environment:      envOrDefault("ENVIRONMENT", "development"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		GCPProject:       os.Getenv("GCP_PROJECT"),
		CatalogSecret:    envOrDefault("CATALOG_SECRET", defaultCatalogSecret),
		MinClientVersion: os.Getenv("MIN_CLIENT_VERSION"),
		Catalog: CatalogConfig{
			URL:    os.Getenv("CATALOG_URL"),
			APIKey: os.Getenv("CATALOG_API_KEY"),
		},
	}

	if err := cfg.loadTuningFromEnv(); err != nil {
		return nil, err
	}

	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		if err := cfg.loadFromSecretManager(ctx); err != nil {
			return nil, fmt.Errorf("loading catalog api key: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadTuningFromEnv parses the optional numeric, duration, and boolean settings.
func (c *Config) loadTuningFromEnv() error {
	var err error
	if c.Catalog.RateLimit, err = envFloat("CATALOG_RATE_LIMIT", defaultRateLimit); err != nil {
		return err
	}
	if c.Catalog.TLSFingerprint, err = envBool("UPSTREAM_TLS_FINGERPRINT", false); err != nil {
		return err
	}
	if c.Picker.Debounce, err = envDuration("SEARCH_DEBOUNCE", defaultDebounce); err != nil {
		return err
	}
	if c.Picker.SessionTTL, err = envDuration("SESSION_TTL", defaultSessionTTL); err != nil {
		return err
	}
	if c.Picker.PageSize, err = envInt("PAGE_SIZE", defaultPageSize); err != nil {
		return err
	}
	if c.Picker.PropagateDiscounts, err = envBool("PROPAGATE_DISCOUNTS", false); err != nil {
		return err
	}
	if c.Picker.EmptyEntryPolicy, err = model.ParseEmptyEntryPolicy(os.Getenv("EMPTY_ENTRY_POLICY")); err != nil {
		return fmt.Errorf("EMPTY_ENTRY_POLICY: %w", err)
	}
	return nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig struct {
		Port             string        `json:"port"`
		Environment      string        `json:"environment"`
		LogLevel         string        `json:"log_level"`
		MinClientVersion string        `json:"min_client_version"`
		Catalog          CatalogConfig `json:"catalog"`
		Picker           struct {
			Debounce           string `json:"debounce"`
			PageSize           int    `json:"page_size"`
			SessionTTL         string `json:"session_ttl"`
			EmptyEntryPolicy   string `json:"empty_entry_policy"`
			PropagateDiscounts bool   `json:"propagate_discounts"`
		} `json:"picker"`
	}

	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:             withDefault(fileConfig.Port, defaultPort),
		Environment:      withDefault(fileConfig.Environment, "development"),
		LogLevel:         withDefault(fileConfig.LogLevel, "info"),
		MinClientVersion: fileConfig.MinClientVersion,
		Catalog:          fileConfig.Catalog,
		Picker: PickerConfig{
			PageSize:           fileConfig.Picker.PageSize,
			PropagateDiscounts: fileConfig.Picker.PropagateDiscounts,
		},
	}
	if cfg.Catalog.RateLimit == 0 {
		cfg.Catalog.RateLimit = defaultRateLimit
	}
	if cfg.Picker.PageSize == 0 {
		cfg.Picker.PageSize = defaultPageSize
	}
	if cfg.Picker.Debounce, err = parseDuration("debounce", fileConfig.Picker.Debounce, defaultDebounce); err != nil {
		return nil, err
	}
	if cfg.Picker.SessionTTL, err = parseDuration("session_ttl", fileConfig.Picker.SessionTTL, defaultSessionTTL); err != nil {
		return nil, err
	}
	if cfg.Picker.EmptyEntryPolicy, err = model.ParseEmptyEntryPolicy(fileConfig.Picker.EmptyEntryPolicy); err != nil {
		return nil, fmt.Errorf("empty_entry_policy: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// loadFromSecretManager fetches the catalog API key from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{catalog_secret}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.CatalogSecret)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	c.Catalog.APIKey = strings.TrimSpace(string(result.Payload.Data))
	return nil
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	if c.Catalog.URL == "" {
		return fmt.Errorf("catalog url is required")
	}
	u, err := url.Parse(c.Catalog.URL)
	if err != nil {
		return fmt.Errorf("invalid catalog url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid catalog url: scheme must be http or https")
	}
	if c.Catalog.APIKey == "" {
		return fmt.Errorf("catalog api_key is required")
	}
	if c.Catalog.RateLimit < 0 {
		return fmt.Errorf("catalog rate_limit must not be negative")
	}
	if c.Picker.PageSize < 1 {
		return fmt.Errorf("page size must be positive")
	}
	if c.Picker.Debounce < 0 || c.Picker.SessionTTL <= 0 {
		return fmt.Errorf("debounce and session ttl must be positive")
	}
	if c.MinClientVersion != "" && !negotiation.ValidVersion(c.MinClientVersion) {
		return fmt.Errorf("invalid min client version %q", c.MinClientVersion)
	}
	return nil
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return f, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("parsing %s: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	return parseDuration(key, os.Getenv(key), defaultVal)
}

func parseDuration(name, val string, defaultVal time.Duration) (time.Duration, error) {
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", name, err)
	}
	return d, nil
}
