// Package config handles loading and validation of cart engine configuration.
// Supports both development (env vars) and production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/joho/godotenv"
)

// Config holds all engine configuration.
// Environment determines whether backend credentials load from env vars
// (development) or Secret Manager (production).
type Config struct {
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// SiteID identifies the storefront. Names the Secret Manager secret in
	// production.
	SiteID string

	// GCP settings (required in production)
	GCPProject string

	// StorePath is the SQLite file backing local persistence.
	StorePath string

	// DebounceMS is the quiet period for quantity updates, in milliseconds.
	DebounceMS int

	// Backend settings (loaded from secrets in production)
	Backend BackendConfig
}

// BackendConfig contains settings for the authoritative cart backend.
// In production, this is loaded from Secret Manager as JSON.
// In development, loaded from individual env vars or CONFIG_FILE.
type BackendConfig struct {
	BaseURL  string `json:"base_url"`
	APIToken string `json:"api_token,omitempty"`

	// BrowserTLS enables the browser-fingerprint TLS transport for backends
	// fronted by bot mitigation.
	BrowserTLS bool `json:"browser_tls,omitempty"`

	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// Debounce returns the configured debounce as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// Timeout returns the backend request timeout, or zero when unset so the
// client applies its own default.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	// A .env file is a development convenience; absence is fine.
	_ = godotenv.Load()

	// If CONFIG_FILE is set, load everything from the JSON file
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{
		Environment: envOrDefault("ENVIRONMENT", "development"),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
		SiteID:      os.Getenv("SITE_ID"),
		GCPProject:  os.Getenv("GCP_PROJECT"),
		StorePath:   envOrDefault("STORE_PATH", "cart.db"),
	}

	debounce, err := parseIntEnv("DEBOUNCE_MS", 200)
	if err != nil {
		return nil, err
	}
	cfg.DebounceMS = debounce

	// SiteID required in all environments
	if cfg.SiteID == "" {
		return nil, fmt.Errorf("SITE_ID environment variable required")
	}

	// Load backend config based on environment
	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		err = cfg.loadFromSecretManager(ctx)
	} else {
		err = cfg.loadFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading backend config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig struct {
		Environment string        `json:"environment"`
		LogLevel    string        `json:"log_level"`
		SiteID      string        `json:"site_id"`
		StorePath   string        `json:"store_path"`
		DebounceMS  int           `json:"debounce_ms"`
		Backend     BackendConfig `json:"backend"`
	}

	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Environment: withDefault(fileConfig.Environment, "development"),
		LogLevel:    withDefault(fileConfig.LogLevel, "info"),
		SiteID:      fileConfig.SiteID,
		StorePath:   withDefault(fileConfig.StorePath, "cart.db"),
		DebounceMS:  fileConfig.DebounceMS,
		Backend:     fileConfig.Backend,
	}
	if cfg.DebounceMS == 0 {
		cfg.DebounceMS = 200
	}

	if cfg.SiteID == "" {
		return nil, fmt.Errorf("site_id is required")
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

// loadFromSecretManager fetches backend config from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{site_id}-backend/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s-backend/versions/latest",
		c.GCPProject, c.SiteID)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	if err := json.Unmarshal(result.Payload.Data, &c.Backend); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}

	return nil
}

// loadFromEnv reads backend config from individual environment variables.
// Used in development mode for local testing.
func (c *Config) loadFromEnv() error {
	c.Backend = BackendConfig{
		BaseURL:  os.Getenv("BACKEND_BASE_URL"),
		APIToken: os.Getenv("BACKEND_API_TOKEN"),
	}

	if raw := os.Getenv("BACKEND_BROWSER_TLS"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("parsing BACKEND_BROWSER_TLS: %w", err)
		}
		c.Backend.BrowserTLS = v
	}

	timeout, err := parseIntEnv("BACKEND_TIMEOUT_SECONDS", 0)
	if err != nil {
		return err
	}
	c.Backend.TimeoutSeconds = timeout

	return nil
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url must be http or https, got %q", c.Backend.BaseURL)
	}

	if c.DebounceMS < 0 {
		return fmt.Errorf("debounce_ms must not be negative")
	}
	if c.Backend.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds must not be negative")
	}

	return nil
}

// parseIntEnv reads an integer environment variable with a default.
func parseIntEnv(key string, defaultVal int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return v, nil
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
