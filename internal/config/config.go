// Package config loads mason.config.json and applies environment
// overrides. The file is shared with the dashboard tooling, so its
// keys stay camelCase.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"mason-engine/internal/secrets"
)

const (
	// ConfigFileName is searched upward from the working directory.
	ConfigFileName = "mason.config.json"

	// DefaultDashboardURL is the hosted Mason dashboard.
	DefaultDashboardURL = "https://mason.assuredefi.com"

	defaultRetentionHours   = 24
	defaultHeartbeatSeconds = 30
)

// Config mirrors mason.config.json plus engine-only tuning knobs.
type Config struct {
	APIKey           string `json:"apiKey,omitempty"`
	APIKeyEncrypted  string `json:"apiKeyEncrypted,omitempty"`
	DashboardURL     string `json:"dashboardUrl,omitempty"`
	DatabaseURL      string `json:"databaseUrl,omitempty"`
	StateDir         string `json:"stateDir,omitempty"`
	SweepSchedule    string `json:"sweepSchedule,omitempty"`
	RetentionHours   int    `json:"retentionHours,omitempty"`
	HeartbeatSeconds int    `json:"heartbeatSeconds,omitempty"`

	path string
}

// Load reads the config file and applies environment overrides.
// An empty path triggers the upward search; a config file is optional
// in that case because every key can come from the environment.
// An explicit path must exist and parse.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		if found, ok := Find(); ok {
			path = found
		}
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid JSON in %s: %w", ConfigFileName, err)
		}
		cfg.path = path
	}

	cfg.applyEnv()
	cfg.resolveAPIKey()
	return cfg, nil
}

// Find searches for mason.config.json upward from the working
// directory, then falls back to ~/.mason.
func Find() (string, bool) {
	dir, err := os.Getwd()
	if err == nil {
		for {
			candidate := filepath.Join(dir, ConfigFileName)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, true
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		candidate := filepath.Join(home, ".mason", ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
	}

	return "", false
}

// DefaultPath is where set-key writes a config when none exists yet.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".mason", ConfigFileName), nil
}

// Save writes the config as indented JSON. The file may hold an API
// key, so it is not group-readable.
func (c *Config) Save(path string) error {
	if path == "" {
		path = c.path
	}
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	c.path = path
	return nil
}

// Path returns the file the config was loaded from, or empty when it
// was built from defaults and environment alone.
func (c *Config) Path() string {
	return c.path
}

// GetDashboardURL returns the configured dashboard URL or the default.
func (c *Config) GetDashboardURL() string {
	if c.DashboardURL == "" {
		return DefaultDashboardURL
	}
	return c.DashboardURL
}

// Retention returns how long terminal records and session files are kept.
func (c *Config) Retention() time.Duration {
	if c.RetentionHours <= 0 {
		return defaultRetentionHours * time.Hour
	}
	return time.Duration(c.RetentionHours) * time.Hour
}

// HeartbeatInterval returns how often in-flight executions report liveness.
func (c *Config) HeartbeatInterval() time.Duration {
	if c.HeartbeatSeconds <= 0 {
		return defaultHeartbeatSeconds * time.Second
	}
	return time.Duration(c.HeartbeatSeconds) * time.Second
}

func (c *Config) applyEnv() {
	c.APIKey = getEnv("MASON_API_KEY", c.APIKey)
	c.DashboardURL = getEnv("MASON_DASHBOARD_URL", c.DashboardURL)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.StateDir = getEnv("MASON_STATE_DIR", c.StateDir)
	c.SweepSchedule = getEnv("MASON_SWEEP_CRON", c.SweepSchedule)
	c.RetentionHours = getEnvInt("MASON_RETENTION_HOURS", c.RetentionHours)
	c.HeartbeatSeconds = getEnvInt("MASON_HEARTBEAT_SECONDS", c.HeartbeatSeconds)
}

// resolveAPIKey decrypts the stored key when no plaintext key is
// present. Failure is not fatal here: verbs that never talk to the
// dashboard still work, and the API client reports the missing key.
func (c *Config) resolveAPIKey() {
	if c.APIKey != "" || c.APIKeyEncrypted == "" {
		return
	}

	if !secrets.IsInitialized() {
		if err := secrets.Init(); err != nil {
			log.Printf("[config] WARNING: failed to initialize encryption: %v", err)
			return
		}
	}

	apiKey, err := secrets.DecryptAPIKey(c.APIKeyEncrypted)
	if err != nil {
		log.Printf("[config] WARNING: failed to decrypt stored API key: %v", err)
		return
	}
	c.APIKey = apiKey
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
