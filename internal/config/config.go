// Package config holds the devactivate configuration: service endpoints,
// transport policy and loop limits.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"devactivate/internal/activation"
	"devactivate/internal/session"
)

// Config holds all devactivate configuration.
type Config struct {
	// Activation web service endpoints
	ServiceURL   string `yaml:"service_url"`
	HandshakeURL string `yaml:"handshake_url"`

	// Transport policy
	Timeout     string `yaml:"timeout"`
	InsecureTLS bool   `yaml:"insecure_tls"`

	// Resubmission loop cap
	MaxRounds int `yaml:"max_rounds"`

	// Communication debugging (wire dumps)
	Debug bool `yaml:"debug"`
}

// DefaultConfig returns the stock configuration against the vendor
// endpoints.
func DefaultConfig() *Config {
	return &Config{
		ServiceURL:   activation.DefaultActivationURL,
		HandshakeURL: activation.DefaultHandshakeURL,
		Timeout:      "60s",
		InsecureTLS:  false,
		MaxRounds:    session.DefaultMaxRounds,
		Debug:        false,
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// TimeoutDuration parses the configured timeout, falling back to a minute.
func (c *Config) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("DEVACTIVATE_SERVICE_URL"); url != "" {
		c.ServiceURL = url
	}
	if url := os.Getenv("DEVACTIVATE_HANDSHAKE_URL"); url != "" {
		c.HandshakeURL = url
	}
	if v := os.Getenv("DEVACTIVATE_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Debug = b
		}
	}
	if v := os.Getenv("DEVACTIVATE_INSECURE_TLS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.InsecureTLS = b
		}
	}
}
