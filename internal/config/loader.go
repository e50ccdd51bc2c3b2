// Package config loads and validates the querydeck configuration file.
//
// Loading is strict: unknown YAML keys fail the load so a typoed setting is
// caught at startup instead of silently ignored. Missing settings fall back
// to Defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// EnvAPIKey overrides api.auth.api_key when set, keeping the secret out of
// the config file.
const EnvAPIKey = "QUERYDECK_API_KEY"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, merges, and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	data = []byte(interpolateEnv(string(data)))

	cfg := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads path when it exists, otherwise returns Defaults. Only
// read errors on an existing file are reported.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Defaults()
		applyEnv(cfg)
		return cfg, nil
	}
	return Load(path)
}

func applyEnv(cfg *Config) {
	if key := os.Getenv(EnvAPIKey); key != "" {
		cfg.API.Auth.APIKey = key
	}
}

// interpolateEnv replaces ${VAR} with environment variable values. Undefined
// variables are left as-is so validation can name the missing variable.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// Validate checks cross-field constraints the YAML schema can't express.
func (c *Config) Validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service.name must not be empty")
	}
	if c.Service.Namespace == "" {
		return fmt.Errorf("service.namespace must not be empty")
	}
	if c.State.Path == "" {
		return fmt.Errorf("state.path must not be empty")
	}
	if c.Panel.PageSize <= 0 {
		return fmt.Errorf("panel.page_size must be positive, got %d", c.Panel.PageSize)
	}
	if c.API.Enabled && c.API.Listen == "" {
		return fmt.Errorf("api.listen must be set when the api is enabled")
	}
	if matches := envVarPattern.FindStringSubmatch(c.API.Auth.APIKey); len(matches) > 1 {
		return fmt.Errorf("api.auth.api_key: environment variable ${%s} is not set", matches[1])
	}

	seen := make(map[string]bool, len(c.Connections))
	for i, conn := range c.Connections {
		if conn.ID == "" {
			return fmt.Errorf("connections[%d].id must not be empty", i)
		}
		if conn.DSN == "" {
			return fmt.Errorf("connection %q has no dsn", conn.ID)
		}
		if seen[conn.ID] {
			return fmt.Errorf("duplicate connection id %q", conn.ID)
		}
		seen[conn.ID] = true
	}
	return nil
}
