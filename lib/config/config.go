// Copyright 2026 The Fathom Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Fathom components.
//
// Configuration is loaded from a single file specified by:
//   - FATHOM_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures deterministic,
// auditable configuration with no hidden overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for Fathom.
type Config struct {
	// Homeserver configures the server connection.
	Homeserver HomeserverConfig `yaml:"homeserver"`

	// Sync configures the long-poll sync engine.
	Sync SyncConfig `yaml:"sync"`

	// Backoff configures the retry schedule for transient sync failures.
	Backoff BackoffConfig `yaml:"backoff"`
}

// HomeserverConfig configures the server connection and credentials.
type HomeserverConfig struct {
	// URL is the base URL of the homeserver, e.g. https://matrix.example.org.
	URL string `yaml:"url"`

	// UserID is the fully qualified user ID to act as.
	UserID string `yaml:"user_id"`

	// TokenFile is the path to a file holding the access token.
	// The token is never placed in the config file itself.
	TokenFile string `yaml:"token_file"`
}

// SyncConfig configures the long-poll sync engine.
type SyncConfig struct {
	// PollTimeout is the server-side long-poll hold time.
	// Default: 30s
	PollTimeout string `yaml:"poll_timeout"`

	// FilterFile is an optional path to a JSONC sync filter applied to
	// every poll. Empty means no filter.
	FilterFile string `yaml:"filter_file"`

	// CursorFile is where the sync cursor is checkpointed so a restart
	// resumes where the previous run stopped. Empty disables
	// checkpointing.
	CursorFile string `yaml:"cursor_file"`
}

// BackoffConfig configures the retry schedule for transient sync failures.
type BackoffConfig struct {
	// Base is the first retry delay. Default: 1s
	Base string `yaml:"base"`

	// Ceiling caps the doubling delay. Default: 30s
	Ceiling string `yaml:"ceiling"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultState := filepath.Join(homeDir, ".cache", "fathom")

	return &Config{
		Sync: SyncConfig{
			PollTimeout: "30s",
			CursorFile:  filepath.Join(defaultState, "cursor.cbor"),
		},
		Backoff: BackoffConfig{
			Base:    "1s",
			Ceiling: "30s",
		},
	}
}

// Load loads configuration from the FATHOM_CONFIG environment variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults - if FATHOM_CONFIG is not set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("FATHOM_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("FATHOM_CONFIG environment variable not set; " +
			"set it to the path of your fathom.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables do not
// override config values. The only expansion performed is ${HOME} and similar
// path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()

	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Homeserver.TokenFile = expandVars(c.Homeserver.TokenFile, vars)
	c.Sync.FilterFile = expandVars(c.Sync.FilterFile, vars)
	c.Sync.CursorFile = expandVars(c.Sync.CursorFile, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Homeserver.URL == "" {
		errs = append(errs, fmt.Errorf("homeserver.url is required"))
	} else if !strings.HasPrefix(c.Homeserver.URL, "http://") && !strings.HasPrefix(c.Homeserver.URL, "https://") {
		errs = append(errs, fmt.Errorf("homeserver.url must start with http:// or https://"))
	}

	if c.Homeserver.UserID == "" {
		errs = append(errs, fmt.Errorf("homeserver.user_id is required"))
	}

	if c.Homeserver.TokenFile == "" {
		errs = append(errs, fmt.Errorf("homeserver.token_file is required"))
	}

	if _, err := c.PollTimeout(); err != nil {
		errs = append(errs, fmt.Errorf("sync.poll_timeout: %w", err))
	}
	if _, err := c.BackoffBase(); err != nil {
		errs = append(errs, fmt.Errorf("backoff.base: %w", err))
	}
	if _, err := c.BackoffCeiling(); err != nil {
		errs = append(errs, fmt.Errorf("backoff.ceiling: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// PollTimeout returns the parsed long-poll hold time.
func (c *Config) PollTimeout() (time.Duration, error) {
	return parseDurationOrDefault(c.Sync.PollTimeout, 30*time.Second)
}

// BackoffBase returns the parsed first retry delay.
func (c *Config) BackoffBase() (time.Duration, error) {
	return parseDurationOrDefault(c.Backoff.Base, time.Second)
}

// BackoffCeiling returns the parsed retry delay cap.
func (c *Config) BackoffCeiling() (time.Duration, error) {
	return parseDurationOrDefault(c.Backoff.Ceiling, 30*time.Second)
}

// ReadToken reads and trims the access token from Homeserver.TokenFile.
func (c *Config) ReadToken() (string, error) {
	data, err := os.ReadFile(c.Homeserver.TokenFile)
	if err != nil {
		return "", fmt.Errorf("reading token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", c.Homeserver.TokenFile)
	}
	return token, nil
}

func parsePositiveDuration(value string) (time.Duration, error) {
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if duration <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", value)
	}
	return duration, nil
}

func parseDurationOrDefault(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	return parsePositiveDuration(value)
}
