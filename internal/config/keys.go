// Package config provides API key management utilities.
package config

import (
	"errors"
	"os"
	"strings"
)

// ErrNoAPIKey is returned when no API key is configured for the provider.
var ErrNoAPIKey = errors.New("no API key configured")

// KeyEnvVar returns the environment variable holding the key for a provider.
// Bedrock authenticates through the AWS credential chain and has none.
func KeyEnvVar(provider string) string {
	switch provider {
	case "openai":
		return "OPENAI_API_KEY"
	case "bedrock":
		return ""
	default:
		return "ANTHROPIC_API_KEY"
	}
}

// GetAPIKey returns the API key for the configured provider.
// It checks in order: environment variable, config file.
func GetAPIKey(cfg *Config) (string, error) {
	provider := ""
	if cfg != nil {
		provider = cfg.Backend.Provider
	}

	if env := KeyEnvVar(provider); env != "" {
		if key := os.Getenv(env); key != "" {
			return key, nil
		}
	}

	if cfg != nil && cfg.Backend.APIKey != "" {
		key := os.ExpandEnv(cfg.Backend.APIKey)
		if key != "" && !strings.HasPrefix(key, "${") {
			return key, nil
		}
	}

	return "", ErrNoAPIKey
}

// MaskAPIKey returns a masked version of the API key for display.
// Shows the first 7 characters and the last 4 characters.
func MaskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}

	if len(key) <= 15 {
		return "***"
	}

	return key[:7] + "..." + key[len(key)-4:]
}

// KeySource represents where an API key was loaded from.
type KeySource string

const (
	KeySourceEnv    KeySource = "environment"
	KeySourceConfig KeySource = "config_file"
	KeySourceNone   KeySource = "none"
)

// GetAPIKeySource returns where the API key was sourced from.
func GetAPIKeySource(cfg *Config) KeySource {
	provider := ""
	if cfg != nil {
		provider = cfg.Backend.Provider
	}

	if env := KeyEnvVar(provider); env != "" && os.Getenv(env) != "" {
		return KeySourceEnv
	}

	if cfg != nil && cfg.Backend.APIKey != "" {
		key := os.ExpandEnv(cfg.Backend.APIKey)
		if key != "" && !strings.HasPrefix(key, "${") {
			return KeySourceConfig
		}
	}

	return KeySourceNone
}
