package config

import (
	"testing"
)

func TestGetAPIKey(t *testing.T) {
	t.Run("anthropic from environment variable", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test-key")

		key, err := GetAPIKey(&Config{})
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if key != "sk-ant-test-key" {
			t.Errorf("expected 'sk-ant-test-key', got %q", key)
		}
	})

	t.Run("openai from environment variable", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "sk-ant-wrong")
		t.Setenv("OPENAI_API_KEY", "sk-openai-key")

		cfg := &Config{Backend: BackendConfig{Provider: "openai"}}
		key, err := GetAPIKey(cfg)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if key != "sk-openai-key" {
			t.Errorf("expected 'sk-openai-key', got %q", key)
		}
	})

	t.Run("from config", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")

		cfg := &Config{Backend: BackendConfig{APIKey: "sk-ant-config-key"}}
		key, err := GetAPIKey(cfg)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if key != "sk-ant-config-key" {
			t.Errorf("expected 'sk-ant-config-key', got %q", key)
		}
	})

	t.Run("unexpanded reference is ignored", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")

		cfg := &Config{Backend: BackendConfig{APIKey: "${"}}
		if _, err := GetAPIKey(cfg); err != ErrNoAPIKey {
			t.Errorf("expected ErrNoAPIKey, got %v", err)
		}
	})

	t.Run("no key configured", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")

		_, err := GetAPIKey(&Config{})
		if err != ErrNoAPIKey {
			t.Errorf("expected ErrNoAPIKey, got %v", err)
		}
	})
}

func TestKeyEnvVar(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{"anthropic", "ANTHROPIC_API_KEY"},
		{"", "ANTHROPIC_API_KEY"},
		{"openai", "OPENAI_API_KEY"},
		{"bedrock", ""},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			if got := KeyEnvVar(tt.provider); got != tt.want {
				t.Errorf("KeyEnvVar(%q) = %q, want %q", tt.provider, got, tt.want)
			}
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{"empty", "", "(not set)"},
		{"short", "sk-ant-123", "***"},
		{"normal", "sk-ant-REDACTED", "sk-ant-...mnop"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskAPIKey(tt.key); got != tt.want {
				t.Errorf("MaskAPIKey(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestGetAPIKeySource(t *testing.T) {
	t.Run("environment", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env")
		if got := GetAPIKeySource(&Config{}); got != KeySourceEnv {
			t.Errorf("expected %q, got %q", KeySourceEnv, got)
		}
	})

	t.Run("config file", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")
		cfg := &Config{Backend: BackendConfig{APIKey: "sk-ant-config"}}
		if got := GetAPIKeySource(cfg); got != KeySourceConfig {
			t.Errorf("expected %q, got %q", KeySourceConfig, got)
		}
	})

	t.Run("bedrock ignores environment", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env")
		cfg := &Config{Backend: BackendConfig{Provider: "bedrock"}}
		if got := GetAPIKeySource(cfg); got != KeySourceNone {
			t.Errorf("expected %q, got %q", KeySourceNone, got)
		}
	})
}
