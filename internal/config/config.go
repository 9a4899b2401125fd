// Package config handles configuration loading and management for Matrioska.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/matrioska/pkg/models"
)

// ProjectFileName is the name of the project-level config file.
const ProjectFileName = ".matrioska.yaml"

// Config holds all configuration for Matrioska.
type Config struct {
	Backend  BackendConfig  `mapstructure:"backend"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Storage  StorageConfig  `mapstructure:"storage"`
	TUI      TUIConfig      `mapstructure:"tui"`
}

// BackendConfig holds generation backend settings.
type BackendConfig struct {
	// Provider is anthropic, bedrock or openai.
	Provider string `mapstructure:"provider"`
	// Model is the model name. Empty selects the provider default.
	Model string `mapstructure:"model"`
	// APIKey is the provider API key. ${VAR} references are expanded.
	APIKey string `mapstructure:"api_key"`
	// BaseURL points the openai provider at an OpenAI-compatible server.
	BaseURL string `mapstructure:"base_url"`
	// AWSRegion is the AWS region for Bedrock.
	AWSRegion string `mapstructure:"aws_region"`
	// AWSProfile is the optional AWS shared config profile.
	AWSProfile string `mapstructure:"aws_profile"`
	// MaxTokens bounds decomposition and unit generation calls.
	MaxTokens int `mapstructure:"max_tokens"`
	// IntegrationMaxTokens bounds the integration call.
	IntegrationMaxTokens int `mapstructure:"integration_max_tokens"`
	// MaxAttempts is the number of attempts per backend call.
	MaxAttempts int `mapstructure:"max_attempts"`
	// RequestsPerMinute paces backend calls. Zero disables pacing.
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
}

// PipelineConfig holds pipeline behaviour settings. The pointer fields
// override the schema default when set.
type PipelineConfig struct {
	Schema         string `mapstructure:"schema"`
	Fallback       *bool  `mapstructure:"fallback"`
	Integrate      *bool  `mapstructure:"integrate"`
	StripUpdates   *bool  `mapstructure:"strip_updates"`
	LenientUpdates *bool  `mapstructure:"lenient_updates"`
	Marker         string `mapstructure:"marker"`
}

// StorageConfig holds on-disk locations.
type StorageConfig struct {
	BaseDir        string `mapstructure:"base_dir"`
	ArtifactsDir   string `mapstructure:"artifacts_dir"`
	CheckpointsDir string `mapstructure:"checkpoints_dir"`
	// JournalDriver is sqlite (pure Go) or sqlite3 (cgo).
	JournalDriver string `mapstructure:"journal_driver"`
}

// TUIConfig holds TUI display settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// Artifacts returns the artifacts directory, derived from the base dir when unset.
func (s StorageConfig) Artifacts() string {
	if s.ArtifactsDir != "" {
		return s.ArtifactsDir
	}
	return filepath.Join(s.base(), "artifacts")
}

// Checkpoints returns the checkpoints directory, derived from the base dir when unset.
func (s StorageConfig) Checkpoints() string {
	if s.CheckpointsDir != "" {
		return s.CheckpointsDir
	}
	return filepath.Join(s.base(), "checkpoints")
}

func (s StorageConfig) base() string {
	if s.BaseDir == "" {
		return ".matrioska"
	}
	return s.BaseDir
}

// Variant is the resolved per-schema pipeline behaviour.
type Variant struct {
	Schema models.Schema
	// Fallback substitutes a single-unit plan when decomposition fails.
	Fallback bool
	// Integrate runs the final integration call.
	Integrate bool
	// RepairDecomposition parses the decomposer reply with the repair parser.
	RepairDecomposition bool
	// LenientUpdates repairs malformed update blocks and accepts arrays.
	LenientUpdates bool
	// StripUpdates removes the update block from persisted artifacts.
	StripUpdates bool
	// Marker introduces the update block.
	Marker string
}

// Variant resolves the pipeline behaviour for the configured schema. The
// graph schema favours recovery and integration, the ordered schema fails
// fast and keeps artifacts clean.
func (c *Config) Variant() (Variant, error) {
	schema, err := models.ParseSchema(c.Pipeline.Schema)
	if err != nil {
		return Variant{}, err
	}

	v := Variant{Schema: schema, Marker: c.Pipeline.Marker}
	switch schema {
	case models.SchemaGraph:
		v.Fallback = true
		v.Integrate = true
	case models.SchemaOrdered:
		v.RepairDecomposition = true
		v.LenientUpdates = true
		v.StripUpdates = true
	}

	if p := c.Pipeline.Fallback; p != nil {
		v.Fallback = *p
	}
	if p := c.Pipeline.Integrate; p != nil {
		v.Integrate = *p
	}
	if p := c.Pipeline.StripUpdates; p != nil {
		v.StripUpdates = *p
	}
	if p := c.Pipeline.LenientUpdates; p != nil {
		v.LenientUpdates = *p
	}
	if v.Marker == "" {
		v.Marker = "SHARED_STATE_UPDATE:"
	}

	return v, nil
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (MATRIOSKA_*, ANTHROPIC_API_KEY, OPENAI_API_KEY)
// 2. Project config (.matrioska.yaml in current directory or parent)
// 3. User config (~/.config/matrioska/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Project config takes precedence over the user config.
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	bindEnv(v)

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Backend.APIKey = expandEnv(cfg.Backend.APIKey)
	cfg.Backend.Provider = strings.ToLower(strings.TrimSpace(cfg.Backend.Provider))

	return cfg, nil
}

// bindEnv maps environment variables onto config keys.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("MATRIOSKA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only sees keys viper knows about, so the nested keys are bound explicitly.
	for _, key := range []string{
		"backend.provider", "backend.model", "backend.base_url",
		"backend.aws_region", "backend.aws_profile",
		"pipeline.schema", "storage.base_dir", "storage.journal_driver",
	} {
		v.BindEnv(key)
	}
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return SaveTo(cfg, filepath.Join(userConfigDir, "config.yaml"))
}

// SaveTo writes the configuration to path.
func SaveTo(cfg *Config, path string) error {
	v := viper.New()
	v.SetConfigFile(path)

	v.Set("backend.provider", cfg.Backend.Provider)
	v.Set("backend.model", cfg.Backend.Model)
	v.Set("backend.api_key", cfg.Backend.APIKey)
	v.Set("backend.base_url", cfg.Backend.BaseURL)
	v.Set("backend.aws_region", cfg.Backend.AWSRegion)
	v.Set("backend.aws_profile", cfg.Backend.AWSProfile)
	v.Set("backend.max_tokens", cfg.Backend.MaxTokens)
	v.Set("backend.integration_max_tokens", cfg.Backend.IntegrationMaxTokens)
	v.Set("backend.max_attempts", cfg.Backend.MaxAttempts)
	v.Set("backend.requests_per_minute", cfg.Backend.RequestsPerMinute)
	v.Set("pipeline.schema", cfg.Pipeline.Schema)
	v.Set("pipeline.marker", cfg.Pipeline.Marker)
	setOptional(v, "pipeline.fallback", cfg.Pipeline.Fallback)
	setOptional(v, "pipeline.integrate", cfg.Pipeline.Integrate)
	setOptional(v, "pipeline.strip_updates", cfg.Pipeline.StripUpdates)
	setOptional(v, "pipeline.lenient_updates", cfg.Pipeline.LenientUpdates)
	v.Set("storage.base_dir", cfg.Storage.BaseDir)
	v.Set("storage.artifacts_dir", cfg.Storage.ArtifactsDir)
	v.Set("storage.checkpoints_dir", cfg.Storage.CheckpointsDir)
	v.Set("storage.journal_driver", cfg.Storage.JournalDriver)
	v.Set("tui.refresh_rate", cfg.TUI.RefreshRate.String())

	return v.WriteConfig()
}

func setOptional(v *viper.Viper, key string, value *bool) {
	if value != nil {
		v.Set(key, *value)
	}
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("backend.provider", d.Backend.Provider)
	v.SetDefault("backend.model", "")
	v.SetDefault("backend.api_key", "")
	v.SetDefault("backend.base_url", "")
	v.SetDefault("backend.aws_region", "")
	v.SetDefault("backend.aws_profile", "")
	v.SetDefault("backend.max_tokens", d.Backend.MaxTokens)
	v.SetDefault("backend.integration_max_tokens", d.Backend.IntegrationMaxTokens)
	v.SetDefault("backend.max_attempts", d.Backend.MaxAttempts)
	v.SetDefault("backend.requests_per_minute", 0)

	v.SetDefault("pipeline.schema", d.Pipeline.Schema)
	v.SetDefault("pipeline.marker", d.Pipeline.Marker)

	v.SetDefault("storage.base_dir", d.Storage.BaseDir)
	v.SetDefault("storage.artifacts_dir", "")
	v.SetDefault("storage.checkpoints_dir", "")
	v.SetDefault("storage.journal_driver", d.Storage.JournalDriver)

	v.SetDefault("tui.refresh_rate", "100ms")
}

// getUserConfigDir returns the XDG config directory for Matrioska.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "matrioska")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "matrioska")
	}
	return filepath.Join(home, ".config", "matrioska")
}

// findProjectConfig searches for .matrioska.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ProjectFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			Provider:             "anthropic",
			MaxTokens:            4000,
			IntegrationMaxTokens: 2000,
			MaxAttempts:          3,
		},
		Pipeline: PipelineConfig{
			Schema: string(models.SchemaGraph),
			Marker: "SHARED_STATE_UPDATE:",
		},
		Storage: StorageConfig{
			BaseDir:       ".matrioska",
			JournalDriver: "sqlite",
		},
		TUI: TUIConfig{
			RefreshRate: 100 * time.Millisecond,
		},
	}
}
