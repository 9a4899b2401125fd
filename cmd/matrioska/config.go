package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/matrioska/internal/config"
	"github.com/ShayCichocki/matrioska/pkg/models"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify Matrioska configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/matrioska/config.yaml
Project-specific overrides can be placed in .matrioska.yaml`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
			return nil
		case 1:
			value, err := getConfigValue(cfg, args[0])
			if err != nil {
				return err
			}
			fmt.Println(value)
			return nil
		default:
			return setConfigKey(cfg, args[0], args[1])
		}
	},
}

// configKeys lists the keys shown by 'matrioska config', in display order.
var configKeys = []string{
	"backend.provider",
	"backend.model",
	"backend.api_key",
	"backend.base_url",
	"backend.aws_region",
	"backend.aws_profile",
	"backend.max_tokens",
	"backend.integration_max_tokens",
	"backend.max_attempts",
	"backend.requests_per_minute",
	"pipeline.schema",
	"pipeline.fallback",
	"pipeline.integrate",
	"pipeline.strip_updates",
	"pipeline.lenient_updates",
	"pipeline.marker",
	"storage.base_dir",
	"storage.artifacts_dir",
	"storage.checkpoints_dir",
	"storage.journal_driver",
	"tui.refresh_rate",
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	for _, key := range configKeys {
		value, _ := getConfigValue(cfg, key)
		fmt.Printf("%s: %s\n", key, value)
	}
	fmt.Printf("\n(api key source: %s)\n", config.GetAPIKeySource(cfg))
}

// setConfigKey sets a configuration value and saves the user config.
func setConfigKey(cfg *config.Config, key, value string) error {
	if err := setConfigValue(cfg, key, value); err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	if strings.EqualFold(key, "backend.api_key") {
		value = config.MaskAPIKey(value)
	}
	fmt.Printf("Set %s = %s\n", key, value)
	return nil
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "backend.provider":
		return cfg.Backend.Provider, nil
	case "backend.model":
		return orDefault(cfg.Backend.Model), nil
	case "backend.api_key":
		apiKey, err := config.GetAPIKey(cfg)
		if err != nil {
			return config.MaskAPIKey(""), nil
		}
		return config.MaskAPIKey(apiKey), nil
	case "backend.base_url":
		return orDefault(cfg.Backend.BaseURL), nil
	case "backend.aws_region":
		return orDefault(cfg.Backend.AWSRegion), nil
	case "backend.aws_profile":
		return orDefault(cfg.Backend.AWSProfile), nil
	case "backend.max_tokens":
		return strconv.Itoa(cfg.Backend.MaxTokens), nil
	case "backend.integration_max_tokens":
		return strconv.Itoa(cfg.Backend.IntegrationMaxTokens), nil
	case "backend.max_attempts":
		return strconv.Itoa(cfg.Backend.MaxAttempts), nil
	case "backend.requests_per_minute":
		return strconv.Itoa(cfg.Backend.RequestsPerMinute), nil
	case "pipeline.schema":
		return cfg.Pipeline.Schema, nil
	case "pipeline.fallback":
		return optionalBool(cfg.Pipeline.Fallback), nil
	case "pipeline.integrate":
		return optionalBool(cfg.Pipeline.Integrate), nil
	case "pipeline.strip_updates":
		return optionalBool(cfg.Pipeline.StripUpdates), nil
	case "pipeline.lenient_updates":
		return optionalBool(cfg.Pipeline.LenientUpdates), nil
	case "pipeline.marker":
		return cfg.Pipeline.Marker, nil
	case "storage.base_dir":
		return cfg.Storage.BaseDir, nil
	case "storage.artifacts_dir":
		return cfg.Storage.Artifacts(), nil
	case "storage.checkpoints_dir":
		return cfg.Storage.Checkpoints(), nil
	case "storage.journal_driver":
		return cfg.Storage.JournalDriver, nil
	case "tui.refresh_rate":
		return cfg.TUI.RefreshRate.String(), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "backend.provider":
		switch value {
		case "anthropic", "bedrock", "openai":
			cfg.Backend.Provider = value
		default:
			return fmt.Errorf("invalid provider %q: want anthropic, bedrock or openai", value)
		}
	case "backend.model":
		cfg.Backend.Model = value
	case "backend.api_key":
		cfg.Backend.APIKey = value
	case "backend.base_url":
		cfg.Backend.BaseURL = value
	case "backend.aws_region":
		cfg.Backend.AWSRegion = value
	case "backend.aws_profile":
		cfg.Backend.AWSProfile = value
	case "backend.max_tokens":
		return setPositiveInt(&cfg.Backend.MaxTokens, key, value)
	case "backend.integration_max_tokens":
		return setPositiveInt(&cfg.Backend.IntegrationMaxTokens, key, value)
	case "backend.max_attempts":
		return setPositiveInt(&cfg.Backend.MaxAttempts, key, value)
	case "backend.requests_per_minute":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid value for %s: %q", key, value)
		}
		cfg.Backend.RequestsPerMinute = n
	case "pipeline.schema":
		schema, err := models.ParseSchema(value)
		if err != nil {
			return err
		}
		cfg.Pipeline.Schema = string(schema)
	case "pipeline.fallback":
		return setOptionalBool(&cfg.Pipeline.Fallback, key, value)
	case "pipeline.integrate":
		return setOptionalBool(&cfg.Pipeline.Integrate, key, value)
	case "pipeline.strip_updates":
		return setOptionalBool(&cfg.Pipeline.StripUpdates, key, value)
	case "pipeline.lenient_updates":
		return setOptionalBool(&cfg.Pipeline.LenientUpdates, key, value)
	case "pipeline.marker":
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("pipeline.marker must not be empty")
		}
		cfg.Pipeline.Marker = value
	case "storage.base_dir":
		cfg.Storage.BaseDir = value
	case "storage.artifacts_dir":
		cfg.Storage.ArtifactsDir = value
	case "storage.checkpoints_dir":
		cfg.Storage.CheckpointsDir = value
	case "storage.journal_driver":
		switch value {
		case "sqlite", "sqlite3":
			cfg.Storage.JournalDriver = value
		default:
			return fmt.Errorf("invalid journal driver %q: want sqlite or sqlite3", value)
		}
	case "tui.refresh_rate":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for refresh_rate: %w", err)
		}
		cfg.TUI.RefreshRate = d
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

func setPositiveInt(dst *int, key, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if n < 1 {
		return fmt.Errorf("invalid value for %s: must be at least 1", key)
	}
	*dst = n
	return nil
}

func setOptionalBool(dst **bool, key, value string) error {
	if value == "default" {
		*dst = nil
		return nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid boolean for %s: %w", key, err)
	}
	*dst = &b
	return nil
}

func optionalBool(b *bool) string {
	if b == nil {
		return "(schema default)"
	}
	return strconv.FormatBool(*b)
}

func orDefault(s string) string {
	if s == "" {
		return "(default)"
	}
	return s
}
