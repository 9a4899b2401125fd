package api

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
)

// Provider names accepted by New.
const (
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
	ProviderOpenAI    = "openai"
)

// Config selects and configures a backend.
type Config struct {
	Provider          string
	Model             string
	APIKey            string
	BaseURL           string
	AWSRegion         string
	AWSProfile        string
	MaxAttempts       int
	RequestsPerMinute int
}

// Backend is a Generator that reports its model and token usage.
type Backend interface {
	Generator
	Tracker() *TokenTracker
}

// New builds the configured backend wrapped in a Retrying decorator. It
// returns the decorated Generator and the undecorated Backend for usage
// reporting.
func New(cfg Config) (Generator, Backend, error) {
	var backend Backend

	switch cfg.Provider {
	case "", ProviderAnthropic, ProviderBedrock:
		client, err := NewClient(ClientConfig{
			Model:         anthropic.Model(cfg.Model),
			APIKey:        cfg.APIKey,
			UseAWSBedrock: cfg.Provider == ProviderBedrock,
			AWSRegion:     cfg.AWSRegion,
			AWSProfile:    cfg.AWSProfile,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create anthropic client: %w", err)
		}
		backend = client
	case ProviderOpenAI:
		client, err := NewOpenAIClient(OpenAIConfig{
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create openai client: %w", err)
		}
		backend = client
	default:
		return nil, nil, fmt.Errorf("unknown backend provider %q", cfg.Provider)
	}

	gen := NewRetrying(backend, RetryConfig{
		MaxAttempts:       cfg.MaxAttempts,
		RequestsPerMinute: cfg.RequestsPerMinute,
	})
	return gen, backend, nil
}
