package main

import (
	"errors"
	"fmt"

	"github.com/ShayCichocki/matrioska/internal/api"
	"github.com/ShayCichocki/matrioska/internal/config"
)

// createGenerator builds the configured generation backend.
// The returned Backend reports token usage for the run summary.
func createGenerator(cfg *config.Config) (api.Generator, api.Backend, error) {
	key, err := config.GetAPIKey(cfg)
	if err != nil && !errors.Is(err, config.ErrNoAPIKey) {
		return nil, nil, err
	}

	gen, backend, err := api.New(api.Config{
		Provider:          cfg.Backend.Provider,
		Model:             cfg.Backend.Model,
		APIKey:            key,
		BaseURL:           cfg.Backend.BaseURL,
		AWSRegion:         cfg.Backend.AWSRegion,
		AWSProfile:        cfg.Backend.AWSProfile,
		MaxAttempts:       cfg.Backend.MaxAttempts,
		RequestsPerMinute: cfg.Backend.RequestsPerMinute,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create backend: %w", err)
	}
	return gen, backend, nil
}
