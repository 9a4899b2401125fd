package pipeline

import (
	"github.com/ShayCichocki/matrioska/internal/config"
	"github.com/ShayCichocki/matrioska/internal/extract"
	"github.com/ShayCichocki/matrioska/pkg/models"
)

const (
	// DefaultMaxTokens bounds decomposition and unit calls.
	DefaultMaxTokens = 4000
	// DefaultIntegrationMaxTokens bounds the integration call.
	DefaultIntegrationMaxTokens = 2000
)

// Options selects the pipeline variant.
type Options struct {
	Schema models.Schema
	// Fallback substitutes a single-unit plan when decomposition fails.
	// Without it a decomposition failure aborts the run.
	Fallback bool
	// Integrate runs the final combination call.
	Integrate bool
	// RepairDecomposition adds the repair parser to plan extraction.
	RepairDecomposition bool
	// LenientUpdates repairs malformed update blocks.
	LenientUpdates bool
	// StripUpdates removes update blocks from persisted artifacts.
	StripUpdates bool
	// Marker introduces update blocks.
	Marker string
	// MaxTokens bounds decomposition and unit calls.
	MaxTokens int
	// IntegrationMaxTokens bounds the integration call.
	IntegrationMaxTokens int
}

// OptionsFromConfig resolves the configured variant into pipeline options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	v, err := cfg.Variant()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Schema:               v.Schema,
		Fallback:             v.Fallback,
		Integrate:            v.Integrate,
		RepairDecomposition:  v.RepairDecomposition,
		LenientUpdates:       v.LenientUpdates,
		StripUpdates:         v.StripUpdates,
		Marker:               v.Marker,
		MaxTokens:            cfg.Backend.MaxTokens,
		IntegrationMaxTokens: cfg.Backend.IntegrationMaxTokens,
	}, nil
}

func (o Options) withDefaults() Options {
	if !o.Schema.Valid() {
		o.Schema = models.SchemaGraph
	}
	if o.Marker == "" {
		o.Marker = extract.DefaultMarker
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.IntegrationMaxTokens <= 0 {
		o.IntegrationMaxTokens = DefaultIntegrationMaxTokens
	}
	return o
}

func (o Options) strategies() []extract.Strategy {
	if o.RepairDecomposition {
		return []extract.Strategy{extract.BraceBounded, extract.Repair}
	}
	return []extract.Strategy{extract.BraceBounded}
}
