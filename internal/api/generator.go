// Package api provides the text generation backends used by the decomposer,
// the unit executor and the integration step.
package api

import (
	"context"
	"errors"
)

// DefaultTemperature is the sampling temperature used when a request leaves it unset.
const DefaultTemperature = 0.3

// ErrEmptyCompletion is returned when the backend replies with no text.
var ErrEmptyCompletion = errors.New("backend returned an empty completion")

// Request is a single-turn generation request.
type Request struct {
	// Prompt is the user message.
	Prompt string
	// System is the optional system instruction.
	System string
	// MaxTokens bounds the completion length.
	MaxTokens int
	// Temperature overrides DefaultTemperature when non-nil.
	Temperature *float64
}

func (r Request) temperature() float64 {
	if r.Temperature != nil {
		return *r.Temperature
	}
	return DefaultTemperature
}

// Generator produces text for a prompt. Implementations return an error
// rather than an empty string when generation fails.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
