package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"golang.org/x/time/rate"
)

// RetryConfig controls the Retrying decorator.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts per request. Values below 1 mean 1.
	MaxAttempts int
	// BaseDelay is the wait before the second attempt; it doubles after each failure.
	BaseDelay time.Duration
	// MaxDelay caps the backoff.
	MaxDelay time.Duration
	// RequestsPerMinute paces attempts. Zero disables pacing.
	RequestsPerMinute int
}

// Retrying wraps a Generator with bounded retries, exponential backoff and
// optional request pacing.
type Retrying struct {
	next    Generator
	cfg     RetryConfig
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewRetrying returns a Generator that retries failed calls to next.
func NewRetrying(next Generator, cfg RetryConfig) *Retrying {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}

	r := &Retrying{
		next:  next,
		cfg:   cfg,
		sleep: sleepContext,
	}
	if cfg.RequestsPerMinute > 0 {
		r.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return r
}

// Generate implements Generator.
func (r *Retrying) Generate(ctx context.Context, req Request) (string, error) {
	delay := r.cfg.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("wait for rate limiter: %w", err)
			}
		}

		text, err := r.next.Generate(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		if !retryable(err) {
			return "", fmt.Errorf("generate: %w", err)
		}
		if attempt == r.cfg.MaxAttempts {
			break
		}

		log.Printf("[api] attempt %d/%d failed: %v, retrying in %s", attempt, r.cfg.MaxAttempts, err, delay)
		if err := r.sleep(ctx, delay); err != nil {
			return "", err
		}
		delay *= 2
		if delay > r.cfg.MaxDelay {
			delay = r.cfg.MaxDelay
		}
	}

	return "", fmt.Errorf("generate after %d attempts: %w", r.cfg.MaxAttempts, lastErr)
}

// retryable reports whether another attempt may succeed. Client errors are
// final except timeouts, conflicts and rate limits.
func retryable(err error) bool {
	var status int
	var anthropicErr *anthropic.Error
	var openaiErr *openai.Error
	switch {
	case errors.As(err, &anthropicErr):
		status = anthropicErr.StatusCode
	case errors.As(err, &openaiErr):
		status = openaiErr.StatusCode
	}
	if status < 400 || status >= 500 {
		return true
	}
	switch status {
	case http.StatusRequestTimeout, http.StatusConflict, http.StatusTooManyRequests:
		return true
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
