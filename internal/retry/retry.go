// Package retry provides exponential-backoff retry for store writes.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/graph-scanner/internal/logging"
)

// Config configures retry behavior
type Config struct {
	MaxAttempts  int           // attempts before giving up
	InitialDelay time.Duration // delay before the first retry
	MaxDelay     time.Duration // ceiling on the backoff delay
	Multiplier   float64       // exponential backoff multiplier
}

// DefaultConfig returns the default retry configuration.
// Pattern: 500ms, 1s, 2s, 4s, capped at 10s.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// Result describes how a retried operation went
type Result struct {
	Attempts      int           `json:"attempts"`
	Success       bool          `json:"success"`
	TotalDuration time.Duration `json:"totalDuration"`
	LastError     error         `json:"lastError,omitempty"`
}

// Func is an operation that can be retried
type Func func(ctx context.Context, attempt int) error

// WithExponentialBackoff runs fn until it succeeds, the attempts are
// exhausted, or the context is cancelled.
func WithExponentialBackoff(ctx context.Context, config *Config, fn Func) *Result {
	logger := logging.FromContext(ctx)
	startTime := time.Now()

	result := &Result{}
	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result.Attempts = attempt

		err := fn(ctx, attempt)
		if err == nil {
			result.Success = true
			result.TotalDuration = time.Since(startTime)
			if attempt > 1 {
				logger.WithFields(map[string]interface{}{
					"attempts": attempt,
					"duration": result.TotalDuration.String(),
				}).Info("operation succeeded after retry")
			}
			return result
		}

		lastErr = err
		result.LastError = err

		if attempt >= config.MaxAttempts {
			logger.WithError(err).WithField("attempts", attempt).Error("operation failed after max retry attempts")
			break
		}
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}

		delay := backoffDelay(config, attempt)
		logger.WithError(err).WithFields(map[string]interface{}{
			"attempt": attempt,
			"delay":   delay.String(),
		}).Warn("operation failed, backing off")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(startTime)
			return result
		}
	}

	result.TotalDuration = time.Since(startTime)
	result.LastError = lastErr
	return result
}

// backoffDelay is initialDelay * multiplier^(attempt-1), capped
func backoffDelay(config *Config, attempt int) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.Multiplier, float64(attempt-1))
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	return time.Duration(delay)
}

// WithRetry runs fn with the default configuration and flattens the
// result into an error.
func WithRetry(ctx context.Context, fn Func) error {
	result := WithExponentialBackoff(ctx, DefaultConfig(), fn)
	if !result.Success {
		return fmt.Errorf("operation failed after %d attempts: %w", result.Attempts, result.LastError)
	}
	return nil
}
