package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts     int           // Maximum number of retry attempts (default: 3)
	InitialDelay    time.Duration // Initial delay before first retry (default: 100ms)
	MaxDelay        time.Duration // Maximum delay between retries (default: 5s)
	Multiplier      float64       // Exponential backoff multiplier (default: 2.0)
	RetryableErrors []string      // List of error substrings that are retryable
}

// DefaultConfig returns default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		RetryableErrors: []string{
			"connection refused",
			"connection reset",
			"connection lost",
			"timeout",
			"network is unreachable",
			"no such host",
			"temporary failure",
			"code: 999", // ClickHouse: Connection lost
			"code: 159", // ClickHouse: Timeout exceeded
			"code: 210", // ClickHouse: Connection pool timeout
		},
	}
}

// IsRetryableError checks if an error is retryable
func IsRetryableError(err error, cfg Config) bool {
	if err == nil {
		return false
	}

	// Check for network errors
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	// Check error message for retryable patterns
	errStr := strings.ToLower(err.Error())
	for _, pattern := range cfg.RetryableErrors {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// Do executes a function with retry logic
func Do(ctx context.Context, cfg Config, operation func() error) error {
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		// Check context cancellation
		if ctx.Err() != nil {
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		}

		err := operation()
		if err == nil {
			if attempt > 1 {
				log.Info().
					Int("attempt", attempt).
					Msg("Operation succeeded after retry")
			}
			return nil
		}

		lastErr = err

		if !IsRetryableError(err, cfg) {
			log.Debug().
				Err(err).
				Int("attempt", attempt).
				Msg("Error is not retryable, aborting")
			return err
		}

		// Don't retry on last attempt
		if attempt >= cfg.MaxAttempts {
			break
		}

		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", cfg.MaxAttempts).
			Dur("retry_delay", delay).
			Msg("Operation failed, retrying")

		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		case <-time.After(delay):
		}

		// Exponential backoff
		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}
