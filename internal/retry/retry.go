package retry

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"
)

// Config holds the configuration for retry logic
type Config struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

// DefaultConfig returns a sensible default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		BaseDelay:       200 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		BackoffMultiple: 2.0,
	}
}

// ErrorChecker decides whether an error should trigger another attempt
type ErrorChecker func(err error) bool

// Options configures retry behavior
type Options struct {
	Config       Config
	ErrorChecker ErrorChecker
	Logger       *slog.Logger
	APIName      string
}

// calculateDelay computes the delay for the given attempt using exponential backoff
func (c Config) calculateDelay(attempt int) time.Duration {
	delay := time.Duration(float64(c.BaseDelay) * math.Pow(c.BackoffMultiple, float64(attempt)))
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

// Do runs fn until it succeeds, returns a non-retryable error, or the attempts
// run out. Context cancellation during a backoff delay aborts immediately.
func Do[T any](ctx context.Context, opts Options, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	checker := opts.ErrorChecker
	if checker == nil {
		checker = IsTransient
	}
	maxAttempts := opts.Config.MaxRetries + 1

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := opts.Config.calculateDelay(attempt - 1)
			logger.Debug("retrying request",
				"api", opts.APIName,
				"attempt", attempt+1,
				"max_attempts", maxAttempts,
				"delay", delay,
			)

			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := fn(ctx, attempt)
		if err == nil {
			if attempt > 0 {
				logger.Info("request succeeded after retry", "api", opts.APIName, "attempt", attempt+1)
			}
			return result, nil
		}
		lastErr = err

		if !checker(err) {
			return zero, err
		}
		logger.Warn("retryable request failure",
			"api", opts.APIName,
			"attempt", attempt+1,
			"max_attempts", maxAttempts,
			"error", err,
		)
	}

	return zero, &RetryExhaustedError{
		APIName:     opts.APIName,
		MaxAttempts: maxAttempts,
		Last:        lastErr,
	}
}

// IsTransient is the default checker: everything except context cancellation
// is worth another attempt.
func IsTransient(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// RetryExhaustedError represents an error when all retry attempts have been exhausted
type RetryExhaustedError struct {
	APIName     string
	MaxAttempts int
	Last        error
}

func (e *RetryExhaustedError) Error() string {
	msg := "retry attempts exhausted for " + e.APIName + " API"
	if e.Last != nil {
		msg += ": " + e.Last.Error()
	}
	return msg
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Last
}
