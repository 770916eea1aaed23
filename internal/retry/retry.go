package retry

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/models"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 500 * time.Millisecond
	DefaultMaxDelay   = 10 * time.Second
)

// Config tunes Do. Zero values fall back to the package defaults.
type Config struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// IsRetryable decides whether a failure is worth another attempt.
	// Defaults to IsRetryableError.
	IsRetryable func(error) bool
	// Notify observes each scheduled retry with the wait before it.
	Notify func(err error, next time.Duration)
}

// Do runs operation with exponential backoff: waits of
// min(BaseDelay*2^attempt, MaxDelay) between attempts. Non-retryable
// failures propagate immediately; otherwise the last error is returned once
// the retry budget is spent.
func Do[T any](ctx context.Context, operation func() (T, error), cfg Config) (T, error) {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	isRetryable := cfg.IsRetryable
	if isRetryable == nil {
		isRetryable = IsRetryableError
	}

	// RandomizationFactor 0 keeps the schedule deterministic
	expo := &backoff.ExponentialBackOff{
		InitialInterval:     cfg.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         cfg.MaxDelay,
	}

	wrapped := func() (T, error) {
		result, err := operation()
		if err != nil && !isRetryable(err) {
			var zero T
			return zero, backoff.Permanent(err)
		}
		return result, err
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(cfg.MaxRetries) + 1),
	}
	if cfg.Notify != nil {
		opts = append(opts, backoff.WithNotify(backoff.Notify(cfg.Notify)))
	}

	return backoff.Retry(ctx, wrapped, opts...)
}

var retryableSubstrings = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"network is unreachable",
	"temporary failure",
	"unexpected eof",
	"rate limit",
	"ratelimit",
	"quota",
	"too many requests",
	"service unavailable",
	"429",
	"503",
}

// IsRetryableError classifies failures worth retrying: transient network
// trouble and rate limiting. Classification is by message substring, a
// pragmatic heuristic for errors that cross client-library boundaries, with
// sentinel checks layered on top.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, models.ErrRateLimited) ||
		errors.Is(err, models.ErrStoreUnavailable) ||
		errors.Is(err, models.ErrObjectStorageUnavailable) {
		return true
	}
	if errors.Is(err, models.ErrPermanentUpload) ||
		errors.Is(err, models.ErrSpreadsheetFormat) ||
		errors.Is(err, models.ErrObjectStorageMisconfigured) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range retryableSubstrings {
		if strings.Contains(msg, fragment) {
			return true
		}
	}

	return false
}
