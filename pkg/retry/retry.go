package retry

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	mathrand "math/rand"
	"time"

	"github.com/trigg3rX/proof-coordinator/pkg/logging"
)

// ErrRetriesExhausted is matched by every *TimeoutError.
var ErrRetriesExhausted = errors.New("retries exhausted")

// TimeoutError is returned when an operation still fails after the last allowed attempt.
type TimeoutError struct {
	Attempts int
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

func (e *TimeoutError) Is(target error) bool { return target == ErrRetriesExhausted }

type RetryConfig struct {
	MaxRetries      int                   // Maximum number of attempts
	InitialDelay    time.Duration         // Initial delay between attempts
	MaxDelay        time.Duration         // Upper bound for the backoff delay
	BackoffFactor   float64               // Multiplier for exponential backoff
	JitterFactor    float64               // Jitter added to each delay, as a fraction of it
	LogRetryAttempt bool                  // Whether to log failed attempts
	ShouldRetry     func(error, int) bool // Returns false to stop retrying (error, attempt number)
}

func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:      5,
		InitialDelay:    time.Second,
		MaxDelay:        30 * time.Second,
		BackoffFactor:   2.0,
		JitterFactor:    0.2,
		LogRetryAttempt: true,
	}
}

func (c *RetryConfig) Validate() error {
	if c.MaxRetries < 1 {
		return errors.New("MaxRetries must be >= 1")
	}
	if c.InitialDelay <= 0 {
		return errors.New("InitialDelay must be positive")
	}
	if c.MaxDelay <= 0 {
		return errors.New("MaxDelay must be positive")
	}
	if c.BackoffFactor < 1.0 {
		return errors.New("BackoffFactor must be >= 1.0")
	}
	if c.JitterFactor < 0 || c.JitterFactor > 1.0 {
		return errors.New("JitterFactor must be between 0.0 and 1.0")
	}
	return nil
}

// SecureFloat64 returns a random float64 in [0.0,1.0)
func SecureFloat64() float64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return mathrand.Float64()
	}
	return float64(binary.BigEndian.Uint64(b[:])>>11) / (1 << 53)
}

func CalculateDelayWithJitter(baseDelay time.Duration, jitterFactor float64) time.Duration {
	sleepDuration := baseDelay
	if jitterFactor > 0 {
		sleepDuration += time.Duration(jitterFactor * float64(baseDelay) * SecureFloat64())
	}
	return sleepDuration
}

func CalculateNextDelay(currentDelay time.Duration, backoffFactor float64, maxDelay time.Duration) time.Duration {
	nextDelay := time.Duration(float64(currentDelay) * backoffFactor)
	if nextDelay > maxDelay {
		nextDelay = maxDelay
	}
	return nextDelay
}

// Retry runs operation until it succeeds, ShouldRetry refuses, the context ends or
// MaxRetries attempts have failed. The last case returns a *TimeoutError.
func Retry[T any](ctx context.Context, operation func() (T, error), retryConfig *RetryConfig, logger logging.Logger) (T, error) {
	var zero T
	var lastErr error

	if retryConfig == nil {
		retryConfig = DefaultRetryConfig()
	} else if err := retryConfig.Validate(); err != nil {
		return zero, fmt.Errorf("invalid retry config: %w", err)
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}

	delay := retryConfig.InitialDelay

	for attempt := 1; attempt <= retryConfig.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := operation()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if retryConfig.ShouldRetry != nil && !retryConfig.ShouldRetry(err, attempt) {
			return zero, err
		}
		if attempt == retryConfig.MaxRetries {
			break
		}

		sleepDuration := CalculateDelayWithJitter(delay, retryConfig.JitterFactor)
		if retryConfig.LogRetryAttempt {
			logger.Warnf("Attempt %d/%d failed: %v. Retrying in %v...", attempt, retryConfig.MaxRetries, err, sleepDuration)
		}

		timer := time.NewTimer(sleepDuration)
		select {
		case <-timer.C:
			delay = CalculateNextDelay(delay, retryConfig.BackoffFactor, retryConfig.MaxDelay)
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		}
	}

	return zero, &TimeoutError{Attempts: retryConfig.MaxRetries, Err: lastErr}
}

// RetryFunc is Retry for operations without a result.
func RetryFunc(ctx context.Context, operation func() error, config *RetryConfig, logger logging.Logger) error {
	_, err := Retry(ctx, func() (struct{}, error) {
		return struct{}{}, operation()
	}, config, logger)
	return err
}
