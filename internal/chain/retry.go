package chain

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

// Sentinel errors for retry logic.
var (
	ErrRetryable = &sigilerr.SigilError{
		Code:     "RETRYABLE_ERROR",
		Message:  "retryable error",
		ExitCode: sigilerr.ExitGeneral,
	}

	ErrTimeout = &sigilerr.SigilError{
		Code:     "TIMEOUT",
		Message:  "operation timed out",
		ExitCode: sigilerr.ExitGeneral,
	}

	ErrRateLimited = &sigilerr.SigilError{
		Code:     "RATE_LIMITED",
		Message:  "rate limited",
		ExitCode: sigilerr.ExitGeneral,
	}
)

// BackoffPolicy describes an exponential backoff schedule.
// Delay for attempt n (0-based) is min(BaseDelay*Multiplier^n, MaxDelay),
// then spread by ±Jitter (a fraction in [0, 1]).
type BackoffPolicy struct {
	MaxAttempts int           `yaml:"max_attempts"` // Total attempts including the first
	BaseDelay   time.Duration `yaml:"base_delay"`   // Delay before the second attempt
	Multiplier  float64       `yaml:"multiplier"`   // Growth factor per attempt
	MaxDelay    time.Duration `yaml:"max_delay"`    // Upper bound before jitter
	Jitter      float64       `yaml:"jitter"`       // Fractional spread, 0.2 = ±20%
}

// DefaultBackoffPolicy returns the policy used for network validation:
// 3 attempts, 1s base, doubling, capped at 10s, ±20% jitter.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2,
		MaxDelay:    10 * time.Second,
		Jitter:      0.2,
	}
}

// Delay returns the wait before attempt+1, jitter included.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	delay := p.baseDelay(attempt)
	if p.Jitter <= 0 || delay <= 0 {
		return delay
	}
	jitter := p.Jitter
	if jitter > 1 {
		jitter = 1
	}
	// Uniform in [delay*(1-j), delay*(1+j)].
	// Cryptographic randomness is not needed for retry jitter.
	spread := (rand.Float64()*2 - 1) * jitter //nolint:gosec // G404: jitter only
	return time.Duration(float64(delay) * (1 + spread))
}

// baseDelay returns the un-jittered delay for attempt.
func (p BackoffPolicy) baseDelay(attempt int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(p.BaseDelay)
	for i := 0; i < attempt; i++ {
		delay *= mult
		if p.MaxDelay > 0 && delay >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && time.Duration(delay) > p.MaxDelay {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// attempts returns MaxAttempts, treating non-positive values as one attempt.
func (p BackoffPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// RetryHooks observes a retry loop. All fields are optional.
type RetryHooks struct {
	// OnAttempt is called before each attempt with its 1-based number.
	OnAttempt func(attempt int)
	// OnRetry is called after a failed attempt that will be retried.
	OnRetry func(attempt int, delay time.Duration, cause error)
}

// Retry executes the operation with the default backoff policy, retrying
// only errors IsRetryable accepts.
func Retry[T any](ctx context.Context, operation func() (T, error)) (T, error) {
	return RetryWithPolicy(ctx, DefaultBackoffPolicy(), IsRetryable, RetryHooks{}, operation)
}

// RetryWithPolicy executes operation under policy. shouldRetry decides
// whether a failure is retried; a nil shouldRetry retries every error.
// A non-retryable error is returned unwrapped. Exhaustion wraps the last error.
func RetryWithPolicy[T any](
	ctx context.Context,
	policy BackoffPolicy,
	shouldRetry func(error) bool,
	hooks RetryHooks,
	operation func() (T, error),
) (T, error) {
	var result T
	var err error

	maxAttempts := policy.attempts()
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if hooks.OnAttempt != nil {
			hooks.OnAttempt(attempt + 1)
		}

		result, err = operation()
		if err == nil {
			return result, nil
		}

		if shouldRetry != nil && !shouldRetry(err) {
			return result, err
		}

		// Don't delay after the last attempt
		if attempt < maxAttempts-1 {
			delay := policy.Delay(attempt)
			if hooks.OnRetry != nil {
				hooks.OnRetry(attempt+1, delay, err)
			}

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return result, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return result, fmt.Errorf("operation failed after %d attempts: %w", maxAttempts, err)
}

// IsRetryable returns true if the error should trigger a retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Check for known retryable errors
	if errors.Is(err, ErrRetryable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	return false
}

// ParseRetryAfter parses the Retry-After header value.
// Returns the duration to wait, or 0 if parsing fails.
func ParseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}

	seconds, err := strconv.Atoi(header)
	if err != nil {
		return 0
	}

	return time.Duration(seconds) * time.Second
}

// WrapRetryable wraps an error to mark it as retryable.
func WrapRetryable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrRetryable, err)
}
