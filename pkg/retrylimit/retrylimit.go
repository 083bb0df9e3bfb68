// Package retrylimit provides a bounded retry loop and an adaptive rate
// limiter for talking to a remote that throttles or drops requests.
//
// Example usage:
//
//	lim := retrylimit.NewAdaptiveLimiter(2, 1, 2, 0.5, 0.5)
//	err := retrylimit.Do(ctx, retrylimit.Config{
//	    MaxAttempts: 3,
//	    Delay:       time.Second,
//	}, func(ctx context.Context, attempt int) error {
//	    return doSomeWork(ctx)
//	})
package retrylimit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// Limiter
// =============================================================================

// AdaptiveLimiter manages a rate limit that adjusts automatically based
// on the outcome of requests. It increases on success and decreases on
// errors. Thread-safe.
type AdaptiveLimiter struct {
	mu        sync.RWMutex
	limiter   *rate.Limiter
	minLimit  rate.Limit
	maxLimit  rate.Limit
	stepUp    rate.Limit
	stepDown  float64
	lastError time.Time
}

// NewAdaptiveLimiter creates an AdaptiveLimiter.
//
// Parameters:
//   - initial: starting requests per second
//   - min: minimum allowed rate
//   - max: maximum allowed rate
//   - stepUp: increment on success
//   - stepDown: multiplier applied on failure (e.g., 0.5 to halve)
func NewAdaptiveLimiter(initial, min, max, stepUp rate.Limit, stepDown float64) *AdaptiveLimiter {
	if initial <= 0 {
		initial = 1
	}
	if min <= 0 {
		min = initial
	}
	if max < min {
		max = min
	}
	return &AdaptiveLimiter{
		limiter:  rate.NewLimiter(initial, burstFor(initial)),
		minLimit: min,
		maxLimit: max,
		stepUp:   stepUp,
		stepDown: stepDown,
	}
}

// Wait blocks until a token is available or the context is canceled.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return a.limiter.Wait(ctx)
}

// Success increases the rate after a successful request.
func (a *AdaptiveLimiter) Success() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if time.Since(a.lastError) > 10*time.Second {
		a.adjustLimit(a.limiter.Limit() + a.stepUp)
	}
}

// Throttled reduces the rate after a failure.
func (a *AdaptiveLimiter) Throttled() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastError = time.Now()
	a.adjustLimit(rate.Limit(float64(a.limiter.Limit()) * a.stepDown))
}

// CurrentLimit returns the current requests per second.
func (a *AdaptiveLimiter) CurrentLimit() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return float64(a.limiter.Limit())
}

func (a *AdaptiveLimiter) adjustLimit(newLimit rate.Limit) {
	if newLimit > a.maxLimit {
		newLimit = a.maxLimit
	} else if newLimit < a.minLimit {
		newLimit = a.minLimit
	}

	if newLimit != a.limiter.Limit() {
		a.limiter.SetLimit(newLimit)
		a.limiter.SetBurst(burstFor(newLimit))
	}
}

func burstFor(l rate.Limit) int {
	if int(l) < 1 {
		return 1
	}
	return int(l)
}

// =============================================================================
// Errors
// =============================================================================

// FatalError wraps errors that should stop retries immediately.
type FatalError struct {
	Err error
}

func (f *FatalError) Error() string { return f.Err.Error() }
func (f *FatalError) Unwrap() error { return f.Err }

// Fatal marks err as not worth retrying.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// ErrAttemptsExhausted is wrapped into the error returned by Do when every
// attempt failed. The last attempt's error is wrapped as well.
var ErrAttemptsExhausted = errors.New("max attempts exceeded")

// =============================================================================
// Retry
// =============================================================================

// Config configures the retry loop.
type Config struct {
	MaxAttempts int           // Maximum number of attempts (<= 0 means 1)
	Delay       time.Duration // Delay after a failed attempt
	MaxDelay    time.Duration // Upper bound for the delay (0 = no bound)
	Multiplier  float64       // Delay multiplier per attempt (<= 1 keeps it fixed)
	Jitter      bool          // Add up to 25% random jitter to each delay

	// SleepLast keeps the delay after the final failed attempt, so a
	// caller holding a lock keeps the backoff inside its critical section.
	SleepLast bool

	// OnRetry runs after every failed attempt, before the delay.
	OnRetry func(ctx context.Context, attempt int, err error)

	// Limiter, when set, is waited on before every attempt.
	Limiter *AdaptiveLimiter
}

// Do runs fn until it succeeds, returns a FatalError, the context ends or
// MaxAttempts is reached. The returned error wraps ErrAttemptsExhausted and
// the last attempt's error in the latter case.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context, attempt int) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	delay := cfg.Delay
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if cfg.Limiter != nil {
			if err := cfg.Limiter.Wait(ctx); err != nil {
				return err
			}
		}

		err := fn(ctx, attempt)
		if err == nil {
			if cfg.Limiter != nil {
				cfg.Limiter.Success()
			}
			if attempt > 1 {
				log.Printf("[Retry] Success after %d attempts", attempt)
			}
			return nil
		}
		lastErr = err

		var fatal *FatalError
		if errors.As(err, &fatal) {
			return fatal.Err
		}

		if cfg.Limiter != nil {
			cfg.Limiter.Throttled()
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(ctx, attempt, err)
		}

		if attempt == cfg.MaxAttempts && !cfg.SleepLast {
			break
		}

		log.Printf("[Retry] Attempt %d/%d failed: %v. Sleeping %v", attempt, cfg.MaxAttempts, err, delay)

		wait := delay
		if cfg.Jitter {
			wait = addJitter(delay)
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}

		if cfg.Multiplier > 1 {
			delay = time.Duration(float64(delay) * cfg.Multiplier)
			if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}
	}

	return fmt.Errorf("%w (%d): %w", ErrAttemptsExhausted, cfg.MaxAttempts, lastErr)
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// addJitter adds random jitter (0-25% of delay) to prevent thundering herd problem.
func addJitter(delay time.Duration) time.Duration {
	if delay < 4 {
		return delay
	}
	return delay + time.Duration(rand.Int63n(int64(delay/4)))
}
