// Package retry re-runs failing Directus calls with backoff and parks payloads
// that never succeed in a dead letter queue.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

var (
	ErrMaxAttempts  = errors.New("max retry attempts exceeded")
	ErrNotRetryable = errors.New("non-retryable error")
)

// Func is one attempt.
type Func func(ctx context.Context) error

// Retryer runs a Func until it succeeds or the policy gives up.
type Retryer struct {
	config Config
	dlq    *DLQ
}

// NewRetryer validates config and opens the DLQ when enabled.
func NewRetryer(config Config) (*Retryer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry config: %w", err)
	}

	r := &Retryer{config: config}
	if config.Enabled && config.DLQ.Enabled {
		dlq, err := NewDLQ(config.DLQ)
		if err != nil {
			return nil, fmt.Errorf("open dlq: %w", err)
		}
		r.dlq = dlq
	}
	return r, nil
}

// Do runs fn with retries.
func (r *Retryer) Do(ctx context.Context, fn Func) error {
	return r.run(ctx, fn, "", nil)
}

// DoWithData runs fn with retries and stores data in the DLQ, tagged with
// operation, if every attempt fails.
func (r *Retryer) DoWithData(ctx context.Context, operation string, fn Func, data any) error {
	return r.run(ctx, fn, operation, data)
}

func (r *Retryer) run(ctx context.Context, fn Func, operation string, data any) error {
	if !r.config.Enabled {
		return fn(ctx)
	}

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		if !r.retryable(err) {
			return fmt.Errorf("%w: %w", ErrNotRetryable, err)
		}

		if r.config.MaxAttempts > 0 && attempt >= r.config.MaxAttempts {
			r.park(operation, attempt, err, "max_attempts_exceeded", data)
			return fmt.Errorf("%w (%d): %w", ErrMaxAttempts, r.config.MaxAttempts, err)
		}

		if ctx.Err() != nil {
			r.park(operation, attempt, err, "context_cancelled", data)
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		}

		delay := r.delay(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			r.park(operation, attempt, err, "context_cancelled", data)
			return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}
}

func (r *Retryer) park(operation string, attempts int, err error, failure string, data any) {
	if r.dlq == nil || data == nil {
		return
	}
	_ = r.dlq.Add(DLQEntry{
		Timestamp:   time.Now(),
		Operation:   operation,
		Attempts:    attempts,
		LastError:   err.Error(),
		FailureType: failure,
		Data:        data,
	})
}

func (r *Retryer) delay(attempt int) time.Duration {
	var d time.Duration
	switch r.config.BackoffStrategy {
	case BackoffLinear:
		d = r.config.InitialDelay * time.Duration(attempt)
	case BackoffExponential:
		d = time.Duration(float64(r.config.InitialDelay) * math.Pow(r.config.BackoffMultiplier, float64(attempt-1)))
	default:
		d = r.config.InitialDelay
	}

	if d > r.config.MaxDelay {
		d = r.config.MaxDelay
	}

	if r.config.Jitter > 0 {
		d += time.Duration(float64(d) * r.config.Jitter * (rand.Float64()*2 - 1))
		if d < 0 {
			d = r.config.InitialDelay
		}
	}
	return d
}

func (r *Retryer) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if r.config.Retryable != nil {
		return r.config.Retryable(err)
	}
	if len(r.config.RetryableErrors) == 0 {
		return true
	}
	msg := err.Error()
	for _, pattern := range r.config.RetryableErrors {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// DLQ returns the dead letter queue, nil when disabled.
func (r *Retryer) DLQ() *DLQ {
	return r.dlq
}

// Close flushes the DLQ to disk.
func (r *Retryer) Close() error {
	if r.dlq != nil {
		return r.dlq.Save()
	}
	return nil
}
