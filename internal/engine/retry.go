package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"kanban/api/internal/store"
)

// RetryPolicy bounds the redo loop around a card move.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	// Sleep waits between attempts; nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: 200 * time.Millisecond, Multiplier: 2}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	return p
}

// Delay is the wait after the given 1-based failed attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1)))
}

// Budget is the worst-case wall time of a retried operation whose every
// attempt runs into txTimeout.
func (p RetryPolicy) Budget(txTimeout time.Duration) time.Duration {
	p = p.normalized()
	total := time.Duration(p.MaxAttempts) * txTimeout
	for attempt := 1; attempt < p.MaxAttempts; attempt++ {
		total += p.Delay(attempt)
	}
	return total
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ErrRetriesExhausted wraps the last conflict once the policy gives up.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Do runs fn until it succeeds, fails with anything but a write conflict,
// or the attempts run out. fn must redo its reads on every call. Do returns
// the number of attempts made.
func (p RetryPolicy) Do(ctx context.Context, logger *slog.Logger, metrics *Metrics, fn func(ctx context.Context, attempt int) error) (int, error) {
	p = p.normalized()
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		if !store.IsWriteConflict(err) {
			return attempt, err
		}
		metrics.observeConflict()
		lastErr = err
		if attempt == p.MaxAttempts {
			break
		}
		delay := p.Delay(attempt)
		logger.WarnContext(ctx, "write conflict, retrying",
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"delay", delay,
			"error", err)
		if err := p.sleep(ctx, delay); err != nil {
			return attempt, fmt.Errorf("wait for retry: %w", err)
		}
	}
	return p.MaxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, p.MaxAttempts, lastErr)
}
