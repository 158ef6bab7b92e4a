package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds the attempts made for a single operation and spaces
// them with exponential backoff.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      float64 // randomisation factor, 0-1
}

// DefaultRetryPolicy returns 3 attempts starting at 1s, doubling up to 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2,
		Jitter:      0.2,
	}
}

// Do runs op until it succeeds, isRetryable rejects its error, the attempts
// are exhausted or ctx is done. A nil isRetryable retries every error.
// When attempts run out the error of the last attempt is returned.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error, isRetryable func(error) bool) error {
	b := p.backOff()

	attempt := 0
	operation := func() error {
		attempt++
		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		if isRetryable != nil && !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		slog.Debug("retrying after failure",
			"attempt", attempt,
			"max_attempts", p.attempts(),
			"next_delay", next,
			"error", err,
		)
	}

	return backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify)
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) backOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.BaseDelay > 0 {
		eb.InitialInterval = p.BaseDelay
	}
	if p.MaxDelay > 0 {
		eb.MaxInterval = p.MaxDelay
	}
	if p.Multiplier >= 1 {
		eb.Multiplier = p.Multiplier
	}
	if p.Jitter >= 0 && p.Jitter <= 1 {
		eb.RandomizationFactor = p.Jitter
	}
	// Attempts, not elapsed time, bound the loop.
	eb.MaxElapsedTime = 0
	eb.Reset()
	return backoff.WithMaxRetries(eb, uint64(p.attempts()-1))
}
