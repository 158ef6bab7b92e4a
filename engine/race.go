package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/use-agent/rewardrunner/models"
)

// RunWithTimeout races fn against a timer. fn runs in its own goroutine with a
// context that is cancelled as soon as the race is decided; when the timer
// wins a TIMEOUT RunError is returned without waiting for fn to unwind.
// A panic inside fn is converted into a HANDLER_FAILED error.
func RunWithTimeout(ctx context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- models.NewRunError(models.ErrCodeHandler,
					"handler panicked", fmt.Errorf("panic: %v", r))
			}
		}()
		done <- fn(raceCtx)
	}()

	var timeout <-chan time.Time
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case err := <-done:
		return err
	case <-timeout:
		return models.NewRunError(models.ErrCodeTimeout,
			fmt.Sprintf("handler did not finish within %s", d), context.DeadlineExceeded)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// categorizeError wraps raw driver errors into typed RunErrors so callers
// can decide whether to retry.
func categorizeError(err error, msg string) error {
	var re *models.RunError
	switch {
	case errors.As(err, &re):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewRunError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return models.NewRunError(models.ErrCodeNavigation, msg, err)
	}
}
