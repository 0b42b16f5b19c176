package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy bounds how often a backend call is attempted.
type RetryPolicy struct {
	Attempts   int           // total attempts, at least 1
	Backoff    time.Duration // wait before the second attempt
	MaxBackoff time.Duration // cap for the doubling backoff
}

// DefaultRetryPolicy is 3 attempts starting at 200ms, capped at 2s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Backoff: 200 * time.Millisecond, MaxBackoff: 2 * time.Second}
}

// isTransient reports whether err is worth another attempt.
func isTransient(err error) bool {
	return !errors.Is(err, ErrRevisionMismatch) &&
		!errors.Is(err, ErrInvalidEvaluation) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// retry runs operation until it succeeds, fails permanently or the budget
// is spent. Non-transient errors are returned unchanged.
func (s *Service) retry(ctx context.Context, op string, operation func(context.Context) error) error {
	attempts := s.retryPolicy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := s.retryPolicy.Backoff
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := operation(ctx)
		if err == nil {
			if attempt > 1 {
				s.logger.Info("backend call recovered after retries",
					zap.String("op", op),
					zap.Int("attempts", attempt),
					zap.Duration("total_time", time.Since(start)),
				)
			}
			return nil
		}
		lastErr = err

		if !isTransient(err) || attempt == attempts {
			break
		}

		RetriesTotal.WithLabelValues(s.backend.Name()).Inc()
		s.logger.Debug("retrying backend call after error",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s canceled: %w", op, ctx.Err())
		case <-timer.C:
		}
		backoff *= 2
		if s.retryPolicy.MaxBackoff > 0 && backoff > s.retryPolicy.MaxBackoff {
			backoff = s.retryPolicy.MaxBackoff
		}
	}

	if isTransient(lastErr) {
		s.logger.Warn("backend call failed after all retries",
			zap.String("op", op),
			zap.Int("total_attempts", attempts),
			zap.Duration("total_time", time.Since(start)),
			zap.Error(lastErr),
		)
	}
	return lastErr
}
