package llm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrInvalidMaxAttempts is returned when RetryWithBackoff is asked for fewer than one attempt.
var ErrInvalidMaxAttempts = errors.New("maxAttempts must be at least 1")

// RetryWithBackoff runs operation until it succeeds or maxAttempts is reached, sleeping
// baseDelay * 2^(attempt-1) between attempts. It returns the last error, or ctx.Err() when the
// context ends first.
func RetryWithBackoff(ctx context.Context, logger *zap.Logger, operation func() error, maxAttempts int, baseDelay time.Duration) error {
	if maxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var lastErr error
	delay := baseDelay
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = operation()
		if lastErr == nil {
			if attempt > 1 {
				logger.Debug("operation succeeded after retry", zap.Int("attempt", attempt))
			}
			return nil
		}
		logger.Debug("operation failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(lastErr))
		if attempt == maxAttempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return lastErr
}
