package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/corpusworks/ingest/pkg/pipeerr"
)

const (
	retryMaxAttempts = 3
	retryBaseDelay   = 500 * time.Millisecond
)

// retryTransient runs op, retrying with exponential backoff while the error
// classifies as transient. Permanent and fatal errors return immediately.
func retryTransient(ctx context.Context, logger *slog.Logger, op func() error) error {
	var lastErr error
	for attempt := 1; attempt <= retryMaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !pipeerr.IsTransient(lastErr) {
			return lastErr
		}
		if attempt == retryMaxAttempts {
			break
		}

		// baseDelay * 2^(attempt-1)
		delay := retryBaseDelay
		for i := 1; i < attempt; i++ {
			delay *= 2
		}
		logger.Debug("transient failure, backing off",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", lastErr.Error()))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
