package util

import (
	"context"
	"time"
)

// Retry runs fn until it succeeds, making at most maxAttempts calls. The
// wait before each re-attempt starts at baseDelay and doubles per failure.
// Cancelling ctx during a wait returns the context error; exhausting the
// attempts returns fn's last error.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	var last error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if last = fn(); last == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}

		timer := time.NewTimer(baseDelay << (attempt - 1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return last
}
