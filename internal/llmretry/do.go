package llmretry

import (
	"context"
	"fmt"
	"time"
)

// Classifier extracts a retry Reason from an error returned by the
// wrapped call, or ok=false if the error carries no retry
// classification (and is therefore terminal).
type Classifier func(err error) (reason Reason, ok bool)

// Outcome records one attempt for the caller's own tracing/logging.
type Outcome struct {
	Attempt int
	Err     error
	Reason  Reason
	Delay   time.Duration
}

// Do runs fn, retrying per policy when the error classifies as
// retryable, sleeping the computed backoff between attempts.
// Grounded on the teacher's internal/retry.Do attempt-loop driver.
func Do[T any](ctx context.Context, policy Policy, classify Classifier, onAttempt func(Outcome), fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		reason, classified := classify(err)
		if !classified || !policy.CanRetry(reason, attempt) {
			if onAttempt != nil {
				onAttempt(Outcome{Attempt: attempt, Err: err, Reason: reason})
			}
			return zero, err
		}

		delay := policy.ComputeBackoff(attempt)
		if onAttempt != nil {
			onAttempt(Outcome{Attempt: attempt, Err: err, Reason: reason, Delay: delay})
		}

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("retry aborted: %w (last attempt error: %v)", ctx.Err(), lastErr)
		case <-time.After(delay):
		}
	}
	return zero, fmt.Errorf("exhausted %d attempts: %w", policy.MaxAttempts, lastErr)
}
