// Package llmretry computes and drives retry attempts around LLM
// completion calls (spec 7 "Retry policy"), merging the teacher's
// internal/backoff.ComputeBackoff and internal/retry.Do into one
// policy scoped to the agent loop's LLM step.
package llmretry

import (
	"math"
	"math/rand"
	"time"
)

// Strategy is the backoff curve shape (spec 7: "exponential, linear,
// or constant").
type Strategy string

const (
	Exponential Strategy = "exponential"
	Linear      Strategy = "linear"
	Constant    Strategy = "constant"
)

// Reason is a retryable failure classification (spec 7 "Retryable
// reasons").
type Reason string

const (
	ReasonRateLimit   Reason = "rate_limit"
	ReasonTimeout     Reason = "timeout"
	ReasonServerError Reason = "server_error"
)

// Policy configures the retry loop. Defaults match spec 7: 3 attempts,
// 1000ms base, exponential, retrying {rate_limit, timeout,
// server_error}.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Strategy    Strategy
	Retryable   map[Reason]bool
	Jitter      bool
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   1000 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Strategy:    Exponential,
		Retryable: map[Reason]bool{
			ReasonRateLimit:   true,
			ReasonTimeout:     true,
			ReasonServerError: true,
		},
		Jitter: true,
	}
}

// ComputeBackoff returns the delay before attempt number `attempt`
// (1-indexed: the delay before the second try is ComputeBackoff(1)).
// Grounded on the teacher's internal/backoff.ComputeBackoff.
func (p Policy) ComputeBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	var d time.Duration
	switch p.Strategy {
	case Linear:
		d = p.BaseDelay * time.Duration(attempt)
	case Constant:
		d = p.BaseDelay
	default: // Exponential
		d = time.Duration(float64(p.BaseDelay) * math.Pow(2, float64(attempt-1)))
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter {
		d = applyJitter(d)
	}
	return d
}

// applyJitter scales d by a uniform random factor in [0.5, 1.0), full
// jitter within the upper bound, matching the teacher's jitter shape.
func applyJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	factor := 0.5 + rand.Float64()*0.5
	return time.Duration(float64(d) * factor)
}

// CanRetry reports whether reason is retryable under this policy and
// whether attempts remain.
func (p Policy) CanRetry(reason Reason, attemptsMade int) bool {
	if attemptsMade >= p.MaxAttempts {
		return false
	}
	return p.Retryable[reason]
}
