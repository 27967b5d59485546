package llmretry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient")
var errFatal = errors.New("fatal")

func classifyTransient(err error) (Reason, bool) {
	if errors.Is(err, errTransient) {
		return ReasonServerError, true
	}
	return "", false
}

func fastPolicy() Policy {
	p := DefaultPolicy()
	p.BaseDelay = time.Millisecond
	p.MaxDelay = 5 * time.Millisecond
	p.Jitter = false
	return p
}

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), fastPolicy(), classifyTransient, nil, func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" || calls != 1 {
		t.Errorf("expected one successful call, got result=%q calls=%d", result, calls)
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	var outcomes []Outcome
	result, err := Do(context.Background(), fastPolicy(), classifyTransient, func(o Outcome) {
		outcomes = append(outcomes, o)
	}, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errTransient
		}
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "recovered" || calls != 3 {
		t.Errorf("expected recovery on third attempt, got result=%q calls=%d", result, calls)
	}
	if len(outcomes) != 2 {
		t.Errorf("expected 2 recorded outcomes before success, got %d", len(outcomes))
	}
}

func TestDoStopsOnUnclassifiedError(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(), classifyTransient, nil, func(ctx context.Context) (string, error) {
		calls++
		return "", errFatal
	})
	if !errors.Is(err, errFatal) {
		t.Errorf("expected fatal error to surface unchanged, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly one attempt for a non-retryable error, got %d", calls)
	}
}

func TestDoExhaustsMaxAttempts(t *testing.T) {
	policy := fastPolicy()
	policy.MaxAttempts = 2
	calls := 0
	_, err := Do(context.Background(), policy, classifyTransient, nil, func(ctx context.Context) (string, error) {
		calls++
		return "", errTransient
	})
	if err == nil {
		t.Fatal("expected an error after exhausting attempts")
	}
	if calls != 2 {
		t.Errorf("expected exactly MaxAttempts calls, got %d", calls)
	}
}

func TestDoAbortsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := fastPolicy()
	policy.BaseDelay = 50 * time.Millisecond
	policy.MaxAttempts = 5

	calls := 0
	_, err := Do(ctx, policy, classifyTransient, func(o Outcome) {
		if calls == 1 {
			cancel()
		}
	}, func(ctx context.Context) (string, error) {
		calls++
		return "", errTransient
	})
	if err == nil {
		t.Fatal("expected an error after cancellation")
	}
	if calls > 2 {
		t.Errorf("expected cancellation to stop further attempts quickly, got %d calls", calls)
	}
}

func TestComputeBackoffStrategies(t *testing.T) {
	base := 100 * time.Millisecond
	p := Policy{BaseDelay: base, MaxDelay: time.Second, Strategy: Exponential}
	if d := p.ComputeBackoff(1); d != base {
		t.Errorf("exponential attempt 1: expected %v, got %v", base, d)
	}
	if d := p.ComputeBackoff(3); d != 4*base {
		t.Errorf("exponential attempt 3: expected %v, got %v", 4*base, d)
	}

	p.Strategy = Linear
	if d := p.ComputeBackoff(3); d != 3*base {
		t.Errorf("linear attempt 3: expected %v, got %v", 3*base, d)
	}

	p.Strategy = Constant
	if d := p.ComputeBackoff(5); d != base {
		t.Errorf("constant attempt 5: expected %v, got %v", base, d)
	}
}

func TestComputeBackoffCapsAtMaxDelay(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 2 * time.Second, Strategy: Exponential}
	if d := p.ComputeBackoff(10); d != 2*time.Second {
		t.Errorf("expected backoff capped at MaxDelay, got %v", d)
	}
}

func TestCanRetryRespectsMaxAttemptsAndTable(t *testing.T) {
	p := DefaultPolicy()
	if !p.CanRetry(ReasonTimeout, 1) {
		t.Error("expected timeout to be retryable within attempt budget")
	}
	if p.CanRetry(ReasonTimeout, p.MaxAttempts) {
		t.Error("expected no retry once attempts are exhausted")
	}
	if p.CanRetry(Reason("unknown"), 1) {
		t.Error("expected an unlisted reason to be non-retryable")
	}
}
