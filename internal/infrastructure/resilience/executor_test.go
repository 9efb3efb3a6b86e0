package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/decision-assistant/internal/core/domain"
)

func TestExecuteRetriesTemporaryFailure(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})

	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, func(err error) ErrorClassification {
		return ErrorClassification{
			Retryable:     errors.Is(err, errTemp),
			RecordFailure: true,
		}
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})

	attempts := 0
	errPermanent := errors.New("permanent")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errPermanent
	}, func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	observer := &observerFake{states: map[string]string{}}
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     1 * time.Millisecond,
		RetryMaxBackoff:         1 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	}, WithObserver(observer))

	errTemp := errors.New("temporary")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: true,
		}
	}

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "op", func(context.Context) error {
			return errTemp
		}, classifier)
		if !errors.Is(err, errTemp) {
			t.Fatalf("expected temporary error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, classifier)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("open circuit must surface as temporary, got %v", err)
	}
	if observer.states["op"] != "open" {
		t.Fatalf("expected observed open state, got %v", observer.states)
	}
}

type observerFake struct {
	states  map[string]string
	retries int
}

func (o *observerFake) ObserveBreakerState(op, state string) { o.states[op] = state }
func (o *observerFake) ObserveRetry(string)                  { o.retries++ }

func TestDoReturnsValueAfterRetry(t *testing.T) {
	observer := &observerFake{states: map[string]string{}}
	exec := NewExecutor(Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		BreakerEnabled:      false,
	}, WithObserver(observer))

	calls := 0
	got, err := Do(context.Background(), exec, "embed", func(context.Context) ([]float32, error) {
		calls++
		if calls == 1 {
			return nil, domain.WrapError(domain.ErrTemporary, "embed", errors.New("503"))
		}
		return []float32{1, 2}, nil
	}, TemporaryClassifier)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if len(got) != 2 || calls != 2 || observer.retries != 1 {
		t.Fatalf("unexpected result got=%v calls=%d retries=%d", got, calls, observer.retries)
	}
}

func TestTemporaryClassifier(t *testing.T) {
	if c := TemporaryClassifier(domain.WrapError(domain.ErrTemporary, "op", errors.New("x"))); !c.Retryable || !c.RecordFailure {
		t.Fatalf("temporary errors must be retried, got %+v", c)
	}
	if c := TemporaryClassifier(domain.ErrInvalidInput); c.Retryable || c.RecordFailure {
		t.Fatalf("invalid input must fail fast, got %+v", c)
	}
	if c := TemporaryClassifier(context.Canceled); c.Retryable {
		t.Fatalf("cancellation must not be retried")
	}
}
