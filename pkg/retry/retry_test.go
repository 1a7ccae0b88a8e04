package retry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/slack-exporter/pkg/clock"
)

func testPolicy(maxAttempts int) (Policy, *clock.Fake) {
	fake := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	return Policy{
		MaxAttempts: maxAttempts,
		Delay:       5 * time.Second,
		Clock:       fake,
		Logger:      &logger,
	}, fake
}

func TestDefaultPolicy(t *testing.T) {
	policy := DefaultPolicy()

	if policy.MaxAttempts != 0 {
		t.Errorf("MaxAttempts = %d, want 0 (unbounded)", policy.MaxAttempts)
	}
	if policy.Delay != 5*time.Second {
		t.Errorf("Delay = %v, want 5s", policy.Delay)
	}
	if policy.Classify == nil {
		t.Error("Classify should default to DefaultClassifier")
	}
}

type fatalErr struct{ fatal bool }

func (e fatalErr) Error() string { return "api error" }
func (e fatalErr) Fatal() bool   { return e.fatal }

func TestDefaultClassifier(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Class
	}{
		{"plain error", errors.New("timeout"), Retryable},
		{"context cancelled", context.Canceled, Fatal},
		{"deadline wrapped", fmt.Errorf("call: %w", context.DeadlineExceeded), Fatal},
		{"permanent", Permanent(errors.New("bad request")), Fatal},
		{"wrapped permanent", fmt.Errorf("page 3: %w", Permanent(errors.New("x"))), Fatal},
		{"fatal() true", fatalErr{fatal: true}, Fatal},
		{"fatal() false", fatalErr{fatal: false}, Retryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultClassifier(tt.err); got != tt.expected {
				t.Errorf("DefaultClassifier(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestPermanent_Nil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}

func TestDo_Success(t *testing.T) {
	policy, fake := testPolicy(0)

	callCount := 0
	err := policy.Do(context.Background(), "test", func(context.Context) error {
		callCount++
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
	if fake.Slept() != 0 {
		t.Errorf("Expected no wait, slept %v", fake.Slept())
	}
}

func TestDo_SucceedsAfterKFailuresUnbounded(t *testing.T) {
	for _, k := range []int{1, 3, 25} {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			policy, fake := testPolicy(0)

			callCount := 0
			err := policy.Do(context.Background(), "test", func(context.Context) error {
				callCount++
				if callCount <= k {
					return errors.New("temporary error")
				}
				return nil
			})

			if err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
			if callCount != k+1 {
				t.Errorf("Expected %d calls, got %d", k+1, callCount)
			}
			if want := time.Duration(k) * 5 * time.Second; fake.Slept() != want {
				t.Errorf("Slept = %v, want %v", fake.Slept(), want)
			}
		})
	}
}

func TestDo_MaxAttemptsExhausted(t *testing.T) {
	policy, _ := testPolicy(3)

	callCount := 0
	testErr := errors.New("persistent error")
	err := policy.Do(context.Background(), "test", func(context.Context) error {
		callCount++
		return testErr
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if !errors.Is(err, testErr) {
		t.Errorf("Expected last error to be wrapped, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls (MaxAttempts), got %d", callCount)
	}
}

func TestDo_FatalNoRetry(t *testing.T) {
	policy, fake := testPolicy(0)

	callCount := 0
	testErr := Permanent(errors.New("invalid_auth"))
	err := policy.Do(context.Background(), "test", func(context.Context) error {
		callCount++
		return testErr
	})

	if callCount != 1 {
		t.Errorf("Expected 1 call (no retry for fatal errors), got %d", callCount)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("Should not return ErrRetryExhausted for fatal errors")
	}
	if !errors.Is(err, testErr) {
		t.Errorf("Expected original error, got %v", err)
	}
	if fake.Slept() != 0 {
		t.Errorf("Expected no wait, slept %v", fake.Slept())
	}
}

func TestDo_CustomClassifier(t *testing.T) {
	policy, _ := testPolicy(0)
	policy.Classify = func(err error) Class {
		if err.Error() == "stop" {
			return Fatal
		}
		return Retryable
	}

	callCount := 0
	err := policy.Do(context.Background(), "test", func(context.Context) error {
		callCount++
		if callCount < 3 {
			return errors.New("again")
		}
		return errors.New("stop")
	})

	if err == nil || err.Error() != "stop" {
		t.Errorf("Expected stop error, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls, got %d", callCount)
	}
}

func TestDo_OnWaitCountdown(t *testing.T) {
	policy, _ := testPolicy(2)

	var waits []Wait
	policy.OnWait = func(w Wait) { waits = append(waits, w) }

	_ = policy.Do(context.Background(), "conversations.list", func(context.Context) error {
		return errors.New("boom")
	})

	// One wait of 5 seconds between attempt 1 and 2.
	if len(waits) != 5 {
		t.Fatalf("OnWait calls = %d, want 5", len(waits))
	}
	if waits[0].Remaining != 5*time.Second || waits[4].Remaining != time.Second {
		t.Errorf("countdown = %v..%v, want 5s..1s", waits[0].Remaining, waits[4].Remaining)
	}
	if waits[0].Operation != "conversations.list" || waits[0].Attempt != 1 {
		t.Errorf("wait = %+v, want operation conversations.list attempt 1", waits[0])
	}
}

type slowDown struct{ wait time.Duration }

func (e slowDown) Error() string              { return "slow down" }
func (e slowDown) RetryDelay() time.Duration { return e.wait }

func TestDo_ErrorDelayIsFloor(t *testing.T) {
	tests := []struct {
		name string
		wait time.Duration
		want time.Duration
	}{
		{"longer hint wins", 12 * time.Second, 12 * time.Second},
		{"shorter hint ignored", 2 * time.Second, 5 * time.Second},
		{"no hint", 0, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, fake := testPolicy(2)
			_ = policy.Do(context.Background(), "test", func(context.Context) error {
				return fmt.Errorf("page 2: %w", slowDown{wait: tt.wait})
			})
			if got := fake.Slept(); got != tt.want {
				t.Errorf("Slept = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	policy, _ := testPolicy(0)
	ctx, cancel := context.WithCancel(context.Background())

	callCount := 0
	err := policy.Do(ctx, "test", func(context.Context) error {
		callCount++
		if callCount == 2 {
			cancel()
		}
		return errors.New("error")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if callCount != 2 {
		t.Errorf("Expected 2 calls, got %d", callCount)
	}
}

func TestDo_ContextCancelledImmediately(t *testing.T) {
	policy, _ := testPolicy(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	callCount := 0
	err := policy.Do(ctx, "test", func(context.Context) error {
		callCount++
		return nil
	})

	if callCount != 0 {
		t.Errorf("Expected no calls on cancelled context, got %d", callCount)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
