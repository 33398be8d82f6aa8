package ai

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorClass
	}{
		{errors.New("provider returned status 503"), ClassRetryable},
		{errors.New("rate limit exceeded"), ClassRetryable},
		{errors.New("context deadline exceeded"), ClassRetryable},
		{errors.New("connection reset by peer"), ClassRetryable},
		{errors.New("provider returned status 401"), ClassPermanent},
		{errors.New("invalid api key"), ClassPermanent},
		{errors.New("malformed transcription response"), ClassPermanent},
		// Unknown failures fail fast instead of looping.
		{errors.New("something unexpected"), ClassPermanent},
		{nil, ClassPermanent},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("Classify(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func fixedJitter(p BackoffPolicy, factor float64) BackoffPolicy {
	p.jitterFn = func() float64 { return factor }
	return p
}

func TestBackoffPolicy_DelayGrowthAndCap(t *testing.T) {
	policy := fixedJitter(DefaultBackoffPolicy(), 1.0)

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{5, 30 * time.Second},
		{10, 30 * time.Second},
	}
	for _, tc := range cases {
		if got := policy.Delay(tc.attempt); got != tc.want {
			t.Errorf("Delay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestBackoffPolicy_JitterWindow(t *testing.T) {
	policy := DefaultBackoffPolicy()
	for i := 0; i < 100; i++ {
		d := policy.Delay(0)
		if d < 800*time.Millisecond || d > 1200*time.Millisecond {
			t.Fatalf("Delay(0) = %v outside [0.8s, 1.2s]", d)
		}
	}
}

func TestCallWithRetry_PermanentFailsImmediately(t *testing.T) {
	policy := fixedJitter(DefaultBackoffPolicy(), 0)
	calls := 0
	err := CallWithRetry(context.Background(), policy, func() error {
		calls++
		return errors.New("provider returned status 401")
	}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("permanent error must not be retried, got %d calls", calls)
	}
}

func TestCallWithRetry_RetryableExhaustsBudget(t *testing.T) {
	policy := fixedJitter(DefaultBackoffPolicy(), 0)
	calls := 0
	retries := 0
	err := CallWithRetry(context.Background(), policy, func() error {
		calls++
		return errors.New("provider returned status 503")
	}, func(attempt int, delay time.Duration, err error) {
		retries++
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	// Initial attempt plus MaxRetries retries.
	if calls != policy.MaxRetries+1 {
		t.Fatalf("expected %d calls, got %d", policy.MaxRetries+1, calls)
	}
	if retries != policy.MaxRetries {
		t.Fatalf("expected %d retry callbacks, got %d", policy.MaxRetries, retries)
	}
}

func TestCallWithRetry_SucceedsAfterTransientFailure(t *testing.T) {
	policy := fixedJitter(DefaultBackoffPolicy(), 0)
	calls := 0
	err := CallWithRetry(context.Background(), policy, func() error {
		calls++
		if calls < 3 {
			return errors.New("service unavailable")
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestCallWithRetry_ContextCancellation(t *testing.T) {
	policy := fixedJitter(DefaultBackoffPolicy(), 1.0)
	policy.InitialDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- CallWithRetry(ctx, policy, func() error {
			return errors.New("timeout")
		}, nil)
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("CallWithRetry did not honor cancellation")
	}
}
