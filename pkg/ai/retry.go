package ai

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"time"
)

// ErrorClass partitions provider failures into retryable and permanent.
type ErrorClass int

const (
	ClassRetryable ErrorClass = iota
	ClassPermanent
)

var retryablePatterns = []string{
	"rate limit",
	"too many requests",
	"quota",
	"429",
	"503",
	"service unavailable",
	"overloaded",
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection reset",
	"connection refused",
	"temporarily unavailable",
}

var permanentPatterns = []string{
	"400",
	"401",
	"403",
	"404",
	"unauthorized",
	"forbidden",
	"permission",
	"invalid api key",
	"bad request",
	"malformed",
}

// Classify maps a provider error to a retry class by matching its message.
// Unknown errors default to permanent: failing fast beats looping on a
// failure mode we have never seen.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassPermanent
	}
	msg := strings.ToLower(err.Error())
	for _, p := range permanentPatterns {
		if strings.Contains(msg, p) {
			return ClassPermanent
		}
	}
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return ClassRetryable
		}
	}
	return ClassPermanent
}

// BackoffPolicy computes retry delays with exponential growth and jitter.
type BackoffPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxRetries   int

	// jitterFn returns a factor in [0.8, 1.2]; overridable in tests.
	jitterFn func() float64
}

// DefaultBackoffPolicy returns the production policy: 1s base, doubling,
// capped at 30s, three retries.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		MaxRetries:   3,
	}
}

// Delay returns the sleep before retry number attempt (0-based).
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	base := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt))
	if capped := float64(p.MaxDelay); base > capped {
		base = capped
	}
	jitter := p.jitterFn
	if jitter == nil {
		jitter = func() float64 { return 0.8 + rand.Float64()*0.4 }
	}
	return time.Duration(base * jitter())
}

// RetryFn is invoked before each retry sleep, e.g. to publish a progress event.
type RetryFn func(attempt int, delay time.Duration, err error)

// CallWithRetry runs op with the policy's retry budget. Permanent errors
// propagate immediately; retryable ones sleep per Delay between attempts.
// After MaxRetries failed retryable attempts the last error propagates.
func CallWithRetry(ctx context.Context, policy BackoffPolicy, op func() error, onRetry RetryFn) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if Classify(err) == ClassPermanent {
			return err
		}
		if attempt >= policy.MaxRetries {
			return err
		}
		delay := policy.Delay(attempt)
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
