package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Decision is what a caller should do after a failed attempt.
type Decision int

const (
	// RetrySame retries the same model with the same input.
	RetrySame Decision = iota
	// RetryShrunk retries the same model with a shortened input.
	RetryShrunk
	// RetryFallback makes one attempt against the task's fallback model.
	RetryFallback
	// GiveUp stops calling remote models.
	GiveUp
)

func (d Decision) String() string {
	switch d {
	case RetrySame:
		return "retry-same"
	case RetryShrunk:
		return "retry-shrunk-input"
	case RetryFallback:
		return "retry-fallback-model"
	default:
		return "give-up"
	}
}

// RetryPolicy decides how to react to a classified failure and how long to
// wait before the next attempt.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts against the primary model,
	// including the first. Default: 3.
	MaxAttempts int

	// BaseDelay is the wait after the first failed attempt. Default: 2s.
	BaseDelay time.Duration

	// MaxDelay caps a single wait. Zero means no cap.
	MaxDelay time.Duration

	// JitterFraction is the upper bound of the multiplicative jitter: the
	// delay is scaled by (1 + U[0, JitterFraction)). Default: 0.5.
	JitterFraction float64

	// OnRetry is called before each wait with the failed attempt and error.
	OnRetry func(attempt int, err error)

	rand func() float64
}

// DefaultRetryPolicy returns the policy used for inference calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		BaseDelay:      2 * time.Second,
		JitterFraction: 0.5,
	}
}

// NewRetryPolicy builds a policy from config values, keeping defaults for
// non-positive inputs.
func NewRetryPolicy(maxAttempts int, baseDelay time.Duration) RetryPolicy {
	p := DefaultRetryPolicy()
	if maxAttempts > 0 {
		p.MaxAttempts = maxAttempts
	}
	if baseDelay > 0 {
		p.BaseDelay = baseDelay
	}
	return p
}

// WithRand returns a copy of p drawing jitter from fn.
func (p RetryPolicy) WithRand(fn func() float64) RetryPolicy {
	p.rand = fn
	return p
}

// Decide maps a failure kind and the number of attempts already made
// (1-based) to the next action.
func (p RetryPolicy) Decide(kind Kind, attempt int) Decision {
	max := p.maxAttempts()
	switch kind {
	case KindModelLoading, KindUnavailable:
		if attempt < max {
			return RetrySame
		}
		return RetryFallback
	case KindInputTooLarge:
		if attempt < max {
			return RetryShrunk
		}
		return GiveUp
	case KindMalformed, KindTimeout:
		if attempt < max {
			return RetrySame
		}
		return GiveUp
	default:
		// Auth, rate limiting, cancellation and unknown failures are final.
		return GiveUp
	}
}

// Backoff returns the wait after failed attempt n (1-based):
// base × 2^(n−1) × (1 + U[0, jitter)).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		base = 2 * time.Second
	}
	delay := float64(base) * math.Pow(2, float64(attempt-1))

	if p.JitterFraction > 0 {
		r := rand.Float64
		if p.rand != nil {
			r = p.rand
		}
		delay *= 1 + r()*p.JitterFraction
	}

	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

// Wait sleeps for Backoff(attempt) or until ctx is done.
func (p RetryPolicy) Wait(ctx context.Context, attempt int, cause error) error {
	if p.OnRetry != nil {
		p.OnRetry(attempt, cause)
	}

	timer := time.NewTimer(p.Backoff(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p RetryPolicy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return 3
	}
	return p.MaxAttempts
}

// RetryLogger returns an OnRetry callback that logs each retry attempt.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.String("kind", KindOf(err).String()),
			zap.Error(err),
		)
	}
}
