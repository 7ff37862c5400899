// Package retry executes fallible operations with exponential backoff,
// retrying transient I/O failures and failing fast on permanent ones.
package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Policy configures retry behaviour.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// Jitter adds up to JitterFraction of the capped delay to every wait.
	Jitter         bool
	JitterFraction float64

	Logger zerolog.Logger
	// OnRetry, if set, is called before every wait.
	OnRetry func(operation string, attempt int, err error, delay time.Duration)
}

// Default returns a general purpose policy.
func Default() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialDelay:   100 * time.Millisecond,
		MaxDelay:       time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         zerolog.Nop(),
	}
}

// ForFileIO returns the policy used around filesystem operations.
func ForFileIO() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialDelay:   50 * time.Millisecond,
		MaxDelay:       500 * time.Millisecond,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         zerolog.Nop(),
	}
}

// ForNetwork returns a policy tuned for slower, network-like operations.
func ForNetwork() Policy {
	return Policy{
		MaxAttempts:    5,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       2 * time.Second,
		Multiplier:     1.5,
		JitterFraction: 0.1,
		Logger:         zerolog.Nop(),
	}
}

// WithJitter returns a copy of the policy with jitter enabled.
func (p Policy) WithJitter() Policy {
	p.Jitter = true
	if p.JitterFraction <= 0 {
		p.JitterFraction = 0.1
	}
	return p
}

// WithLogger returns a copy of the policy logging through logger.
func (p Policy) WithLogger(logger zerolog.Logger) Policy {
	p.Logger = logger
	return p
}

// NewBackOff builds the delay schedule for the policy.
func (p Policy) NewBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	b.Reset()

	var schedule backoff.BackOff = b
	if p.Jitter {
		schedule = &jitterBackOff{delegate: b, fraction: p.JitterFraction}
	}

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithMaxRetries(schedule, uint64(attempts-1))
}

// Do runs fn until it succeeds, returns a permanent error, or the attempts
// are exhausted. The last error is returned on failure.
func Do(ctx context.Context, p Policy, operation string, fn func() error) error {
	_, err := DoValue(ctx, p, operation, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoValue is Do for operations producing a value.
func DoValue[T any](ctx context.Context, p Policy, operation string, fn func() (T, error)) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	attempt := 0
	var result T
	op := func() error {
		attempt++
		v, err := fn()
		if err == nil {
			if attempt > 1 {
				p.Logger.Debug().
					Str("operation", operation).
					Int("attempt", attempt).
					Msg("Operation succeeded after retry")
			}
			result = v
			return nil
		}
		if !IsTransient(err) {
			p.Logger.Warn().
				Str("operation", operation).
				Int("attempt", attempt).
				Err(err).
				Msg("Operation failed with non-transient error, not retrying")
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, delay time.Duration) {
		p.Logger.Warn().
			Str("operation", operation).
			Int("attempt", attempt).
			Int64("delay_ms", delay.Milliseconds()).
			Err(err).
			Msg("Operation failed, retrying after delay")
		if p.OnRetry != nil {
			p.OnRetry(operation, attempt, err, delay)
		}
	}

	err := backoff.RetryNotify(op, backoff.WithContext(p.NewBackOff(), ctx), notify)
	if err != nil {
		if IsTransient(err) && attempt >= p.MaxAttempts {
			p.Logger.Warn().
				Str("operation", operation).
				Int("max_attempts", p.MaxAttempts).
				Err(err).
				Msg("Operation failed after all retry attempts")
		}
		var zero T
		return zero, err
	}
	return result, nil
}

// jitterBackOff adds a bounded random extra on top of every delay.
type jitterBackOff struct {
	delegate backoff.BackOff
	fraction float64
}

func (j *jitterBackOff) NextBackOff() time.Duration {
	d := j.delegate.NextBackOff()
	if d == backoff.Stop || d <= 0 {
		return d
	}
	limit := int64(float64(d) * j.fraction)
	if limit <= 0 {
		return d
	}
	return d + time.Duration(rand.Int64N(limit+1))
}

func (j *jitterBackOff) Reset() {
	j.delegate.Reset()
}
