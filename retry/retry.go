// Package retry provides a small exponential-backoff retrier and a
// bounded fan-out task processor, both context-cancellable.
package retry

import (
	"context"
	"time"

	"github.com/gosuda/pipecraft/pipe"
)

// Policy configures Retrier. MaxAttempts <= 0 means retry forever.
// Delay doubles (times Factor) after each failed attempt, capped at
// MaxDelay.
type Policy struct {
	InitialDelay time.Duration
	Factor       float64
	MaxDelay     time.Duration
	MaxAttempts  int

	// NonRetryableKinds lists pipe.Error kinds that are never retried,
	// even if attempts remain — a validation or out-of-order error means
	// retrying would just fail the same way again.
	NonRetryableKinds []pipe.Kind
}

func (p Policy) isRetryable(err error) bool {
	for _, k := range p.NonRetryableKinds {
		if pipe.IsKind(err, k) {
			return false
		}
	}
	return true
}

// Retrier runs an operation under a Policy, waiting between attempts
// with context-aware sleeps so a cancelled context aborts immediately
// instead of finishing out the backoff delay.
type Retrier struct {
	policy Policy
}

func NewRetrier(policy Policy) *Retrier {
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = 100 * time.Millisecond
	}
	if policy.Factor <= 1 {
		policy.Factor = 2
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 30 * time.Second
	}
	return &Retrier{policy: policy}
}

// Do runs op until it succeeds, the policy's attempt budget is
// exhausted, op returns a non-retryable error, or ctx is cancelled. It
// returns op's last error when the budget runs out or the error is
// non-retryable, and ctx.Err() when ctx is cancelled during a backoff wait.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	delay := r.policy.InitialDelay
	attempt := 0

	for {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !r.policy.isRetryable(err) {
			return err
		}
		if r.policy.MaxAttempts > 0 && attempt >= r.policy.MaxAttempts {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * r.policy.Factor)
		if delay > r.policy.MaxDelay {
			delay = r.policy.MaxDelay
		}
	}
}
