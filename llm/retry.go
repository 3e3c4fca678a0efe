package llm

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rivergate/chronicle/flow"
)

// RetryPolicy is exponential backoff with jitter over a fixed attempt
// budget, adapted from the teacher's flow.Loop node: bounded iteration plus
// a terminator, here terminating on either success or budget exhaustion.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Retryable classifies whether an error is worth retrying at all;
	// nil means every error is retryable until the budget runs out.
	Retryable func(error) bool
}

// DefaultRetryPolicy is a conservative default: five attempts, 250ms base
// delay, capped at 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    10 * time.Second,
	}
}

type attemptResult[T any] struct {
	value T
	err   error
}

// Do executes fn under the policy, retrying transient failures with
// exponential backoff and full jitter. Go methods cannot carry their own
// type parameters, so Do is a free function rather than a RetryPolicy
// method.
func Do[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	node := flow.Processor[struct{}, attemptResult[T]](func(ctx context.Context, _ struct{}) (attemptResult[T], error) {
		v, err := fn(ctx)
		return attemptResult[T]{value: v, err: err}, nil
	})

	loop, err := flow.NewLoop(&flow.LoopConfig[struct{}, attemptResult[T]]{
		Node:          withBackoff(node, p),
		MaxIterations: maxAttempts,
		Terminator: func(ctx context.Context, iteration int, _ struct{}, out attemptResult[T]) (bool, error) {
			if out.err == nil {
				return true, nil
			}
			if errors.Is(out.err, ErrFatal) {
				return true, nil
			}
			if p.Retryable != nil && !p.Retryable(out.err) {
				return true, nil
			}
			return false, nil
		},
	})
	if err != nil {
		var zero T
		return zero, err
	}

	out, err := loop.Run(ctx, struct{}{})
	if err != nil {
		var zero T
		return zero, err
	}
	return out.value, out.err
}

// withBackoff wraps node so every call after the first sleeps for a
// jittered exponential delay before running, tracked via a closure-local
// attempt counter since flow.Loop re-invokes the same Node reference each
// iteration with the same input.
func withBackoff[T any](node flow.Node[struct{}, attemptResult[T]], p RetryPolicy) flow.Node[struct{}, attemptResult[T]] {
	attempt := 0
	return flow.Processor[struct{}, attemptResult[T]](func(ctx context.Context, in struct{}) (attemptResult[T], error) {
		if attempt > 0 {
			delay := backoffDelay(p.BaseDelay, p.MaxDelay, attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return attemptResult[T]{}, ctx.Err()
			}
		}
		attempt++
		return node.Run(ctx, in)
	})
}

// backoffDelay computes a full-jitter exponential delay: a random value in
// [0, min(maxDelay, base*2^attempt)].
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	mult := math.Pow(2, float64(attempt))
	capped := time.Duration(float64(base) * mult)
	if max > 0 && capped > max {
		capped = max
	}
	if capped <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(capped)))
}
