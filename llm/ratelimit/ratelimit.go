// Package ratelimit gates outbound LLM requests with a token-bucket
// limiter that can be acquired from async contexts without blocking the
// calling goroutine's scheduler.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/rivergate/chronicle/flow"
	pkgsync "github.com/rivergate/chronicle/pkg/sync"
)

// Limiter wraps golang.org/x/time/rate.Limiter, offloading the blocking
// Wait call onto a worker pool so Acquire never blocks the calling
// goroutine's own scheduling slot — callers that are themselves running
// inside a scheduler loop (e.g. an event loop feeding many concurrent
// requests) can call Acquire without stalling that loop.
type Limiter struct {
	rl   *rate.Limiter
	pool pkgsync.Pool
}

// New constructs a Limiter with the given steady-state rate (requests per
// second) and burst size. pool defaults to pkgsync.DefaultPool() when nil.
func New(ratePerSecond float64, burst int, pool pkgsync.Pool) *Limiter {
	if pool == nil {
		pool = pkgsync.DefaultPool()
	}
	return &Limiter{
		rl:   rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		pool: pool,
	}
}

// Acquire blocks the caller's goroutine (not the invoking scheduler) until
// a token is available or ctx is cancelled. The wait itself runs on the
// pool via flow.Async, which hands back a future rather than running the
// blocking call inline.
func (l *Limiter) Acquire(ctx context.Context) error {
	async, err := flow.NewAsync(&flow.AsyncConfig[struct{}, struct{}]{
		Node: flow.Processor[struct{}, struct{}](func(ctx context.Context, _ struct{}) (struct{}, error) {
			return struct{}{}, l.rl.Wait(ctx)
		}),
		Pool: l.pool,
	})
	if err != nil {
		return err
	}

	future, err := async.RunType(ctx, struct{}{})
	if err != nil {
		return err
	}
	_, err = future.Get()
	return err
}

// TryAcquire reports whether a token is immediately available without
// waiting, consuming it if so.
func (l *Limiter) TryAcquire() bool {
	return l.rl.Allow()
}

// SetLimit updates the steady-state rate, e.g. after a provider advertises
// a new quota via response headers.
func (l *Limiter) SetLimit(ratePerSecond float64) {
	l.rl.SetLimit(rate.Limit(ratePerSecond))
}
