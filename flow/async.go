package flow

import (
	"context"
	"errors"

	pkgsync "github.com/rivergate/chronicle/pkg/sync"
)

// AsyncConfig configures an Async node: the node to run off the caller's
// goroutine, and the pool that runs it. Pool defaults to
// pkgsync.DefaultPool() when left nil.
type AsyncConfig[I any, O any] struct {
	Node Node[I, O]
	Pool pkgsync.Pool
}

func (cfg *AsyncConfig[I, O]) validate() error {
	if cfg == nil {
		return errors.New("async config cannot be nil")
	}
	if cfg.Node == nil {
		return errors.New("async node cannot be nil")
	}
	if cfg.Pool == nil {
		cfg.Pool = pkgsync.DefaultPool()
	}
	return nil
}

// Async submits its wrapped node to a pool and hands the caller back a
// pkgsync.Future instead of blocking. llm/ratelimit.Limiter.Acquire is the
// grounding use case: a blocking rate-limiter Wait call runs on a pool
// goroutine so it never consumes the caller's own worker-pool slot.
type Async[I any, O any] struct {
	node Node[I, O]
	pool pkgsync.Pool
}

func NewAsync[I any, O any](cfg *AsyncConfig[I, O]) (*Async[I, O], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Async[I, O]{node: cfg.Node, pool: cfg.Pool}, nil
}

// RunType submits the node and returns a typed Future immediately; the node
// itself doesn't start running until the pool schedules it.
func (a *Async[I, O]) RunType(ctx context.Context, input I) (pkgsync.Future[O], error) {
	task := pkgsync.NewFutureTask(func(_ <-chan struct{}) (O, error) {
		return a.node.Run(ctx, input)
	})
	if err := a.pool.Submit(task.Run); err != nil {
		return nil, err
	}
	return task, nil
}

// Run implements Node, returning the Future as an any so Async composes
// into a Flow alongside synchronous steps.
func (a *Async[I, O]) Run(ctx context.Context, input I) (any, error) {
	return a.RunType(ctx, input)
}
