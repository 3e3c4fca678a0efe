package flow

import (
	"context"
	"errors"
)

// LoopConfig configures a Loop: the node re-run each iteration, a hard
// iteration ceiling, and an optional early-stop check. llm.Do builds one
// per Do call, running one attempt per iteration, with Terminator deciding
// whether the last error is retryable.
type LoopConfig[I any, O any] struct {
	Node Node[I, O]

	// MaxIterations bounds the iteration count (0-based, so 10 means
	// iterations 0-9); <= 0 means no limit and Terminator alone decides.
	MaxIterations int

	// Terminator, given the 0-based iteration and the input/output pair,
	// reports whether the loop should stop. nil leaves the stop to
	// MaxIterations, or stops after one run when MaxIterations <= 0.
	Terminator func(context.Context, int, I, O) (bool, error)
}

func (cfg *LoopConfig[I, O]) validate() error {
	if cfg == nil {
		return errors.New("loop config cannot be nil")
	}
	if cfg.Node == nil {
		return errors.New("loop node cannot be nil")
	}
	return nil
}

// Loop runs a Node repeatedly until its termination condition fires,
// feeding the same input to the node on every iteration.
type Loop[I any, O any] struct {
	node          Node[I, O]
	maxIterations int
	terminator    func(context.Context, int, I, O) (bool, error)
}

func NewLoop[I any, O any](cfg *LoopConfig[I, O]) (*Loop[I, O], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Loop[I, O]{
		node:          cfg.Node,
		maxIterations: cfg.MaxIterations,
		terminator:    cfg.Terminator,
	}, nil
}

// shouldTerminate combines the iteration ceiling and the Terminator check:
// both set ORs the two, only one set uses that one alone, neither set
// stops after the first iteration.
func (l *Loop[I, O]) shouldTerminate(ctx context.Context, iteration int, input I, output O) (bool, error) {
	if l.maxIterations > 0 && l.terminator != nil {
		stop, err := l.terminator(ctx, iteration, input, output)
		if err != nil {
			return false, err
		}
		return (iteration >= l.maxIterations-1) || stop, nil
	}
	if l.maxIterations > 0 {
		return iteration >= l.maxIterations-1, nil
	}
	if l.terminator == nil {
		return true, nil
	}
	return l.terminator(ctx, iteration, input, output)
}

// Run implements Node: it re-runs the configured node against the same
// input until shouldTerminate says stop, returning the last iteration's
// output (or its error, without consulting the terminator).
func (l *Loop[I, O]) Run(ctx context.Context, input I) (O, error) {
	var iteration int
	for {
		output, err := l.node.Run(ctx, input)
		if err != nil {
			return output, err
		}

		stop, err := l.shouldTerminate(ctx, iteration, input, output)
		if err != nil {
			return output, err
		}
		if stop {
			return output, nil
		}
		iteration++
	}
}
