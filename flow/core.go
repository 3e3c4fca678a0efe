package flow

import (
	"context"
	"errors"
)

// Node is the shared execution contract: given a context and an input,
// produce an output or an error. Processor, Loop, Async and Batch each
// implement it, so the pipeline runner composes them behind a single
// interface via Flow.
type Node[I any, O any] interface {
	Run(ctx context.Context, input I) (O, error)
}

// Middleware wraps a Node to layer cross-cutting behavior (logging,
// metrics, retries) around its Run without changing its signature.
type Middleware[I any, O any] func(node Node[I, O]) Node[I, O]

// Join chains nodes into a single Node, in order.
func Join(nodes ...Node[any, any]) (Node[any, any], error) {
	if len(nodes) == 0 {
		return nil, errors.New("no nodes provided")
	}
	f := NewFlow()
	for _, n := range nodes {
		f.Then(n)
	}
	return f, nil
}

// OfNode wraps a single Node in a Flow.
func OfNode(node Node[any, any]) *Flow { return NewFlow().Then(node) }

// OfProcessor wraps a single Processor in a Flow.
func OfProcessor(processor Processor[any, any]) *Flow { return NewFlow().Step(processor) }
