package flow

import (
	"context"
	"errors"
)

// Flow is a sequential chain of Nodes: the output of one becomes the input
// of the next. It is the composition primitive the pipeline runner uses to
// decompose its orchestration into named, independently testable steps
// (prepare -> window -> enrich -> retrieve -> write -> commit -> drain),
// per the teacher's "long orchestration functions decomposed into a
// pipeline whose steps are named methods" philosophy.
type Flow struct {
	steps []Node[any, any]
}

// NewFlow creates a new, empty Flow ready for configuration.
func NewFlow() *Flow {
	return &Flow{}
}

// Then appends node to the chain and returns the Flow for further chaining.
func (f *Flow) Then(node Node[any, any]) *Flow {
	f.steps = append(f.steps, node)
	return f
}

// Step appends a Processor, wrapped as a Node, to the chain.
func (f *Flow) Step(p Processor[any, any]) *Flow {
	return f.Then(Node[any, any](p))
}

// Run executes every step in order, threading each step's output into the
// next step's input, short-circuiting on the first error.
func (f *Flow) Run(ctx context.Context, input any) (any, error) {
	if len(f.steps) == 0 {
		return nil, errors.New("flow: at least one step is required")
	}
	current := input
	for _, step := range f.steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := step.Run(ctx, current)
		if err != nil {
			return nil, err
		}
		current = out
	}
	return current, nil
}
