package flow

import (
	"context"
	"errors"
)

// Processor is the unit of work a Flow step, a Batch segment, or a Loop
// iteration runs: take a context and an input, produce an output or an
// error. llm.Do wraps one in a Loop to retry it with backoff; enrichment's
// workers wrap one in a Batch to fan it out over a claimed set of tasks.
type Processor[I any, O any] func(context.Context, I) (O, error)

// Run satisfies Node, so a bare Processor can be handed anywhere a Flow
// step is expected without a separate adapter type.
func (p Processor[I, O]) Run(ctx context.Context, input I) (O, error) {
	if p == nil {
		return *new(O), errors.New("processor cannot be nil")
	}
	return p(ctx, input)
}

// compile-time assertion that Processor satisfies Node.
var _ Node[any, any] = Processor[any, any](nil)
