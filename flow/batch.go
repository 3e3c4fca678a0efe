package flow

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// Batch divides one input into segments, runs a processor over each segment
// (sequentially or with a bounded concurrency limit), and aggregates the
// per-segment results into a single output. It is the composition primitive
// the enrichment workers use to express "claim a batch of pending tasks, run
// one LLM call per task, record how many completed" as a single Node.
type Batch[I any, O any, T any, R any] struct {
	processor        Processor[T, R]
	continueOnError  bool
	concurrencyLimit int
	segmenter        func(context.Context, I) ([]T, error)
	aggregator       func(context.Context, []R) (O, error)
}

func (b *Batch[I, O, T, R]) validate() error {
	if b.processor == nil {
		return errors.New("flow: batch processor is required")
	}
	if b.segmenter == nil {
		return errors.New("flow: batch segmenter is required")
	}
	if b.aggregator == nil {
		return errors.New("flow: batch aggregator is required")
	}
	return nil
}

func (b *Batch[I, O, T, R]) getConcurrencyLimit() int {
	if b.concurrencyLimit <= 0 {
		return 1
	}
	return b.concurrencyLimit
}

func (b *Batch[I, O, T, R]) runOne(ctx context.Context, segments []T) ([]R, error) {
	var results []R
	for _, segment := range segments {
		res, err := b.processor(ctx, segment)
		if err == nil {
			results = append(results, res)
		} else if !b.continueOnError {
			return nil, err
		}
	}
	return results, nil
}

func (b *Batch[I, O, T, R]) runN(ctx context.Context, segments []T) ([]R, error) {
	order := make([]*R, len(segments))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(b.getConcurrencyLimit())
	for i, segment := range segments {
		i, segment := i, segment
		group.Go(func() error {
			res, err := b.processor(groupCtx, segment)
			if err == nil {
				order[i] = &res
			}
			if !b.continueOnError {
				return err
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	results := make([]R, 0, len(segments))
	for _, r := range order {
		if r != nil {
			results = append(results, *r)
		}
	}
	return results, nil
}

// Run implements the Node interface: validate, segment, process, aggregate.
func (b *Batch[I, O, T, R]) Run(ctx context.Context, input I) (output O, err error) {
	if err = b.validate(); err != nil {
		return
	}
	if err = ctx.Err(); err != nil {
		return
	}
	segments, err := b.segmenter(ctx, input)
	if err != nil {
		return
	}
	var results []R
	if b.getConcurrencyLimit() == 1 {
		results, err = b.runOne(ctx, segments)
	} else {
		results, err = b.runN(ctx, segments)
	}
	if err != nil {
		return
	}
	return b.aggregator(ctx, results)
}

// WithContinueOnError makes the batch keep processing remaining segments
// after one fails, rather than aborting on the first error.
func (b *Batch[I, O, T, R]) WithContinueOnError() *Batch[I, O, T, R] {
	b.continueOnError = true
	return b
}

// WithConcurrencyLimit bounds how many segments run concurrently. 0 or 1
// means sequential processing.
func (b *Batch[I, O, T, R]) WithConcurrencyLimit(n int) *Batch[I, O, T, R] {
	b.concurrencyLimit = n
	return b
}

// WithProcessor sets the per-segment processing function.
func (b *Batch[I, O, T, R]) WithProcessor(p Processor[T, R]) *Batch[I, O, T, R] {
	b.processor = p
	return b
}

// WithSegmenter sets the function that divides the input into segments.
func (b *Batch[I, O, T, R]) WithSegmenter(segmenter func(context.Context, I) ([]T, error)) *Batch[I, O, T, R] {
	b.segmenter = segmenter
	return b
}

// WithAggregator sets the function that combines segment results.
func (b *Batch[I, O, T, R]) WithAggregator(aggregator func(context.Context, []R) (O, error)) *Batch[I, O, T, R] {
	b.aggregator = aggregator
	return b
}

// NewBatch constructs an empty Batch ready for With* configuration.
func NewBatch[I any, O any, T any, R any]() *Batch[I, O, T, R] {
	return &Batch[I, O, T, R]{}
}
