package flow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlow_RunEmptyErrors(t *testing.T) {
	_, err := NewFlow().Run(context.Background(), "x")
	assert.Error(t, err)
}

func TestFlow_ThenChainsInOrder(t *testing.T) {
	var order []int
	step := func(n int) Node[any, any] {
		return Processor[any, any](func(ctx context.Context, input any) (any, error) {
			order = append(order, n)
			return input, nil
		})
	}

	f := NewFlow().Then(step(1)).Then(step(2)).Then(step(3))
	_, err := f.Run(context.Background(), "start")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestFlow_StepWrapsProcessor(t *testing.T) {
	f := NewFlow().Step(func(ctx context.Context, input any) (any, error) {
		return input.(string) + "-done", nil
	})
	out, err := f.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, "task-done", out)
}

func TestBatch_RunOneSequential(t *testing.T) {
	b := NewBatch[[]int, int, int, int]().
		WithSegmenter(func(ctx context.Context, in []int) ([]int, error) { return in, nil }).
		WithProcessor(func(ctx context.Context, n int) (int, error) { return n * 2, nil }).
		WithAggregator(func(ctx context.Context, results []int) (int, error) {
			sum := 0
			for _, r := range results {
				sum += r
			}
			return sum, nil
		})

	out, err := b.Run(context.Background(), []int{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 12, out) // (1+2+3)*2
}

func TestBatch_RunNConcurrentPreservesOrder(t *testing.T) {
	b := NewBatch[[]int, []int, int, int]().
		WithConcurrencyLimit(4).
		WithSegmenter(func(ctx context.Context, in []int) ([]int, error) { return in, nil }).
		WithProcessor(func(ctx context.Context, n int) (int, error) { return n + 1, nil }).
		WithAggregator(func(ctx context.Context, results []int) ([]int, error) { return results, nil })

	out, err := b.Run(context.Background(), []int{1, 2, 3, 4, 5})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4, 5, 6}, out)
}

func TestBatch_ContinueOnErrorSkipsFailures(t *testing.T) {
	b := NewBatch[[]int, int, int, int]().
		WithContinueOnError().
		WithSegmenter(func(ctx context.Context, in []int) ([]int, error) { return in, nil }).
		WithProcessor(func(ctx context.Context, n int) (int, error) {
			if n == 2 {
				return 0, assert.AnError
			}
			return n, nil
		}).
		WithAggregator(func(ctx context.Context, results []int) (int, error) { return len(results), nil })

	out, err := b.Run(context.Background(), []int{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 2, out)
}

func TestBatch_MissingConfigurationErrors(t *testing.T) {
	_, err := NewBatch[int, int, int, int]().Run(context.Background(), 1)
	assert.Error(t, err)
}
