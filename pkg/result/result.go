// Package result provides a generic (value, error) pair so a batch API's
// per-item outcome and a single-call outcome can be unpacked through the
// same Get() shape.
package result

import "fmt"

// Result holds either a value of type T or an error, never meaningfully
// both. enrichment.worker.finishBatch wraps each llm.BatchResult entry in
// one so its error branch isn't duplicated between the batch and
// single-call code paths.
type Result[T any] struct {
	v   T
	err error
}

// New wraps an existing (T, error) pair, e.g. one entry of a provider's
// batch response.
func New[T any](v T, err error) Result[T] {
	return Result[T]{v: v, err: err}
}

// Value wraps a successful value with no error.
func Value[T any](v T) Result[T] {
	return Result[T]{v: v}
}

// Error wraps an error with the zero value of T.
func Error[T any](err error) Result[T] {
	return Result[T]{err: err}
}

// Get returns the value and error, matching a plain (T, error) return.
func (r *Result[T]) Get() (T, error) {
	return r.v, r.err
}

func (r *Result[T]) Error() error {
	return r.err
}

// Value returns the zero value of T if the Result holds an error; callers
// that need to tell the two apart should use Get instead.
func (r *Result[T]) Value() T {
	return r.v
}

// String renders the error, or the value via fmt.Stringer if it implements
// one, otherwise via %+v.
func (r *Result[T]) String() string {
	if r.err != nil {
		return "error: " + r.err.Error()
	}
	if s, ok := any(r.v).(fmt.Stringer); ok {
		return "value: " + s.String()
	}
	return fmt.Sprintf("value: %+v", r.v)
}

// Map transforms a successful value, propagating an existing error
// unchanged.
func Map[T, U any](res Result[T], fn func(T) U) Result[U] {
	if res.err != nil {
		return Error[U](res.err)
	}
	return Value(fn(res.v))
}
