package safe

import (
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"
)

// PanicError wraps a recovered panic with its timestamp and stack trace.
// pkg/sync.Go and pkg/sync.Pool's no-pool adapter use it to turn a goroutine
// panic into a reportable error instead of crashing the process.
type PanicError struct {
	time  time.Time
	info  any
	stack []byte
	cache atomic.Pointer[string]
}

// Error formats the panic once and caches the string for repeated calls.
func (e *PanicError) Error() string {
	if e.cache.Load() == nil {
		msg := fmt.Sprintf("panic: \ntimestamp: %s, \nerror: %+v, \nstack: %s",
			e.time.Format(time.RFC3339Nano), e.info, string(e.stack))
		e.cache.Store(&msg)
	}
	return *e.cache.Load()
}

func NewPanicError(info any, stack []byte) error {
	return &PanicError{time: time.Now(), info: info, stack: stack}
}

// Go runs fn in a new goroutine, recovering any panic and handing the
// resulting PanicError to each panicFn instead of letting it crash the
// process.
func Go(fn func(), panicFns ...func(error)) {
	recovered := WithRecover(fn, panicFns...)
	if recovered == nil {
		return
	}
	go recovered()
}

// WithRecover wraps fn so a panic is recovered and reported to panicFns
// instead of propagating, without itself starting a goroutine. Returns nil
// if fn is nil.
func WithRecover(fn func(), panicFns ...func(error)) func() {
	if fn == nil {
		return nil
	}
	return func() {
		defer func() {
			if r := recover(); r != nil {
				if len(panicFns) == 0 {
					return
				}
				err := NewPanicError(r, debug.Stack())
				for _, panicFn := range panicFns {
					panicFn(err)
				}
			}
		}()
		fn()
	}
}
