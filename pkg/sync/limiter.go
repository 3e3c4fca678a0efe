package sync

// Limiter is a counting semaphore bounding how many operations run at
// once. rag.Index uses one to cap concurrent Embed calls across
// simultaneous IndexOne invocations, so a burst of new posts never opens
// more concurrent requests against the embedding provider than it allows.
type Limiter struct {
	semaphore chan struct{}
}

// NewLimiter builds a Limiter allowing at most max concurrent holders.
// Panics if max <= 0.
func NewLimiter(max int) *Limiter {
	if max <= 0 {
		panic("max must be > 0")
	}
	return &Limiter{semaphore: make(chan struct{}, max)}
}

// Acquire blocks until a slot is free.
func (l *Limiter) Acquire() {
	l.semaphore <- struct{}{}
}

// Release frees a slot. Must be called once per Acquire, or callers
// waiting in Acquire will never unblock.
func (l *Limiter) Release() {
	<-l.semaphore
}
