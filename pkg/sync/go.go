package sync

import "github.com/rivergate/chronicle/pkg/safe"

// Go starts fn in a goroutine with safe.Go's panic recovery; PoolOfNoPool
// is built on it directly.
func Go(fn func(), errfns ...func(error)) {
	safe.Go(fn, errfns...)
}
