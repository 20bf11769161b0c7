// Package version implements the invalidation counter that read paths use
// as part of their cache key. A reader that has not bumped keeps hitting the
// byte cache; a reader that just wrote bumps first, guaranteeing its next
// read bypasses it.
package version

import "sync/atomic"

// Token is a monotonically increasing counter starting at 0.
type Token struct {
	n atomic.Int64
}

// Bump increments the counter and returns the new value.
func (t *Token) Bump() int64 {
	return t.n.Add(1)
}

// Get returns the current value without mutating it.
func (t *Token) Get() int64 {
	return t.n.Load()
}
