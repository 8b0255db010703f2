package engine

import "sync/atomic"

// scanLock provides non-blocking lock semantics using atomic operations.
// A second Scan fails fast instead of queueing behind the running one.
type scanLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// TryAcquire attempts to acquire the lock without blocking.
// Returns true if the lock was successfully acquired, false otherwise.
func (l *scanLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock.
// Must only be called by the goroutine that successfully acquired the lock.
func (l *scanLock) Release() {
	l.state.Store(0)
}
