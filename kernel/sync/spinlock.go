// Package sync provides the spinlock used to serialize access to the active
// address space and to the free-region registry.
package sync

import "sync/atomic"

var (
	// yieldFn is invoked after a batch of failed acquisition attempts. It
	// is nil while the kernel runs without a scheduler.
	yieldFn func()
)

// Spinlock implements a lock where each task trying to acquire it busy-waits
// till the lock becomes available.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active task.
// Any attempt to re-acquire a lock already held by the current task will cause
// a deadlock.
func (l *Spinlock) Acquire() {
	archAcquireSpinlock(&l.state, 1)
}

// TryToAcquire attempts to acquire the lock and returns true if the lock could
// be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Release relinquishes a held lock allowing other tasks to acquire it. Calling
// Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

// spinAttemptsBeforeYield is the number of failed CAS attempts after which
// archAcquireSpinlock gives other tasks a chance to run.
const spinAttemptsBeforeYield = 64

// archAcquireSpinlock spins on state until it manages to swap it from 0 to
// newValue.
func archAcquireSpinlock(state *uint32, newValue uint32) {
	for attempt := 1; !atomic.CompareAndSwapUint32(state, 0, newValue); attempt++ {
		if attempt%spinAttemptsBeforeYield == 0 && yieldFn != nil {
			yieldFn()
		}
	}
}
