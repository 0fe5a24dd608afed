// Package ksync provides the non-reentrant lock guarding the scheduler.
package ksync

import "sync/atomic"

// Spinlock is a lock that is never waited on: the scheduler runs with
// interrupts masked on a single core, so finding it held means the current
// code path re-entered itself.
type Spinlock struct {
	state uint32
}

// TryToAcquire attempts to acquire the lock and returns true if the lock could
// be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Release relinquishes a held lock. Calling Release while the lock is free has
// no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

// Held reports whether the lock is currently taken.
func (l *Spinlock) Held() bool {
	return atomic.LoadUint32(&l.state) != 0
}
