package common

import (
	"time"

	"github.com/sasha-s/go-deadlock"
)

func init() {
	SetLatchDeadlockDetection(false)
}

// SetLatchDeadlockDetection switches go-deadlock's lock order and
// timeout checking for all latches of this module
func SetLatchDeadlockDetection(enable bool) {
	deadlock.Opts.Disable = !enable
	deadlock.Opts.DeadlockTimeout = 60 * time.Second
}

// OrderedLatch is the pair of global latches shared by the buffer pool and
// the log. pool zone must be taken before log latch. The order is forced by
// the held-token types: log latch can be taken alone or from a *PoolHeld,
// but nothing gives a *PoolHeld to a holder of the log latch.
type OrderedLatch struct {
	pool deadlock.Mutex
	log  deadlock.Mutex
}

func NewOrderedLatch() *OrderedLatch {
	return new(OrderedLatch)
}

// PoolHeld proves that the caller holds the pool zone
type PoolHeld struct {
	latch    *OrderedLatch
	released bool
}

// LogHeld proves that the caller holds the log latch
type LogHeld struct {
	latch    *OrderedLatch
	withPool bool
	released bool
}

func (l *OrderedLatch) LockPool() *PoolHeld {
	l.pool.Lock()
	return &PoolHeld{latch: l}
}

// LockLog takes the log latch alone. the returned token can not be used to
// take the pool zone.
func (l *OrderedLatch) LockLog() *LogHeld {
	l.log.Lock()
	return &LogHeld{latch: l}
}

func (h *PoolHeld) LockLog() *LogHeld {
	SH_Assert(!h.released, "pool zone is already released")
	h.latch.log.Lock()
	return &LogHeld{latch: h.latch, withPool: true}
}

func (h *PoolHeld) Unlock() {
	SH_Assert(!h.released, "pool zone is already released")
	h.released = true
	h.latch.pool.Unlock()
}

// HoldsPool reports whether this token was taken under the pool zone
func (h *LogHeld) HoldsPool() bool {
	return h.withPool
}

func (h *LogHeld) Unlock() {
	SH_Assert(!h.released, "log latch is already released")
	h.released = true
	h.latch.log.Unlock()
}
