package blockstm

import (
	"sync"
	"sync/atomic"
)

// cacheLineSize pads hot atomics apart so independent cursors don't
// false-share a line. 64 bytes covers every common architecture this
// package targets.
const cacheLineSize = 64

// cursors is component D: the two shared task-selection cursors, the
// commit cursor, and the block-done flag.
//
// executionIdx and validationIdx are deliberately NOT separately padded:
// every next_task call reads both, so keeping them on one line avoids
// doubling the cache traffic task selection already pays. commit_state and
// done are each on their own padded line, since they're touched by a
// disjoint set of callers (the committing worker, and halt/done checks).
type cursors struct {
	executionIdx  atomic.Uint32
	validationIdx atomic.Uint64 // packed: high 32 bits = wave, low 32 bits = index

	_pad0 [cacheLineSize]byte

	commitMu   sync.Mutex
	commitIdx  TxnIndex
	commitWave Wave

	_pad1 [cacheLineSize]byte

	done atomic.Bool
}

func newCursors(first TxnIndex) *cursors {
	c := &cursors{commitIdx: first}
	c.executionIdx.Store(uint32(first))
	c.validationIdx.Store(packValidationIdx(first, 0))
	return c
}

func packValidationIdx(idx TxnIndex, wave Wave) uint64 {
	return uint64(wave)<<32 | uint64(uint32(idx))
}

func unpackValidationIdx(v uint64) (TxnIndex, Wave) {
	return TxnIndex(uint32(v)), Wave(v >> 32)
}

func (c *cursors) loadValidationIdx() (TxnIndex, Wave) {
	return unpackValidationIdx(c.validationIdx.Load())
}

func (c *cursors) loadExecutionIdx() TxnIndex {
	return TxnIndex(c.executionIdx.Load())
}

// fetchMinExecutionIdx lowers executionIdx to target if target is smaller
// than the current value, atomically.
func (c *cursors) fetchMinExecutionIdx(target TxnIndex) {
	for {
		cur := c.executionIdx.Load()
		if target >= TxnIndex(cur) {
			return
		}
		if c.executionIdx.CompareAndSwap(cur, uint32(target)) {
			return
		}
	}
}

func (c *cursors) isDone() bool   { return c.done.Load() }
func (c *cursors) setDone()       { c.done.Store(true) }
