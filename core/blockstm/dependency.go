package blockstm

import "sync"

// dependencyStatus is the one-shot state carried by a DependencyHandle.
type dependencyStatus uint8

const (
	depUnresolved dependencyStatus = iota
	depResolved
	depExecutionHalted
)

// DependencyHandle is a mutex-protected condition variable used to wake a
// worker that suspended on a read dependency. It transitions exactly once,
// from Unresolved to either Resolved or ExecutionHalted, and is shared
// between the Scheduler (which owns the transition) and the worker blocked
// in Wait (which owns nothing but the reference).
type DependencyHandle struct {
	mu     sync.Mutex
	cond   *sync.Cond
	status dependencyStatus
}

func newDependencyHandle() *DependencyHandle {
	h := &DependencyHandle{}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// Wait blocks until the handle is resolved and reports whether execution
// was halted in the meantime.
func (h *DependencyHandle) Wait() (halted bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for h.status == depUnresolved {
		h.cond.Wait()
	}
	return h.status == depExecutionHalted
}

// resolve performs the one-shot transition and wakes every goroutine
// blocked in Wait. Calling it more than once is a no-op: the first
// transition wins.
func (h *DependencyHandle) resolve(status dependencyStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status != depUnresolved {
		return
	}
	h.status = status
	h.cond.Broadcast()
}

// DependencyResultKind tags the outcome of WaitForDependency.
type DependencyResultKind uint8

const (
	// DependencyPending means the caller's transaction is now Suspended
	// and must block on the returned handle.
	DependencyPending DependencyResultKind = iota
	// DependencyResolved means the dependency was already Executed or
	// Committed; the caller should retry its read without suspending.
	DependencyResolved
	// DependencyHalted means the block is tearing down; the caller must
	// unwind without further status-mutating Scheduler calls.
	DependencyHalted
)

// DependencyResult is the return value of WaitForDependency.
type DependencyResult struct {
	Kind   DependencyResultKind
	Handle *DependencyHandle
}

// depList is one TxnIndex's list of transactions waiting on it, guarded by
// its own plain mutex (component B). This lock may be held while acquiring
// an execution-status lock (the sole two-lock hold in the package), never
// the reverse.
type depList struct {
	mu      sync.Mutex
	waiters []TxnIndex
}

// dependencyTable is component B.
type dependencyTable struct {
	entries map[TxnIndex]*depList
}

func newDependencyTable(indices []TxnIndex) *dependencyTable {
	t := &dependencyTable{entries: make(map[TxnIndex]*depList, len(indices))}
	for _, i := range indices {
		t.entries[i] = &depList{}
	}
	return t
}

func (t *dependencyTable) get(i TxnIndex) *depList {
	d, ok := t.entries[i]
	if !ok {
		panicProtocolViolation(i, "dependency table has no entry for this index")
	}
	return d
}

// drain empties i's waiter list and returns what it held, under the lock.
func (t *dependencyTable) drain(i TxnIndex) []TxnIndex {
	d := t.get(i)
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.waiters
	d.waiters = nil
	return out
}
