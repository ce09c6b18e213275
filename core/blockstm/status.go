package blockstm

import "sync"

// execKind tags the variant carried by an ExecutionStatus value. Go has no
// tagged union, so the kind plus the union of possible payload fields plays
// that role here, mirroring the Rust enum in the scheduler this package's
// state machine is modeled on.
type execKind uint8

const (
	statusReadyToExecute execKind = iota
	statusExecuting
	statusSuspended
	statusExecuted
	statusCommitted
	statusAborting
	statusExecutionHalted
)

// ExecutionStatus is the per-TxnIndex execution state. See the lifecycle
// diagram: ReadyToExecute -> Executing -> {Executed | Suspended};
// Suspended -> ReadyToExecute; Executed -> {Committed | Aborting};
// Aborting -> ReadyToExecute(inc+1). Any non-terminal state can move to
// ExecutionHalted.
type ExecutionStatus struct {
	kind        execKind
	incarnation Incarnation
	// handle is set for ReadyToExecute when the transaction was resumed
	// from Suspended (the handle has then already been resolved), and for
	// Suspended while execution is paused on a dependency. Nil otherwise.
	handle *DependencyHandle
}

func readyToExecute(inc Incarnation, handle *DependencyHandle) ExecutionStatus {
	return ExecutionStatus{kind: statusReadyToExecute, incarnation: inc, handle: handle}
}

func executingStatus(inc Incarnation) ExecutionStatus {
	return ExecutionStatus{kind: statusExecuting, incarnation: inc}
}

func suspended(inc Incarnation, handle *DependencyHandle) ExecutionStatus {
	return ExecutionStatus{kind: statusSuspended, incarnation: inc, handle: handle}
}

func executed(inc Incarnation) ExecutionStatus {
	return ExecutionStatus{kind: statusExecuted, incarnation: inc}
}

func committed(inc Incarnation) ExecutionStatus {
	return ExecutionStatus{kind: statusCommitted, incarnation: inc}
}

func aborting(inc Incarnation) ExecutionStatus {
	return ExecutionStatus{kind: statusAborting, incarnation: inc}
}

func executionHalted() ExecutionStatus {
	return ExecutionStatus{kind: statusExecutionHalted}
}

// ValidationStatus tracks the three wave numbers described in spec.md
// ("Algorithm Description for Updating Waves"): the highest wave ever
// triggered at or below this index (max_triggered_wave), the wave this
// transaction's current incarnation must pass (required_wave), and the
// highest wave it has successfully validated at (maybe_max_validated_wave,
// None represented here as hasValidated == false).
type ValidationStatus struct {
	maxTriggeredWave Wave
	requiredWave     Wave
	maxValidatedWave Wave
	hasValidated     bool
}

// txnStatus bundles the two per-TxnIndex locks (execution status,
// validation status) that make up component A of the design. These are two
// separate locks, not one, because try_commit needs to read validation
// status and (try-)upgrade execution status independently of the
// finish_execution/finish_abort path, which always takes validation then
// execution in that order (see the global lock-ordering rule).
type txnStatus struct {
	execMu sync.RWMutex
	exec   ExecutionStatus

	valMu sync.RWMutex
	val   ValidationStatus
}

// statusTable is component A: the per-transaction execution + validation
// status table, built once at Scheduler construction over the provider's
// full index set and never resized afterward.
type statusTable struct {
	entries map[TxnIndex]*txnStatus
}

func newStatusTable(indices []TxnIndex) *statusTable {
	t := &statusTable{entries: make(map[TxnIndex]*txnStatus, len(indices))}
	for _, i := range indices {
		t.entries[i] = &txnStatus{exec: readyToExecute(0, nil)}
	}
	return t
}

func (t *statusTable) get(i TxnIndex) *txnStatus {
	s, ok := t.entries[i]
	if !ok {
		panicProtocolViolation(i, "status table has no entry for this index")
	}
	return s
}

// tryIncarnate attempts ReadyToExecute(inc, handle) -> Executing(inc). On
// success it returns the incarnation and the carried handle (if any); a
// carried handle was already resolved when the transaction was resumed.
// Returns ok == false if the status was anything else.
func (t *statusTable) tryIncarnate(i TxnIndex) (inc Incarnation, handle *DependencyHandle, ok bool) {
	s := t.get(i)
	s.execMu.Lock()
	defer s.execMu.Unlock()

	if s.exec.kind != statusReadyToExecute {
		return 0, nil, false
	}
	inc, handle = s.exec.incarnation, s.exec.handle
	s.exec = executingStatus(inc)
	return inc, handle, true
}

// isExecuted reports whether i's execution status is Executed(inc), or, if
// includeCommitted is set, Committed(inc). The distinction matters:
// wait_for_dependency (includeCommitted = true) must treat a committed
// dependency as resolved, while try_validate_next_version (includeCommitted
// = false) must not re-validate something already committed.
func (t *statusTable) isExecuted(i TxnIndex, includeCommitted bool) (Incarnation, bool) {
	s := t.get(i)
	s.execMu.RLock()
	defer s.execMu.RUnlock()

	switch s.exec.kind {
	case statusExecuted:
		return s.exec.incarnation, true
	case statusCommitted:
		if includeCommitted {
			return s.exec.incarnation, true
		}
		return 0, false
	default:
		return 0, false
	}
}

// neverExecuted reports whether no incarnation of i has ever completed,
// i.e. the status is ReadyToExecute/Executing/Suspended all at incarnation
// 0. next_task uses this to avoid validating indices below an
// execution_idx that has simply never been reached.
func (t *statusTable) neverExecuted(i TxnIndex) bool {
	s := t.get(i)
	s.execMu.RLock()
	defer s.execMu.RUnlock()

	switch s.exec.kind {
	case statusReadyToExecute, statusExecuting, statusSuspended:
		return s.exec.incarnation == 0
	default:
		return false
	}
}

// suspendExecuting moves Executing(inc) -> Suspended(inc, handle). Returns
// false (without mutating) iff status is already ExecutionHalted; any other
// status is a protocol violation, since the caller only suspends a
// transaction it is currently, single-threadedly, executing.
func (t *statusTable) suspendExecuting(i TxnIndex, handle *DependencyHandle) bool {
	s := t.get(i)
	s.execMu.Lock()
	defer s.execMu.Unlock()

	switch s.exec.kind {
	case statusExecuting:
		s.exec = suspended(s.exec.incarnation, handle)
		return true
	case statusExecutionHalted:
		return false
	default:
		panicProtocolViolation(i, "suspend called while not Executing")
	}
	return false
}

// resume moves Suspended(inc, handle) -> ReadyToExecute(inc, Some(handle))
// and returns the handle so the caller can notify it as Resolved. Returns
// nil without mutating if the status is already ExecutionHalted.
func (t *statusTable) resume(i TxnIndex) *DependencyHandle {
	s := t.get(i)
	s.execMu.Lock()
	defer s.execMu.Unlock()

	if s.exec.kind == statusExecutionHalted {
		return nil
	}
	if s.exec.kind != statusSuspended {
		panicProtocolViolation(i, "resume called while not Suspended")
	}
	handle := s.exec.handle
	s.exec = readyToExecute(s.exec.incarnation, handle)
	return handle
}

// trySetExecuted moves Executing(inc) -> Executed(inc) and reports whether
// the transition happened. It returns false, without mutating, if the
// status is already ExecutionHalted (halt can race a finishing worker).
func (t *statusTable) trySetExecuted(i TxnIndex, inc Incarnation) bool {
	s := t.get(i)
	s.execMu.Lock()
	defer s.execMu.Unlock()

	if s.exec.kind == statusExecutionHalted {
		return false
	}
	if s.exec.kind != statusExecuting || s.exec.incarnation != inc {
		panicProtocolViolation(i, "finish_execution called for a status other than Executing(inc)")
	}
	s.exec = executed(inc)
	return true
}

// setAbortedStatus moves Aborting(inc) -> ReadyToExecute(inc+1, None).
// Silently returns if already ExecutionHalted.
func (t *statusTable) setAbortedStatus(i TxnIndex, inc Incarnation) {
	s := t.get(i)
	s.execMu.Lock()
	defer s.execMu.Unlock()

	if s.exec.kind == statusExecutionHalted {
		return
	}
	if s.exec.kind != statusAborting || s.exec.incarnation != inc {
		panicProtocolViolation(i, "finish_abort called for a status other than Aborting(inc)")
	}
	s.exec = readyToExecute(inc+1, nil)
}

// tryAbort moves Executed(inc) -> Aborting(inc). Returns true at most once
// per (TxnIndex, Incarnation), since incarnation numbers never decrease.
func (t *statusTable) tryAbort(i TxnIndex, inc Incarnation) bool {
	s := t.get(i)
	s.execMu.Lock()
	defer s.execMu.Unlock()

	if s.exec.kind == statusExecuted && s.exec.incarnation == inc {
		s.exec = aborting(inc)
		return true
	}
	return false
}
