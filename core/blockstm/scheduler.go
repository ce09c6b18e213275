package blockstm

import (
	"runtime"

	"github.com/ethereum/go-ethereum/log"
)

// Scheduler is component E: the facade a pool of worker goroutines drives
// through NextTask/FinishExecution/FinishValidation/TryAbort/FinishAbort,
// with exactly one designated worker additionally calling TryCommit. It
// owns the per-transaction status and dependency tables and the shared
// cursors, and is destroyed with the block once every transaction commits
// or the block halts.
type Scheduler struct {
	provider IndexProvider
	status   *statusTable
	deps     *dependencyTable
	cur      *cursors
}

// NewScheduler builds a Scheduler over every index the provider reports.
func NewScheduler(provider IndexProvider) *Scheduler {
	indices := provider.All()
	return &Scheduler{
		provider: provider,
		status:   newStatusTable(indices),
		deps:     newDependencyTable(indices),
		cur:      newCursors(provider.First()),
	}
}

func minIdx(a, b TxnIndex) TxnIndex {
	if a < b {
		return a
	}
	return b
}

// NextTask returns the next unit of work for a worker. committing tells the
// Scheduler whether this worker is also responsible for calling TryCommit;
// a non-committing worker that finds no work yields via a scheduling hint
// instead of spinning hot.
func (s *Scheduler) NextTask(committing bool) SchedulerTask {
	for {
		if s.cur.isDone() {
			return doneTask()
		}

		vIdx, wave := s.cur.loadValidationIdx()
		eIdx := s.cur.loadExecutionIdx()
		end := s.provider.End()

		preferValidate := vIdx < minIdx(eIdx, end) && !s.status.neverExecuted(vIdx)

		if !preferValidate && eIdx >= end {
			if s.cur.isDone() {
				return doneTask()
			}
			if !committing {
				runtime.Gosched()
			}
			return noTask()
		}

		if preferValidate {
			if v, w, ok := s.tryValidateNextVersion(vIdx, wave); ok {
				return validationTask(v, w)
			}
			continue
		}

		if v, h, ok := s.tryExecuteNextVersion(); ok {
			return executionTask(v, h)
		}
	}
}

// tryValidateNextVersion claims idxToValidate via a CAS on validationIdx
// (not a fetch-add: a concurrent racer must not silently skip past an
// index whose incarnation 0 never finished).
func (s *Scheduler) tryValidateNextVersion(idxToValidate TxnIndex, wave Wave) (Version, Wave, bool) {
	next := s.provider.Next(idxToValidate)
	old := packValidationIdx(idxToValidate, wave)
	update := packValidationIdx(next, wave)
	if !s.cur.validationIdx.CompareAndSwap(old, update) {
		return Version{}, 0, false
	}

	inc, ok := s.status.isExecuted(idxToValidate, false)
	if !ok {
		return Version{}, 0, false
	}
	return Version{TxnIndex: idxToValidate, Incarnation: inc}, wave, true
}

// tryExecuteNextVersion claims the next execution index via fetch-and-next
// on executionIdx, then attempts to incarnate it.
func (s *Scheduler) tryExecuteNextVersion() (Version, *DependencyHandle, bool) {
	var idxToExecute TxnIndex
	for {
		cur := s.cur.executionIdx.Load()
		idxToExecute = TxnIndex(cur)
		next := s.provider.Next(idxToExecute)
		if s.cur.executionIdx.CompareAndSwap(cur, uint32(next)) {
			break
		}
	}

	if idxToExecute >= s.provider.End() {
		return Version{}, nil, false
	}

	inc, handle, ok := s.status.tryIncarnate(idxToExecute)
	if !ok {
		return Version{}, nil, false
	}
	return Version{TxnIndex: idxToExecute, Incarnation: inc}, handle, true
}

// WaitForDependency registers t as waiting on d's next completed
// incarnation. See DependencyResultKind for the three outcomes.
func (s *Scheduler) WaitForDependency(t, d TxnIndex) DependencyResult {
	handle := newDependencyHandle()

	dl := s.deps.get(d)
	dl.mu.Lock()

	// Committed counts as executed here: dependency resolution must never
	// register a zombie waiter against a transaction that will never run
	// finish_execution again.
	if _, ok := s.status.isExecuted(d, true); ok {
		dl.mu.Unlock()
		return DependencyResult{Kind: DependencyResolved}
	}

	if !s.status.suspendExecuting(t, handle) {
		dl.mu.Unlock()
		return DependencyResult{Kind: DependencyHalted}
	}

	// Still holding dl's lock: finish_execution(d) is guaranteed to
	// acquire the same lock later and drain this entry. This is the only
	// place two of the package's mutexes are held at once: dependency list
	// then execution status, always in that order.
	dl.waiters = append(dl.waiters, t)
	dl.mu.Unlock()

	return DependencyResult{Kind: DependencyPending, Handle: handle}
}

// FinishExecution must be called exactly once per successful
// ExecutionTask. revalidateSuffix is true when the incarnation wrote paths
// outside its prior incarnation's write set, forcing validation of every
// higher index rather than just this one.
func (s *Scheduler) FinishExecution(t TxnIndex, inc Incarnation, revalidateSuffix bool) SchedulerTask {
	entry := s.status.get(t)
	entry.valMu.Lock()
	defer entry.valMu.Unlock()

	if !s.status.trySetExecuted(t, inc) {
		// halt raced this worker's finish; silently drop the task rather
		// than signal a protocol violation (see DESIGN.md Open Question).
		return noTask()
	}

	waiters := s.deps.drain(t)
	var minDep TxnIndex
	hasMinDep := false
	for _, w := range waiters {
		if handle := s.status.resume(w); handle != nil {
			handle.resolve(depResolved)
		}
		if !hasMinDep || w < minDep {
			minDep, hasMinDep = w, true
		}
	}
	if hasMinDep {
		s.cur.fetchMinExecutionIdx(minDep)
	}

	vIdx, curWave := s.cur.loadValidationIdx()
	if vIdx > t {
		if revalidateSuffix {
			if w, ok := s.decreaseValidationIdx(s.provider.Next(t)); ok {
				curWave = w
			}
		}
		entry.val.requiredWave = curWave
		return validationTask(Version{TxnIndex: t, Incarnation: inc}, curWave)
	}
	return noTask()
}

// FinishValidation records that t passed validation at wave.
func (s *Scheduler) FinishValidation(t TxnIndex, wave Wave) {
	entry := s.status.get(t)
	entry.valMu.Lock()
	defer entry.valMu.Unlock()

	if !entry.val.hasValidated || wave > entry.val.maxValidatedWave {
		entry.val.maxValidatedWave = wave
		entry.val.hasValidated = true
	}
}

// TryAbort moves Executed(inc) -> Aborting(inc). At most one caller per
// (t, inc) succeeds.
func (s *Scheduler) TryAbort(t TxnIndex, inc Incarnation) bool {
	return s.status.tryAbort(t, inc)
}

// FinishAbort must be called exactly once after a successful TryAbort.
func (s *Scheduler) FinishAbort(t TxnIndex, inc Incarnation) SchedulerTask {
	entry := s.status.get(t)
	entry.valMu.Lock()
	s.status.setAbortedStatus(t, inc)
	s.decreaseValidationIdx(s.provider.Next(t))
	entry.valMu.Unlock()

	if s.cur.loadExecutionIdx() > t {
		if newInc, handle, ok := s.status.tryIncarnate(t); ok {
			return executionTask(Version{TxnIndex: t, Incarnation: newInc}, handle)
		}
	}
	return noTask()
}

// decreaseValidationIdx lowers validationIdx toward target if it's
// currently higher, bumping the wave. Returns the new wave if a decrease
// happened.
func (s *Scheduler) decreaseValidationIdx(target TxnIndex) (Wave, bool) {
	if target >= s.provider.End() {
		return 0, false
	}

	for {
		old := s.cur.validationIdx.Load()
		idx, wave := unpackValidationIdx(old)
		if idx <= target {
			return 0, false
		}

		newWave := wave + 1
		targetEntry := s.status.get(target)
		targetEntry.valMu.Lock()
		if newWave > targetEntry.val.maxTriggeredWave {
			targetEntry.val.maxTriggeredWave = newWave
		}
		targetEntry.valMu.Unlock()

		update := packValidationIdx(target, newWave)
		if s.cur.validationIdx.CompareAndSwap(old, update) {
			return newWave, true
		}
	}
}

// TryCommit commits at most one transaction: the one at the commit
// cursor, if it is Executed and has been validated at a sufficient wave.
// Apart from the commit-state mutex, which it locks normally, every lock it
// touches is a try-lock, so it never waits on a status lock.
func (s *Scheduler) TryCommit() (TxnIndex, bool) {
	s.cur.commitMu.Lock()
	defer s.cur.commitMu.Unlock()

	cIdx, cWave := s.cur.commitIdx, s.cur.commitWave
	entry := s.status.get(cIdx)

	if !entry.valMu.TryRLock() {
		return 0, false
	}
	// Substitutes for an upgradable read: Go has no such lock, and the
	// design explicitly allows a try-write here as long as TryCommit stays
	// non-blocking, which TryLock guarantees.
	if !entry.execMu.TryLock() {
		entry.valMu.RUnlock()
		return 0, false
	}
	defer entry.execMu.Unlock()
	defer entry.valMu.RUnlock()

	if entry.exec.kind != statusExecuted {
		return 0, false
	}
	inc := entry.exec.incarnation

	newWave := cWave
	if entry.val.maxTriggeredWave > newWave {
		newWave = entry.val.maxTriggeredWave
	}
	s.cur.commitWave = newWave

	required := entry.val.requiredWave
	if newWave > required {
		required = newWave
	}
	if !entry.val.hasValidated || entry.val.maxValidatedWave < required {
		return 0, false
	}

	entry.exec = committed(inc)

	next := s.provider.Next(cIdx)
	s.cur.commitIdx = next
	if next >= s.provider.End() {
		s.cur.setDone()
		log.Debug("blockstm: block fully committed", "last", cIdx)
	}
	return cIdx, true
}

// Halt terminates the block early. The first caller resolves every pending
// dependency handle with ExecutionHalted and marks every transaction
// ExecutionHalted; later callers are no-ops.
func (s *Scheduler) Halt() {
	if !s.cur.done.CompareAndSwap(false, true) {
		return
	}
	log.Debug("blockstm: halting")
	for _, i := range s.provider.All() {
		s.resolveCondvar(i)
	}
}

// resolveCondvar wakes any worker blocked on i's dependency handle (if any)
// with ExecutionHalted, then marks i ExecutionHalted unconditionally.
func (s *Scheduler) resolveCondvar(i TxnIndex) {
	entry := s.status.get(i)
	entry.execMu.Lock()
	defer entry.execMu.Unlock()

	switch entry.exec.kind {
	case statusSuspended:
		entry.exec.handle.resolve(depExecutionHalted)
	case statusReadyToExecute:
		if entry.exec.handle != nil {
			entry.exec.handle.resolve(depExecutionHalted)
		}
	}
	entry.exec = executionHalted()
}
