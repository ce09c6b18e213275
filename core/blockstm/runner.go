package blockstm

import (
	"context"
	"runtime"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"
)

// ExecuteOutcome is what an ExecuteFn reports back to the Runner. Exactly
// one of two things happened: either the incarnation finished (in which
// case RevalidateSuffix says whether it wrote outside its previous
// write-set), or it hit a read dependency on an in-flight transaction.
type ExecuteOutcome struct {
	RevalidateSuffix bool
	DependencyFound  bool
	Dependency       TxnIndex
}

// ExecuteFn runs one incarnation of a transaction. Execution itself (VM,
// state loading, gas metering) is out of this package's scope; ExecuteFn is
// the seam a caller plugs a real executor into.
type ExecuteFn func(ctx context.Context, v Version) (ExecuteOutcome, error)

// ValidateFn reports whether a previously executed incarnation's reads are
// still consistent with the current state. Like ExecuteFn, the actual
// multi-version read-set comparison is out of scope.
type ValidateFn func(v Version, wave Wave) (bool, error)

// RunnerConfig configures a Runner's worker pool.
type RunnerConfig struct {
	// Workers is the number of goroutines calling NextTask. Zero means
	// runtime.GOMAXPROCS(0).
	Workers int
}

// RunnerStats are the counters a Runner accumulates over one Run call,
// mirroring the teacher package's cntExec/cntSuccess/cntAbort/
// cntTotalValidations/cntValidationFail diagnostics.
type RunnerStats struct {
	Executions       int64
	ExecutionAborts  int64
	Validations      int64
	ValidationFails  int64
	Commits          int64
}

// Runner drives a Scheduler with a pool of worker goroutines: W-1 plain
// workers plus one designated committing worker, per spec.md's "One worker
// at a time additionally attempts commits."
type Runner struct {
	sched    *Scheduler
	execute  ExecuteFn
	validate ValidateFn
	cfg      RunnerConfig
	stats    RunnerStats
}

// NewRunner builds a Runner over an already-constructed Scheduler.
func NewRunner(sched *Scheduler, execute ExecuteFn, validate ValidateFn, cfg RunnerConfig) *Runner {
	return &Runner{sched: sched, execute: execute, validate: validate, cfg: cfg}
}

// Run starts the worker pool and blocks until the block commits fully,
// halts, a worker returns an error, or ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	workers := r.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		committing := i == 0
		g.Go(func() error { return r.worker(ctx, committing) })
	}

	err := g.Wait()
	log.Debug("blockstm: runner finished", "executions", atomic.LoadInt64(&r.stats.Executions),
		"aborts", atomic.LoadInt64(&r.stats.ExecutionAborts), "validations", atomic.LoadInt64(&r.stats.Validations),
		"validationFails", atomic.LoadInt64(&r.stats.ValidationFails), "commits", atomic.LoadInt64(&r.stats.Commits))
	return err
}

// Stats returns a snapshot of the runner's counters. Safe to call after Run
// returns; racy (but not unsafe) while workers are still running.
func (r *Runner) Stats() RunnerStats {
	return RunnerStats{
		Executions:      atomic.LoadInt64(&r.stats.Executions),
		ExecutionAborts: atomic.LoadInt64(&r.stats.ExecutionAborts),
		Validations:     atomic.LoadInt64(&r.stats.Validations),
		ValidationFails: atomic.LoadInt64(&r.stats.ValidationFails),
		Commits:         atomic.LoadInt64(&r.stats.Commits),
	}
}

func (r *Runner) worker(ctx context.Context, committing bool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		task := r.sched.NextTask(committing)

	handle:
		switch task.Kind {
		case DoneTask:
			return nil

		case NoTask:
			if committing {
				if idx, ok := r.sched.TryCommit(); ok {
					atomic.AddInt64(&r.stats.Commits, 1)
					log.Debug("blockstm: committed", "txn", idx)
				}
			}

		case ExecutionTaskKind:
			follow, halted, err := r.runExecution(ctx, task)
			if err != nil {
				return err
			}
			if halted {
				return nil
			}
			task = follow
			goto handle

		case ValidationTaskKind:
			follow, err := r.runValidation(task)
			if err != nil {
				return err
			}
			task = follow
			goto handle
		}
	}
}

// runExecution drives one ExecutionTask, re-running the incarnation each
// time WaitForDependency reports the dependency already resolved. If the
// transaction is suspended instead, it blocks on the handle and then returns
// NoTask; the resumed transaction is re-executed later as a fresh
// ExecutionTask from NextTask. Otherwise it returns the follow-up
// SchedulerTask finish_execution hands back (NoTask or ValidationTask),
// which must be handled by the caller exactly like a task obtained from
// NextTask: when finish_execution returns a ValidationTask for t itself,
// that's because validation_idx had already advanced past t, so this is
// the only remaining path that will ever validate t.
func (r *Runner) runExecution(ctx context.Context, task SchedulerTask) (SchedulerTask, bool, error) {
	v := task.Version
	for {
		outcome, err := r.execute(ctx, v)
		if err != nil {
			return noTask(), false, err
		}

		if !outcome.DependencyFound {
			atomic.AddInt64(&r.stats.Executions, 1)
			return r.sched.FinishExecution(v.TxnIndex, v.Incarnation, outcome.RevalidateSuffix), false, nil
		}

		result := r.sched.WaitForDependency(v.TxnIndex, outcome.Dependency)
		switch result.Kind {
		case DependencyResolved:
			continue
		case DependencyPending:
			halted := result.Handle.Wait()
			return noTask(), halted, nil
		default: // DependencyHalted
			return noTask(), true, nil
		}
	}
}

func (r *Runner) runValidation(task SchedulerTask) (SchedulerTask, error) {
	v := task.Version
	ok, err := r.validate(v, task.Wave)
	if err != nil {
		return noTask(), err
	}
	atomic.AddInt64(&r.stats.Validations, 1)

	if ok {
		r.sched.FinishValidation(v.TxnIndex, task.Wave)
		return noTask(), nil
	}

	atomic.AddInt64(&r.stats.ValidationFails, 1)
	if r.sched.TryAbort(v.TxnIndex, v.Incarnation) {
		atomic.AddInt64(&r.stats.ExecutionAborts, 1)
		return r.sched.FinishAbort(v.TxnIndex, v.Incarnation), nil
	}
	return noTask(), nil
}
