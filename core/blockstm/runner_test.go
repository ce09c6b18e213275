package blockstm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// TestRunnerCommitsChainOfDependencies exercises the full worker-pool loop
// over a chain where txn i reads whatever txn i-1 wrote, forcing real
// suspend/resume traffic through WaitForDependency while several workers
// race NextTask concurrently.
func TestRunnerCommitsChainOfDependencies(t *testing.T) {
	defer goleak.VerifyNone(t)

	const n = 25
	var ready [n]atomic.Bool

	execute := func(_ context.Context, v Version) (ExecuteOutcome, error) {
		if v.TxnIndex > 0 && !ready[v.TxnIndex-1].Load() {
			return ExecuteOutcome{DependencyFound: true, Dependency: v.TxnIndex - 1}, nil
		}
		ready[v.TxnIndex].Store(true)
		return ExecuteOutcome{}, nil
	}
	validate := func(Version, Wave) (bool, error) { return true, nil }

	sched := NewScheduler(NewContiguousProvider(n))
	runner := NewRunner(sched, execute, validate, RunnerConfig{Workers: 6})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, runner.Run(ctx))

	stats := runner.Stats()
	require.EqualValues(t, n, stats.Commits)
	require.Zero(t, stats.ValidationFails)
	for i := range ready {
		require.True(t, ready[i].Load())
	}
}

// TestRunnerDefaultsWorkerCount exercises the zero-Workers path (GOMAXPROCS)
// on a trivial single-transaction block.
func TestRunnerDefaultsWorkerCount(t *testing.T) {
	defer goleak.VerifyNone(t)

	sched := NewScheduler(NewContiguousProvider(1))
	execute := func(context.Context, Version) (ExecuteOutcome, error) { return ExecuteOutcome{}, nil }
	validate := func(Version, Wave) (bool, error) { return true, nil }

	runner := NewRunner(sched, execute, validate, RunnerConfig{})
	require.NoError(t, runner.Run(context.Background()))
	require.EqualValues(t, 1, runner.Stats().Commits)
}

// TestRunnerPropagatesExecuteError checks that an error from ExecuteFn
// aborts the whole worker pool via the errgroup.
func TestRunnerPropagatesExecuteError(t *testing.T) {
	defer goleak.VerifyNone(t)

	boom := errors.New("boom")
	sched := NewScheduler(NewContiguousProvider(4))
	execute := func(context.Context, Version) (ExecuteOutcome, error) { return ExecuteOutcome{}, boom }
	validate := func(Version, Wave) (bool, error) { return true, nil }

	runner := NewRunner(sched, execute, validate, RunnerConfig{Workers: 2})
	err := runner.Run(context.Background())
	require.ErrorIs(t, err, boom)
}

// TestRunnerRetriesAfterFailedValidation checks that a rejected validation
// triggers try_abort/finish_abort and the transaction re-executes at a
// bumped incarnation before eventually committing.
func TestRunnerRetriesAfterFailedValidation(t *testing.T) {
	defer goleak.VerifyNone(t)

	var executions atomic.Int32
	var rejectedOnce atomic.Bool

	execute := func(context.Context, Version) (ExecuteOutcome, error) {
		executions.Add(1)
		return ExecuteOutcome{}, nil
	}
	validate := func(v Version, _ Wave) (bool, error) {
		if v.TxnIndex == 0 && v.Incarnation == 0 && rejectedOnce.CompareAndSwap(false, true) {
			return false, nil
		}
		return true, nil
	}

	sched := NewScheduler(NewContiguousProvider(1))
	runner := NewRunner(sched, execute, validate, RunnerConfig{Workers: 1})

	require.NoError(t, runner.Run(context.Background()))
	require.EqualValues(t, 1, runner.Stats().Commits)
	require.GreaterOrEqual(t, executions.Load(), int32(2), "the rejected incarnation must be re-executed")
	require.EqualValues(t, 1, runner.Stats().ExecutionAborts)
}
