package blockstm

// TaskKind tags the variant carried by a SchedulerTask.
type TaskKind uint8

const (
	// NoTask means the worker found no immediate work; it should retry
	// next_task shortly.
	NoTask TaskKind = iota
	// ExecutionTaskKind carries a Version to execute and, if this
	// transaction was resumed after a dependency suspension, the handle it
	// was suspended on. FinishExecution of the dependency has already
	// resolved that handle.
	ExecutionTaskKind
	// ValidationTaskKind carries a Version to validate and the wave it
	// must pass.
	ValidationTaskKind
	// DoneTask means every transaction has committed (or the block
	// halted); the worker should stop calling next_task.
	DoneTask
)

// SchedulerTask is the task-dispensing return value: exactly one of
// ExecutionTask(Version, *DependencyHandle), ValidationTask(Version, Wave),
// NoTask, or Done.
type SchedulerTask struct {
	Kind    TaskKind
	Version Version
	Handle  *DependencyHandle
	Wave    Wave
}

func noTask() SchedulerTask { return SchedulerTask{Kind: NoTask} }
func doneTask() SchedulerTask { return SchedulerTask{Kind: DoneTask} }

func executionTask(v Version, handle *DependencyHandle) SchedulerTask {
	return SchedulerTask{Kind: ExecutionTaskKind, Version: v, Handle: handle}
}

func validationTask(v Version, wave Wave) SchedulerTask {
	return SchedulerTask{Kind: ValidationTaskKind, Version: v, Wave: wave}
}
