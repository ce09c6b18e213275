package blockstm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/log"
)

// ProtocolViolationError marks a caller reaching a state the Scheduler's
// state machine says is impossible, e.g. finish_execution on a transaction
// that isn't Executing(inc). Like the teacher package's ErrExecAbortError,
// it is a typed error rather than a sentinel string, so callers (and tests)
// can inspect the offending index. The Scheduler panics with this type
// rather than returning it: by the time it's observed, an invariant the
// whole package depends on has already been broken, and continuing to
// service tasks on corrupted state is worse than a loud, local crash.
type ProtocolViolationError struct {
	Index  TxnIndex
	Detail string
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("blockstm: protocol violation at txn %d: %s", e.Index, e.Detail)
}

// panicProtocolViolation logs the violation before panicking with it.
// log.Error, not log.Crit, is deliberate: go-ethereum's Crit calls
// os.Exit(1) after logging, which is the wrong failure mode for a library
// whose caller may want to recover and tear the block down cleanly.
func panicProtocolViolation(index TxnIndex, detail string) {
	err := &ProtocolViolationError{Index: index, Detail: detail}
	log.Error("blockstm: protocol violation", "txn", index, "detail", detail)
	panic(err)
}
