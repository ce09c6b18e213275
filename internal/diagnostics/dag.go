// Package diagnostics builds a post-hoc dependency graph over a completed
// block's read/write traces, for reporting how much parallelism a schedule
// actually achieved. Nothing here participates in scheduling itself; it
// runs after the fact, typically from a test or an offline analysis tool.
package diagnostics

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/heimdalr/dag"
)

// TxnTrace is what one committed incarnation read and wrote, recorded by
// the caller's ExecuteFn for later analysis. The scheduler package itself
// tracks no such thing; this is purely a diagnostics-side recording.
type TxnTrace struct {
	Reads  []common.Hash
	Writes []common.Hash
}

// ExecutionStat is the wall-clock span one committed incarnation occupied,
// relative to some caller-chosen zero point.
type ExecutionStat struct {
	Start time.Duration
	End   time.Duration
}

func hasReadDep(writesFrom []common.Hash, readsTo []common.Hash) bool {
	reads := make(map[common.Hash]bool, len(readsTo))
	for _, k := range readsTo {
		reads[k] = true
	}
	for _, k := range writesFrom {
		if reads[k] {
			return true
		}
	}
	return false
}

// DAG is a directed acyclic graph over committed transaction indices, with
// an edge j -> i whenever i read a key j wrote.
type DAG struct {
	*dag.DAG
}

// BuildDAG derives the dependency graph of a committed block from its
// per-index traces, indexed by final commit order.
func BuildDAG(traces []TxnTrace) DAG {
	d := DAG{dag.NewDAG()}
	ids := make(map[int]string, len(traces))

	vertexID := func(i int) string {
		if id, ok := ids[i]; ok {
			return id
		}
		id, _ := d.AddVertex(i)
		ids[i] = id
		return id
	}

	// Every index is a vertex, including ones with no dependency edge, so
	// LongestPath and Report see the whole block.
	for i := range traces {
		vertexID(i)
	}

	for i := len(traces) - 1; i > 0; i-- {
		to := traces[i].Reads
		for j := i - 1; j >= 0; j-- {
			if hasReadDep(traces[j].Writes, to) {
				fromID, toID := vertexID(j), vertexID(i)
				if err := d.AddEdge(fromID, toID); err != nil {
					log.Warn("diagnostics: failed to add dependency edge", "from", j, "to", i, "err", err)
				}
			}
		}
	}
	return d
}

// GetDependencies returns, for every index, the set of earlier indices it
// has a direct read-after-write dependency on.
func GetDependencies(traces []TxnTrace) map[int][]int {
	deps := map[int][]int{}
	for i := len(traces) - 1; i > 0; i-- {
		to := traces[i].Reads
		for j := i - 1; j >= 0; j-- {
			if hasReadDep(traces[j].Writes, to) {
				deps[i] = append(deps[i], j)
			}
		}
	}
	return deps
}

// LongestPath finds the dependency chain with the largest cumulative
// execution time, i.e. the critical path no amount of parallelism could
// have shortened.
func (d DAG) LongestPath(stats map[int]ExecutionStat) ([]int, time.Duration) {
	vertices := d.GetVertices()
	idxToID := make(map[int]string, len(vertices))
	for id, v := range vertices {
		idxToID[v.(int)] = id
	}

	prev := make(map[int]int, len(idxToID))
	weight := make(map[int]time.Duration, len(idxToID))
	for i := range idxToID {
		prev[i] = -1
	}

	maxIdx, maxWeight := 0, time.Duration(0)
	for i := 0; i < len(idxToID); i++ {
		parents, _ := d.GetParents(idxToID[i])
		own := stats[i].End - stats[i].Start

		if len(parents) == 0 {
			weight[i] = own
		}
		for _, p := range parents {
			pIdx := p.(int)
			w := weight[pIdx] + own
			if w > weight[i] {
				weight[i] = w
				prev[i] = pIdx
			}
		}

		if weight[i] > maxWeight {
			maxIdx, maxWeight = i, weight[i]
		}
	}

	var path []int
	for i := maxIdx; i != -1; i = prev[i] {
		path = append(path, i)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, maxWeight
}

// Report writes a human-readable summary of the critical path and the
// parallelism it implies to out (typically a logger or a test's t.Log).
func (d DAG) Report(stats map[int]ExecutionStat, out func(string)) {
	path, weight := d.LongestPath(stats)

	var serial time.Duration
	for i := 0; i < len(d.GetVertices()); i++ {
		serial += stats[i].End - stats[i].Start
	}

	strs := make([]string, len(path))
	for i, v := range path {
		strs[i] = fmt.Sprint(v)
	}

	out("longest dependency path: " + strings.Join(strs, "->"))
	pct := 0.0
	if serial > 0 {
		pct = float64(weight) * 100.0 / float64(serial)
	}
	out(fmt.Sprintf("critical path %v of %v serial total (%.1f%%)", weight, serial, pct))
}
