package blockstm

import "sort"

// IndexProvider abstracts over the ordinal space of a block's transactions.
// The Scheduler never assumes Next(i) == i+1: a provider may represent a
// contiguous block or a sparse set of indices re-joined from several
// shards.
type IndexProvider interface {
	// First returns the smallest index in the space.
	First() TxnIndex
	// End returns the exclusive upper bound: no valid index is >= End().
	End() TxnIndex
	// Next returns the smallest index greater than i, or End() if none.
	Next(i TxnIndex) TxnIndex
	// All returns every index in the space, in ascending order.
	All() []TxnIndex
}

// ContiguousProvider is the common case: indices [0, n).
type ContiguousProvider struct {
	n TxnIndex
}

// NewContiguousProvider builds an IndexProvider over the contiguous range
// [0, n).
func NewContiguousProvider(n int) *ContiguousProvider {
	return &ContiguousProvider{n: TxnIndex(n)}
}

func (p *ContiguousProvider) First() TxnIndex { return 0 }
func (p *ContiguousProvider) End() TxnIndex   { return p.n }
func (p *ContiguousProvider) Next(i TxnIndex) TxnIndex {
	return i + 1
}

func (p *ContiguousProvider) All() []TxnIndex {
	out := make([]TxnIndex, 0, p.n)
	for i := TxnIndex(0); i < p.n; i++ {
		out = append(out, i)
	}
	return out
}

// ShardedProvider is an explicit, possibly sparse ordinal space: a block
// whose transactions were partitioned across shards and are being re-joined
// into a single Scheduler instance. Indices may be supplied in any order
// (the constructor sorts a copy) but must be unique.
type ShardedProvider struct {
	indices []TxnIndex
	end     TxnIndex
}

// NewShardedProvider builds an IndexProvider over an explicit, unique set
// of indices, sorting a copy of them. end must be strictly greater than the largest
// index supplied; it is the sentinel Next() returns once exhausted and the
// value every cursor comparison treats as "out of bounds".
func NewShardedProvider(indices []TxnIndex, end TxnIndex) *ShardedProvider {
	cp := make([]TxnIndex, len(indices))
	copy(cp, indices)
	sort.Slice(cp, func(i, j int) bool { return cp[i] < cp[j] })
	return &ShardedProvider{indices: cp, end: end}
}

func (p *ShardedProvider) First() TxnIndex {
	if len(p.indices) == 0 {
		return p.end
	}
	return p.indices[0]
}

func (p *ShardedProvider) End() TxnIndex { return p.end }

func (p *ShardedProvider) Next(i TxnIndex) TxnIndex {
	// Smallest element strictly greater than i.
	lo, hi := 0, len(p.indices)
	for lo < hi {
		mid := (lo + hi) / 2
		if p.indices[mid] <= i {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == len(p.indices) {
		return p.end
	}
	return p.indices[lo]
}

func (p *ShardedProvider) All() []TxnIndex {
	out := make([]TxnIndex, len(p.indices))
	copy(out, p.indices)
	return out
}
