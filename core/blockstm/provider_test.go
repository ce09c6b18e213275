package blockstm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContiguousProvider(t *testing.T) {
	p := NewContiguousProvider(3)
	require.Equal(t, TxnIndex(0), p.First())
	require.Equal(t, TxnIndex(3), p.End())
	require.Equal(t, TxnIndex(1), p.Next(0))
	require.Equal(t, TxnIndex(2), p.Next(1))
	require.Equal(t, TxnIndex(3), p.Next(2))
	require.Equal(t, []TxnIndex{0, 1, 2}, p.All())
}

func TestContiguousProviderEmpty(t *testing.T) {
	p := NewContiguousProvider(0)
	require.Equal(t, p.First(), p.End())
	require.Empty(t, p.All())
}

func TestShardedProvider(t *testing.T) {
	indices := []TxnIndex{7, 2, 9, 4}
	p := NewShardedProvider(indices, 100)

	require.Equal(t, TxnIndex(2), p.First())
	require.Equal(t, TxnIndex(100), p.End())
	require.Equal(t, []TxnIndex{2, 4, 7, 9}, p.All())

	require.Equal(t, TxnIndex(4), p.Next(2))
	require.Equal(t, TxnIndex(7), p.Next(4))
	require.Equal(t, TxnIndex(9), p.Next(7))
	require.Equal(t, TxnIndex(100), p.Next(9))

	// Next of a value not in the set still finds the smallest greater entry.
	require.Equal(t, TxnIndex(7), p.Next(5))
	require.Equal(t, TxnIndex(2), p.Next(0))
}

func TestShardedProviderDoesNotMutateInput(t *testing.T) {
	indices := []TxnIndex{5, 1, 3}
	_ = NewShardedProvider(indices, 10)
	require.Equal(t, []TxnIndex{5, 1, 3}, indices)
}
