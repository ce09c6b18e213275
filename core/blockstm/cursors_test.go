package blockstm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPackUnpackValidationIdx(t *testing.T) {
	packed := packValidationIdx(TxnIndex(42), Wave(7))
	idx, wave := unpackValidationIdx(packed)
	require.Equal(t, TxnIndex(42), idx)
	require.Equal(t, Wave(7), wave)
}

func TestNewCursorsStartsAtFirst(t *testing.T) {
	c := newCursors(5)
	require.Equal(t, TxnIndex(5), c.loadExecutionIdx())

	idx, wave := c.loadValidationIdx()
	require.Equal(t, TxnIndex(5), idx)
	require.Equal(t, Wave(0), wave)
	require.False(t, c.isDone())
}

func TestFetchMinExecutionIdx(t *testing.T) {
	c := newCursors(0)
	c.executionIdx.Store(10)

	c.fetchMinExecutionIdx(3)
	require.Equal(t, TxnIndex(3), c.loadExecutionIdx())

	// raising is not this function's job: a higher target must not move it.
	c.fetchMinExecutionIdx(7)
	require.Equal(t, TxnIndex(3), c.loadExecutionIdx())
}

func TestDoneFlag(t *testing.T) {
	c := newCursors(0)
	require.False(t, c.isDone())
	c.setDone()
	require.True(t, c.isDone())
}
