package bipbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFifoPushPopRoundTrip(t *testing.T) {
	f := NewFifo(8)
	require.True(t, f.Push([]byte{1, 2, 3}))

	out, ok := f.Pop(3)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, out)
	assert.True(t, f.IsEmpty())
}

func TestFifoReserveCommitWritesDirectly(t *testing.T) {
	f := NewFifo(8)
	dst := f.Reserve(4)
	require.NotNil(t, dst)
	copy(dst, []byte{9, 8, 7, 6})
	f.Commit(4)

	out, ok := f.Pop(4)
	require.True(t, ok)
	assert.Equal(t, []byte{9, 8, 7, 6}, out)
}

func TestFifoCommitShrinksToActualWritten(t *testing.T) {
	f := NewFifo(8)
	dst := f.Reserve(4)
	require.NotNil(t, dst)
	copy(dst, []byte{1, 2})
	f.Commit(2)

	assert.Equal(t, 2, f.NumBlockElems())
	out, ok := f.Pop(2)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2}, out)
}

func TestFifoSecondReserveFailsWhileOutstanding(t *testing.T) {
	f := NewFifo(8)
	require.NotNil(t, f.Reserve(4))
	assert.Nil(t, f.Reserve(2))
}

func TestFifoDiscardAbandonsReservation(t *testing.T) {
	f := NewFifo(8)
	f.Reserve(4)
	f.Discard()
	assert.Equal(t, 0, f.ReservedElems())
	assert.True(t, f.IsEmpty())
}

func TestFifoPopBlockedByOverlappingReservation(t *testing.T) {
	f := NewFifo(8)
	require.True(t, f.Push([]byte{1, 2, 3, 4}))
	require.NotNil(t, f.Reserve(2))

	_, ok := f.Pop(4)
	assert.False(t, ok)
}

func TestFifoPopSucceedsBelowReservationBoundary(t *testing.T) {
	f := NewFifo(8)
	require.True(t, f.Push([]byte{1, 2, 3, 4}))
	require.NotNil(t, f.Reserve(2))

	out, ok := f.Pop(3)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, out)
}

func TestFifoPushFailsWhenFull(t *testing.T) {
	f := NewFifo(4)
	require.True(t, f.Push([]byte{1, 2, 3, 4}))
	assert.False(t, f.Push([]byte{5}))
}

func TestFifoWrapsIntoRegionB(t *testing.T) {
	f := NewFifo(8)
	require.True(t, f.Push([]byte{1, 2, 3, 4, 5, 6}))

	out, ok := f.Pop(4)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3, 4}, out)

	require.True(t, f.Push([]byte{7, 8, 9}))

	out, ok = f.Pop(2)
	require.True(t, ok)
	assert.Equal(t, []byte{5, 6}, out)

	out, ok = f.Pop(3)
	require.True(t, ok)
	assert.Equal(t, []byte{7, 8, 9}, out)
}

func TestFifoFlushClearsReservationToo(t *testing.T) {
	f := NewFifo(8)
	f.Push([]byte{1, 2})
	f.Reserve(2)
	f.Flush()

	assert.True(t, f.IsEmpty())
	assert.Equal(t, 0, f.ReservedElems())
}

func TestFifoNextChunkWalksBothRegions(t *testing.T) {
	f := NewFifo(8)
	require.True(t, f.Push([]byte{1, 2, 3, 4, 5, 6}))
	f.Pop(4)
	require.True(t, f.Push([]byte{7, 8, 9}))

	chunk, state := f.NextChunk(chunkNone)
	assert.Equal(t, []byte{5, 6}, chunk)
	assert.Equal(t, chunkA, state)

	chunk, state = f.NextChunk(state)
	assert.Equal(t, []byte{7, 8, 9}, chunk)
	assert.Equal(t, chunkB, state)

	chunk, state = f.NextChunk(state)
	assert.Nil(t, chunk)
	assert.Equal(t, chunkNone, state)
}
