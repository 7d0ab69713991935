package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushOnePopOne(t *testing.T) {
	q := New(4, false)
	assert.True(t, q.PushOne('a'))
	assert.True(t, q.PushOne('b'))

	b, ok := q.PopOne()
	require.True(t, ok)
	assert.Equal(t, byte('a'), b)

	b, ok = q.PopOne()
	require.True(t, ok)
	assert.Equal(t, byte('b'), b)

	_, ok = q.PopOne()
	assert.False(t, ok)
}

func TestQueueFillsToCapacityMinusOne(t *testing.T) {
	q := New(4, false)
	for i := 0; i < 3; i++ {
		require.True(t, q.PushOne(byte(i)))
	}
	assert.True(t, q.IsFull())
	assert.False(t, q.PushOne(99))
}

func TestOverwriteEvictsOldest(t *testing.T) {
	q := New(4, true)
	for i := 0; i < 3; i++ {
		require.True(t, q.PushOne(byte(i)))
	}
	require.True(t, q.PushOne(99))

	b, ok := q.PopOne()
	require.True(t, ok)
	assert.Equal(t, byte(1), b) // byte(0) was evicted
	assert.Equal(t, uint64(2), q.Count())
}

func TestPushPopBulkWraps(t *testing.T) {
	q := New(8, false)
	require.Equal(t, 5, q.Push([]byte{1, 2, 3, 4, 5}))

	out := make([]byte, 3)
	require.Equal(t, 3, q.Pop(out))
	assert.Equal(t, []byte{1, 2, 3}, out)

	require.Equal(t, 3, q.Push([]byte{6, 7, 8})) // wraps past end of buffer

	out = make([]byte, 5)
	require.Equal(t, 5, q.Pop(out))
	assert.Equal(t, []byte{4, 5, 6, 7, 8}, out)
}

func TestDiscard(t *testing.T) {
	q := New(8, false)
	q.Push([]byte{1, 2, 3, 4})
	assert.Equal(t, 2, q.Discard(2))
	assert.Equal(t, uint64(2), q.Count())

	out := make([]byte, 2)
	q.Pop(out)
	assert.Equal(t, []byte{3, 4}, out)
}

func TestPeekOneDoesNotRemove(t *testing.T) {
	q := New(4, false)
	q.PushOne('x')

	b, ok := q.PeekOne()
	require.True(t, ok)
	assert.Equal(t, byte('x'), b)
	assert.Equal(t, uint64(1), q.Count())
}

func TestFlushEmptiesQueue(t *testing.T) {
	q := New(4, false)
	q.PushOne('a')
	q.PushOne('b')
	q.Flush()
	assert.True(t, q.IsEmpty())
}
