package bipbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDequePushBackPopFrontRoundTrip(t *testing.T) {
	d := NewDeque(8)
	require.True(t, d.PushBack([]byte{1, 2, 3}))

	out, ok := d.PopFront(3)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, out)
	assert.True(t, d.IsEmpty())
}

func TestDequePushFrontPrepends(t *testing.T) {
	d := NewDeque(8)
	require.True(t, d.PushBack([]byte{3, 4}))
	require.True(t, d.PushFront([]byte{1, 2}))

	out, ok := d.PeekFront(2)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2}, out)
}

func TestDequeWrapsIntoRegionB(t *testing.T) {
	d := NewDeque(8)
	require.True(t, d.PushBack([]byte{1, 2, 3, 4, 5, 6}))

	out, ok := d.PopFront(4)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3, 4}, out)

	// Only 2 bytes free contiguously after A's end (8-6=2), but region A's
	// vacated front (4 bytes) is bigger, so this push lands in region B.
	require.True(t, d.PushBack([]byte{7, 8, 9}))

	out, ok = d.PopFront(2)
	require.True(t, ok)
	assert.Equal(t, []byte{5, 6}, out)
}

func TestDequePopBackFromRegionB(t *testing.T) {
	d := NewDeque(8)
	require.True(t, d.PushBack([]byte{1, 2, 3, 4, 5, 6}))
	d.PopFront(4)
	require.True(t, d.PushBack([]byte{7, 8, 9}))

	out, ok := d.PopBack(3)
	require.True(t, ok)
	assert.Equal(t, []byte{7, 8, 9}, out)
}

func TestDequeRejectsOversizedPush(t *testing.T) {
	d := NewDeque(4)
	assert.False(t, d.PushBack([]byte{1, 2, 3, 4, 5}))
}

func TestDequeFlushResetsRegions(t *testing.T) {
	d := NewDeque(8)
	d.PushBack([]byte{1, 2, 3})
	d.Flush()
	assert.True(t, d.IsEmpty())
	assert.Equal(t, 8, d.TotalFree())
}

func TestDequePurgeFrontMakesRoom(t *testing.T) {
	d := NewDeque(8)
	require.True(t, d.PushBack([]byte{1, 2, 3, 4, 5, 6, 7, 8}))
	require.True(t, d.IsFull())

	d.PurgeFront(3)
	assert.GreaterOrEqual(t, d.FreeElems(), 3)
}
