package mempool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocPicksSmallestSuitablePool(t *testing.T) {
	ps := NewPoolSet()
	ps.AddPool(NewPool(4, 16))
	ps.AddPool(NewPool(4, 64))

	blk, err := ps.Alloc(10)
	require.NoError(t, err)
	assert.Len(t, blk.Data(), 10)
	assert.Equal(t, 3, blk.pool.FreeElements())
}

func TestAllocFailsWhenNoPoolFits(t *testing.T) {
	ps := NewPoolSet()
	ps.AddPool(NewPool(4, 16))

	_, err := ps.Alloc(100)
	assert.Error(t, err)
}

func TestFreeReturnsElementToPool(t *testing.T) {
	ps := NewPoolSet()
	ps.AddPool(NewPool(2, 16))

	blk, err := ps.Alloc(8)
	require.NoError(t, err)
	assert.Equal(t, 1, blk.pool.FreeElements())

	freed := ps.Free(blk)
	assert.True(t, freed)
	assert.Equal(t, 2, blk.pool.FreeElements())
}

func TestPoolExhaustionFallsThroughToNextPool(t *testing.T) {
	ps := NewPoolSet()
	ps.AddPool(NewPool(1, 16))
	ps.AddPool(NewPool(1, 32))

	b1, err := ps.Alloc(10)
	require.NoError(t, err)

	b2, err := ps.Alloc(10)
	require.NoError(t, err)
	assert.NotEqual(t, b1.pool, b2.pool)
}

func TestAllocBestEffortFailsWhenEveryPoolIsExhausted(t *testing.T) {
	ps := NewPoolSet()
	small := NewPool(1, 8)
	ps.AddPool(small)

	// Exhaust the only pool, so best effort has no element left to give.
	_, err := ps.Alloc(8)
	require.NoError(t, err)

	blk, err := ps.AllocBestEffort(8)
	assert.Error(t, err)
	assert.Nil(t, blk)
}

func TestAllocWithRefStartsAtOneAndFreeDecrements(t *testing.T) {
	ps := NewPoolSet()
	ps.AddPool(NewPool(2, 32))

	blk, err := ps.AllocWithRef(10)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), blk.RefCount())

	blk.IncRef()
	assert.Equal(t, uint32(2), blk.RefCount())

	assert.False(t, ps.Free(blk)) // still one reference left
	assert.True(t, ps.Free(blk))  // now actually freed
}

func TestIncRefPanicsWithoutRefCount(t *testing.T) {
	ps := NewPoolSet()
	ps.AddPool(NewPool(1, 16))

	blk, err := ps.Alloc(8)
	require.NoError(t, err)

	assert.Panics(t, func() { blk.IncRef() })
}

func TestAllocAlignedReturnsUsableBlock(t *testing.T) {
	ps := NewPoolSet()
	ps.AddPool(NewPool(4, 32))

	blk, err := ps.AllocAligned(10, 1) // every address satisfies align 1
	require.NoError(t, err)
	assert.Len(t, blk.Data(), 10)
	assert.Equal(t, 3, blk.pool.FreeElements())
}

func TestAllocAlignedFailsWhenNoCandidateQualifies(t *testing.T) {
	ps := NewPoolSet()
	ps.AddPool(NewPool(4, 32))

	// No ordinary heap allocation is aligned to a 1GiB boundary.
	_, err := ps.AllocAligned(10, 1<<30)
	assert.Error(t, err)
}

func TestFromPoolReportsOwnership(t *testing.T) {
	psA := NewPoolSet()
	psA.AddPool(NewPool(1, 16))
	psB := NewPoolSet()
	psB.AddPool(NewPool(1, 16))

	blk, err := psA.Alloc(8)
	require.NoError(t, err)

	assert.True(t, psA.FromPool(blk))
	assert.False(t, psB.FromPool(blk))
}
