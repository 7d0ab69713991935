package errlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevinpt/cstone-sub000/logdb"
)

func TestWriteThenReadLatest(t *testing.T) {
	storage := logdb.NewMemoryStorage(64, 4)
	log, err := Mount(storage)
	require.NoError(t, err)

	require.NoError(t, log.Write(0x1001, 42))

	entry, ok, err := log.ReadLatest()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(0x1001), entry.ID)
	assert.Equal(t, uint32(42), entry.Data)
}

func TestReadAllReturnsEntriesInOrder(t *testing.T) {
	storage := logdb.NewMemoryStorage(64, 4)
	log, err := Mount(storage)
	require.NoError(t, err)

	require.NoError(t, log.Write(1, 10))
	require.NoError(t, log.Write(2, 20))
	require.NoError(t, log.Write(3, 30))

	entries, err := log.ReadAll()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []Entry{{1, 10}, {2, 20}, {3, 30}}, entries)
}

func TestMountRecoversEntriesAfterRemount(t *testing.T) {
	storage := logdb.NewMemoryStorage(64, 4)
	log, err := Mount(storage)
	require.NoError(t, err)
	require.NoError(t, log.Write(7, 77))

	log2, err := Mount(storage)
	require.NoError(t, err)

	entry, ok, err := log2.ReadLatest()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Entry{7, 77}, entry)
}
