package cstone

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevinpt/cstone-sub000/compress"
	"github.com/kevinpt/cstone-sub000/logdb"
	"github.com/kevinpt/cstone-sub000/propdb"
	"github.com/kevinpt/cstone-sub000/propid"
	"github.com/kevinpt/cstone-sub000/umsg"
)

func newTestLog(t *testing.T) *logdb.LogDB {
	t.Helper()
	storage := logdb.NewMemoryStorage(128, 4)
	ldb, err := logdb.Mount(storage)
	require.NoError(t, err)
	return ldb
}

func TestPropertyPersisterSnapshotAppendsRestorableBlock(t *testing.T) {
	ldb := newTestLog(t)
	hub := umsg.NewHub()
	db := propdb.New(propdb.Config{Hub: hub})
	prop := propid.P1App | propid.P2Info | propid.P3Build | propid.P4Version
	require.NoError(t, db.Set(prop, propdb.Entry{Kind: propdb.KindString, Str: "v9.9.9", Persist: true}, 0))

	codec := compress.NewFlateCodec(6)
	persister := NewPropertyPersister(PersistConfig{Hub: hub, DB: db, Log: ldb, Codec: codec})

	require.NoError(t, persister.Snapshot())

	fresh := propdb.New(propdb.Config{})
	n, err := RestoreProperties(fresh, ldb, codec)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)

	e, ok := fresh.Get(prop)
	require.True(t, ok)
	assert.Equal(t, "v9.9.9", e.Str)
}

func TestPropertyPersisterOnUpdateDebouncesBeforeSnapshotting(t *testing.T) {
	ldb := newTestLog(t)
	hub := umsg.NewHub()
	db := propdb.New(propdb.Config{Hub: hub})
	prop := propid.P1App | propid.P2Info | propid.P3Build | propid.P4Version
	require.NoError(t, db.Set(prop, propdb.Entry{Kind: propdb.KindUint, Value: 1, Persist: true}, 0))

	persister := NewPropertyPersister(PersistConfig{Hub: hub, DB: db, Log: ldb, Debounce: 10 * time.Millisecond})
	persister.Start()
	defer persister.Stop()

	require.NoError(t, hub.Notify(propid.PEventStoragePropUpdate, 0, 0, false))

	_, ok, err := ldb.ReadLatest()
	require.NoError(t, err)
	assert.False(t, ok, "snapshot should not have fired before the debounce window elapses")

	time.Sleep(50 * time.Millisecond)

	_, ok, err = ldb.ReadLatest()
	require.NoError(t, err)
	assert.True(t, ok, "snapshot should have fired once the debounce window elapsed")
}

func TestRestorePropertiesWithNoPropDBBlockIsANoop(t *testing.T) {
	ldb := newTestLog(t)
	require.NoError(t, ldb.Append(logdb.BlockKindUser, []byte("hello"), false))

	db := propdb.New(propdb.Config{})
	n, err := RestoreProperties(db, ldb, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRestorePropertiesRejectsCompressedSnapshotWithoutCodec(t *testing.T) {
	ldb := newTestLog(t)
	hub := umsg.NewHub()
	db := propdb.New(propdb.Config{Hub: hub})
	prop := propid.P1App | propid.P2Info | propid.P3Build | propid.P4Version
	// A long run of one byte shrinks under flate, so the snapshot is stored
	// compressed.
	require.NoError(t, db.Set(prop, propdb.Entry{Kind: propdb.KindString, Str: strings.Repeat("x", 100), Persist: true}, 0))

	persister := NewPropertyPersister(PersistConfig{Hub: hub, DB: db, Log: ldb, Codec: compress.NewFlateCodec(6)})
	require.NoError(t, persister.Snapshot())

	fresh := propdb.New(propdb.Config{})
	_, err := RestoreProperties(fresh, ldb, nil)
	assert.Error(t, err)
}
