// Package errlog implements a compact fixed-size error/event log backed by
// a logdb block log. Each entry is a pair of 32-bit words — an identifier
// and an associated data value — the same fixed shape used for
// low-overhead fault and event records on resource-constrained targets.
//
// Reusing logdb means each 8-byte entry actually lands on flash behind
// logdb's own 6-byte CRC-checked header rather than as a bare, CRC-free
// word pair; see DESIGN.md for why that tradeoff was made here instead of
// a second from-scratch wear-levelled store.
package errlog

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/kevinpt/cstone-sub000/logdb"
)

// EntrySize is the encoded size of one Entry: two little-endian uint32 words.
const EntrySize = 8

// Entry is one error/event log record.
type Entry struct {
	ID   uint32
	Data uint32
}

func (e Entry) encode() []byte {
	buf := make([]byte, EntrySize)
	binary.LittleEndian.PutUint32(buf[0:4], e.ID)
	binary.LittleEndian.PutUint32(buf[4:8], e.Data)
	return buf
}

func decodeEntry(buf []byte) (Entry, error) {
	if len(buf) != EntrySize {
		return Entry{}, fmt.Errorf("errlog: entry must be %d bytes, got %d", EntrySize, len(buf))
	}
	return Entry{
		ID:   binary.LittleEndian.Uint32(buf[0:4]),
		Data: binary.LittleEndian.Uint32(buf[4:8]),
	}, nil
}

// ErrEndOfLog is returned by ReadNext once the read iterator reaches the head.
var ErrEndOfLog = logdb.ErrEndOfLog

// Log is an append-only, wear-levelled store of fixed-size error/event entries.
type Log struct {
	db *logdb.LogDB
}

// Mount scans storage and reconstructs an error log's write position.
func Mount(storage logdb.StorageDevice) (*Log, error) {
	db, err := logdb.Mount(storage)
	if err != nil {
		return nil, err
	}
	return &Log{db: db}, nil
}

// Format erases the underlying storage and resets the log to empty.
func (l *Log) Format() error {
	return l.db.Format()
}

// Write appends one entry to the log.
func (l *Log) Write(id, data uint32) error {
	entry := Entry{ID: id, Data: data}
	return l.db.Append(logdb.BlockKindErrorLog, entry.encode(), false)
}

// ReadIterInit resets the read iterator to the oldest live entry.
func (l *Log) ReadIterInit() {
	l.db.ReadIterInit()
}

// AtEnd reports whether the read iterator has reached the write head.
func (l *Log) AtEnd() bool {
	return l.db.AtEnd()
}

// ReadNext reads the next entry and advances the iterator.
func (l *Log) ReadNext() (Entry, error) {
	blk, err := l.db.ReadNext()
	if err != nil {
		return Entry{}, err
	}
	if blk.Kind != logdb.BlockKindErrorLog {
		return Entry{}, errors.New("errlog: unexpected block kind in error log storage")
	}
	return decodeEntry(blk.Data)
}

// ReadLatest returns the most recently written entry, if any.
func (l *Log) ReadLatest() (Entry, bool, error) {
	blk, ok, err := l.db.ReadLatest()
	if err != nil || !ok {
		return Entry{}, ok, err
	}
	entry, err := decodeEntry(blk.Data)
	return entry, true, err
}

// ReadAll drains the read iterator from the oldest entry to the head.
func (l *Log) ReadAll() ([]Entry, error) {
	l.ReadIterInit()
	var entries []Entry
	for {
		entry, err := l.ReadNext()
		if errors.Is(err, logdb.ErrEndOfLog) {
			return entries, nil
		}
		if err != nil {
			return entries, err
		}
		entries = append(entries, entry)
	}
}
