package propdb

import (
	"fmt"
	"sort"

	"github.com/kevinpt/cstone-sub000/propid"
	"github.com/kevinpt/cstone-sub000/serialize"
)

// EncodedBytes returns the wire size of one property entry:
// [kind:u8][id:u32 LE][payload], where payload depends on kind.
func EncodedBytes(prop uint32, e *Entry) int {
	n := 1 + 4 // kind byte + prop id
	switch e.Kind {
	case KindUint:
		n += serialize.VarintEncodedBytes(e.Value)
	case KindInt:
		n += serialize.VarintEncodedBytes(serialize.ZigZagEncode(e.Int()))
	case KindString:
		n += serialize.StringEncodedBytes(e.Str)
	case KindBlob:
		n += serialize.BlobEncodedBytes(e.Blob)
	}
	return n
}

// Encode appends the wire form of (prop, e) to buf, returning bytes written.
func Encode(prop uint32, e *Entry, buf []byte) int {
	buf[0] = byte(e.Kind)
	n := 1
	n += serialize.Uint32Encode(prop, buf[n:])

	switch e.Kind {
	case KindUint:
		n += serialize.VarintEncode(e.Value, buf[n:])
	case KindInt:
		n += serialize.VarintEncode(serialize.ZigZagEncode(e.Int()), buf[n:])
	case KindString:
		n += serialize.StringEncode(e.Str, buf[n:])
	case KindBlob:
		n += serialize.BlobEncode(e.Blob, buf[n:])
	}
	return n
}

// Decode reads one wire-format property entry from buf, returning the
// property ID, the decoded entry, and the number of bytes consumed.
// Decoded entries are always marked Persist so a restored snapshot is
// re-persisted verbatim if saved again.
func Decode(buf []byte) (uint32, Entry, int, error) {
	if len(buf) < 5 {
		return 0, Entry{}, 0, fmt.Errorf("propdb: truncated entry header")
	}

	var e Entry
	e.Kind = Kind(buf[0])
	n := 1

	prop, used := serialize.Uint32Decode(buf[n:])
	n += used

	switch e.Kind {
	case KindUint:
		v, used := serialize.VarintDecode(buf[n:])
		e.Value = v
		n += used
	case KindInt:
		v, used := serialize.VarintDecode(buf[n:])
		e.SetInt(serialize.ZigZagDecode(v))
		n += used
	case KindString:
		s, used := serialize.StringDecode(buf[n:])
		e.Str = s
		n += used
	case KindBlob:
		blob, used := serialize.BlobDecode(buf[n:])
		e.Blob = append([]byte(nil), blob...)
		e.Protect = true // blob values are always system-origin
		n += used
	}

	e.Persist = true
	e.ReadOnly = false

	return prop, e, n, nil
}

// Serialize encodes every persisted, non-readonly entry into one buffer,
// suitable for handing to a flash log as a snapshot block.
func (db *DB) Serialize() []byte {
	size := 0
	var props []uint32
	var entries []*Entry

	for i := range db.shards {
		db.shards[i].mu.RLock()
		for prop, e := range db.shards[i].entries {
			if !e.Persist || e.ReadOnly {
				continue
			}
			size += EncodedBytes(prop, e)
			props = append(props, prop)
			entries = append(entries, e)
		}
		db.shards[i].mu.RUnlock()
	}

	buf := make([]byte, size)
	pos := 0
	for i, prop := range props {
		pos += Encode(prop, entries[i], buf[pos:])
	}
	return buf
}

// Deserialize restores a buffer produced by Serialize, wrapping the whole
// batch in one transaction so only a single persistence event fires.
func (db *DB) Deserialize(data []byte) (int, error) {
	count := 0
	err := db.Transact(func() error {
		pos := 0
		for pos < len(data) {
			prop, e, n, derr := Decode(data[pos:])
			if derr != nil {
				return derr
			}
			pos += n
			if serr := db.Set(prop, e, 0); serr != nil {
				return serr
			}
			count++
		}
		return nil
	})
	return count, err
}

// Restore replays a buffer produced by Serialize into db without ever
// notifying the message hub, for the boot-time path where a snapshot is
// loaded before anything should react to it as a live update.
func (db *DB) Restore(data []byte) (int, error) {
	// The hub is detached for the replay so the per-property events Set
	// raises are not published, and the pending persistence flag the
	// restored entries set is cleared so no later transaction reports them.
	hub := db.hub
	db.hub = nil
	db.TransactBegin()
	defer func() {
		db.TransactEndNoUpdate()
		db.persistUpdated.Store(false)
		db.hub = hub
	}()

	count := 0
	pos := 0
	for pos < len(data) {
		prop, e, n, err := Decode(data[pos:])
		if err != nil {
			return count, err
		}
		pos += n
		if err := db.Set(prop, e, 0); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// SortedKeys returns every stored key sorted by its dotted name under reg.
func (db *DB) SortedKeys(reg *propid.Registry) []uint32 {
	keys := db.AllKeys()
	sort.Slice(keys, func(i, j int) bool {
		return reg.GetName(keys[i]) < reg.GetName(keys[j])
	})
	return keys
}
