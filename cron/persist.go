package cron

import (
	"encoding/binary"
	"fmt"

	"github.com/kevinpt/cstone-sub000/internal/crc"
	"github.com/kevinpt/cstone-sub000/propdb"
)

// defEncodedLen is the fixed wire size of one Def: two uint32 IDs, 15 bytes
// of packed TimeSpec fields, a signed 16-bit duration, and a flags byte.
const defEncodedLen = 4 + 4 + 5*3 + 2 + 1

func encodeFieldBytes(f Field) [3]byte {
	return [3]byte{f.RngStart, f.RngEnd, f.Step}
}

func decodeFieldBytes(b [3]byte) Field {
	return Field{RngStart: b[0], RngEnd: b[1], Step: b[2]}
}

func encodeDef(d Def, buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], d.Event)
	binary.LittleEndian.PutUint32(buf[4:8], d.EventEnd)

	fields := [5]Field{d.Spec.Minute, d.Spec.Hour, d.Spec.DayOfMonth, d.Spec.Month, d.Spec.DayOfWeek}
	off := 8
	for _, f := range fields {
		enc := encodeFieldBytes(f)
		copy(buf[off:off+3], enc[:])
		off += 3
	}

	binary.LittleEndian.PutUint16(buf[off:off+2], uint16(d.EventMinutes))
	off += 2
	buf[off] = d.Flags
}

func decodeDef(buf []byte) Def {
	var d Def
	d.Event = binary.LittleEndian.Uint32(buf[0:4])
	d.EventEnd = binary.LittleEndian.Uint32(buf[4:8])

	off := 8
	fieldPtrs := []*Field{&d.Spec.Minute, &d.Spec.Hour, &d.Spec.DayOfMonth, &d.Spec.Month, &d.Spec.DayOfWeek}
	for _, fp := range fieldPtrs {
		var enc [3]byte
		copy(enc[:], buf[off:off+3])
		*fp = decodeFieldBytes(enc)
		off += 3
	}

	d.EventMinutes = int16(binary.LittleEndian.Uint16(buf[off : off+2]))
	off += 2
	d.Flags = buf[off]

	return d
}

// serialize packs every entry flagged FlagPersist into a
// [count u16][crc16 u16][defs...] blob, CRC-protected over the def bytes
// only, matching the on-flash persisted schedule format.
func (s *Scheduler) serialize() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	var persisted []Def
	for _, e := range s.entries {
		if e.def.Flags&FlagPersist != 0 {
			persisted = append(persisted, e.def)
		}
	}
	if len(persisted) == 0 {
		return nil
	}

	defsLen := len(persisted) * defEncodedLen
	buf := make([]byte, 4+defsLen)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(persisted)))

	for i, d := range persisted {
		off := 4 + i*defEncodedLen
		encodeDef(d, buf[off:off+defEncodedLen])
	}

	sum := crc.Block16(buf[4:])
	binary.LittleEndian.PutUint16(buf[2:4], sum)

	return buf
}

func deserializeDefs(buf []byte) ([]Def, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("cron: persisted schedule too short")
	}
	count := int(binary.LittleEndian.Uint16(buf[0:2]))
	wantCRC := binary.LittleEndian.Uint16(buf[2:4])

	defsBuf := buf[4:]
	if len(defsBuf) != count*defEncodedLen {
		return nil, fmt.Errorf("cron: persisted schedule length mismatch")
	}

	if crc.Block16(defsBuf) != wantCRC {
		return nil, fmt.Errorf("cron: persisted schedule CRC mismatch")
	}

	defs := make([]Def, count)
	for i := range defs {
		off := i * defEncodedLen
		defs[i] = decodeDef(defsBuf[off : off+defEncodedLen])
	}
	return defs, nil
}

// SaveToPropDB serializes every persistent entry into db under key, removing
// the key entirely once no persistent entries remain.
func (s *Scheduler) SaveToPropDB(db *propdb.DB, key uint32) error {
	blob := s.serialize()
	if blob == nil {
		db.Remove(key)
		return nil
	}
	if err := db.SetBlob(key, blob, 0); err != nil {
		return err
	}
	db.SetAttributes(key, propdb.AttrPersist)
	return nil
}

// LoadFromPropDB replaces every persistent entry with the schedule stored in
// db under key, leaving non-persistent entries untouched. A missing key is
// not an error: it simply means no schedule has been saved yet.
func (s *Scheduler) LoadFromPropDB(db *propdb.DB, key uint32) error {
	entryVal, ok := db.Get(key)
	if !ok {
		return nil
	}
	defs, err := deserializeDefs(entryVal.Blob)
	if err != nil {
		return err
	}

	s.mu.Lock()
	var kept []*entry
	for _, e := range s.entries {
		if e.def.Flags&FlagPersist == 0 {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	s.mu.Unlock()

	for _, d := range defs {
		s.AddEvent(d)
	}
	return nil
}
