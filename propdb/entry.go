// Package propdb implements the property database: a hash-keyed store of
// typed, attributed values addressed by propid.ID, with nested transactions
// that debounce persistence-update notifications to a message hub.
package propdb

// Kind identifies the value type carried by an Entry.
type Kind uint8

const (
	KindNone Kind = iota
	KindUint
	KindInt
	KindString
	KindBlob
)

// Entry is one stored property value plus its attributes. Value holds the
// raw numeric payload for KindUint/KindInt; Str and Blob hold the
// corresponding payload for string/blob kinds.
type Entry struct {
	Kind     Kind
	Value    uint32 // KindUint: raw value. KindInt: zig-zag decoded already, cast to uint32 bits.
	Str      string
	Blob     []byte
	ReadOnly bool
	Persist  bool
	Protect  bool // set on decode of blob values: system-origin, not console-writable
	Dirty    bool
}

// Size returns the logical payload size used in wire-format length
// accounting (string/blob length, 0 for scalar kinds).
func (e *Entry) Size() int {
	switch e.Kind {
	case KindString:
		return len(e.Str)
	case KindBlob:
		return len(e.Blob)
	default:
		return 0
	}
}

// Int returns the entry's value reinterpreted as a signed int32.
func (e *Entry) Int() int32 {
	return int32(e.Value)
}

// SetInt stores a signed int32 as the entry's value.
func (e *Entry) SetInt(v int32) {
	e.Kind = KindInt
	e.Value = uint32(v)
}

// Attribute flags, combinable via bitwise OR.
type Attribute uint8

const (
	AttrReadOnly Attribute = 1 << iota
	AttrPersist
)
