package propdb

import (
	"sync"
	"sync/atomic"

	farm "github.com/dgryski/go-farm"

	"github.com/kevinpt/cstone-sub000/internal/logging"
	"github.com/kevinpt/cstone-sub000/propid"
)

// shardCount mirrors the teacher backend's per-shard locking strategy
// (see backend/mem.go's Memory.shards) so concurrent Set/Get across
// unrelated properties don't contend on one global mutex.
const shardCount = 16

// Notifier is the minimal message-hub surface the property database needs:
// publish an event with an optional scalar payload. umsg.Hub satisfies this.
type Notifier interface {
	Notify(id uint32, source uint32, payload uint32, hasPayload bool) error
}

type shard struct {
	mu      sync.RWMutex
	entries map[uint32]*Entry
}

// DB is a hash-keyed store of Entry values addressed by a propid property
// ID, with nested transactions that debounce persistence notifications.
type DB struct {
	shards [shardCount]shard

	hub Notifier

	transactions   atomic.Int32
	persistUpdated atomic.Bool

	log *logging.Logger
}

// Config configures a new DB.
type Config struct {
	Hub    Notifier
	Logger *logging.Logger
}

// New creates an empty property database.
func New(cfg Config) *DB {
	db := &DB{hub: cfg.Hub, log: cfg.Logger}
	if db.log == nil {
		db.log = logging.Default()
	}
	for i := range db.shards {
		db.shards[i].entries = make(map[uint32]*Entry)
	}
	return db
}

// SetMsgHub attaches (or replaces) the message hub notified on property
// updates and on persistence-debounced transaction end.
func (db *DB) SetMsgHub(hub Notifier) {
	db.hub = hub
}

func (db *DB) shardFor(prop uint32) *shard {
	h := farm.Hash32(uint32ToBytes(prop))
	return &db.shards[h%shardCount]
}

func uint32ToBytes(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

// TransactBegin increments the nesting counter; pair with TransactEnd.
func (db *DB) TransactBegin() {
	db.transactions.Add(1)
}

// TransactEnd decrements the nesting counter and, once it reaches zero,
// emits PEventStoragePropUpdate on the attached hub exactly once if any
// persisted property changed during the transaction.
func (db *DB) TransactEnd() error {
	if db.transactions.Add(-1) == 0 && db.persistUpdated.Load() {
		if db.hub != nil {
			if err := db.hub.Notify(propid.PEventStoragePropUpdate, 0, 0, false); err != nil {
				return err
			}
		}
		db.persistUpdated.Store(false)
	}
	return nil
}

// TransactEndNoUpdate decrements the nesting counter without ever emitting
// the persistence-update event, used while bulk-restoring from a snapshot.
func (db *DB) TransactEndNoUpdate() {
	db.transactions.Add(-1)
}

// Transact runs fn inside a transaction, always closing it (even on error)
// and propagating fn's error.
func (db *DB) Transact(fn func() error) error {
	db.TransactBegin()
	err := fn()
	if endErr := db.TransactEnd(); endErr != nil && err == nil {
		err = endErr
	}
	return err
}

// Set stores value under prop, notifying the hub and honoring attribute
// inheritance: an existing read-only entry cannot be replaced, and
// readonly/persist attributes carry over from the existing entry unless
// explicitly changed via SetAttributes.
func (db *DB) Set(prop uint32, value Entry, source uint32) error {
	if !propid.IsValid(prop, false) {
		return &invalidIDError{prop: prop}
	}

	db.TransactBegin()
	defer db.TransactEnd() //nolint:errcheck // an error publishing storage.prop.update here is dropped

	sh := db.shardFor(prop)

	sh.mu.Lock()
	old, existed := sh.entries[prop]
	if existed && old.ReadOnly {
		sh.mu.Unlock()
		return &readOnlyError{prop: prop}
	}

	newEntry := value
	newEntry.Dirty = true
	if existed {
		newEntry.ReadOnly = old.ReadOnly
		newEntry.Persist = old.Persist
		if newEntry.Kind == KindNone {
			newEntry.Kind = old.Kind
		}
	}
	sh.entries[prop] = &newEntry
	if newEntry.Persist {
		db.persistUpdated.Store(true)
	}
	sh.mu.Unlock()

	if db.hub != nil {
		hasPayload := newEntry.Kind == KindUint || newEntry.Kind == KindInt
		if err := db.hub.Notify(prop, source, newEntry.Value, hasPayload); err != nil {
			return err
		}
	}

	return nil
}

// SetUint stores an unsigned scalar.
func (db *DB) SetUint(prop, value, source uint32) error {
	return db.Set(prop, Entry{Kind: KindUint, Value: value}, source)
}

// SetInt stores a signed scalar.
func (db *DB) SetInt(prop uint32, value int32, source uint32) error {
	return db.Set(prop, Entry{Kind: KindInt, Value: uint32(value)}, source)
}

// SetString stores a string value.
func (db *DB) SetString(prop uint32, value string, source uint32) error {
	return db.Set(prop, Entry{Kind: KindString, Str: value}, source)
}

// SetBlob stores a binary value.
func (db *DB) SetBlob(prop uint32, value []byte, source uint32) error {
	return db.Set(prop, Entry{Kind: KindBlob, Blob: value}, source)
}

// Remove deletes prop entirely.
func (db *DB) Remove(prop uint32) {
	sh := db.shardFor(prop)
	sh.mu.Lock()
	delete(sh.entries, prop)
	sh.mu.Unlock()
}

// Get looks up prop, returning the stored Entry and whether it existed.
func (db *DB) Get(prop uint32) (Entry, bool) {
	sh := db.shardFor(prop)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, ok := sh.entries[prop]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// SetAttributes updates the readonly/persist attributes of an existing
// entry in place, returning false if prop doesn't exist.
func (db *DB) SetAttributes(prop uint32, attrs Attribute) bool {
	sh := db.shardFor(prop)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[prop]
	if !ok {
		return false
	}

	persist := attrs&AttrPersist != 0
	if !e.Persist && persist {
		db.persistUpdated.Store(true)
	}
	e.Persist = persist
	e.ReadOnly = attrs&AttrReadOnly != 0
	return true
}

// GetAttributes returns the readonly/persist attributes of prop.
func (db *DB) GetAttributes(prop uint32) (Attribute, bool) {
	e, ok := db.Get(prop)
	if !ok {
		return 0, false
	}
	var attrs Attribute
	if e.Persist {
		attrs |= AttrPersist
	}
	if e.ReadOnly {
		attrs |= AttrReadOnly
	}
	return attrs, true
}

// Count returns the total number of stored entries.
func (db *DB) Count() int {
	total := 0
	for i := range db.shards {
		db.shards[i].mu.RLock()
		total += len(db.shards[i].entries)
		db.shards[i].mu.RUnlock()
	}
	return total
}

// AllKeys returns every stored property ID in unspecified order.
func (db *DB) AllKeys() []uint32 {
	keys := make([]uint32, 0, db.Count())
	for i := range db.shards {
		db.shards[i].mu.RLock()
		for k := range db.shards[i].entries {
			keys = append(keys, k)
		}
		db.shards[i].mu.RUnlock()
	}
	return keys
}

// DefaultDef describes one seeded property for SetDefaults.
type DefaultDef struct {
	Prop  uint32
	Entry Entry
	Attrs Attribute
}

// SetDefaults seeds the database with a list of default values, honoring
// each def's attribute flags. Intended to run once at startup before the
// persisted snapshot (if any) is restored over it.
func (db *DB) SetDefaults(defs []DefaultDef) {
	for _, d := range defs {
		e := d.Entry
		e.ReadOnly = d.Attrs&AttrReadOnly != 0
		e.Persist = d.Attrs&AttrPersist != 0
		_ = db.Set(d.Prop, e, 0)
	}
}

type invalidIDError struct{ prop uint32 }

func (e *invalidIDError) Error() string {
	return "propdb: invalid property id " + propid.ID(e.prop)
}

type readOnlyError struct{ prop uint32 }

func (e *readOnlyError) Error() string {
	return "propdb: property " + propid.ID(e.prop) + " is read-only"
}
