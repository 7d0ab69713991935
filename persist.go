package cstone

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"github.com/kevinpt/cstone-sub000/compress"
	"github.com/kevinpt/cstone-sub000/internal/logging"
	"github.com/kevinpt/cstone-sub000/logdb"
	"github.com/kevinpt/cstone-sub000/propdb"
	"github.com/kevinpt/cstone-sub000/propid"
	"github.com/kevinpt/cstone-sub000/umsg"
)

// DefaultPersistDebounce is how long the property-persistence loop waits
// after the last storage.prop.update notification before it snapshots.
const DefaultPersistDebounce = time.Second

// PersistConfig configures a PropertyPersister.
type PersistConfig struct {
	Hub      *umsg.Hub
	DB       *propdb.DB
	Log      *logdb.LogDB
	Codec    compress.Codec // nil stores every snapshot uncompressed
	Debounce time.Duration  // zero uses DefaultPersistDebounce
	Observer Observer       // optional
	Logger   *logging.Logger
}

// PropertyPersister snapshots a property database to a flash log after a
// period of update inactivity: it subscribes to storage.prop.update,
// restarts a debounce timer on every notification, and on expiry refreshes
// the PRNG-seed and write-count housekeeping properties before serialising,
// optionally compressing, and appending the result as a property_db block.
// This is the storage-update → serialise → compress → log.append half of
// the persistence loop; RestoreProperties is its boot-time counterpart.
type PropertyPersister struct {
	cfg    PersistConfig
	target *umsg.Target

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewPropertyPersister creates a persister over cfg. Call Start to subscribe
// to the hub and begin watching for updates.
func NewPropertyPersister(cfg PersistConfig) *PropertyPersister {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultPersistDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &PropertyPersister{cfg: cfg}
}

// Start subscribes the persister to storage.prop.update notifications.
func (p *PropertyPersister) Start() {
	p.target = umsg.NewCallbackTarget(func(umsg.Msg) { p.onUpdate() })
	p.target.AddFilter(propid.PEventStoragePropUpdate)
	p.cfg.Hub.Subscribe(p.target)
}

// Stop unsubscribes the persister and cancels any pending debounce timer.
// Any update already debouncing is discarded; call Snapshot first if it
// must be captured.
func (p *PropertyPersister) Stop() {
	p.mu.Lock()
	p.stopped = true
	if p.timer != nil {
		p.timer.Stop()
	}
	p.mu.Unlock()

	if p.target != nil {
		p.cfg.Hub.Unsubscribe(p.target)
	}
}

func (p *PropertyPersister) onUpdate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.cfg.Debounce, p.runSnapshot)
}

func (p *PropertyPersister) runSnapshot() {
	if err := p.Snapshot(); err != nil {
		p.cfg.Logger.Error("property snapshot failed", "error", err)
	}
}

// Snapshot performs one immediate snapshot cycle: refresh the PRNG seed,
// bump the write-count property, serialise the database, compress it if a
// codec is configured, and append the result to the log. Exported so a
// caller can force a snapshot (e.g. ahead of a controlled shutdown) without
// waiting out the debounce timer.
func (p *PropertyPersister) Snapshot() error {
	seed, err := randomSeed()
	if err != nil {
		return WrapError("cstone.Snapshot", err)
	}
	if err := p.cfg.DB.SetUint(propid.PSysPRNGLocalValue, seed, 0); err != nil {
		return WrapError("cstone.Snapshot", err)
	}

	writeCount, _ := p.cfg.DB.Get(propid.PSysStoragePropCount)
	if err := p.cfg.DB.SetUint(propid.PSysStoragePropCount, writeCount.Value+1, 0); err != nil {
		return WrapError("cstone.Snapshot", err)
	}

	data := p.cfg.DB.Serialize()

	payload := data
	compressed := false
	if p.cfg.Codec != nil {
		wrapped, ok, werr := compress.Wrap(p.cfg.Codec, data)
		if werr != nil {
			return WrapError("cstone.Snapshot", werr)
		}
		if ok {
			payload = wrapped
			compressed = true
		}
	}

	start := time.Now()
	appendErr := p.cfg.Log.Append(logdb.BlockKindPropDB, payload, compressed)
	if p.cfg.Observer != nil {
		p.cfg.Observer.ObserveAppend(uint64(len(payload)), uint64(time.Since(start).Nanoseconds()), appendErr == nil)
	}
	if appendErr != nil {
		return WrapError("cstone.Snapshot", appendErr)
	}
	return nil
}

func randomSeed() (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// RestoreProperties walks log from its oldest live block to find the newest
// one of kind BlockKindPropDB, decompresses it if the codec was used to
// write it, and replays it into db without emitting any storage.prop.update
// notification. It is meant to run once at boot, before a PropertyPersister
// (or anything else) starts reacting to property changes, so the events a
// live update would raise don't fire for data that was already known at the
// moment of the last snapshot.
func RestoreProperties(db *propdb.DB, log *logdb.LogDB, codec compress.Codec) (int, error) {
	log.ReadIterInit()

	var latest *logdb.Block
	for {
		blk, err := log.ReadNext()
		if err == logdb.ErrEndOfLog {
			break
		}
		if err != nil {
			return 0, WrapError("cstone.RestoreProperties", err)
		}
		if blk.Kind == logdb.BlockKindPropDB {
			b := blk
			latest = &b
		}
	}
	if latest == nil {
		return 0, nil
	}

	data := latest.Data
	if latest.Compressed {
		if codec == nil {
			return 0, NewComponentError("cstone.RestoreProperties", "cstone", ErrCodeUnsupported, "compressed snapshot found but no codec configured")
		}
		unwrapped, err := compress.Unwrap(codec, data)
		if err != nil {
			return 0, WrapError("cstone.RestoreProperties", err)
		}
		data = unwrapped
	}

	return db.Restore(data)
}
