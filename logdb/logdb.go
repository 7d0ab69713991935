package logdb

import (
	"errors"
	"fmt"
)

// ErrEndOfLog is returned by ReadNext once the read iterator reaches the
// current head of the log.
var ErrEndOfLog = errors.New("logdb: end of log")

// LogDB is a mounted, wear-levelled circular block log over a StorageDevice.
type LogDB struct {
	storage StorageDevice

	latestOffset int // start of the newest valid block, -1 if log is empty
	headOffset   int // where the next Append will write
	tailSector   int // oldest sector still holding valid data
	generation   bool

	readOffset    int
	readIterStart bool
}

// Mount reconstructs the log's write position, the oldest live sector, and
// the current wrap generation without relying on a single linear scan from
// offset 0: it finds the sector where live data begins (the "anchor"),
// walks forward sector by sector comparing each sector's leading generation
// bit to the anchor's until the bit flips (that sector is the tail) or an
// unwritten sector is found (the anchor is the tail), and only then replays
// records within the sector just before that boundary (the head sector; the
// sector before the anchor when every sector is written with the anchor's
// generation) to find the exact
// write position. This is the only way to find the right answer once the
// ring has wrapped: a plain scan from sector 0 would stop at the newer
// records' erased tail and report a stale block as latest. An empty (fully
// erased) device mounts as an empty log ready for Append.
func Mount(storage StorageDevice) (*LogDB, error) {
	db := &LogDB{storage: storage, latestOffset: -1}

	sectorSize := storage.SectorSize()
	numSectors := storage.NumSectors()

	anchor := -1
	startGen := false
	for s := 0; s < numSectors; s++ {
		hdr, _, _, erased, err := readSectorHeader(storage, s, sectorSize)
		if err != nil {
			return nil, err
		}
		if !erased {
			anchor = s
			startGen = hdr.Generation
			break
		}
	}

	if anchor < 0 {
		// Every sector is erased: nothing has ever been written.
		db.headOffset = 0
		db.tailSector = 0
		db.generation = false
		db.readIterStart = true
		return db, nil
	}

	tailSector := anchor
	headSector := anchor
	for i := 1; i < numSectors; i++ {
		s := (anchor + i) % numSectors
		hdr, _, _, erased, err := readSectorHeader(storage, s, sectorSize)
		if err != nil {
			return nil, err
		}
		if erased {
			headSector = (s - 1 + numSectors) % numSectors
			tailSector = anchor
			break
		}
		if hdr.Generation != startGen {
			tailSector = s
			headSector = (s - 1 + numSectors) % numSectors
			break
		}
		headSector = s
	}

	db.tailSector = tailSector
	db.generation = startGen

	offset := headSector * sectorSize
	sectorEnd := offset + sectorSize
	latestOffset := -1

	for offset+headerSize <= sectorEnd {
		buf := make([]byte, headerSize)
		if err := storage.ReadBlock(offset, buf); err != nil {
			return nil, fmt.Errorf("logdb: mount read at %d: %w", offset, err)
		}

		hdr, dataLen, dataCRC, erased, err := decodeHeader(buf)
		if err != nil || erased {
			break
		}

		dataBuf := make([]byte, dataLen)
		if err := storage.ReadBlock(offset+headerSize, dataBuf); err != nil {
			return nil, fmt.Errorf("logdb: mount read data at %d: %w", offset, err)
		}
		if validateDataCRC(dataBuf, dataCRC) != nil {
			break
		}

		latestOffset = offset
		offset += headerSize + dataLen
	}

	db.latestOffset = latestOffset
	db.headOffset = offset
	db.readIterStart = true

	return db, nil
}

// readSectorHeader decodes the header of the first record at the start of
// sector. A corrupt (non-erased, CRC-mismatched) leading header is reported
// as erased: it can only happen at a sector boundary if that sector was
// never fully written, which mount treats the same as "nothing here yet".
func readSectorHeader(storage StorageDevice, sector, sectorSize int) (hdr Block, dataLen int, dataCRC uint16, erased bool, err error) {
	buf := make([]byte, headerSize)
	if err := storage.ReadBlock(sector*sectorSize, buf); err != nil {
		return Block{}, 0, 0, false, fmt.Errorf("logdb: mount read sector %d: %w", sector, err)
	}
	hdr, dataLen, dataCRC, erased, decodeErr := decodeHeader(buf)
	if decodeErr != nil {
		return Block{}, 0, 0, true, nil
	}
	return hdr, dataLen, dataCRC, erased, nil
}

func nextSectorBoundary(offset, sectorSize int) int {
	return ((offset / sectorSize) + 1) * sectorSize
}

// Format erases the entire device and resets the log to empty.
func (db *LogDB) Format() error {
	for s := 0; s < db.storage.NumSectors(); s++ {
		if err := db.storage.EraseSector(s); err != nil {
			return err
		}
	}
	db.latestOffset = -1
	db.headOffset = 0
	db.tailSector = 0
	db.generation = false
	db.readIterStart = true
	return nil
}

// Size returns the total capacity of the mounted device in bytes.
func (db *LogDB) Size() int {
	return db.storage.SectorSize() * db.storage.NumSectors()
}

// Append writes a new block of kind/data, erasing and reclaiming sectors
// ahead of the write position as needed (wear-levelled circular reuse) and
// flipping the generation bit whenever the write position wraps back to
// sector 0.
func (db *LogDB) Append(kind uint8, data []byte, compressed bool) error {
	if len(data) > maxDataLen {
		return fmt.Errorf("logdb: block of %d bytes exceeds max %d", len(data), maxDataLen)
	}

	blk := Block{Kind: kind, Compressed: compressed, Data: data}
	need := blk.encodedLen()
	sectorSize := db.storage.SectorSize()
	totalSize := db.Size()

	if need > sectorSize {
		return fmt.Errorf("logdb: block of %d bytes exceeds sector size %d", need, sectorSize)
	}

	// Advance past the end of the current sector if the block doesn't fit,
	// erasing the next sector before writing into it (erase-before-write).
	curSectorEnd := nextSectorBoundary(db.headOffset, sectorSize)
	if db.headOffset%sectorSize == 0 && db.latestOffset >= 0 {
		// The previous block filled its sector exactly: the sector at
		// headOffset has not been entered yet and must be erased first.
		curSectorEnd = db.headOffset
	}

	if db.headOffset+need > curSectorEnd {
		nextOffset := curSectorEnd
		if nextOffset >= totalSize {
			nextOffset = 0
			db.generation = !db.generation
		}
		nextSector := nextOffset / sectorSize
		if err := db.storage.EraseSector(nextSector); err != nil {
			return err
		}
		db.headOffset = nextOffset
		// The tail only moves when the sector we just reclaimed for writing
		// was itself the oldest live sector: that's the one instance where
		// the oldest surviving data just got erased out from under it, and
		// the next sector over becomes the new oldest.
		if nextSector == db.tailSector {
			db.tailSector = (db.tailSector + 1) % db.storage.NumSectors()
		}
	}

	blk.Generation = db.generation

	buf := make([]byte, need)
	blk.encode(buf)

	if err := db.storage.WriteBlock(db.headOffset, buf); err != nil {
		return err
	}

	db.latestOffset = db.headOffset
	db.headOffset += need

	return nil
}

// ReadIterInit resets the read iterator to the oldest live block.
func (db *LogDB) ReadIterInit() {
	db.readOffset = db.tailSector * db.storage.SectorSize()
	db.readIterStart = true
}

// AtEnd reports whether the read iterator has reached the write head.
func (db *LogDB) AtEnd() bool {
	return !db.readIterStart && db.readOffset == db.headOffset
}

// ReadNext reads the block at the iterator position and advances it,
// returning ErrEndOfLog once the iterator catches up to the head. The
// iterator's offset wraps around the end of the device back to 0, since
// after a wrap the tail sector can sit at a higher address than the head:
// completion is "the pointer came back around to head_offset", not a plain
// magnitude comparison.
func (db *LogDB) ReadNext() (Block, error) {
	if db.readIterStart {
		db.readIterStart = false
	}

	sectorSize := db.storage.SectorSize()
	totalSize := db.Size()

	for {
		if db.readOffset == db.headOffset {
			return Block{}, ErrEndOfLog
		}

		hdrBuf := make([]byte, headerSize)
		if err := db.storage.ReadBlock(db.readOffset, hdrBuf); err != nil {
			return Block{}, err
		}

		hdr, dataLen, dataCRC, erased, err := decodeHeader(hdrBuf)
		if erased || err != nil {
			db.readOffset = nextSectorBoundary(db.readOffset, sectorSize) % totalSize
			continue
		}

		dataBuf := make([]byte, dataLen)
		if err := db.storage.ReadBlock(db.readOffset+headerSize, dataBuf); err != nil {
			return Block{}, err
		}
		if validateDataCRC(dataBuf, dataCRC) != nil {
			db.readOffset = nextSectorBoundary(db.readOffset, sectorSize) % totalSize
			continue
		}

		hdr.Data = dataBuf
		db.readOffset = (db.readOffset + headerSize + dataLen) % totalSize
		return hdr, nil
	}
}

// ReadLatest returns the most recently appended block, if any.
func (db *LogDB) ReadLatest() (Block, bool, error) {
	if db.latestOffset < 0 {
		return Block{}, false, nil
	}

	hdrBuf := make([]byte, headerSize)
	if err := db.storage.ReadBlock(db.latestOffset, hdrBuf); err != nil {
		return Block{}, false, err
	}
	hdr, dataLen, dataCRC, erased, err := decodeHeader(hdrBuf)
	if erased || err != nil {
		return Block{}, false, fmt.Errorf("logdb: latest block unreadable: %w", err)
	}
	dataBuf := make([]byte, dataLen)
	if err := db.storage.ReadBlock(db.latestOffset+headerSize, dataBuf); err != nil {
		return Block{}, false, err
	}
	if err := validateDataCRC(dataBuf, dataCRC); err != nil {
		return Block{}, false, err
	}
	hdr.Data = dataBuf
	return hdr, true, nil
}
