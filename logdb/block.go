package logdb

import (
	"encoding/binary"
	"fmt"

	"github.com/kevinpt/cstone-sub000/internal/crc"
)

// Block kinds, identifying the payload a log record carries.
const (
	BlockKindPropDB   uint8 = 1
	BlockKindErrorLog uint8 = 2
	BlockKindCronDefs uint8 = 3
	BlockKindUser     uint8 = 4
)

// headerSize is the fixed prefix before a block's data: flags byte, header
// CRC, 16-bit data CRC, 16-bit data length.
const headerSize = 6

// maxDataLen bounds a single block's payload so data_len fits in 16 bits.
const maxDataLen = 0xFFFF

// Block is one flash log record: [flags][header_crc][data_crc][data_len][data].
type Block struct {
	Kind       uint8 // 6 bits
	Compressed bool
	Generation bool // mount-time wrap-detection bit, set by the log, not the caller
	Data       []byte
}

func (b *Block) encodedLen() int {
	return headerSize + len(b.Data)
}

func (b *Block) flagsByte() byte {
	flags := b.Kind & 0x3F
	if b.Compressed {
		flags |= 0x40
	}
	if b.Generation {
		flags |= 0x80
	}
	return flags
}

// encode serializes the block into buf (which must be encodedLen() bytes).
func (b *Block) encode(buf []byte) {
	flags := b.flagsByte()
	buf[0] = flags

	dataCRC := crc.Block16(b.Data)
	binary.LittleEndian.PutUint16(buf[2:4], dataCRC)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(len(b.Data)))

	headerCRC := crc.Update8(crc.Init8(), buf[0:1])
	headerCRC = crc.Update8(headerCRC, buf[2:6])
	buf[1] = headerCRC

	copy(buf[headerSize:], b.Data)
}

// decodeHeader validates and parses the fixed-size header at the start of
// buf, returning the data length to read next. An erased (all-0xFF) header
// is reported distinctly from a corrupt one so mount/read can tell "end of
// written log" apart from "bad data".
func decodeHeader(buf []byte) (hdr Block, dataLen int, dataCRC uint16, erased bool, err error) {
	if len(buf) < headerSize {
		return Block{}, 0, 0, false, fmt.Errorf("logdb: short header")
	}

	allFF := true
	for _, b := range buf[:headerSize] {
		if b != 0xFF {
			allFF = false
			break
		}
	}
	if allFF {
		return Block{}, 0, 0, true, nil
	}

	wantCRC := crc.Update8(crc.Init8(), buf[0:1])
	wantCRC = crc.Update8(wantCRC, buf[2:6])
	if wantCRC != buf[1] {
		return Block{}, 0, 0, false, fmt.Errorf("logdb: header CRC mismatch")
	}

	flags := buf[0]
	hdr.Kind = flags & 0x3F
	hdr.Compressed = flags&0x40 != 0
	hdr.Generation = flags&0x80 != 0
	dataCRC = binary.LittleEndian.Uint16(buf[2:4])
	dataLen = int(binary.LittleEndian.Uint16(buf[4:6]))

	return hdr, dataLen, dataCRC, false, nil
}

func validateDataCRC(buf []byte, want uint16) error {
	if crc.Block16(buf) != want {
		return fmt.Errorf("logdb: data CRC mismatch")
	}
	return nil
}
