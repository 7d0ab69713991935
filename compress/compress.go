// Package compress wraps logdb block payloads with a swappable compression
// codec. Each wrapped payload is prefixed with the uncompressed length so a
// reader can size its output buffer before inflating, mirroring the
// fixed-header-then-payload framing used for block records. A codec that
// would grow the data is skipped and the payload is stored raw instead.
package compress

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/flate"
)

// Codec compresses and decompresses opaque byte payloads.
type Codec interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte, uncompressedLen int) ([]byte, error)
}

// headerLen is the size of the uncompressed-length prefix written before
// every compressed payload.
const headerLen = 2

// maxUncompressedLen bounds the data a block can carry so its length fits
// the u16 frame prefix.
const maxUncompressedLen = 0xFFFF

// Wrap compresses data with codec and frames it as [uncompressed_len u16 LE][payload].
// If the compressed form (including the frame) would not be smaller than the
// original, Wrap returns the original bytes with ok=false so the caller can
// store it uncompressed instead.
func Wrap(codec Codec, data []byte) (wrapped []byte, ok bool, err error) {
	if len(data) > maxUncompressedLen {
		return nil, false, fmt.Errorf("compress: data of %d bytes exceeds max %d", len(data), maxUncompressedLen)
	}

	compressed, err := codec.Compress(data)
	if err != nil {
		return nil, false, err
	}

	if len(compressed)+headerLen >= len(data) {
		return data, false, nil
	}

	out := make([]byte, headerLen+len(compressed))
	binary.LittleEndian.PutUint16(out[:headerLen], uint16(len(data)))
	copy(out[headerLen:], compressed)
	return out, true, nil
}

// Unwrap reverses Wrap, reading the uncompressed-length prefix and inflating
// the remainder with codec.
func Unwrap(codec Codec, wrapped []byte) ([]byte, error) {
	if len(wrapped) < headerLen {
		return nil, fmt.Errorf("compress: wrapped payload too short")
	}
	uncompressedLen := int(binary.LittleEndian.Uint16(wrapped[:headerLen]))
	return codec.Decompress(wrapped[headerLen:], uncompressedLen)
}

// FlateCodec compresses with DEFLATE, grounded on the same tradeoff the
// original block compressor makes: small, dependency-free framing around a
// well-understood general-purpose algorithm.
type FlateCodec struct {
	Level int
}

// NewFlateCodec creates a FlateCodec at the given compression level (use
// flate.DefaultCompression for the usual size/speed tradeoff).
func NewFlateCodec(level int) *FlateCodec {
	return &FlateCodec{Level: level}
}

func (c *FlateCodec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, c.Level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *FlateCodec) Decompress(data []byte, uncompressedLen int) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()

	out := make([]byte, uncompressedLen)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

// SnappyCodec trades compression ratio for speed, useful for log blocks
// written on a deadline where DEFLATE's CPU cost is undesirable.
type SnappyCodec struct{}

func NewSnappyCodec() *SnappyCodec { return &SnappyCodec{} }

func (c *SnappyCodec) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (c *SnappyCodec) Decompress(data []byte, uncompressedLen int) ([]byte, error) {
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, err
	}
	if len(out) != uncompressedLen {
		return nil, fmt.Errorf("compress: decoded length %d != expected %d", len(out), uncompressedLen)
	}
	return out, nil
}

var (
	_ Codec = (*FlateCodec)(nil)
	_ Codec = (*SnappyCodec)(nil)
)
