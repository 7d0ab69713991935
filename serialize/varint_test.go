package serialize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVarintRoundTrip(t *testing.T) {
	cases := []uint32{0, 1, 127, 128, 16383, 16384, 2097151, 2097152, 0xFFFFFFFF}

	for _, n := range cases {
		buf := make([]byte, VarintEncodedBytes(n))
		written := VarintEncode(n, buf)
		assert.Equal(t, len(buf), written)

		got, read := VarintDecode(buf)
		assert.Equal(t, n, got)
		assert.Equal(t, written, read)
	}
}

func TestZigZagRoundTrip(t *testing.T) {
	cases := []int32{0, -1, 1, -42, 42, -2147483648, 2147483647}
	for _, n := range cases {
		assert.Equal(t, n, ZigZagDecode(ZigZagEncode(n)))
	}
}

func TestZigZagSmallMagnitudeIsCompact(t *testing.T) {
	// Small-magnitude negatives should encode just as compactly as their
	// positive counterparts under zig-zag mapping.
	assert.Equal(t, VarintEncodedBytes(uint32(2)), VarintEncodedBytes(ZigZagEncode(-1)))
	assert.Equal(t, VarintEncodedBytes(uint32(4)), VarintEncodedBytes(ZigZagEncode(-2)))
}

func TestStringRoundTrip(t *testing.T) {
	s := "sys.storage.info.count"
	buf := make([]byte, StringEncodedBytes(s))
	n := StringEncode(s, buf)
	assert.Equal(t, len(buf), n)

	got, read := StringDecode(buf)
	assert.Equal(t, s, got)
	assert.Equal(t, n, read)
}

func TestBlobRoundTrip(t *testing.T) {
	data := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x01}
	buf := make([]byte, BlobEncodedBytes(data))
	n := BlobEncode(data, buf)
	assert.Equal(t, len(buf), n)

	got, read := BlobDecode(buf)
	assert.Equal(t, data, got)
	assert.Equal(t, n, read)
}
