package compress

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func repeatedPayload() []byte {
	return bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 64)
}

func TestFlateRoundTrip(t *testing.T) {
	codec := NewFlateCodec(flate.DefaultCompression)
	data := repeatedPayload()

	wrapped, ok, err := Wrap(codec, data)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Less(t, len(wrapped), len(data))

	out, err := Unwrap(codec, wrapped)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestSnappyRoundTrip(t *testing.T) {
	codec := NewSnappyCodec()
	data := repeatedPayload()

	wrapped, ok, err := Wrap(codec, data)
	require.NoError(t, err)
	require.True(t, ok)

	out, err := Unwrap(codec, wrapped)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestWrapFallsBackToRawWhenNotSmaller(t *testing.T) {
	codec := NewFlateCodec(flate.DefaultCompression)
	data := []byte{0x01, 0x02, 0x03}

	out, ok, err := Wrap(codec, data)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, data, out)
}
