package codec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/reccore/internal/codec"
)

func TestPutUint_RoundTrip(t *testing.T) {
	assert.Equal(t, []byte{0xAB}, codec.PutUint8(0xAB))
	assert.Equal(t, []byte{0x01, 0x02}, codec.PutUint16(0x0102))
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, codec.PutUint32(0x01020304))
}

func TestDecodeInt_WidthsAndSign(t *testing.T) {
	v, err := codec.DecodeInt([]byte{0xFF})
	require.NoError(t, err)
	assert.Equal(t, int32(255), v)

	v, err = codec.DecodeInt([]byte{0xFF, 0xFF})
	require.NoError(t, err)
	assert.Equal(t, int32(65535), v)

	// Four-byte decode is signed: 0xFFFFFFFF -> -1.
	v, err = codec.DecodeInt([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	require.NoError(t, err)
	assert.Equal(t, int32(-1), v)
}

func TestDecodeInt_InvalidWidth(t *testing.T) {
	_, err := codec.DecodeInt([]byte{})
	require.Error(t, err)

	_, err = codec.DecodeInt([]byte{0x01, 0x02, 0x03})
	require.Error(t, err)
}

func TestEncodeDecodeString_TrimAndNulTerminate(t *testing.T) {
	raw, err := codec.EncodeString("Palace  ", codec.CharsetASCII)
	require.NoError(t, err)
	assert.Equal(t, "Palace", string(raw))

	buf := make([]byte, 16)
	copy(buf, "Palace")
	// Bytes after the name are zero (NUL), as on disk.

	s, err := codec.DecodeString(buf, 0, 16, codec.CharsetASCII)
	require.NoError(t, err)
	assert.Equal(t, "Palace", s)
}

func TestDecodeString_StopsAtFirstNul(t *testing.T) {
	buf := []byte("Pal\x00ace    ")
	s, err := codec.DecodeString(buf, 0, len(buf), codec.CharsetASCII)
	require.NoError(t, err)
	assert.Equal(t, "Pal", s)
}

func TestDecodeString_SpacePaddedNoNul(t *testing.T) {
	buf := []byte("Castle    ")
	s, err := codec.DecodeString(buf, 0, len(buf), codec.CharsetASCII)
	require.NoError(t, err)
	assert.Equal(t, "Castle", s)
}

func TestEncodeString_RejectsNonASCIIByte(t *testing.T) {
	_, err := codec.EncodeString("Pal\xE9ce", codec.CharsetASCII)
	require.ErrorIs(t, err, codec.ErrNonASCIIByte)
}

func TestUnsupportedCharset(t *testing.T) {
	_, err := codec.EncodeString("x", "UTF-16")
	require.ErrorIs(t, err, codec.ErrUnsupportedCharset)

	_, err = codec.DecodeString(make([]byte, 4), 0, 4, "UTF-16")
	require.ErrorIs(t, err, codec.ErrUnsupportedCharset)
}
