// Package codec implements the fixed-endian integer and bounded ASCII string
// encoding used by the on-disk record format: big-endian integers and
// space-or-NUL-padded ASCII strings terminated at the first NUL byte.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// CharsetASCII is the only charset the codec supports, matching the legacy
// on-disk format.
const CharsetASCII = "US-ASCII"

// ErrUnsupportedCharset is returned when a caller requests a charset other
// than [CharsetASCII].
var ErrUnsupportedCharset = errors.New("codec: unsupported charset")

// ErrNonASCIIByte is returned by [EncodeString] when s contains a byte >=
// 0x80, which the legacy US-ASCII on-disk format cannot represent.
var ErrNonASCIIByte = errors.New("codec: non-ASCII byte in string")

// PutUint8 encodes v as a single big-endian byte.
func PutUint8(v uint8) []byte {
	return []byte{v}
}

// PutUint16 encodes v as two big-endian bytes.
func PutUint16(v uint16) []byte {
	buf := make([]byte, 2) //nolint:mnd
	binary.BigEndian.PutUint16(buf, v)

	return buf
}

// PutUint32 encodes v as four big-endian bytes.
func PutUint32(v uint32) []byte {
	buf := make([]byte, 4) //nolint:mnd
	binary.BigEndian.PutUint32(buf, v)

	return buf
}

// DecodeInt reads a big-endian unsigned integer from b and returns it widened
// to int32. A decode of one or two bytes returns the unsigned value; a decode
// of four (or more, using only the first four) bytes returns a signed 32-bit
// integer, per the legacy codec's behavior.
func DecodeInt(b []byte) (int32, error) {
	switch {
	case len(b) == 1:
		return int32(b[0]), nil
	case len(b) == 2: //nolint:mnd
		return int32(binary.BigEndian.Uint16(b)), nil
	case len(b) >= 4: //nolint:mnd
		return int32(binary.BigEndian.Uint32(b[:4])), nil
	default:
		return 0, fmt.Errorf("codec: cannot decode %d-byte integer", len(b))
	}
}

// EncodeString encodes s using charset, returning the raw ASCII bytes of the
// trimmed input. It does not pad or truncate to a field width; callers are
// responsible for fitting the result into a fixed-width slot. It fails with
// [ErrNonASCIIByte] if s contains any byte >= 0x80, rather than silently
// truncating or replacing it.
func EncodeString(s, charset string) ([]byte, error) {
	if charset != CharsetASCII {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCharset, charset)
	}

	trimmed := trimRight(s)

	for i := 0; i < len(trimmed); i++ {
		if trimmed[i] >= 0x80 { //nolint:mnd
			return nil, fmt.Errorf("%w: %q", ErrNonASCIIByte, s)
		}
	}

	return []byte(trimmed), nil
}

// Trim strips the trailing spaces and NUL bytes that pad an on-disk string
// field, the same normalization [DecodeString] applies. Callers that build a
// primary-key value from caller-supplied (not yet disk-round-tripped) input
// must apply it too, or an index key built before a commit won't match one
// built after a decode.
func Trim(s string) string {
	return trimRight(s)
}

// DecodeString reads a bounded ASCII string out of buf[offset:offset+length].
// It scans for the first NUL byte within that window, decodes bytes up to
// that boundary (or the full window if no NUL is present), and right-trims
// whitespace from the result.
func DecodeString(buf []byte, offset, length int, charset string) (string, error) {
	if charset != CharsetASCII {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedCharset, charset)
	}

	window := buf[offset : offset+length]

	end := length
	for i, c := range window {
		if c == 0x00 {
			end = i

			break
		}
	}

	return trimRight(string(window[:end])), nil
}

// trimRight strips trailing spaces and NUL bytes.
func trimRight(s string) string {
	end := len(s)
	for end > 0 && (s[end-1] == ' ' || s[end-1] == 0x00) {
		end--
	}

	return s[:end]
}
