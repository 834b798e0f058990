package fileschema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/reccore/internal/fileschema"
)

func hotelFields() []fileschema.Field {
	return []fileschema.Field{
		{Name: "name", Length: 64},
		{Name: "location", Length: 64},
		{Name: "size", Length: 4},
	}
}

func TestSchema_BasicAccessors(t *testing.T) {
	s := fileschema.New(hotelFields())

	assert.Equal(t, 3, s.FieldCount())
	assert.Equal(t, "name", s.FieldName(0))
	assert.Equal(t, "location", s.FieldName(1))

	length, err := s.FieldLength(2)
	require.NoError(t, err)
	assert.Equal(t, 4, length)

	assert.Equal(t, 132, s.TotalLength())
}

func TestSchema_IndexOfAndIsFieldPresent(t *testing.T) {
	s := fileschema.New(hotelFields())

	idx, err := s.IndexOf("location")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	assert.True(t, s.IsFieldPresent("size"))
	assert.False(t, s.IsFieldPresent("room"))

	_, err = s.IndexOf("room")
	require.ErrorIs(t, err, fileschema.ErrFieldNotExist)
}

func TestSchema_CumulativeLengthBefore(t *testing.T) {
	s := fileschema.New(hotelFields())

	off, err := s.CumulativeLengthBefore(0)
	require.NoError(t, err)
	assert.Equal(t, 0, off)

	off, err = s.CumulativeLengthBefore(2)
	require.NoError(t, err)
	assert.Equal(t, 128, off)

	// One past the last field is a valid "end of record" offset.
	off, err = s.CumulativeLengthBefore(3)
	require.NoError(t, err)
	assert.Equal(t, 132, off)

	_, err = s.CumulativeLengthBefore(4)
	require.ErrorIs(t, err, fileschema.ErrFieldNotExist)
}

func TestSchema_EncodeDecode_RoundTrips(t *testing.T) {
	s := fileschema.New(hotelFields())

	encoded := s.Encode()

	decoded, consumed, err := fileschema.Decode(encoded, s.FieldCount())
	require.NoError(t, err)
	assert.Equal(t, len(encoded), consumed)
	assert.Equal(t, s.FieldCount(), decoded.FieldCount())

	for i := 0; i < s.FieldCount(); i++ {
		assert.Equal(t, s.FieldName(i), decoded.FieldName(i))

		wantLen, err := s.FieldLength(i)
		require.NoError(t, err)
		gotLen, err := decoded.FieldLength(i)
		require.NoError(t, err)
		assert.Equal(t, wantLen, gotLen)
	}
}

func TestDecode_TruncatedSectionFails(t *testing.T) {
	s := fileschema.New(hotelFields())
	encoded := s.Encode()

	_, _, err := fileschema.Decode(encoded[:len(encoded)-3], s.FieldCount())
	require.Error(t, err)
}

func TestSplitField_ReplacesOneFieldInPlace(t *testing.T) {
	s := fileschema.New(hotelFields())

	err := s.SplitField(0, []fileschema.Field{
		{Name: "name", Length: 56},
		{Name: "room", Length: 8},
	})
	require.NoError(t, err)

	assert.Equal(t, 4, s.FieldCount())
	assert.Equal(t, "name", s.FieldName(0))
	assert.Equal(t, "room", s.FieldName(1))
	assert.Equal(t, "location", s.FieldName(2))
	assert.Equal(t, "size", s.FieldName(3))

	// Splitting is purely in-memory: total record length is unchanged.
	assert.Equal(t, 132, s.TotalLength())

	idx, err := s.IndexOf("room")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}

func TestSplitField_LengthMismatchRejectedAndSchemaUnchanged(t *testing.T) {
	s := fileschema.New(hotelFields())

	err := s.SplitField(0, []fileschema.Field{
		{Name: "name", Length: 56},
		{Name: "room", Length: 4},
	})
	require.ErrorIs(t, err, fileschema.ErrSplitLengthMismatch)

	// Schema must be untouched after a rejected split.
	assert.Equal(t, 3, s.FieldCount())
	assert.Equal(t, "name", s.FieldName(0))

	length, err := s.FieldLength(0)
	require.NoError(t, err)
	assert.Equal(t, 64, length)
}

func TestSplitField_InvalidIndexFails(t *testing.T) {
	s := fileschema.New(hotelFields())

	err := s.SplitField(99, []fileschema.Field{{Name: "x", Length: 1}})
	require.ErrorIs(t, err, fileschema.ErrFieldNotExist)
}
