package logicalschema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/reccore/internal/logicalschema"
)

func hotelColumns() []logicalschema.Column {
	return []logicalschema.Column{
		{Name: "name", Length: 56, IsPK: true},
		{Name: "room", Length: 8, IsPK: true},
		{Name: "location", Length: 64, IsPK: true},
		{Name: "size", Length: 4},
		{Name: "smoking", Length: 1},
	}
}

func TestSchema_ColumnCountAndNames(t *testing.T) {
	s := logicalschema.New(hotelColumns())

	assert.Equal(t, 5, s.ColumnCount())
	assert.Equal(t, []string{"name", "room", "location", "size", "smoking"}, s.ColumnNames())
}

func TestSchema_ColumnIndexAndLength(t *testing.T) {
	s := logicalschema.New(hotelColumns())

	idx, err := s.ColumnIndex("location")
	require.NoError(t, err)
	assert.Equal(t, 2, idx)

	length, err := s.ColumnLength("size")
	require.NoError(t, err)
	assert.Equal(t, 4, length)

	_, err = s.ColumnIndex("owner")
	require.ErrorIs(t, err, logicalschema.ErrColumnNotExist)

	_, err = s.ColumnLength("owner")
	require.ErrorIs(t, err, logicalschema.ErrColumnNotExist)
}

func TestSchema_Column(t *testing.T) {
	s := logicalschema.New(hotelColumns())

	col := s.Column(3)
	assert.Equal(t, "size", col.Name)
	assert.Equal(t, 4, col.Length)
	assert.False(t, col.IsPK)
}

func TestSchema_PKColumnIndices(t *testing.T) {
	s := logicalschema.New(hotelColumns())

	assert.Equal(t, []int{0, 1, 2}, s.PKColumnIndices())
}

func TestSchema_PKColumnIndices_NoneMarked(t *testing.T) {
	s := logicalschema.New([]logicalschema.Column{
		{Name: "a", Length: 1},
		{Name: "b", Length: 1},
	})

	assert.Nil(t, s.PKColumnIndices())
}

func TestNew_CopiesInputSlice(t *testing.T) {
	cols := hotelColumns()
	s := logicalschema.New(cols)

	cols[0].Name = "mutated"

	assert.Equal(t, "name", s.Column(0).Name, "New must not alias the caller's slice")
}
