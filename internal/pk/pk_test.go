package pk_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/reccore/internal/logicalschema"
	"github.com/calvinalkan/reccore/internal/pk"
)

func testSchema() *logicalschema.Schema {
	return logicalschema.New([]logicalschema.Column{
		{Name: "name", Length: 8, IsPK: true},
		{Name: "room", Length: 4},
		{Name: "town", Length: 10, IsPK: true},
	})
}

func TestBuildKey_CompositeConcatenation(t *testing.T) {
	schema := testSchema()

	k1, err := pk.BuildKey(schema, map[string]string{"name": "Palace", "room": "101", "town": "Smallville"})
	require.NoError(t, err)

	k2, err := pk.BuildKey(schema, map[string]string{"name": "Palace", "room": "999", "town": "Smallville"})
	require.NoError(t, err)

	assert.Equal(t, k1, k2, "room is not a PK column and must not affect the key")

	k3, err := pk.BuildKey(schema, map[string]string{"name": "Castle", "room": "101", "town": "Smallville"})
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)
}

func TestBuildKey_MissingColumn(t *testing.T) {
	schema := testSchema()

	_, err := pk.BuildKey(schema, map[string]string{"name": "Palace"})
	require.Error(t, err)
}

func TestIndex_InsertLookupRemove(t *testing.T) {
	idx := pk.New()

	require.NoError(t, idx.Insert("k1", 5))
	n, ok := idx.Lookup("k1")
	assert.True(t, ok)
	assert.Equal(t, int64(5), n)

	require.NoError(t, idx.Remove("k1"))
	_, ok = idx.Lookup("k1")
	assert.False(t, ok)
}

func TestIndex_DuplicateInsertFails(t *testing.T) {
	idx := pk.New()

	require.NoError(t, idx.Insert("k1", 5))

	err := idx.Insert("k1", 6)
	require.ErrorIs(t, err, pk.ErrDuplicateKey)
}

func TestIndex_RemoveMissingFails(t *testing.T) {
	idx := pk.New()

	err := idx.Remove("missing")
	require.ErrorIs(t, err, pk.ErrKeyNotFound)
}

func TestIndex_Rebuild(t *testing.T) {
	idx := pk.New()
	require.NoError(t, idx.Insert("stale", 1))

	idx.Rebuild(map[pk.Key]int64{"k1": 1, "k2": 2})

	assert.Equal(t, 2, idx.Len())
	_, ok := idx.Lookup("stale")
	assert.False(t, ok)

	n, ok := idx.Lookup("k2")
	assert.True(t, ok)
	assert.Equal(t, int64(2), n)
}
