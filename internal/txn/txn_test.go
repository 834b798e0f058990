package txn_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/calvinalkan/reccore/internal/txn"
)

func TestStageUpdate_ThenPending(t *testing.T) {
	c := txn.New(3)

	_, ok := c.Pending()
	assert.False(t, ok)
	assert.False(t, c.IsDeleted())

	c.StageUpdate([]byte("hello"))

	row, ok := c.Pending()
	assert.True(t, ok)
	assert.Equal(t, []byte("hello"), row)
	assert.False(t, c.IsDeleted())
}

func TestStageDelete_WinsOverLaterUpdate(t *testing.T) {
	c := txn.New(3)

	c.StageUpdate([]byte("first"))
	c.StageDelete()
	c.StageUpdate([]byte("second"))

	_, ok := c.Pending()
	assert.False(t, ok)
	assert.True(t, c.IsDeleted())
}

func TestStageDelete_ClearsEarlierUpdate(t *testing.T) {
	c := txn.New(3)

	c.StageUpdate([]byte("first"))
	c.StageDelete()

	_, ok := c.Pending()
	assert.False(t, ok)
	assert.True(t, c.IsDeleted())
}

func TestRecordNumber(t *testing.T) {
	c := txn.New(42)
	assert.Equal(t, int64(42), c.RecordNumber())
}
