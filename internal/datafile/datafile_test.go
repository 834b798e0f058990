package datafile_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/reccore/internal/datafile"
	"github.com/calvinalkan/reccore/internal/fileschema"
	"github.com/calvinalkan/reccore/internal/fs"
)

func testSchema() *fileschema.Schema {
	return fileschema.New([]fileschema.Field{
		{Name: "name", Length: 8},
		{Name: "room", Length: 4},
	})
}

func row(name, room string) []byte {
	buf := make([]byte, 12)
	copy(buf[0:8], name)
	copy(buf[8:12], room)

	return buf
}

func newTestFile(t *testing.T) (*datafile.File, string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "db.dat")

	real := fs.NewReal()

	f, err := datafile.Create(real, path, [4]byte{'D', 'A', 'T', '1'}, testSchema())
	require.NoError(t, err)

	t.Cleanup(func() { _ = f.Close() })

	return f, path
}

func TestCreateAndGetRecord_RoundTrip(t *testing.T) {
	f, _ := newTestFile(t)

	n, err := f.Add(row("Palace", "101"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	got, ok, err := f.GetRecord(0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, row("Palace", "101"), got)
}

func TestGetRecord_PastEOF(t *testing.T) {
	f, _ := newTestFile(t)

	_, ok, err := f.GetRecord(5)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDelete_ThenReadFails(t *testing.T) {
	f, _ := newTestFile(t)

	n, err := f.Add(row("Palace", "101"))
	require.NoError(t, err)

	require.NoError(t, f.Delete(n))

	_, ok, err := f.GetRecord(n)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAdd_ReusesDeletedSlotBeforeExtending(t *testing.T) {
	f, _ := newTestFile(t)

	n0, err := f.Add(row("Palace", "101"))
	require.NoError(t, err)
	n1, err := f.Add(row("Castle", "202"))
	require.NoError(t, err)
	require.NoError(t, f.Delete(n0))

	n2, err := f.Add(row("Cottage", "303"))
	require.NoError(t, err)
	assert.Equal(t, n0, n2, "reused the deleted slot instead of extending")
	assert.NotEqual(t, n1, n2)

	got, ok, err := f.GetRecord(n2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, row("Cottage", "303"), got)
}

func TestUpdate_ClearsDeletionFlag(t *testing.T) {
	f, _ := newTestFile(t)

	n, err := f.Add(row("Palace", "101"))
	require.NoError(t, err)
	require.NoError(t, f.Delete(n))
	require.NoError(t, f.Update(n, row("Palace", "102")))

	got, ok, err := f.GetRecord(n)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, row("Palace", "102"), got)
}

func TestGetBlock_PastEOFReturnsNotOK(t *testing.T) {
	f, _ := newTestFile(t)

	_, _, ok, err := f.GetBlock(0, 10)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetBlock_IncludesDeletedRows(t *testing.T) {
	f, _ := newTestFile(t)

	_, err := f.Add(row("Palace", "101"))
	require.NoError(t, err)
	n1, err := f.Add(row("Castle", "202"))
	require.NoError(t, err)
	require.NoError(t, f.Delete(n1))

	block, n, ok, err := f.GetBlock(0, 10)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, n)
	assert.Len(t, block, 2*(1+12))
	assert.Equal(t, byte(0x01), block[1+12]) // second slot's deletion flag
}

func TestReopen_ByteIdenticalWithNoWrites(t *testing.T) {
	real := fs.NewReal()
	dir := t.TempDir()
	path := filepath.Join(dir, "db.dat")

	f, err := datafile.Create(real, path, [4]byte{'D', 'A', 'T', '1'}, testSchema())
	require.NoError(t, err)

	_, err = f.Add(row("Palace", "101"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	before, err := real.ReadFile(path)
	require.NoError(t, err)

	reopened, err := datafile.Open(real, path)
	require.NoError(t, err)
	require.NoError(t, reopened.Close())

	after, err := real.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestOpen_RecordLengthMismatchIsFormatError(t *testing.T) {
	real := fs.NewReal()
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.dat")

	f, err := datafile.Create(real, path, [4]byte{'D', 'A', 'T', '1'}, testSchema())
	require.NoError(t, err)
	require.NoError(t, f.Close())

	raw, err := real.ReadFile(path)
	require.NoError(t, err)

	// Corrupt the record-length header field so it disagrees with the schema.
	raw[4] = 0xFF
	require.NoError(t, real.WriteFileAtomic(path, raw, 0o644))

	_, err = datafile.Open(real, path)
	require.ErrorIs(t, err, datafile.ErrFormat)
}

func TestUpdate_FatalIOSurfacesUnderChaos(t *testing.T) {
	real := fs.NewReal()
	dir := t.TempDir()
	path := filepath.Join(dir, "db.dat")

	f, err := datafile.Create(real, path, [4]byte{'D', 'A', 'T', '1'}, testSchema())
	require.NoError(t, err)
	n, err := f.Add(row("Palace", "101"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	chaos := fs.NewChaos(real, 1, fs.ChaosConfig{WriteFailRate: 1.0})

	reopened, err := datafile.Open(chaos, path)
	require.NoError(t, err)

	err = reopened.Update(n, row("Palace", "999"))
	require.Error(t, err)
}
