// Package datafile implements the physical, single data file: random-access,
// mutex-synchronized single- and multi-record reads and writes, deletion-slot
// reuse, and the in-memory schema split described in SPEC_FULL.md.
//
// Every public method serializes on one mutex, so a seek and the read/write
// that follows it are always atomic with respect to other callers — this is
// what lets [File.GetRecord] and [File.Update] run safely from multiple
// goroutines without each caller managing its own locking.
package datafile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/calvinalkan/reccore/internal/codec"
	"github.com/calvinalkan/reccore/internal/fileschema"
	"github.com/calvinalkan/reccore/internal/fs"
)

const (
	magicLen       = 4
	recordLenBytes = 4
	fieldCountLen  = 2
	headerLen      = magicLen + recordLenBytes + fieldCountLen

	deletionFlagLen = 1

	flagLive    byte = 0x00
	flagDeleted byte = 0x01
)

// ErrFormat is returned when the file header or a block read violates the
// on-disk format invariants (§3, §8 of SPEC_FULL.md). It is always fatal to
// the operation in progress.
var ErrFormat = errors.New("datafile: format error")

// ErrAlreadyOpen is returned by [Open] and [Create] when another process
// already holds the advisory lock on the same data file.
var ErrAlreadyOpen = errors.New("datafile: already open by another process")

// File is a random-access handle on a single data file, backed by an
// [fs.FS] so tests can substitute [fs.Chaos] for fault injection.
type File struct {
	mu sync.Mutex

	handle fs.File
	lock   fs.Locker
	magic  [magicLen]byte

	schema       *fileschema.Schema
	recordLength int64 // R
	dataOffset   int64 // H: byte offset of the data section
	slotSize     int64 // 1 + R
}

// Open parses the header and schema section of the file at path and returns
// a ready-to-use File. It fails with a wrapped [ErrFormat] if the declared
// record length disagrees with the sum of schema field lengths, and with a
// wrapped [ErrAlreadyOpen] if another process holds the advisory lock.
func Open(fsys fs.FS, path string) (*File, error) {
	lock, err := fsys.Lock(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAlreadyOpen, err)
	}

	handle, err := fsys.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		_ = lock.Close()

		return nil, fmt.Errorf("datafile: open %s: %w", path, err)
	}

	f, err := openHandle(handle, lock)
	if err != nil {
		_ = handle.Close()
		_ = lock.Close()

		return nil, err
	}

	return f, nil
}

// Create writes a brand-new, empty data file at path with the given magic
// and physical schema, then opens it. magic must be exactly 4 bytes.
func Create(fsys fs.FS, path string, magic [magicLen]byte, schema *fileschema.Schema) (*File, error) {
	schemaBytes := schema.Encode()

	buf := make([]byte, 0, headerLen+len(schemaBytes))
	buf = append(buf, magic[:]...)
	buf = append(buf, codec.PutUint32(uint32(schema.TotalLength()))...) //nolint:gosec
	buf = append(buf, codec.PutUint16(uint16(schema.FieldCount()))...) //nolint:gosec
	buf = append(buf, schemaBytes...)

	lock, err := fsys.Lock(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAlreadyOpen, err)
	}

	handle, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644) //nolint:mnd
	if err != nil {
		_ = lock.Close()

		return nil, fmt.Errorf("datafile: create %s: %w", path, err)
	}

	_, err = handle.Write(buf)
	if err != nil {
		_ = handle.Close()
		_ = lock.Close()

		return nil, fmt.Errorf("datafile: write header: %w", err)
	}

	_, err = handle.Seek(0, io.SeekStart)
	if err != nil {
		_ = handle.Close()
		_ = lock.Close()

		return nil, fmt.Errorf("datafile: seek to start: %w", err)
	}

	f, err := openHandle(handle, lock)
	if err != nil {
		_ = handle.Close()
		_ = lock.Close()

		return nil, err
	}

	return f, nil
}

func openHandle(handle fs.File, lock fs.Locker) (*File, error) {
	header := make([]byte, headerLen)

	_, err := io.ReadFull(handle, header)
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %w", ErrFormat, err)
	}

	var magic [magicLen]byte
	copy(magic[:], header[0:magicLen])

	recordLength, err := codec.DecodeInt(header[magicLen : magicLen+recordLenBytes])
	if err != nil {
		return nil, fmt.Errorf("%w: decoding record length: %w", ErrFormat, err)
	}

	fieldCountRaw, err := codec.DecodeInt(header[magicLen+recordLenBytes : headerLen])
	if err != nil {
		return nil, fmt.Errorf("%w: decoding field count: %w", ErrFormat, err)
	}

	fieldCount := int(uint16(fieldCountRaw)) //nolint:gosec

	rest, err := io.ReadAll(handle)
	if err != nil {
		return nil, fmt.Errorf("%w: reading schema section: %w", ErrFormat, err)
	}

	schema, consumed, err := fileschema.Decode(rest, fieldCount)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}

	if int64(schema.TotalLength()) != recordLength {
		return nil, fmt.Errorf("%w: record length %d disagrees with schema total %d",
			ErrFormat, recordLength, schema.TotalLength())
	}

	return &File{
		handle:       handle,
		lock:         lock,
		magic:        magic,
		schema:       schema,
		recordLength: recordLength,
		dataOffset:   int64(headerLen + consumed),
		slotSize:     deletionFlagLen + recordLength,
	}, nil
}

// Close releases the underlying file handle and the advisory lock acquired
// by [Open] or [Create].
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := f.handle.Close()

	if lockErr := f.lock.Close(); err == nil {
		err = lockErr
	}

	return err
}

// Schema returns the parsed physical schema. The returned pointer is shared;
// callers must not mutate it except through [File.SplitField].
func (f *File) Schema() *fileschema.Schema {
	return f.schema
}

// RecordLength returns R, the number of data bytes per record (excluding the
// deletion flag).
func (f *File) RecordLength() int64 {
	return f.recordLength
}

// slotOffset returns the absolute byte offset of slot n.
func (f *File) slotOffset(n int64) int64 {
	return f.dataOffset + n*f.slotSize
}

// fileSize returns the current size of the underlying file.
func (f *File) fileSize() (int64, error) {
	info, err := f.handle.Stat()
	if err != nil {
		return 0, fmt.Errorf("datafile: stat: %w", err)
	}

	return info.Size(), nil
}

// readAt reads exactly len(buf) bytes starting at offset. A short read past
// EOF returns io.ErrUnexpectedEOF.
func (f *File) readAt(offset int64, buf []byte) error {
	_, err := f.handle.Seek(offset, io.SeekStart)
	if err != nil {
		return fmt.Errorf("datafile: seek: %w", err)
	}

	_, err = io.ReadFull(f.handle, buf)
	if err != nil {
		return fmt.Errorf("datafile: read: %w", err)
	}

	return nil
}

// writeAt writes buf starting at offset.
func (f *File) writeAt(offset int64, buf []byte) error {
	_, err := f.handle.Seek(offset, io.SeekStart)
	if err != nil {
		return fmt.Errorf("datafile: seek: %w", err)
	}

	_, err = f.handle.Write(buf)
	if err != nil {
		return fmt.Errorf("datafile: write: %w", err)
	}

	return nil
}

// GetRecord reads slot n. It returns ok=false without error if the slot is
// deleted or past EOF.
func (f *File) GetRecord(n int64) (row []byte, ok bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	size, err := f.fileSize()
	if err != nil {
		return nil, false, err
	}

	offset := f.slotOffset(n)
	if offset+f.slotSize > size {
		return nil, false, nil
	}

	slot := make([]byte, f.slotSize)

	err = f.readAt(offset, slot)
	if err != nil {
		return nil, false, err
	}

	if slot[0] == flagDeleted {
		return nil, false, nil
	}

	return slot[deletionFlagLen:], true, nil
}

// GetBlock reads up to count contiguous slots starting at record number
// from, as one buffered read. It returns ok=false without error when from is
// at or past EOF. If the file ends in the middle of a slot, that is a format
// violation and GetBlock fails with [ErrFormat] rather than silently
// returning a truncated slot.
//
// The returned block is a flat byte slice of full (1+R)-byte slots,
// including deleted ones; callers must filter deleted slots themselves.
func (f *File) GetBlock(from int64, count int) (block []byte, slots int, ok bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	size, err := f.fileSize()
	if err != nil {
		return nil, 0, false, err
	}

	offset := f.slotOffset(from)
	if offset >= size {
		return nil, 0, false, nil
	}

	want := int64(count) * f.slotSize
	avail := size - offset

	readLen := want
	if avail < want {
		readLen = avail
	}

	if readLen%f.slotSize != 0 {
		return nil, 0, false, fmt.Errorf("%w: block at record %d ends mid-slot", ErrFormat, from)
	}

	buf := make([]byte, readLen)

	err = f.readAt(offset, buf)
	if err != nil {
		return nil, 0, false, err
	}

	return buf, int(readLen / f.slotSize), true, nil
}

// Add writes row (exactly R bytes) into the first deleted slot found by a
// linear scan from slot 0, or past EOF if none is deleted. It returns the
// chosen record number. Callers needing to prevent two Adds from racing on
// the same free slot must serialize their own calls (the engine's create
// does this with an engine-wide monitor).
func (f *File) Add(row []byte) (int64, error) {
	if int64(len(row)) != f.recordLength {
		return 0, fmt.Errorf("datafile: row is %d bytes, want %d", len(row), f.recordLength)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	size, err := f.fileSize()
	if err != nil {
		return 0, err
	}

	slot := make([]byte, f.slotSize)

	var n int64

	for offset := f.dataOffset; offset < size; offset += f.slotSize {
		err = f.readAt(offset, slot)
		if err != nil {
			return 0, err
		}

		if slot[0] == flagDeleted {
			break
		}

		n++
	}

	out := make([]byte, f.slotSize)
	out[0] = flagLive
	copy(out[deletionFlagLen:], row)

	err = f.writeAt(f.slotOffset(n), out)
	if err != nil {
		return 0, err
	}

	return n, nil
}

// Update overwrites slot n with row (exactly R bytes), always clearing the
// deletion flag: an Update always produces a live record.
func (f *File) Update(n int64, row []byte) error {
	if int64(len(row)) != f.recordLength {
		return fmt.Errorf("datafile: row is %d bytes, want %d", len(row), f.recordLength)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]byte, f.slotSize)
	out[0] = flagLive
	copy(out[deletionFlagLen:], row)

	return f.writeAt(f.slotOffset(n), out)
}

// Delete flips slot n's deletion flag, leaving the record bytes in place for
// possible slot reuse by a later Add.
func (f *File) Delete(n int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	slot := make([]byte, f.slotSize)

	err := f.readAt(f.slotOffset(n), slot)
	if err != nil {
		return err
	}

	slot[0] = flagDeleted

	return f.writeAt(f.slotOffset(n), slot)
}

// SplitField delegates to the in-memory file schema's field split. It never
// touches disk and never changes slot geometry (the replacement fields'
// lengths must sum to the original field's length).
func (f *File) SplitField(i int, newFields []fileschema.Field) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.schema.SplitField(i, newFields)
}
