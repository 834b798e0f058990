// Package engine composes the physical file, primary-key index, lock
// manager, and transaction contexts into the eight primitive operations
// the rest of the system talks to: read, create, update, delete, find,
// lock, unlock, isLocked.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/calvinalkan/reccore/internal/codec"
	"github.com/calvinalkan/reccore/internal/datafile"
	"github.com/calvinalkan/reccore/internal/fileschema"
	"github.com/calvinalkan/reccore/internal/fs"
	"github.com/calvinalkan/reccore/internal/lockmgr"
	"github.com/calvinalkan/reccore/internal/logicalschema"
	"github.com/calvinalkan/reccore/internal/pk"
	"github.com/calvinalkan/reccore/internal/txn"
)

// CallerID identifies a lock owner across the lifetime of one session. It
// must be stable for as long as the session holds any locks.
type CallerID = lockmgr.Owner

// Row is a decoded record, keyed by logical column name.
type Row map[string]string

// Criteria is a find() query: one entry per logical column, in schema
// order. A nil entry matches any value; a non-nil entry matches by prefix
// after trimming both sides.
type Criteria []*string

// Config tunes the engine's lock manager and scan behavior. Zero values are
// replaced by the documented defaults (M=1000, L=60s, T=10s, B=1000).
type Config struct {
	MaxLockCells     int
	LockExpiry       time.Duration
	LockRetryWait    time.Duration
	WatchdogInterval time.Duration
	FindBlockSize    int
	Charset          string
}

// FieldSplit describes one in-memory physical field split applied at open,
// e.g. splitting a 64-byte "name" field into a 56-byte "name" and an
// 8-byte "room".
type FieldSplit struct {
	PhysicalField string
	Into          []fileschema.Field
}

func (c Config) withDefaults() Config {
	if c.MaxLockCells == 0 {
		c.MaxLockCells = 1000
	}

	if c.LockExpiry == 0 {
		c.LockExpiry = 60 * time.Second
	}

	if c.LockRetryWait == 0 {
		c.LockRetryWait = 10 * time.Second
	}

	if c.WatchdogInterval == 0 {
		c.WatchdogInterval = c.LockExpiry / 10
	}

	if c.FindBlockSize == 0 {
		c.FindBlockSize = 1000
	}

	if c.Charset == "" {
		c.Charset = codec.CharsetASCII
	}

	return c
}

type fieldPos struct {
	offset int
	length int
}

// Engine is a single open data file plus its index, lock manager, and
// logical schema. One Engine instance backs one database for the lifetime
// of the process that opened it; it is never a process-wide singleton.
type Engine struct {
	file    *datafile.File
	schema  *logicalschema.Schema
	charset string
	blockSz int

	layout map[string]fieldPos

	index *pk.Index

	locks *lockmgr.Manager

	createMu sync.Mutex
	indexMu  sync.Mutex
}

// Open opens the data file at path, applies splits (in declared order),
// validates that logical and layout fully agree, rebuilds the primary-key
// index with a full scan, and starts the lock manager's watchdog.
func Open(fsys fs.FS, path string, schema *logicalschema.Schema, splits []FieldSplit, cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()

	file, err := datafile.Open(fsys, path)
	if err != nil {
		return nil, NewFormatError(err)
	}

	for _, split := range splits {
		// No-op when every target field is already present in the on-disk
		// schema, i.e. the file was created with the split fields from the
		// start. A split is never written to disk, so a legacy file is split
		// again, in memory, on every open.
		if allPresent(file.Schema(), split.Into) {
			continue
		}

		idx, ierr := file.Schema().IndexOf(split.PhysicalField)
		if ierr != nil {
			_ = file.Close()

			return nil, NewFormatError(ierr)
		}

		if err := file.SplitField(idx, split.Into); err != nil {
			_ = file.Close()

			return nil, NewFormatError(err)
		}
	}

	layout, err := buildLayout(file.Schema(), schema)
	if err != nil {
		_ = file.Close()

		return nil, NewFormatError(err)
	}

	e := &Engine{
		file:    file,
		schema:  schema,
		charset: cfg.Charset,
		blockSz: cfg.FindBlockSize,
		layout:  layout,
		index:   pk.New(),
		locks: lockmgr.New(lockmgr.Config{
			MaxCells:         cfg.MaxLockCells,
			Expiry:           cfg.LockExpiry,
			RetryWait:        cfg.LockRetryWait,
			WatchdogInterval: cfg.WatchdogInterval,
		}),
	}

	if err := e.rebuildIndex(); err != nil {
		e.locks.Close()
		_ = file.Close()

		return nil, err
	}

	return e, nil
}

func allPresent(s *fileschema.Schema, fields []fileschema.Field) bool {
	for _, f := range fields {
		if !s.IsFieldPresent(f.Name) {
			return false
		}
	}

	return true
}

// buildLayout maps each logical column onto its physical byte range, and
// fails if a column is missing from the file schema or its declared length
// disagrees.
func buildLayout(fileSchema *fileschema.Schema, logical *logicalschema.Schema) (map[string]fieldPos, error) {
	layout := make(map[string]fieldPos, logical.ColumnCount())

	for i := 0; i < logical.ColumnCount(); i++ {
		col := logical.Column(i)

		idx, err := fileSchema.IndexOf(col.Name)
		if err != nil {
			return nil, fmt.Errorf("engine: logical column %q has no physical field: %w", col.Name, err)
		}

		length, err := fileSchema.FieldLength(idx)
		if err != nil {
			return nil, err
		}

		if length != col.Length {
			return nil, fmt.Errorf("engine: logical column %q is %d bytes, physical field is %d",
				col.Name, col.Length, length)
		}

		offset, err := fileSchema.CumulativeLengthBefore(idx)
		if err != nil {
			return nil, err
		}

		layout[col.Name] = fieldPos{offset: offset, length: length}
	}

	return layout, nil
}

// Schema returns the logical schema this engine was opened with, for callers
// that need to enumerate columns (e.g. to build a [Criteria] slice).
func (e *Engine) Schema() *logicalschema.Schema {
	return e.schema
}

// Stats is a snapshot of engine introspection counters, additive tooling
// rather than a ninth DAO primitive.
type Stats struct {
	// LiveRecords is the number of indexed, non-deleted records.
	LiveRecords int
	// LockCells is the number of tracked lock cells, occupied or not.
	LockCells int
	// OccupiedCells is the number of lock cells currently held.
	OccupiedCells int
}

// Stats reports the current live-record count and lock-cell occupancy.
// Tests use it to assert the #{lock cells} <= M invariant; reccorectl
// exposes it via the stats command.
func (e *Engine) Stats() Stats {
	e.indexMu.Lock()
	liveRecords := e.index.Len()
	e.indexMu.Unlock()

	return Stats{
		LiveRecords:   liveRecords,
		LockCells:     e.locks.Len(),
		OccupiedCells: e.locks.Occupied(),
	}
}

// Close stops the lock manager's watchdog and closes the data file.
func (e *Engine) Close() error {
	e.locks.Close()

	return e.file.Close()
}

func (e *Engine) encodeRow(row Row) ([]byte, error) {
	buf := make([]byte, e.file.RecordLength())

	for i := 0; i < e.schema.ColumnCount(); i++ {
		col := e.schema.Column(i)

		pos, ok := e.layout[col.Name]
		if !ok {
			return nil, fmt.Errorf("engine: no layout for column %q", col.Name)
		}

		raw, err := codec.EncodeString(row[col.Name], e.charset)
		if err != nil {
			return nil, err
		}

		if len(raw) > pos.length {
			return nil, fmt.Errorf("engine: value for column %q is %d bytes, field is %d", col.Name, len(raw), pos.length)
		}

		copy(buf[pos.offset:pos.offset+pos.length], raw)
	}

	return buf, nil
}

func (e *Engine) decodeRow(buf []byte) (Row, error) {
	row := make(Row, e.schema.ColumnCount())

	for i := 0; i < e.schema.ColumnCount(); i++ {
		col := e.schema.Column(i)
		pos := e.layout[col.Name]

		v, err := codec.DecodeString(buf, pos.offset, pos.length, e.charset)
		if err != nil {
			return nil, err
		}

		row[col.Name] = v
	}

	return row, nil
}

func (e *Engine) buildKey(row Row) (pk.Key, error) {
	return pk.BuildKey(e.schema, row)
}

// scanLive walks every live record from slot 0 in blocks of blockSize,
// calling visit(n, row) for each one. visit returning stop=true ends the
// scan early.
func (e *Engine) scanLive(blockSize int, visit func(n int64, row Row) (stop bool, err error)) error {
	var n int64

	slotSize := 1 + int(e.file.RecordLength())

	for {
		block, count, ok, err := e.file.GetBlock(n, blockSize)
		if err != nil {
			return NewFormatError(err)
		}

		if !ok {
			return nil
		}

		for i := 0; i < count; i++ {
			slot := block[i*slotSize : (i+1)*slotSize]
			if slot[0] != 0x00 {
				n++

				continue
			}

			row, derr := e.decodeRow(slot[1:])
			if derr != nil {
				return NewFormatError(derr)
			}

			stop, verr := visit(n, row)
			if verr != nil {
				return verr
			}

			if stop {
				return nil
			}

			n++
		}
	}
}

func (e *Engine) rebuildIndex() error {
	entries := make(map[pk.Key]int64)

	err := e.scanLive(e.blockSz, func(n int64, row Row) (bool, error) {
		key, kerr := e.buildKey(row)
		if kerr != nil {
			return false, NewFormatError(kerr)
		}

		if _, exists := entries[key]; !exists {
			entries[key] = n
		}

		return false, nil
	})
	if err != nil {
		return err
	}

	e.index.Rebuild(entries)

	return nil
}

// Read fetches the persisted row at n. It fails with RecordNotFound if the
// slot is deleted or past EOF, and never returns a staged (uncommitted) row.
func (e *Engine) Read(n int64) (Row, error) {
	buf, ok, err := e.file.GetRecord(n)
	if err != nil {
		return nil, NewFatalIO(err)
	}

	if !ok {
		return nil, NewRecordNotFound(n)
	}

	return e.decodeRow(buf)
}

// Create inserts data as a new live record, failing with DuplicateKey if
// its primary key already exists. It returns the assigned record number.
func (e *Engine) Create(data Row) (int64, error) {
	// Held across the duplicate check and the insert, so two concurrent
	// creators of the same key cannot both pass the check.
	e.createMu.Lock()
	defer e.createMu.Unlock()

	key, err := e.buildKey(data)
	if err != nil {
		return 0, NewFormatError(err)
	}

	e.indexMu.Lock()
	_, hit := e.index.Lookup(key)
	e.indexMu.Unlock()

	if hit {
		return 0, NewDuplicateKey(string(key))
	}

	// Index miss does not prove absence: confirm with a linear scan over
	// the PK columns, since the index may not have observed every row.
	if found, ferr := e.scanForKey(key); ferr != nil {
		return 0, ferr
	} else if found {
		return 0, NewDuplicateKey(string(key))
	}

	row, err := e.encodeRow(data)
	if err != nil {
		return 0, NewFormatError(err)
	}

	n, err := e.file.Add(row)
	if err != nil {
		return 0, NewFatalIO(err)
	}

	e.indexMu.Lock()
	_ = e.index.Insert(key, n) // cannot fail: presence was just disproven
	e.indexMu.Unlock()

	// Defensive: a prior deleted slot may carry stale lock state.
	e.locks.ForceRelease(n)

	return n, nil
}

// scanForKey does a full linear scan and reports whether any live row's
// primary key equals key.
func (e *Engine) scanForKey(key pk.Key) (bool, error) {
	found := false

	err := e.scanLive(e.blockSz, func(_ int64, row Row) (bool, error) {
		rowKey, kerr := e.buildKey(row)
		if kerr != nil {
			return false, NewFormatError(kerr)
		}

		if rowKey == key {
			found = true

			return true, nil
		}

		return false, nil
	})

	return found, err
}

// Lock blocks until it occupies record n for caller, or ctx is done. It
// first proves the record exists by calling Read, so lock() fails fast with
// RecordNotFound rather than blocking on a never-occupiable slot.
func (e *Engine) Lock(ctx context.Context, n int64, caller CallerID) error {
	if _, err := e.Read(n); err != nil {
		return err
	}

	return e.locks.Lock(ctx, n, caller, txn.New(n))
}

// IsLocked reports whether record n is currently held by anyone.
func (e *Engine) IsLocked(n int64) bool {
	return e.locks.IsLocked(n)
}

// Delete stages a delete against the transaction held by caller on n. It
// never touches the file; the change becomes visible only on Unlock.
func (e *Engine) Delete(n int64, caller CallerID) error {
	tx, err := e.checkTx(n, caller)
	if err != nil {
		return err
	}

	tx.StageDelete()

	return nil
}

// Update stages data as the pending row against the transaction held by
// caller on n. It never touches the file; the change becomes visible only
// on Unlock, and is rejected there if it would change the primary key.
func (e *Engine) Update(n int64, caller CallerID, data Row) error {
	tx, err := e.checkTx(n, caller)
	if err != nil {
		return err
	}

	row, err := e.encodeRow(data)
	if err != nil {
		return NewFormatError(err)
	}

	tx.StageUpdate(row)

	return nil
}

func (e *Engine) checkTx(n int64, caller CallerID) (*txn.Context, error) {
	tx, err := e.locks.Check(n, caller)
	if err != nil {
		return nil, NewTransactionError(n, string(caller))
	}

	return tx, nil
}

// Unlock validates the held transaction, commits any staged delete or
// update to the file and index, and releases the lock unconditionally —
// even if the commit fails, so waiters are always awakened. A failed commit
// leaves the on-disk state and index unchanged; the caller must re-read to
// observe the actual state.
func (e *Engine) Unlock(n int64, caller CallerID) error {
	tx, err := e.checkTx(n, caller)
	if err != nil {
		return err
	}

	defer e.locks.Release(n)

	if tx.IsDeleted() {
		return e.commitDelete(n)
	}

	if pending, ok := tx.Pending(); ok {
		return e.commitUpdate(n, pending)
	}

	return nil
}

func (e *Engine) commitDelete(n int64) error {
	onDisk, ok, err := e.file.GetRecord(n)
	if err != nil {
		return NewFatalIO(err)
	}

	if !ok {
		return NewRecordNotFound(n)
	}

	if err := e.file.Delete(n); err != nil {
		return NewFatalIO(err)
	}

	row, err := e.decodeRow(onDisk)
	if err != nil {
		return NewFormatError(err)
	}

	key, err := e.buildKey(row)
	if err != nil {
		return NewFormatError(err)
	}

	e.indexMu.Lock()
	_ = e.index.Remove(key)
	e.indexMu.Unlock()

	return nil
}

func (e *Engine) commitUpdate(n int64, pending []byte) error {
	onDisk, ok, err := e.file.GetRecord(n)
	if err != nil {
		return NewFatalIO(err)
	}

	if !ok {
		return NewRecordNotFound(n)
	}

	oldRow, err := e.decodeRow(onDisk)
	if err != nil {
		return NewFormatError(err)
	}

	newRow, err := e.decodeRow(pending)
	if err != nil {
		return NewFormatError(err)
	}

	oldKey, err := e.buildKey(oldRow)
	if err != nil {
		return NewFormatError(err)
	}

	newKey, err := e.buildKey(newRow)
	if err != nil {
		return NewFormatError(err)
	}

	if oldKey != newKey {
		return NewTransactionErrorPKChange(n)
	}

	if err := e.file.Update(n, pending); err != nil {
		return NewFatalIO(err)
	}

	return nil
}

// ReleaseAllOwnedBy force-releases, without commit, every lock currently
// held by caller. Used by the surrounding layer when a session ends.
func (e *Engine) ReleaseAllOwnedBy(caller CallerID) {
	e.locks.ReleaseAllOwnedBy(caller)
}

// Find evaluates criteria against every live row and returns matching
// record numbers in ascending order. A nil criteria entry matches any
// value; a non-nil entry matches by prefix after trimming both sides. If
// every primary-key column has a non-nil entry, the index is consulted
// first: a hit returns a single-element result; a miss falls through to a
// linear scan (which also back-fills the index for every matched PK seen).
// It fails with RecordNotFound if nothing matches.
func (e *Engine) Find(criteria Criteria) ([]int64, error) {
	// An index hit is keyed on the primary-key columns alone; it returns the
	// record without re-checking any non-PK criteria entries. A caller that
	// supplies a full PK plus additional non-PK criteria gets that record
	// back regardless of whether it matches the rest, per the single-element
	// result documented above.
	if n, ok, err := e.tryIndexLookup(criteria); err != nil {
		return nil, err
	} else if ok {
		return []int64{n}, nil
	}

	return e.scanFind(criteria)
}

func (e *Engine) tryIndexLookup(criteria Criteria) (int64, bool, error) {
	pkIdxs := e.schema.PKColumnIndices()

	keyRow := make(Row, len(pkIdxs))

	for _, idx := range pkIdxs {
		c := criteria[idx]
		if c == nil {
			return 0, false, nil
		}

		keyRow[e.schema.Column(idx).Name] = *c
	}

	key, err := e.buildKey(keyRow)
	if err != nil {
		return 0, false, nil //nolint:nilerr // incomplete criteria simply isn't index-eligible
	}

	e.indexMu.Lock()
	n, ok := e.index.Lookup(key)
	e.indexMu.Unlock()

	return n, ok, nil
}

func (e *Engine) scanFind(criteria Criteria) ([]int64, error) {
	var matches []int64

	err := e.scanLive(e.blockSz, func(n int64, row Row) (bool, error) {
		if matchesCriteria(e.schema, criteria, row) {
			matches = append(matches, n)
			e.populateIndexFromRow(row, n)
		}

		return false, nil
	})
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		return nil, NewRecordNotFoundSearch()
	}

	return matches, nil
}

func (e *Engine) populateIndexFromRow(row Row, n int64) {
	key, err := e.buildKey(row)
	if err != nil {
		return
	}

	e.indexMu.Lock()
	if _, exists := e.index.Lookup(key); !exists {
		_ = e.index.Insert(key, n) //nolint:errcheck // presence just checked under the same lock
	}
	e.indexMu.Unlock()
}

func matchesCriteria(schema *logicalschema.Schema, criteria Criteria, row Row) bool {
	for i := 0; i < schema.ColumnCount(); i++ {
		c := criteria[i]
		if c == nil {
			continue
		}

		col := schema.Column(i)

		want := strings.TrimSpace(*c)
		got := strings.TrimSpace(row[col.Name])

		if !strings.HasPrefix(got, want) {
			return false
		}
	}

	return true
}
