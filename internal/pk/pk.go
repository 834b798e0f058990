// Package pk implements the in-memory primary-key index: a hash map from
// the concatenated primary-key column values to a record number, rebuilt by
// a full linear scan whenever a data file is opened.
package pk

import (
	"errors"
	"fmt"
	"strings"

	"github.com/calvinalkan/reccore/internal/codec"
	"github.com/calvinalkan/reccore/internal/logicalschema"
)

// ErrDuplicateKey is returned by [Index.Insert] when the key is already
// present and points at a different record number.
var ErrDuplicateKey = errors.New("pk: duplicate key")

// ErrKeyNotFound is returned by [Index.Remove] when no record is indexed
// under the given key. [Index.Lookup] reports a miss with ok=false instead.
var ErrKeyNotFound = errors.New("pk: key not found")

// Key is the composite value of a record's primary-key columns, built by
// [BuildKey]. It is comparable and usable as a map key.
type Key string

// BuildKey concatenates the trimmed values of row's primary-key columns, in
// schema order, separated by the ASCII unit separator (0x1F). Values are not
// checked for that byte, so a value that itself contains 0x1F can yield the
// same key as a different split of the same text.
func BuildKey(schema *logicalschema.Schema, row map[string]string) (Key, error) {
	idxs := schema.PKColumnIndices()
	if len(idxs) == 0 {
		return "", errors.New("pk: schema declares no primary-key columns")
	}

	var b strings.Builder

	for i, idx := range idxs {
		if i > 0 {
			b.WriteByte(0x1F) // ASCII unit separator
		}

		col := schema.Column(idx)

		v, ok := row[col.Name]
		if !ok {
			return "", fmt.Errorf("pk: row is missing primary-key column %q", col.Name)
		}

		b.WriteString(codec.Trim(v))
	}

	return Key(b.String()), nil
}

// Index is the in-memory primary-key index. It is not safe for concurrent
// use; callers serialize access through the engine's own locking.
type Index struct {
	byKey map[Key]int64
}

// New returns an empty index.
func New() *Index {
	return &Index{byKey: make(map[Key]int64)}
}

// Len returns the number of indexed keys.
func (idx *Index) Len() int {
	return len(idx.byKey)
}

// Insert adds key -> n. It fails with [ErrDuplicateKey] if key is already
// indexed, regardless of which record number it currently points at.
func (idx *Index) Insert(key Key, n int64) error {
	if _, exists := idx.byKey[key]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateKey, key)
	}

	idx.byKey[key] = n

	return nil
}

// Remove deletes key from the index.
func (idx *Index) Remove(key Key) error {
	if _, exists := idx.byKey[key]; !exists {
		return fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}

	delete(idx.byKey, key)

	return nil
}

// Lookup returns the record number indexed under key.
func (idx *Index) Lookup(key Key) (int64, bool) {
	n, ok := idx.byKey[key]

	return n, ok
}

// Rebuild discards the current contents and replaces them with entries,
// a map from key to record number as produced by a full scan of the data
// file. Being a map, entries holds at most one record number per key; which
// record wins for a key seen twice is decided by whoever built entries (the
// engine's rebuild keeps the first one its scan sees).
func (idx *Index) Rebuild(entries map[Key]int64) {
	fresh := make(map[Key]int64, len(entries))
	for k, v := range entries {
		fresh[k] = v
	}

	idx.byKey = fresh
}
