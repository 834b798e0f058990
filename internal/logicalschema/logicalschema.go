// Package logicalschema represents the ordered list of logical columns a
// caller reads and writes records through, each tagged as a primary-key
// participant or not. A logical schema maps onto [fileschema.Schema]
// positions; the engine is constructed with exactly one logical schema for
// the lifetime of a data file.
package logicalschema

import (
	"errors"
	"fmt"
)

// ErrColumnNotExist is returned by [Schema.ColumnIndex] when no column with
// the requested name is present.
var ErrColumnNotExist = errors.New("logicalschema: column does not exist")

// Column is one logical column.
type Column struct {
	Name   string
	Length int
	IsPK   bool
}

// Schema is the ordered, fixed list of logical columns.
type Schema struct {
	columns []Column
}

// New builds a Schema from an ordered column list.
func New(columns []Column) *Schema {
	cp := make([]Column, len(columns))
	copy(cp, columns)

	return &Schema{columns: cp}
}

// ColumnCount returns the number of logical columns.
func (s *Schema) ColumnCount() int {
	return len(s.columns)
}

// ColumnNames returns all column names in declared order.
func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.columns))
	for i, c := range s.columns {
		names[i] = c.Name
	}

	return names
}

// ColumnIndex returns the position of the column named name.
func (s *Schema) ColumnIndex(name string) (int, error) {
	for i, c := range s.columns {
		if c.Name == name {
			return i, nil
		}
	}

	return 0, fmt.Errorf("%w: %s", ErrColumnNotExist, name)
}

// ColumnLength returns the declared byte length of the column named name.
func (s *Schema) ColumnLength(name string) (int, error) {
	idx, err := s.ColumnIndex(name)
	if err != nil {
		return 0, err
	}

	return s.columns[idx].Length, nil
}

// Column returns the column at position i.
func (s *Schema) Column(i int) Column {
	return s.columns[i]
}

// PKColumnIndices returns the positions of every column marked as a primary
// key participant, in declared order.
func (s *Schema) PKColumnIndices() []int {
	var idxs []int

	for i, c := range s.columns {
		if c.IsPK {
			idxs = append(idxs, i)
		}
	}

	return idxs
}
