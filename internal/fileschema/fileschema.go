// Package fileschema represents the ordered list of physical fields declared
// in a data file's schema section: name and byte length, in on-disk order.
//
// A [Schema] also supports splitting one physical field into several
// contiguous sub-fields, entirely in memory — used by the engine to expose
// a legacy single "name" field as two logical columns without touching the
// file (see SPEC_FULL.md, in-memory schema override).
package fileschema

import (
	"errors"
	"fmt"

	"github.com/calvinalkan/reccore/internal/codec"
)

// ErrFieldNotExist is returned by [Schema.IndexOf] when no field with the
// requested name is present.
var ErrFieldNotExist = errors.New("fileschema: field does not exist")

// ErrSplitLengthMismatch is returned by [Schema.SplitField] when the
// replacement fields' lengths do not sum to the original field's length.
var ErrSplitLengthMismatch = errors.New("fileschema: split field lengths do not sum to original length")

// Field is one physical field: a name and a fixed byte length.
type Field struct {
	Name   string
	Length int
}

// Schema is the ordered list of physical fields read from (or about to be
// written to) a data file's schema section.
type Schema struct {
	fields []Field
}

// New builds a Schema from an ordered field list. Used when constructing a
// brand-new data file.
func New(fields []Field) *Schema {
	cp := make([]Field, len(fields))
	copy(cp, fields)

	return &Schema{fields: cp}
}

// Decode parses exactly fieldCount schema entries from buf, where each entry
// is a 2-byte name length, the ASCII name, and a 2-byte field length. It
// returns the schema and the number of bytes consumed.
func Decode(buf []byte, fieldCount int) (*Schema, int, error) {
	fields := make([]Field, 0, fieldCount)
	pos := 0

	for i := 0; i < fieldCount; i++ {
		if pos+2 > len(buf) { //nolint:mnd
			return nil, 0, fmt.Errorf("fileschema: truncated schema section at field %d", i)
		}

		nameLen, err := codec.DecodeInt(buf[pos : pos+2])
		if err != nil {
			return nil, 0, fmt.Errorf("fileschema: decode name length: %w", err)
		}

		pos += 2

		if pos+int(nameLen) > len(buf) {
			return nil, 0, fmt.Errorf("fileschema: truncated schema section at field %d name", i)
		}

		name := string(buf[pos : pos+int(nameLen)])
		pos += int(nameLen)

		if pos+2 > len(buf) { //nolint:mnd
			return nil, 0, fmt.Errorf("fileschema: truncated schema section at field %d length", i)
		}

		fieldLen, err := codec.DecodeInt(buf[pos : pos+2])
		if err != nil {
			return nil, 0, fmt.Errorf("fileschema: decode field length: %w", err)
		}

		pos += 2

		fields = append(fields, Field{Name: name, Length: int(fieldLen)})
	}

	return &Schema{fields: fields}, pos, nil
}

// Encode serializes the schema section: F entries of (name-length, name,
// field-length). It does not include the leading field-count header word;
// callers that own the full file header write that separately.
func (s *Schema) Encode() []byte {
	var buf []byte

	for _, f := range s.fields {
		buf = append(buf, codec.PutUint16(uint16(len(f.Name)))...) //nolint:gosec
		buf = append(buf, []byte(f.Name)...)
		buf = append(buf, codec.PutUint16(uint16(f.Length))...) //nolint:gosec
	}

	return buf
}

// FieldCount returns the number of physical fields.
func (s *Schema) FieldCount() int {
	return len(s.fields)
}

// FieldName returns the name of field i.
func (s *Schema) FieldName(i int) string {
	return s.fields[i].Name
}

// FieldLength returns the byte length of field i.
func (s *Schema) FieldLength(i int) (int, error) {
	if i < 0 || i >= len(s.fields) {
		return 0, fmt.Errorf("%w: index %d", ErrFieldNotExist, i)
	}

	return s.fields[i].Length, nil
}

// CumulativeLengthBefore returns the sum of field lengths for fields
// [0, i), i.e. the byte offset of field i within a record.
func (s *Schema) CumulativeLengthBefore(i int) (int, error) {
	if i < 0 || i > len(s.fields) {
		return 0, fmt.Errorf("%w: index %d", ErrFieldNotExist, i)
	}

	total := 0
	for j := 0; j < i; j++ {
		total += s.fields[j].Length
	}

	return total, nil
}

// IndexOf returns the position of the field named name.
func (s *Schema) IndexOf(name string) (int, error) {
	for i, f := range s.fields {
		if f.Name == name {
			return i, nil
		}
	}

	return 0, fmt.Errorf("%w: %s", ErrFieldNotExist, name)
}

// IsFieldPresent reports whether a field named name exists.
func (s *Schema) IsFieldPresent(name string) bool {
	_, err := s.IndexOf(name)

	return err == nil
}

// TotalLength returns R, the sum of all field lengths.
func (s *Schema) TotalLength() int {
	total := 0
	for _, f := range s.fields {
		total += f.Length
	}

	return total
}

// SplitField replaces field i with newFields, inserted in order at position
// i. The sum of newFields' lengths must equal the original field's length;
// otherwise ErrSplitLengthMismatch is returned and the schema is unchanged.
// This never touches disk: it only changes this in-memory representation.
func (s *Schema) SplitField(i int, newFields []Field) error {
	if i < 0 || i >= len(s.fields) {
		return fmt.Errorf("%w: index %d", ErrFieldNotExist, i)
	}

	original := s.fields[i]

	sum := 0
	for _, f := range newFields {
		sum += f.Length
	}

	if sum != original.Length {
		return fmt.Errorf("%w: field %q is %d bytes, replacements sum to %d",
			ErrSplitLengthMismatch, original.Name, original.Length, sum)
	}

	replaced := make([]Field, 0, len(s.fields)+len(newFields)-1)
	replaced = append(replaced, s.fields[:i]...)
	replaced = append(replaced, newFields...)
	replaced = append(replaced, s.fields[i+1:]...)

	s.fields = replaced

	return nil
}
