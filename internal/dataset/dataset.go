// Package dataset models the cumulative table of extracted trial fields and reads
// it back out of the object store.
//
// The table is stored as a single JSON document so that appending a row is one
// conditional write. Column types are fixed by the first non-null value committed
// for them; later rows must agree.
package dataset

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Lllllllleong/clinicaltrialexplorer/internal/models"
)

// ColumnType is the established type of a column.
type ColumnType string

const (
	// TypeUnknown marks a column that has only ever held nulls.
	TypeUnknown ColumnType = ""
	TypeString  ColumnType = "string"
	TypeNumber  ColumnType = "number"
	TypeBool    ColumnType = "bool"
)

// Fixed leading columns present on every row.
const (
	ColumnFilename    = "filename"
	ColumnFingerprint = "fingerprint"
)

var (
	// ErrTypeMismatch is returned when a value disagrees with its column's type.
	ErrTypeMismatch = errors.New("column type mismatch")
	// ErrDuplicateRow is returned when appending a fingerprint already present.
	ErrDuplicateRow = errors.New("fingerprint already present")
)

// Column describes one column of the table.
type Column struct {
	Name string     `json:"name" msgpack:"name"`
	Type ColumnType `json:"type" msgpack:"type"`
}

// Row is one committed record keyed by column name.
type Row map[string]any

// Dataset is the persisted form of the cumulative table.
type Dataset struct {
	Columns []Column `json:"columns"`
	Rows    []Row    `json:"rows"`

	index   map[string]int // column name -> position in Columns
	byPrint map[string]int // fingerprint -> position in Rows
}

// New returns an empty dataset with only the fixed columns.
func New() *Dataset {
	d := &Dataset{
		Columns: []Column{
			{Name: ColumnFilename, Type: TypeString},
			{Name: ColumnFingerprint, Type: TypeString},
		},
		Rows: []Row{},
	}
	d.reindex()
	return d
}

// Decode parses a persisted dataset. Missing fixed columns are restored.
func Decode(data []byte) (*Dataset, error) {
	var d Dataset
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to decode dataset: %w", err)
	}
	fixed := New()
	for _, c := range d.Columns {
		if c.Name == ColumnFilename || c.Name == ColumnFingerprint {
			continue
		}
		fixed.Columns = append(fixed.Columns, c)
	}
	fixed.Rows = d.Rows
	if fixed.Rows == nil {
		fixed.Rows = []Row{}
	}
	fixed.reindex()
	return fixed, nil
}

// Encode serialises the dataset for storage.
func (d *Dataset) Encode() ([]byte, error) {
	return json.Marshal(d)
}

func (d *Dataset) reindex() {
	d.index = make(map[string]int, len(d.Columns))
	for i, c := range d.Columns {
		d.index[c.Name] = i
	}
	d.byPrint = make(map[string]int, len(d.Rows))
	for i, r := range d.Rows {
		if fp, ok := r[ColumnFingerprint].(string); ok {
			d.byPrint[fp] = i
		}
	}
}

// Len reports the number of rows.
func (d *Dataset) Len() int { return len(d.Rows) }

// Contains reports whether a row with fingerprint exists.
func (d *Dataset) Contains(fingerprint string) bool {
	_, ok := d.byPrint[fingerprint]
	return ok
}

// Position returns the index in Rows of the row with fingerprint.
func (d *Dataset) Position(fingerprint string) (int, bool) {
	i, ok := d.byPrint[fingerprint]
	return i, ok
}

// Column returns the column named name.
func (d *Dataset) Column(name string) (Column, bool) {
	i, ok := d.index[name]
	if !ok {
		return Column{}, false
	}
	return d.Columns[i], true
}

// Check validates form data against the established column types without
// modifying the dataset.
func (d *Dataset) Check(fd models.FormData) error {
	for _, f := range fd {
		if f.Name == ColumnFilename || f.Name == ColumnFingerprint {
			return fmt.Errorf("%w: %q is a reserved column", ErrTypeMismatch, f.Name)
		}
		t, ok := TypeOf(f.Value)
		if !ok {
			return fmt.Errorf("%w: %q holds unsupported value %T", ErrTypeMismatch, f.Name, f.Value)
		}
		if t == TypeUnknown {
			continue
		}
		col, exists := d.Column(f.Name)
		if exists && col.Type != TypeUnknown && col.Type != t {
			return fmt.Errorf("%w: %q is %s, got %s", ErrTypeMismatch, f.Name, col.Type, t)
		}
	}
	return nil
}

// Append adds a row, registering new columns and fixing types of columns that
// see their first non-null value.
func (d *Dataset) Append(filename, fingerprint string, fd models.FormData) error {
	if d.index == nil {
		d.reindex()
	}
	if d.Contains(fingerprint) {
		return ErrDuplicateRow
	}
	if err := d.Check(fd); err != nil {
		return err
	}

	row := make(Row, len(fd)+2)
	row[ColumnFilename] = filename
	row[ColumnFingerprint] = fingerprint
	for _, f := range fd {
		t, _ := TypeOf(f.Value)
		i, exists := d.index[f.Name]
		if !exists {
			d.Columns = append(d.Columns, Column{Name: f.Name, Type: t})
			d.index[f.Name] = len(d.Columns) - 1
		} else if d.Columns[i].Type == TypeUnknown {
			d.Columns[i].Type = t
		}
		row[f.Name] = f.Value
	}
	d.Rows = append(d.Rows, row)
	d.byPrint[fingerprint] = len(d.Rows) - 1
	return nil
}

// TypeOf maps a scalar onto a column type. Nil maps to TypeUnknown.
func TypeOf(v any) (ColumnType, bool) {
	switch v.(type) {
	case nil:
		return TypeUnknown, true
	case string:
		return TypeString, true
	case float64, float32, int, int64, int32:
		return TypeNumber, true
	case bool:
		return TypeBool, true
	default:
		return TypeUnknown, false
	}
}
