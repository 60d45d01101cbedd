package dataset

import (
	"bytes"
	"encoding/csv"
	"io"

	"github.com/Lllllllleong/clinicaltrialexplorer/internal/models"
	"github.com/vmihailenco/msgpack/v5"
)

// Table is the reconciled, column-aligned view of a dataset. Cells of rows that
// never saw a column are nil.
type Table struct {
	Columns []Column `json:"columns" msgpack:"columns"`
	Rows    [][]any  `json:"rows" msgpack:"rows"`
}

// Table projects the dataset onto its full column set.
func (d *Dataset) Table() *Table {
	t := &Table{
		Columns: append([]Column(nil), d.Columns...),
		Rows:    make([][]any, 0, len(d.Rows)),
	}
	for _, r := range d.Rows {
		cells := make([]any, len(t.Columns))
		for i, c := range t.Columns {
			cells[i] = r[c.Name] // nil when absent
		}
		t.Rows = append(t.Rows, cells)
	}
	return t
}

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// WriteCSV writes a header row followed by one line per row. Nulls are empty cells.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.ColumnNames()); err != nil {
		return err
	}
	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, v := range row {
			record[i] = models.FormatScalar(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSV renders the table as CSV bytes.
func (t *Table) CSV() ([]byte, error) {
	var buf bytes.Buffer
	if err := t.WriteCSV(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Msgpack renders the table in MessagePack for compact transfer to the grid.
func (t *Table) Msgpack() ([]byte, error) {
	return msgpack.Marshal(t)
}
