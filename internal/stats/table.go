// Package stats holds statistic tables: non-spatial rows keyed by the same
// identifier as a boundary layer.
package stats

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Table is a keyed statistics table. Cells are kept as loaded; numeric
// coercion happens when a dataset is built.
type Table struct {
	KeyField string
	Header   []string

	index map[string]int
	rows  map[string][]string
	order []string
}

// New builds a Table from a header and data rows. The key column is matched
// exactly, then case-insensitively. Rows with an empty key are skipped; a
// repeated key is an error.
func New(keyField string, header []string, rows [][]string) (*Table, error) {
	t := &Table{
		KeyField: keyField,
		Header:   header,
		index:    make(map[string]int, len(header)),
		rows:     make(map[string][]string, len(rows)),
	}
	for i, h := range header {
		if _, dup := t.index[h]; !dup {
			t.index[h] = i
		}
	}

	keyCol, ok := t.column(keyField)
	if !ok {
		return nil, eris.Errorf("stats: key field %q not in header %v", keyField, header)
	}
	t.KeyField = header[keyCol]

	for n, row := range rows {
		if keyCol >= len(row) {
			continue
		}
		key := strings.TrimSpace(row[keyCol])
		if key == "" {
			continue
		}
		if _, dup := t.rows[key]; dup {
			return nil, eris.Errorf("stats: duplicate key %q at row %d", key, n+1)
		}
		if len(row) < len(header) {
			padded := make([]string, len(header))
			copy(padded, row)
			row = padded
		}
		t.rows[key] = row
		t.order = append(t.order, key)
	}
	return t, nil
}

func (t *Table) column(field string) (int, bool) {
	if i, ok := t.index[field]; ok {
		return i, true
	}
	for i, h := range t.Header {
		if strings.EqualFold(h, field) {
			return i, true
		}
	}
	return -1, false
}

// Has reports whether field is a column of the table.
func (t *Table) Has(field string) bool {
	_, ok := t.column(field)
	return ok
}

// Index returns the column position of field, or -1.
func (t *Table) Index(field string) int {
	i, _ := t.column(field)
	return i
}

// Row returns the raw cells for key.
func (t *Table) Row(key string) ([]string, bool) {
	r, ok := t.rows[key]
	return r, ok
}

// Keys returns row keys in load order.
func (t *Table) Keys() []string {
	return t.order
}

// Len returns the number of keyed rows.
func (t *Table) Len() int {
	return len(t.order)
}
