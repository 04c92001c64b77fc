// Package table holds the small in-memory table the assemblers build and the
// storage backends export.
package table

import (
	"slices"
	"strings"
	"time"
)

// DateColumn is the column Materialize parses into time.Time values.
const DateColumn = "date"

// dateLayouts are the formats seen in API payloads, tried in order.
var dateLayouts = []string{
	"20060102T150405Z",
	time.RFC3339,
	"20060102150405",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Row is one record keyed by column name. Missing keys read as null.
type Row map[string]any

// Table is an ordered list of rows sharing a column set.
type Table struct {
	Columns []string
	Rows    []Row
}

// New returns an empty table with the given columns.
func New(columns ...string) *Table {
	return &Table{Columns: slices.Clone(columns)}
}

// FromRecords builds a table from flat records and parses DateColumn.
// Values in DateColumn that do not parse are stored as nil.
func FromRecords(records []map[string]any) *Table {
	t := &Table{Rows: make([]Row, 0, len(records))}
	seen := make(map[string]struct{})
	for _, rec := range records {
		row := make(Row, len(rec))
		for k, v := range rec {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				t.Columns = append(t.Columns, k)
			}
			if k == DateColumn {
				if ts, ok := ParseDate(v); ok {
					v = ts
				} else {
					v = nil
				}
			}
			row[k] = v
		}
		t.Rows = append(t.Rows, row)
	}
	slices.Sort(t.Columns)
	return t
}

// ParseDate converts a string or time value into a UTC time.
func ParseDate(v any) (time.Time, bool) {
	switch d := v.(type) {
	case time.Time:
		return d.UTC(), true
	case string:
		d = strings.TrimSpace(d)
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, d); err == nil {
				return ts.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// Len returns the number of rows; a nil table has none.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Append adds a row, extending the column set with any new keys.
func (t *Table) Append(r Row) {
	for k := range r {
		if !slices.Contains(t.Columns, k) {
			t.Columns = append(t.Columns, k)
		}
	}
	t.Rows = append(t.Rows, r)
}

// Column returns the values of one column in row order.
func (t *Table) Column(name string) []any {
	if t == nil {
		return nil
	}
	out := make([]any, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r[name]
	}
	return out
}

// Filter returns a new table holding the rows keep accepts.
func (t *Table) Filter(keep func(Row) bool) *Table {
	out := New()
	if t == nil {
		return out
	}
	out.Columns = slices.Clone(t.Columns)
	for _, r := range t.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// Concat joins tables in argument order. Nil tables are skipped, so a
// failed chunk contributes nothing. The result is never nil.
func Concat(tables ...*Table) *Table {
	out := New()
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, c := range t.Columns {
			if !slices.Contains(out.Columns, c) {
				out.Columns = append(out.Columns, c)
			}
		}
		out.Rows = append(out.Rows, t.Rows...)
	}
	return out
}
