package table

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"
)

// ErrNoColumns is returned when encoding a table without any column.
var ErrNoColumns = errors.New("table has no columns")

type columnKind int

const (
	kindString columnKind = iota
	kindDouble
	kindBool
	kindTime
)

func kindOf(v any) (columnKind, bool) {
	switch v.(type) {
	case nil:
		return 0, false
	case string:
		return kindString, true
	case float64, float32, int, int64, int32, json.Number:
		return kindDouble, true
	case bool:
		return kindBool, true
	case time.Time:
		return kindTime, true
	default:
		return kindString, true
	}
}

// inferKind picks the column type from its non-null values. Mixed columns
// fall back to strings.
func inferKind(t *Table, col string) columnKind {
	kind, found := kindString, false
	for _, r := range t.Rows {
		k, ok := kindOf(r[col])
		if !ok {
			continue
		}
		if !found {
			kind, found = k, true
			continue
		}
		if k != kind {
			return kindString
		}
	}
	return kind
}

func nodeFor(k columnKind) parquet.Node {
	switch k {
	case kindDouble:
		return parquet.Optional(parquet.Leaf(parquet.DoubleType))
	case kindBool:
		return parquet.Optional(parquet.Leaf(parquet.BooleanType))
	case kindTime:
		return parquet.Optional(parquet.Timestamp(parquet.Nanosecond))
	default:
		return parquet.Optional(parquet.String())
	}
}

func valueFor(k columnKind, v any) (parquet.Value, bool) {
	if v == nil {
		return parquet.Value{}, false
	}
	switch k {
	case kindDouble:
		switch n := v.(type) {
		case float64:
			return parquet.DoubleValue(n), true
		case float32:
			return parquet.DoubleValue(float64(n)), true
		case int:
			return parquet.DoubleValue(float64(n)), true
		case int64:
			return parquet.DoubleValue(float64(n)), true
		case int32:
			return parquet.DoubleValue(float64(n)), true
		case json.Number:
			f, err := n.Float64()
			if err != nil {
				return parquet.Value{}, false
			}
			return parquet.DoubleValue(f), true
		}
	case kindBool:
		if b, ok := v.(bool); ok {
			return parquet.BooleanValue(b), true
		}
	case kindTime:
		if ts, ok := v.(time.Time); ok {
			return parquet.Int64Value(ts.UnixNano()), true
		}
	}
	switch s := v.(type) {
	case string:
		return parquet.ByteArrayValue([]byte(s)), true
	case map[string]any, []any:
		b, err := json.Marshal(s)
		if err != nil {
			return parquet.Value{}, false
		}
		return parquet.ByteArrayValue(b), true
	default:
		return parquet.ByteArrayValue([]byte(fmt.Sprint(s))), true
	}
}

// WriteParquet encodes t as a single parquet file. Every column is optional
// so absent keys round-trip as nulls.
func WriteParquet(w io.Writer, t *Table) error {
	if t == nil || len(t.Columns) == 0 {
		return ErrNoColumns
	}

	kinds := make(map[string]columnKind, len(t.Columns))
	group := make(parquet.Group, len(t.Columns))
	for _, c := range t.Columns {
		kinds[c] = inferKind(t, c)
		group[c] = nodeFor(kinds[c])
	}
	schema := parquet.NewSchema("table", group)
	fields := schema.Fields()

	rows := make([]parquet.Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		row := make(parquet.Row, len(fields))
		for i, f := range fields {
			v, ok := valueFor(kinds[f.Name()], r[f.Name()])
			if !ok {
				row[i] = parquet.NullValue().Level(0, 0, i)
				continue
			}
			row[i] = v.Level(0, 1, i)
		}
		rows = append(rows, row)
	}

	pw := parquet.NewWriter(w, schema)
	if _, err := pw.WriteRows(rows); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

// EncodeParquet is WriteParquet into a byte slice.
func EncodeParquet(t *Table) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteParquet(&buf, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeParquet reads a table written by WriteParquet. Column order follows
// the file schema.
func DecodeParquet(data []byte) (*Table, error) {
	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	reader := parquet.NewReader(f)
	defer reader.Close()

	fields := reader.Schema().Fields()
	t := New()
	for _, field := range fields {
		t.Columns = append(t.Columns, field.Name())
	}

	buf := make([]parquet.Row, 128)
	for {
		n, readErr := reader.ReadRows(buf)
		for _, row := range buf[:n] {
			out := make(Row, len(fields))
			for _, v := range row {
				col := v.Column()
				if col < 0 || col >= len(fields) || v.IsNull() {
					continue
				}
				out[fields[col].Name()] = fromValue(fields[col], v)
			}
			t.Rows = append(t.Rows, out)
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("read parquet rows: %w", readErr)
		}
	}
	return t, nil
}

func fromValue(field parquet.Field, v parquet.Value) any {
	switch field.Type().Kind() {
	case parquet.Double:
		return v.Double()
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int64:
		return time.Unix(0, v.Int64()).UTC()
	default:
		return string(v.ByteArray())
	}
}
