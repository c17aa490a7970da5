package sqltools

import (
	"context"
	"encoding/json"
	"strings"
)

// Dialect selects the catalog queries a Datasource understands.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Datasource runs raw SQL and returns a tabular result.
type Datasource interface {
	Query(ctx context.Context, sql string) (*Result, error)
	Dialect() Dialect
}

// Result is a table with one value slice per row, aligned with Columns.
type Result struct {
	Columns []string
	Rows    [][]any
}

// Records returns the rows as field-keyed records.
func (r *Result) Records() []Record {
	if r == nil {
		return []Record{}
	}
	out := make([]Record, 0, len(r.Rows))
	for _, row := range r.Rows {
		rec := make(Record, 0, len(r.Columns))
		for i, col := range r.Columns {
			var v any
			if i < len(row) {
				v = row[i]
			}
			rec = append(rec, Field{Name: col, Value: v})
		}
		out = append(out, rec)
	}
	return out
}

// Field is one named value of a Record.
type Field struct {
	Name  string
	Value any
}

// Record is a row keyed by column name. It marshals as a JSON object with
// keys in column order.
type Record []Field

// Get returns the value of the named column.
func (r Record) Get(name string) (any, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

func (r Record) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			b.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(normalizeValue(f.Value))
		if err != nil {
			return nil, err
		}
		b.Write(key)
		b.WriteByte(':')
		b.Write(val)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

// normalizeValue turns driver byte slices into strings so they render as
// text rather than base64.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
