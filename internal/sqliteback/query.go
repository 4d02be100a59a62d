package sqliteback

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/simrec/internal/datum"
)

// Cond is one WHERE clause term: Field Op Value.
type Cond struct {
	Field string
	Op    string
	Value datum.Value
}

var validOps = map[string]bool{
	"=": true, "!=": true, "<": true, ">": true, "<=": true, ">=": true,
}

// QueryResult holds the rows of a Query. Fields and Kinds describe the
// columns in table order; a nil cell is a NULL (the record omitted it).
type QueryResult struct {
	Fields []string
	Kinds  []datum.Kind
	Rows   [][]datum.Value
}

// TableInfo returns the recorded columns of table, in column order.
func (b *Backend) TableInfo(ctx context.Context, table string) (datum.Schema, error) {
	if b.db == nil {
		return nil, errClosed(b.path)
	}
	rows, err := b.db.QueryContext(ctx, `
		SELECT Field, Type FROM FieldTypes
		WHERE TableName = ? COLLATE NOCASE
		ORDER BY rowid ASC
	`, table)
	if err != nil {
		return nil, fmt.Errorf("query field types: %w", err)
	}
	defer rows.Close()

	var schema datum.Schema
	for rows.Next() {
		var (
			name string
			code int
		)
		if err := rows.Scan(&name, &code); err != nil {
			return nil, fmt.Errorf("scan field type: %w", err)
		}
		kind := datum.Kind(code)
		if !kind.Valid() {
			return nil, fmt.Errorf("table %s column %s: invalid kind code %d", table, name, code)
		}
		schema = append(schema, datum.Column{Name: name, Kind: kind})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate field types: %w", err)
	}
	if len(schema) == 0 {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return schema, nil
}

// Tables lists every recorded table in name order.
func (b *Backend) Tables(ctx context.Context) ([]string, error) {
	if b.db == nil {
		return nil, errClosed(b.path)
	}
	rows, err := b.db.QueryContext(ctx, `
		SELECT DISTINCT TableName FROM FieldTypes
		ORDER BY TableName ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return names, nil
}

// Query returns every row of table matching all conds, in insertion order.
func (b *Backend) Query(ctx context.Context, table string, conds ...Cond) (*QueryResult, error) {
	if b.db == nil {
		return nil, errClosed(b.path)
	}
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	schema, err := b.TableInfo(ctx, table)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(schema.Names(), ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(table)

	args := make([]any, 0, len(conds))
	for i, c := range conds {
		if _, ok := schema.Lookup(c.Field); !ok {
			return nil, fmt.Errorf("table %s has no column %q", table, c.Field)
		}
		if !validOps[c.Op] {
			return nil, fmt.Errorf("invalid operator %q", c.Op)
		}
		arg, err := bindValue(c.Value)
		if err != nil {
			return nil, fmt.Errorf("condition on %s: %w", c.Field, err)
		}
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		sb.WriteString(c.Field + " " + c.Op + " ?")
		args = append(args, arg)
	}
	sb.WriteString(" ORDER BY rowid ASC")

	rows, err := b.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	result := &QueryResult{
		Fields: schema.Names(),
		Kinds:  make([]datum.Kind, len(schema)),
		Rows:   [][]datum.Value{},
	}
	for i, col := range schema {
		result.Kinds[i] = col.Kind
	}

	for rows.Next() {
		raw := make([]any, len(schema))
		dest := make([]any, len(schema))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		row := make([]datum.Value, len(schema))
		for i, col := range schema {
			v, err := decodeValue(col.Kind, raw[i])
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", table, col.Name, err)
			}
			row[i] = v
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return result, nil
}

// decodeValue converts a scanned cell into a typed value. NULL decodes to nil.
func decodeValue(kind datum.Kind, raw any) (datum.Value, error) {
	if raw == nil {
		return nil, nil
	}
	switch kind {
	case datum.KindInt:
		switch v := raw.(type) {
		case int64:
			return datum.NewInt(v), nil
		case float64:
			return datum.NewInt(int64(v)), nil
		}
	case datum.KindReal:
		switch v := raw.(type) {
		case float64:
			return datum.NewReal(v), nil
		case int64:
			return datum.NewReal(float64(v)), nil
		}
	case datum.KindText:
		switch v := raw.(type) {
		case string:
			return datum.NewText(v), nil
		case []byte:
			return datum.NewText(string(v)), nil
		}
	case datum.KindBlob:
		switch v := raw.(type) {
		case []byte:
			return datum.NewBlob(v), nil
		case string:
			return datum.NewBlob([]byte(v)), nil
		}
	case datum.KindRunID:
		switch v := raw.(type) {
		case string:
			return datum.ParseRunID(v)
		case []byte:
			return datum.ParseRunID(string(v))
		}
	}
	return nil, fmt.Errorf("cannot decode %T as %s", raw, kind)
}
