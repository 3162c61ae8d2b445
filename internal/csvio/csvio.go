// Package csvio moves records in and out of tables as CSV or JSON.
// Export writes what the record engine returns; import coerces textual
// cell values into each field's stored representation and keeps going
// past bad rows, reporting them per line.
package csvio

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gridbase/internal/catalog"
	"gridbase/internal/fieldtype"
	"gridbase/internal/record"
)

type IO struct {
	engine  *record.Engine
	catalog *catalog.Catalog
}

func New(engine *record.Engine, cat *catalog.Catalog) *IO {
	return &IO{engine: engine, catalog: cat}
}

// RowError reports one rejected import row. Row is the 1-based data row:
// CSV rows after the header, JSON array elements.
type RowError struct {
	Row int    `json:"row"`
	Err string `json:"error"`
}

// ImportResult summarizes an import run.
type ImportResult struct {
	Inserted int        `json:"inserted"`
	Skipped  int        `json:"skipped"`
	Errors   []RowError `json:"errors,omitempty"`
}

// Template writes a CSV header row with the table's field names, for
// users preparing an import file.
func (x *IO) Template(ctx context.Context, w io.Writer, table catalog.Table) error {
	fields, err := x.catalog.ListFields(ctx, table.ID)
	if err != nil {
		return err
	}
	header := make([]string, 0, len(fields))
	for _, f := range fields {
		header = append(header, f.Name)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write template header: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

// ExportCSV writes the table's records as CSV: id, the defined fields in
// declared order, then the timestamps.
func (x *IO) ExportCSV(ctx context.Context, w io.Writer, table catalog.Table, opts record.ListOptions) error {
	fields, err := x.catalog.ListFields(ctx, table.ID)
	if err != nil {
		return err
	}
	rows, err := x.engine.List(ctx, table, opts)
	if err != nil {
		return err
	}

	columns := []string{"id"}
	for _, f := range fields {
		columns = append(columns, f.Name)
	}
	columns = append(columns, "created_at", "updated_at")

	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	cells := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			cells[i] = cellString(row[col])
		}
		if err := cw.Write(cells); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportJSON writes the table's records as a JSON array.
func (x *IO) ExportJSON(ctx context.Context, w io.Writer, table catalog.Table, opts record.ListOptions) error {
	rows, err := x.engine.List(ctx, table, opts)
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

// ImportCSV reads CSV rows and inserts them. Header names must be
// defined fields; id and timestamp columns in the header are ignored.
// Rows that fail to insert are skipped and reported, not fatal.
func (x *IO) ImportCSV(ctx context.Context, r io.Reader, table catalog.Table) (*ImportResult, error) {
	fields, err := x.catalog.ListFields(ctx, table.ID)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]catalog.Field, len(fields))
	for _, f := range fields {
		byName[f.Name] = f
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for _, col := range header {
		if catalog.ReservedColumns[col] {
			continue
		}
		if _, ok := byName[col]; !ok {
			return nil, fmt.Errorf("%w: %s", catalog.ErrUnknownField, col)
		}
	}

	result := &ImportResult{}
	row := 0
	for {
		cells, err := cr.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, RowError{Row: row, Err: err.Error()})
			continue
		}

		values := make(map[string]any)
		for i, col := range header {
			if i >= len(cells) || catalog.ReservedColumns[col] {
				continue
			}
			f := byName[col]
			if v := fieldtype.CoerceImport(f.Type, cells[i]); v != nil {
				values[col] = v
			}
		}
		if _, err := x.engine.Insert(ctx, table, values); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, RowError{Row: row, Err: err.Error()})
			continue
		}
		result.Inserted++
	}
	return result, nil
}

// ImportJSON reads a JSON array of objects and inserts each one. String
// values pass through the same coercion as CSV cells; already-typed
// values are taken as-is.
func (x *IO) ImportJSON(ctx context.Context, r io.Reader, table catalog.Table) (*ImportResult, error) {
	fields, err := x.catalog.ListFields(ctx, table.ID)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]catalog.Field, len(fields))
	for _, f := range fields {
		byName[f.Name] = f
	}

	var rows []map[string]any
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	result := &ImportResult{}
	for i, row := range rows {
		values := make(map[string]any)
		bad := false
		for col, v := range row {
			if catalog.ReservedColumns[col] {
				continue
			}
			f, ok := byName[col]
			if !ok {
				result.Skipped++
				result.Errors = append(result.Errors, RowError{Row: i + 1, Err: fmt.Sprintf("unknown field: %s", col)})
				bad = true
				break
			}
			if s, isStr := v.(string); isStr {
				if cv := fieldtype.CoerceImport(f.Type, s); cv != nil {
					values[col] = cv
				}
				continue
			}
			if v != nil {
				values[col] = v
			}
		}
		if bad {
			continue
		}
		if _, err := x.engine.Insert(ctx, table, values); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, RowError{Row: i + 1, Err: err.Error()})
			continue
		}
		result.Inserted++
	}
	return result, nil
}

func cellString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.Format("2006-01-02 15:04:05")
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
