// Package reference resolves reference and multireference field values:
// it turns raw ids into human labels and discovers which records across
// all tables point at a given record. Every caller that needs either
// behavior goes through this package so labeling and reference-graph
// scans stay consistent.
package reference

import (
	"context"
	"fmt"

	"gridbase/internal/catalog"
	"gridbase/internal/fieldtype"
	"gridbase/internal/store"
)

type Resolver struct {
	store   *store.Store
	catalog *catalog.Catalog
}

func NewResolver(c *catalog.Catalog) *Resolver {
	return &Resolver{store: c.Store(), catalog: c}
}

// Sources filters a field list down to reference fields targeting the
// given table. With cascadeOnly set, only fields whose cascade-delete flag
// is on are returned. Pure; both the cascade scan and the
// "who points at me" scan enumerate through here.
func Sources(fields []catalog.Field, targetTableID int64, cascadeOnly bool) []catalog.Field {
	var out []catalog.Field
	for _, f := range fields {
		if !fieldtype.IsReference(f.Type) || f.ReferenceTableID != targetTableID {
			continue
		}
		if cascadeOnly && !f.CascadeDelete {
			continue
		}
		out = append(out, f)
	}
	return out
}

// CandidateQuery builds the statement selecting candidate rows of a
// source table whose reference field may hold targetID. Single references
// match exactly; multireference columns are prefiltered with a substring
// match and must be confirmed with MatchesValue.
func CandidateQuery(d store.Dialect, sourceTable string, f catalog.Field, targetID int64) (string, []any) {
	pb := d.NewParamBuilder()
	if f.Type == fieldtype.MultiReference {
		ph := pb.Add(fmt.Sprintf("%%%d%%", targetID))
		return fmt.Sprintf("SELECT * FROM %s WHERE %s LIKE %s", sourceTable, f.Name, ph), pb.Params()
	}
	ph := pb.Add(targetID)
	return fmt.Sprintf("SELECT * FROM %s WHERE %s = %s", sourceTable, f.Name, ph), pb.Params()
}

// MatchesValue confirms that a reference column value actually holds
// targetID. Needed for multireference candidates, where the SQL prefilter
// also matches ids that merely contain the digits.
func MatchesValue(f catalog.Field, value any, targetID int64) bool {
	if f.Type == fieldtype.MultiReference {
		ids, err := fieldtype.DecodeIDs(value)
		if err != nil {
			return false
		}
		for _, id := range ids {
			if id == targetID {
				return true
			}
		}
		return false
	}
	id, ok := store.AsInt64(value)
	return ok && id == targetID
}

// DisplayLabel returns a human-readable label for a record of the
// referenced table. Priority: the preferred display field when set and
// non-empty, then the first non-empty text-like field in declared order,
// then the first non-empty non-id field, then "ID: <id>".
func (r *Resolver) DisplayLabel(ctx context.Context, record map[string]any, referencedTableID int64, preferredField string) (string, error) {
	if preferredField != "" {
		if s := stringValue(record[preferredField]); s != "" {
			return s, nil
		}
	}

	fields, err := r.catalog.ListFields(ctx, referencedTableID)
	if err != nil {
		return "", err
	}

	for _, f := range fields {
		if f.Name == "id" || !fieldtype.IsTextLike(f.Type) {
			continue
		}
		if s := stringValue(record[f.Name]); s != "" {
			return s, nil
		}
	}

	for _, f := range fields {
		if f.Name == "id" {
			continue
		}
		if s := stringValue(record[f.Name]); s != "" {
			return s, nil
		}
	}

	id, _ := store.AsInt64(record["id"])
	return fmt.Sprintf("ID: %d", id), nil
}

// Referencing is one record found pointing at a target record.
type Referencing struct {
	SourceTable catalog.Table  `json:"source_table"`
	Field       catalog.Field  `json:"field"`
	Record      map[string]any `json:"record"`
}

// FindReferencingRecords scans every table's reference fields for rows
// pointing at the given record. This is the non-deleting sibling of the
// cascade-delete scan.
func (r *Resolver) FindReferencingRecords(ctx context.Context, targetTableID, targetRecordID int64) ([]Referencing, error) {
	tables, err := r.catalog.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]catalog.Table, len(tables))
	for _, t := range tables {
		byID[t.ID] = t
	}

	fields, err := r.catalog.AllFields(ctx)
	if err != nil {
		return nil, err
	}

	var results []Referencing
	for _, f := range Sources(fields, targetTableID, false) {
		source, ok := byID[f.TableID]
		if !ok {
			continue
		}
		sqlStr, params := CandidateQuery(r.store.Dialect, source.Name, f, targetRecordID)
		rows, err := store.QueryRows(ctx, r.store.DB, sqlStr, params...)
		if err != nil {
			return nil, fmt.Errorf("scan %s.%s: %w", source.Name, f.Name, err)
		}
		for _, row := range rows {
			if !MatchesValue(f, row[f.Name], targetRecordID) {
				continue
			}
			results = append(results, Referencing{SourceTable: source, Field: f, Record: row})
		}
	}
	return results, nil
}

func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprintf("%v", s)
	}
}
