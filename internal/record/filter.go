package record

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gridbase/internal/catalog"
	"gridbase/internal/fieldtype"
	"gridbase/internal/store"
)

// FilterSpec describes one per-field filter condition. Which members are
// consulted depends on Kind; the zero spec matches everything and is
// skipped.
type FilterSpec struct {
	Kind  fieldtype.FilterKind `json:"kind"`
	Value string               `json:"value,omitempty"`
	Bool  *bool                `json:"bool,omitempty"`
	Min   *float64             `json:"min,omitempty"`
	Max   *float64             `json:"max,omitempty"`
	From  string               `json:"from,omitempty"`
	To    string               `json:"to,omitempty"`
}

// empty reports whether the spec constrains anything at all.
func (s FilterSpec) empty() bool {
	switch s.Kind {
	case fieldtype.FilterNumberRange:
		return s.Min == nil && s.Max == nil
	case fieldtype.FilterDateRange:
		return s.From == "" && s.To == ""
	case fieldtype.FilterBoolean:
		return s.Bool == nil
	default:
		return s.Value == ""
	}
}

// Filter lists records matching every given condition (AND-combined).
// Reference conditions resolve one hop: the filter value is matched
// against the referenced table's text-like fields and the resulting ids
// constrain the reference column. A reference term matching nothing
// yields an empty result, not an error.
func (e *Engine) Filter(ctx context.Context, table catalog.Table, specs map[string]FilterSpec, opts ListOptions) ([]map[string]any, error) {
	fields, err := e.catalog.ListFields(ctx, table.ID)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]catalog.Field, len(fields))
	for _, f := range fields {
		byName[f.Name] = f
	}

	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)

	d := e.store.Dialect
	pb := d.NewParamBuilder()
	var clauses []string
	for _, name := range names {
		spec := specs[name]
		if spec.empty() {
			continue
		}
		f, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", catalog.ErrUnknownField, name)
		}
		clause, err := e.filterClause(ctx, d, pb, f, spec)
		if err != nil {
			return nil, err
		}
		if clause != "" {
			clauses = append(clauses, clause)
		}
	}

	if len(clauses) > 0 {
		opts.Where = strings.Join(clauses, " AND ")
		opts.WhereParams = pb.Params()
	}
	return e.List(ctx, table, opts)
}

func (e *Engine) filterClause(ctx context.Context, d store.Dialect, pb store.ParamBuilder, f catalog.Field, spec FilterSpec) (string, error) {
	switch spec.Kind {
	case fieldtype.FilterNumberRange:
		var parts []string
		if spec.Min != nil {
			parts = append(parts, fmt.Sprintf("%s >= %s", f.Name, pb.Add(*spec.Min)))
		}
		if spec.Max != nil {
			parts = append(parts, fmt.Sprintf("%s <= %s", f.Name, pb.Add(*spec.Max)))
		}
		return strings.Join(parts, " AND "), nil

	case fieldtype.FilterDateRange:
		// ISO dates compare correctly as text.
		var parts []string
		if spec.From != "" {
			parts = append(parts, fmt.Sprintf("%s >= %s", f.Name, pb.Add(spec.From)))
		}
		if spec.To != "" {
			parts = append(parts, fmt.Sprintf("%s <= %s", f.Name, pb.Add(spec.To)))
		}
		return strings.Join(parts, " AND "), nil

	case fieldtype.FilterBoolean:
		return fmt.Sprintf("%s = %s", f.Name, pb.Add(*spec.Bool)), nil

	case fieldtype.FilterDropdown:
		return fmt.Sprintf("%s = %s", f.Name, pb.Add(spec.Value)), nil

	case fieldtype.FilterReference:
		if f.Type != fieldtype.Reference || f.ReferenceTableID == 0 {
			return "", fmt.Errorf("field %s does not take a reference filter", f.Name)
		}
		ids, err := e.matchingReferenceIDs(ctx, f.ReferenceTableID, spec.Value)
		if err != nil {
			return "", err
		}
		return d.InExpr(f.Name, pb, ids), nil

	default:
		return d.FoldedMatchExpr(f.Name, pb, spec.Value), nil
	}
}

// matchingReferenceIDs searches a referenced table's text-like fields
// for a term and returns the matching record ids.
func (e *Engine) matchingReferenceIDs(ctx context.Context, refTableID int64, term string) ([]any, error) {
	refTable, err := e.catalog.GetTable(ctx, refTableID)
	if err != nil {
		return nil, err
	}
	refFields, err := e.catalog.ListFields(ctx, refTableID)
	if err != nil {
		return nil, err
	}

	d := e.store.Dialect
	pb := d.NewParamBuilder()
	var clauses []string
	for _, rf := range refFields {
		if fieldtype.IsTextLike(rf.Type) {
			clauses = append(clauses, d.FoldedMatchExpr(rf.Name, pb, term))
		}
	}
	if len(clauses) == 0 {
		return nil, nil
	}

	sqlStr := fmt.Sprintf("SELECT id FROM %s WHERE %s", refTable.Name, strings.Join(clauses, " OR "))
	rows, err := store.QueryRows(ctx, e.store.DB, sqlStr, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("resolve reference filter on %s: %w", refTable.Name, err)
	}
	ids := make([]any, 0, len(rows))
	for _, row := range rows {
		if id, ok := store.AsInt64(row["id"]); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
