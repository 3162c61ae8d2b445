// Package report builds simple summaries over a table: row counts
// grouped by a field's value, with reference ids resolved to display
// labels and an optional row filter expression applied before grouping.
package report

import (
	"context"
	"fmt"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"gridbase/internal/catalog"
	"gridbase/internal/fieldtype"
	"gridbase/internal/record"
	"gridbase/internal/reference"
	"gridbase/internal/store"
)

// Reporter computes group-by summaries. Compiled filter programs are
// cached by expression string.
type Reporter struct {
	engine   *record.Engine
	catalog  *catalog.Catalog
	resolver *reference.Resolver
	cache    map[string]*vm.Program
}

func New(engine *record.Engine, cat *catalog.Catalog, resolver *reference.Resolver) *Reporter {
	return &Reporter{
		engine:   engine,
		catalog:  cat,
		resolver: resolver,
		cache:    make(map[string]*vm.Program),
	}
}

// Bucket is one group in a summary.
type Bucket struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// Summary is the result of a group-by report.
type Summary struct {
	Table   string   `json:"table"`
	GroupBy string   `json:"group_by"`
	Total   int64    `json:"total"`
	Buckets []Bucket `json:"buckets"`
}

// GroupBy counts records per distinct value of a field. For reference
// fields the bucket label is the referenced record's display label; for
// booleans it is "true"/"false"; empty values bucket under "(none)".
// filterExpr, when non-empty, is an expr-lang predicate evaluated
// against each record with the record's columns as the environment.
func (r *Reporter) GroupBy(ctx context.Context, table catalog.Table, fieldName, filterExpr string) (*Summary, error) {
	fields, err := r.catalog.ListFields(ctx, table.ID)
	if err != nil {
		return nil, err
	}
	var groupField *catalog.Field
	for i := range fields {
		if fields[i].Name == fieldName {
			groupField = &fields[i]
			break
		}
	}
	if groupField == nil {
		return nil, fmt.Errorf("%w: %s", catalog.ErrUnknownField, fieldName)
	}

	rows, err := r.engine.List(ctx, table, record.ListOptions{})
	if err != nil {
		return nil, err
	}
	if filterExpr != "" {
		rows, err = r.applyFilter(filterExpr, rows)
		if err != nil {
			return nil, err
		}
	}

	labels, err := r.bucketLabels(ctx, *groupField, rows)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64)
	for _, label := range labels {
		counts[label]++
	}
	buckets := make([]Bucket, 0, len(counts))
	for label, n := range counts {
		buckets = append(buckets, Bucket{Label: label, Count: n})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Count != buckets[j].Count {
			return buckets[i].Count > buckets[j].Count
		}
		return buckets[i].Label < buckets[j].Label
	})

	return &Summary{
		Table:   table.Name,
		GroupBy: fieldName,
		Total:   int64(len(rows)),
		Buckets: buckets,
	}, nil
}

func (r *Reporter) applyFilter(expression string, rows []map[string]any) ([]map[string]any, error) {
	prog, ok := r.cache[expression]
	if !ok {
		var err error
		prog, err = expr.Compile(expression, expr.AsBool(), expr.AllowUndefinedVariables())
		if err != nil {
			return nil, fmt.Errorf("compile filter: %w", err)
		}
		r.cache[expression] = prog
	}

	var out []map[string]any
	for _, row := range rows {
		result, err := expr.Run(prog, row)
		if err != nil {
			return nil, fmt.Errorf("evaluate filter: %w", err)
		}
		if keep, ok := result.(bool); ok && keep {
			out = append(out, row)
		}
	}
	return out, nil
}

// bucketLabels maps each row to its group label, resolving reference ids
// through the referenced table.
func (r *Reporter) bucketLabels(ctx context.Context, f catalog.Field, rows []map[string]any) ([]string, error) {
	labels := make([]string, 0, len(rows))

	if f.Type == fieldtype.Reference && f.ReferenceTableID != 0 {
		refTable, err := r.catalog.GetTable(ctx, f.ReferenceTableID)
		if err != nil {
			return nil, err
		}
		// Resolve each distinct id once.
		labelByID := make(map[int64]string)
		for _, row := range rows {
			id, ok := store.AsInt64(row[f.Name])
			if !ok {
				labels = append(labels, "(none)")
				continue
			}
			label, seen := labelByID[id]
			if !seen {
				refRow, err := r.engine.Get(ctx, *refTable, id)
				if err != nil {
					label = fmt.Sprintf("ID: %d", id)
				} else {
					label, err = r.resolver.DisplayLabel(ctx, refRow, refTable.ID, f.ReferenceDisplayField)
					if err != nil {
						return nil, err
					}
				}
				labelByID[id] = label
			}
			labels = append(labels, label)
		}
		return labels, nil
	}

	for _, row := range rows {
		labels = append(labels, scalarLabel(row[f.Name]))
	}
	return labels, nil
}

func scalarLabel(v any) string {
	switch val := v.(type) {
	case nil:
		return "(none)"
	case string:
		if val == "" {
			return "(none)"
		}
		return val
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
