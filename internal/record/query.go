package record

import (
	"fmt"
	"sort"
	"strings"

	"gridbase/internal/store"
)

// ListOptions shapes a list/count query over one dynamic table. Where must
// be built against a fresh ParamBuilder of the store's dialect, with its
// parameters in WhereParams; identifiers inside it come from catalog
// metadata, never from raw caller input.
type ListOptions struct {
	Limit       int // 0 = unbounded
	Offset      int
	OrderBy     string // defaults to id
	OrderDir    string // ASC (default) or DESC
	Where       string
	WhereParams []any
}

// buildListSQL assembles the SELECT for a list query. WhereParams are
// registered with the builder first so their placeholders stay 1..k.
func buildListSQL(d store.Dialect, table string, opts ListOptions) (string, []any) {
	pb := d.NewParamBuilder()
	for _, p := range opts.WhereParams {
		pb.Add(p)
	}

	sqlStr := fmt.Sprintf("SELECT * FROM %s", table)
	if opts.Where != "" {
		sqlStr += " WHERE " + opts.Where
	}

	orderBy := opts.OrderBy
	if orderBy == "" {
		orderBy = "id"
	}
	dir := strings.ToUpper(opts.OrderDir)
	if dir != "DESC" {
		dir = "ASC"
	}
	sqlStr += fmt.Sprintf(" ORDER BY %s %s", orderBy, dir)

	if opts.Limit > 0 {
		sqlStr += fmt.Sprintf(" LIMIT %s OFFSET %s", pb.Add(opts.Limit), pb.Add(opts.Offset))
	}

	return sqlStr, pb.Params()
}

// buildCountSQL assembles the COUNT twin of a list query, sharing its
// where clause so pagination and totals agree.
func buildCountSQL(table string, where string, whereParams []any) (string, []any) {
	sqlStr := fmt.Sprintf("SELECT COUNT(*) AS count FROM %s", table)
	if where != "" {
		sqlStr += " WHERE " + where
	}
	return sqlStr, whereParams
}

// buildInsertSQL assembles a parameterized INSERT over the given
// column/value pairs. Columns are emitted in sorted order so statements
// are deterministic. Empty data falls back to storage defaults.
func buildInsertSQL(d store.Dialect, table string, data map[string]any) (string, []any) {
	if len(data) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", table), nil
	}

	columns := make([]string, 0, len(data))
	for col := range data {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	pb := d.NewParamBuilder()
	phs := make([]string, len(columns))
	for i, col := range columns {
		phs[i] = pb.Add(data[col])
	}

	sqlStr := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(phs, ", "))
	return sqlStr, pb.Params()
}

// buildUpdateSQL assembles a parameterized UPDATE that always advances
// updated_at through the dialect's now expression.
func buildUpdateSQL(d store.Dialect, table string, id int64, data map[string]any) (string, []any) {
	columns := make([]string, 0, len(data))
	for col := range data {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	pb := d.NewParamBuilder()
	sets := make([]string, 0, len(columns)+1)
	for _, col := range columns {
		sets = append(sets, fmt.Sprintf("%s = %s", col, pb.Add(data[col])))
	}
	sets = append(sets, fmt.Sprintf("updated_at = %s", d.NowExpr()))

	sqlStr := fmt.Sprintf("UPDATE %s SET %s WHERE id = %s",
		table, strings.Join(sets, ", "), pb.Add(id))
	return sqlStr, pb.Params()
}
