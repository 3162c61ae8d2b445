// Package record implements CRUD, search, filtering, and cascade delete
// over the tables the catalog provisions. All SQL identifiers reaching
// this package were validated when the catalog accepted them; only
// values travel as parameters.
package record

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gridbase/internal/catalog"
	"gridbase/internal/fieldtype"
	"gridbase/internal/reference"
	"gridbase/internal/store"
)

type Engine struct {
	store   *store.Store
	catalog *catalog.Catalog
}

func New(c *catalog.Catalog) *Engine {
	return &Engine{store: c.Store(), catalog: c}
}

// prepareValues restricts the incoming map to defined field names, drops
// system columns, and encodes slice values into their stored form.
func prepareValues(fields []catalog.Field, values map[string]any) (map[string]any, error) {
	byName := make(map[string]catalog.Field, len(fields))
	for _, f := range fields {
		byName[f.Name] = f
	}

	out := make(map[string]any, len(values))
	for name, v := range values {
		if catalog.ReservedColumns[name] {
			continue
		}
		f, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", catalog.ErrUnknownField, name)
		}
		switch vv := v.(type) {
		case []string:
			if f.Type == fieldtype.MultiSelect {
				out[name] = fieldtype.EncodeStrings(vv)
				continue
			}
			out[name] = strings.Join(vv, ",")
		case []int64:
			out[name] = fieldtype.EncodeIDs(vv)
		default:
			out[name] = v
		}
	}
	return out, nil
}

// Insert creates a record and returns its id. Unknown keys are rejected;
// id and the timestamp columns are always ignored. An empty map still
// inserts a row so defaults apply.
func (e *Engine) Insert(ctx context.Context, table catalog.Table, values map[string]any) (int64, error) {
	fields, err := e.catalog.ListFields(ctx, table.ID)
	if err != nil {
		return 0, err
	}
	cols, err := prepareValues(fields, values)
	if err != nil {
		return 0, err
	}

	d := e.store.Dialect
	sqlStr, params := buildInsertSQL(d, table.Name, cols)
	id, err := store.InsertWithID(ctx, e.store.DB, d, sqlStr, params...)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", table.Name, d.MapError(err))
	}
	return id, nil
}

// Update overwrites the given columns and stamps updated_at. Updating an
// id that does not exist is a silent no-op; callers that need a missing
// row surfaced should Get first.
func (e *Engine) Update(ctx context.Context, table catalog.Table, id int64, values map[string]any) error {
	fields, err := e.catalog.ListFields(ctx, table.ID)
	if err != nil {
		return err
	}
	cols, err := prepareValues(fields, values)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return nil
	}

	d := e.store.Dialect
	sqlStr, params := buildUpdateSQL(d, table.Name, id, cols)
	if _, err := store.Exec(ctx, e.store.DB, sqlStr, params...); err != nil {
		return fmt.Errorf("update %s: %w", table.Name, d.MapError(err))
	}
	return nil
}

// Get fetches one record by id. Returns store.ErrNotFound when absent.
func (e *Engine) Get(ctx context.Context, table catalog.Table, id int64) (map[string]any, error) {
	d := e.store.Dialect
	pb := d.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT * FROM %s WHERE id = %s", table.Name, pb.Add(id))
	row, err := store.QueryRow(ctx, e.store.DB, sqlStr, pb.Params()...)
	if err != nil {
		return nil, err
	}
	return e.fixBooleans(ctx, table, []map[string]any{row})[0], nil
}

// List returns records per the given options. OrderBy must name a
// defined field or a system column.
func (e *Engine) List(ctx context.Context, table catalog.Table, opts ListOptions) ([]map[string]any, error) {
	if err := e.validateOrderBy(ctx, table, opts.OrderBy); err != nil {
		return nil, err
	}
	sqlStr, params := buildListSQL(e.store.Dialect, table.Name, opts)
	rows, err := store.QueryRows(ctx, e.store.DB, sqlStr, params...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table.Name, err)
	}
	return e.fixBooleans(ctx, table, rows), nil
}

// Count returns the number of records matching the optional predicate.
func (e *Engine) Count(ctx context.Context, table catalog.Table, where string, whereParams []any) (int64, error) {
	sqlStr, params := buildCountSQL(table.Name, where, whereParams)
	row, err := store.QueryRow(ctx, e.store.DB, sqlStr, params...)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table.Name, err)
	}
	n, _ := store.AsInt64(row["count"])
	return n, nil
}

// Search performs a diacritic-insensitive substring match across the
// given fields, OR-combined. An empty term or empty field list degrades
// to a plain List. Field names must belong to the table.
func (e *Engine) Search(ctx context.Context, table catalog.Table, term string, fieldNames []string, opts ListOptions) ([]map[string]any, error) {
	if term == "" || len(fieldNames) == 0 {
		return e.List(ctx, table, opts)
	}

	fields, err := e.catalog.ListFields(ctx, table.ID)
	if err != nil {
		return nil, err
	}
	defined := make(map[string]bool, len(fields))
	for _, f := range fields {
		defined[f.Name] = true
	}

	d := e.store.Dialect
	pb := d.NewParamBuilder()
	var clauses []string
	for _, name := range fieldNames {
		if !defined[name] {
			return nil, fmt.Errorf("%w: %s", catalog.ErrUnknownField, name)
		}
		clauses = append(clauses, d.FoldedMatchExpr(name, pb, term))
	}

	opts.Where = "(" + strings.Join(clauses, " OR ") + ")"
	opts.WhereParams = pb.Params()
	return e.List(ctx, table, opts)
}

// cascadeNode identifies one record during a cascade traversal.
type cascadeNode struct {
	tableID  int64
	recordID int64
}

// cascadePlan carries the catalog snapshot a cascade works from. It is
// built before the transaction opens; catalog reads inside the
// transaction would contend for the single sqlite connection.
type cascadePlan struct {
	tablesByID map[int64]catalog.Table
	allFields  []catalog.Field
}

func (e *Engine) buildCascadePlan(ctx context.Context) (*cascadePlan, error) {
	tables, err := e.catalog.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	fields, err := e.catalog.AllFields(ctx)
	if err != nil {
		return nil, err
	}
	p := &cascadePlan{tablesByID: make(map[int64]catalog.Table, len(tables)), allFields: fields}
	for _, t := range tables {
		p.tablesByID[t.ID] = t
	}
	return p, nil
}

// Delete removes a record and, transitively, every record that references
// it through a cascade-delete field. The whole traversal runs in one
// transaction; a visited set makes reference cycles terminate. Records
// referencing the deleted one through non-cascade fields keep their now
// dangling ids.
func (e *Engine) Delete(ctx context.Context, table catalog.Table, id int64) error {
	plan, err := e.buildCascadePlan(ctx)
	if err != nil {
		return err
	}

	tx, err := e.store.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	visited := make(map[cascadeNode]bool)
	if err := e.cascade(ctx, tx, plan, table, id, visited); err != nil {
		return err
	}
	return tx.Commit()
}

func (e *Engine) cascade(ctx context.Context, q store.Querier, plan *cascadePlan, table catalog.Table, id int64, visited map[cascadeNode]bool) error {
	node := cascadeNode{tableID: table.ID, recordID: id}
	if visited[node] {
		return nil
	}
	visited[node] = true

	d := e.store.Dialect
	for _, f := range reference.Sources(plan.allFields, table.ID, true) {
		source, ok := plan.tablesByID[f.TableID]
		if !ok {
			continue
		}
		sqlStr, params := reference.CandidateQuery(d, source.Name, f, id)
		rows, err := store.QueryRows(ctx, q, sqlStr, params...)
		if err != nil {
			return fmt.Errorf("cascade scan %s.%s: %w", source.Name, f.Name, err)
		}
		for _, row := range rows {
			if !reference.MatchesValue(f, row[f.Name], id) {
				continue
			}
			childID, ok := store.AsInt64(row["id"])
			if !ok {
				continue
			}
			if err := e.cascade(ctx, q, plan, source, childID, visited); err != nil {
				return err
			}
		}
	}

	pb := d.NewParamBuilder()
	sqlStr := fmt.Sprintf("DELETE FROM %s WHERE id = %s", table.Name, pb.Add(id))
	if _, err := store.Exec(ctx, q, sqlStr, pb.Params()...); err != nil {
		return fmt.Errorf("delete from %s: %w", table.Name, err)
	}
	return nil
}

func (e *Engine) validateOrderBy(ctx context.Context, table catalog.Table, orderBy string) error {
	if orderBy == "" || catalog.ReservedColumns[orderBy] {
		return nil
	}
	fields, err := e.catalog.ListFields(ctx, table.ID)
	if err != nil {
		return err
	}
	for _, f := range fields {
		if f.Name == orderBy {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", catalog.ErrUnknownField, orderBy)
}

// fixBooleans rewrites integer booleans into real ones on drivers that
// lack a boolean column type.
func (e *Engine) fixBooleans(ctx context.Context, table catalog.Table, rows []map[string]any) []map[string]any {
	if !e.store.Dialect.NeedsBoolFix() || len(rows) == 0 {
		return rows
	}
	fields, err := e.catalog.ListFields(ctx, table.ID)
	if err != nil {
		return rows
	}
	var boolFields []string
	for _, f := range fields {
		if f.Type == fieldtype.Boolean {
			boolFields = append(boolFields, f.Name)
		}
	}
	if len(boolFields) == 0 {
		return rows
	}
	sort.Strings(boolFields)
	store.NormalizeBooleans(rows, boolFields)
	return rows
}
