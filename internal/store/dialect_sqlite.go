package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"gridbase/internal/fieldtype"
)

// SQLiteDialect implements Dialect for SQLite via modernc.org/sqlite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) Placeholder(index int) string {
	return fmt.Sprintf("?%d", index)
}

func (d *SQLiteDialect) NewParamBuilder() ParamBuilder {
	return &sqliteParamBuilder{}
}

func (d *SQLiteDialect) NowExpr() string           { return "datetime('now')" }
func (d *SQLiteDialect) ReturningIDSuffix() string { return "" }
func (d *SQLiteDialect) NeedsBoolFix() bool        { return true }

func (d *SQLiteDialect) ColumnType(kind fieldtype.ScalarKind) string {
	switch kind {
	case fieldtype.KindReal:
		return "REAL"
	case fieldtype.KindBool:
		return "BOOLEAN"
	case fieldtype.KindID:
		return "INTEGER"
	case fieldtype.KindText, fieldtype.KindStringList, fieldtype.KindIDList:
		return "TEXT"
	default:
		return "TEXT"
	}
}

func (d *SQLiteDialect) CatalogTablesSQL() string {
	return sqliteCatalogSQL
}

func (d *SQLiteDialect) ProvisionTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at TEXT DEFAULT (datetime('now')),
    updated_at TEXT DEFAULT (datetime('now'))
)`, table)
}

func (d *SQLiteDialect) DropTableSQL(table string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", table)
}

func (d *SQLiteDialect) AddColumnSQL(table, column string, kind fieldtype.ScalarKind) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, d.ColumnType(kind))
}

func (d *SQLiteDialect) TableExists(ctx context.Context, q Querier, tableName string) (bool, error) {
	var name string
	err := q.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?1",
		tableName,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *SQLiteDialect) GetColumns(ctx context.Context, q Querier, tableName string) (map[string]string, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]string)
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull int
		var dfltValue any
		var pk int
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		cols[name] = colType
	}
	return cols, rows.Err()
}

func (d *SQLiteDialect) InExpr(field string, pb ParamBuilder, values []any) string {
	if len(values) == 0 {
		return "1=0" // always false
	}
	phs := make([]string, len(values))
	for i, v := range values {
		phs[i] = pb.Add(v)
	}
	return fmt.Sprintf("%s IN (%s)", field, strings.Join(phs, ", "))
}

func (d *SQLiteDialect) FoldedMatchExpr(column string, pb ParamBuilder, term string) string {
	ph := pb.Add("%" + Fold(term) + "%")
	return fmt.Sprintf("%s(%s) LIKE %s", FoldFunc, column, ph)
}

func (d *SQLiteDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	errStr := err.Error()
	if strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "constraint failed: UNIQUE") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

// --- SQLite catalog DDL ---

const sqliteCatalogSQL = `
CREATE TABLE IF NOT EXISTS _tables (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    name         TEXT NOT NULL UNIQUE,
    display_name TEXT NOT NULL,
    created_at   TEXT DEFAULT (datetime('now')),
    updated_at   TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS _fields (
    id                      INTEGER PRIMARY KEY AUTOINCREMENT,
    table_id                INTEGER NOT NULL REFERENCES _tables(id) ON DELETE CASCADE,
    name                    TEXT NOT NULL,
    display_name            TEXT NOT NULL,
    field_type              TEXT NOT NULL,
    is_required             INTEGER NOT NULL DEFAULT 0,
    is_unique               INTEGER NOT NULL DEFAULT 0,
    show_in_list            INTEGER NOT NULL DEFAULT 1,
    cascade_delete          INTEGER NOT NULL DEFAULT 0,
    options                 TEXT,
    reference_table_id      INTEGER REFERENCES _tables(id) ON DELETE SET NULL,
    reference_display_field TEXT,
    position                INTEGER NOT NULL DEFAULT 0,
    UNIQUE(table_id, name)
);
CREATE INDEX IF NOT EXISTS idx_fields_table ON _fields(table_id);
CREATE INDEX IF NOT EXISTS idx_fields_reference ON _fields(reference_table_id);
`

// Compile-time check
var _ Dialect = (*SQLiteDialect)(nil)
