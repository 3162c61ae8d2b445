package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"gridbase/internal/fieldtype"
)

// PostgresDialect implements Dialect for PostgreSQL via pgx/stdlib.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string       { return "postgres" }
func (d *PostgresDialect) DriverName() string { return "pgx" }

func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (d *PostgresDialect) NewParamBuilder() ParamBuilder {
	return &pgParamBuilder{}
}

func (d *PostgresDialect) NowExpr() string           { return "NOW()" }
func (d *PostgresDialect) ReturningIDSuffix() string { return " RETURNING id" }
func (d *PostgresDialect) NeedsBoolFix() bool        { return false }

func (d *PostgresDialect) ColumnType(kind fieldtype.ScalarKind) string {
	switch kind {
	case fieldtype.KindReal:
		return "DOUBLE PRECISION"
	case fieldtype.KindBool:
		return "BOOLEAN"
	case fieldtype.KindID:
		return "BIGINT"
	case fieldtype.KindText, fieldtype.KindStringList, fieldtype.KindIDList:
		return "TEXT"
	default:
		return "TEXT"
	}
}

func (d *PostgresDialect) CatalogTablesSQL() string {
	return pgCatalogSQL
}

func (d *PostgresDialect) ProvisionTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id         BIGSERIAL PRIMARY KEY,
    created_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW()
)`, table)
}

func (d *PostgresDialect) DropTableSQL(table string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", table)
}

func (d *PostgresDialect) AddColumnSQL(table, column string, kind fieldtype.ScalarKind) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, d.ColumnType(kind))
}

func (d *PostgresDialect) TableExists(ctx context.Context, q Querier, tableName string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = $1 AND table_schema = 'public')`,
		tableName,
	).Scan(&exists)
	return exists, err
}

func (d *PostgresDialect) GetColumns(ctx context.Context, q Querier, tableName string) (map[string]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT column_name, data_type FROM information_schema.columns WHERE table_name = $1 AND table_schema = 'public'`,
		tableName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]string)
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return nil, err
		}
		cols[name] = dataType
	}
	return cols, rows.Err()
}

func (d *PostgresDialect) InExpr(field string, pb ParamBuilder, values []any) string {
	if len(values) == 0 {
		return "1=0" // always false
	}
	phs := make([]string, len(values))
	for i, v := range values {
		phs[i] = pb.Add(v)
	}
	return fmt.Sprintf("%s IN (%s)", field, strings.Join(phs, ", "))
}

func (d *PostgresDialect) FoldedMatchExpr(column string, pb ParamBuilder, term string) string {
	// Relies on the unaccent extension created at bootstrap.
	ph := pb.Add("%" + Fold(term) + "%")
	return fmt.Sprintf("lower(unaccent(%s)) LIKE %s", column, ph)
}

func (d *PostgresDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

// --- PostgreSQL catalog DDL ---

const pgCatalogSQL = `
CREATE EXTENSION IF NOT EXISTS unaccent;

CREATE TABLE IF NOT EXISTS _tables (
    id           BIGSERIAL PRIMARY KEY,
    name         TEXT NOT NULL UNIQUE,
    display_name TEXT NOT NULL,
    created_at   TIMESTAMPTZ DEFAULT NOW(),
    updated_at   TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS _fields (
    id                      BIGSERIAL PRIMARY KEY,
    table_id                BIGINT NOT NULL REFERENCES _tables(id) ON DELETE CASCADE,
    name                    TEXT NOT NULL,
    display_name            TEXT NOT NULL,
    field_type              TEXT NOT NULL,
    is_required             BOOLEAN NOT NULL DEFAULT false,
    is_unique               BOOLEAN NOT NULL DEFAULT false,
    show_in_list            BOOLEAN NOT NULL DEFAULT true,
    cascade_delete          BOOLEAN NOT NULL DEFAULT false,
    options                 TEXT,
    reference_table_id      BIGINT REFERENCES _tables(id) ON DELETE SET NULL,
    reference_display_field TEXT,
    position                INT NOT NULL DEFAULT 0,
    UNIQUE(table_id, name)
);
CREATE INDEX IF NOT EXISTS idx_fields_table ON _fields(table_id);
CREATE INDEX IF NOT EXISTS idx_fields_reference ON _fields(reference_table_id);
`

// Compile-time check
var _ Dialect = (*PostgresDialect)(nil)
