package store

import (
	"context"
	"fmt"

	"gridbase/internal/fieldtype"
)

// Dialect abstracts database-specific SQL generation and behavior.
type Dialect interface {
	// Name returns "postgres" or "sqlite".
	Name() string

	// DriverName returns the database/sql driver name ("pgx" or "sqlite").
	DriverName() string

	// Placeholder returns the parameter placeholder for the given 1-based index.
	Placeholder(index int) string

	// NewParamBuilder creates a dialect-aware parameter builder.
	NewParamBuilder() ParamBuilder

	// NowExpr returns the SQL expression for the current timestamp.
	NowExpr() string

	// ColumnType maps a scalar storage kind to the database DDL type.
	ColumnType(kind fieldtype.ScalarKind) string

	// CatalogTablesSQL returns the DDL for the meta-schema catalog tables.
	CatalogTablesSQL() string

	// ProvisionTableSQL returns the DDL creating a backing storage table
	// with id primary key and created_at/updated_at defaults.
	ProvisionTableSQL(table string) string

	// DropTableSQL returns the DDL dropping a backing storage table.
	DropTableSQL(table string) string

	// AddColumnSQL returns the DDL adding one column of the given kind.
	AddColumnSQL(table, column string, kind fieldtype.ScalarKind) string

	// TableExists checks whether a table exists.
	TableExists(ctx context.Context, q Querier, tableName string) (bool, error)

	// GetColumns returns existing column names and types for a table.
	GetColumns(ctx context.Context, q Querier, tableName string) (map[string]string, error)

	// InExpr builds a SQL expression for the IN operator. An empty value
	// set yields a deliberately unsatisfiable condition.
	InExpr(field string, pb ParamBuilder, values []any) string

	// FoldedMatchExpr builds an accent- and case-insensitive substring
	// predicate on a column. The term is folded application-side; the
	// column is folded inside the storage engine.
	FoldedMatchExpr(column string, pb ParamBuilder, term string) string

	// ReturningIDSuffix returns " RETURNING id" where LastInsertId is
	// unavailable, or empty string.
	ReturningIDSuffix() string

	// MapError inspects a driver error and returns a well-known sentinel error if applicable.
	MapError(err error) error

	// NeedsBoolFix returns true if boolean columns come back as integers (SQLite).
	NeedsBoolFix() bool
}

// ParamBuilder accumulates query parameters and generates dialect-specific placeholders.
type ParamBuilder interface {
	// Add appends a value and returns the placeholder string.
	Add(v any) string

	// Params returns all accumulated parameter values.
	Params() []any

	// Count returns the number of parameters added so far.
	Count() int
}

// NewDialect creates a Dialect for the given driver name ("postgres" or "sqlite").
func NewDialect(driver string) Dialect {
	switch driver {
	case "postgres":
		return &PostgresDialect{}
	default:
		return &SQLiteDialect{}
	}
}

// --- PostgreSQL ParamBuilder ---

type pgParamBuilder struct {
	params []any
	n      int
}

func (p *pgParamBuilder) Add(v any) string {
	p.n++
	p.params = append(p.params, v)
	return fmt.Sprintf("$%d", p.n)
}

func (p *pgParamBuilder) Params() []any { return p.params }
func (p *pgParamBuilder) Count() int    { return p.n }

// --- SQLite ParamBuilder ---

type sqliteParamBuilder struct {
	params []any
	n      int
}

func (p *sqliteParamBuilder) Add(v any) string {
	p.n++
	p.params = append(p.params, v)
	return fmt.Sprintf("?%d", p.n)
}

func (p *sqliteParamBuilder) Params() []any { return p.params }
func (p *sqliteParamBuilder) Count() int    { return p.n }
