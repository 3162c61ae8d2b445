package catalog

import (
	"context"
	"fmt"

	"gridbase/internal/fieldtype"
	"gridbase/internal/store"
)

// Projector keeps backing storage consistent with the declared meta-schema
// using only additive operations. It runs on a Querier so callers can place
// DDL inside the same transaction as the metadata write.
type Projector struct {
	dialect store.Dialect
}

func NewProjector(d store.Dialect) *Projector {
	return &Projector{dialect: d}
}

// ProvisionTable creates the backing storage table: id primary key plus
// created_at/updated_at defaults. The name must already be validated.
func (p *Projector) ProvisionTable(ctx context.Context, q store.Querier, table string) error {
	if _, err := q.ExecContext(ctx, p.dialect.ProvisionTableSQL(table)); err != nil {
		return fmt.Errorf("provision table %s: %w", table, err)
	}
	return nil
}

// DropTable drops the backing storage table. Tolerant of absence.
func (p *Projector) DropTable(ctx context.Context, q store.Querier, table string) error {
	if _, err := q.ExecContext(ctx, p.dialect.DropTableSQL(table)); err != nil {
		return fmt.Errorf("drop table %s: %w", table, err)
	}
	return nil
}

// AddColumn adds a storage column for the given scalar kind if it is not
// already present. Returns whether a column was actually added. Never
// reorders or drops columns.
func (p *Projector) AddColumn(ctx context.Context, q store.Querier, table, column string, kind fieldtype.ScalarKind) (bool, error) {
	existing, err := p.dialect.GetColumns(ctx, q, table)
	if err != nil {
		return false, fmt.Errorf("get columns for %s: %w", table, err)
	}
	if _, ok := existing[column]; ok {
		return false, nil
	}
	if _, err := q.ExecContext(ctx, p.dialect.AddColumnSQL(table, column, kind)); err != nil {
		return false, fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return true, nil
}
