package catalog

import (
	"context"
	"errors"
	"fmt"

	"gridbase/internal/fieldtype"
	"gridbase/internal/store"
)

// Catalog is the single source of truth for which dynamic tables and
// fields exist. Every schema mutation pairs the metadata write with its
// storage projection inside one transaction.
type Catalog struct {
	store     *store.Store
	projector *Projector
}

func New(s *store.Store) *Catalog {
	return &Catalog{
		store:     s,
		projector: NewProjector(s.Dialect),
	}
}

// Store exposes the underlying store for collaborators that query records.
func (c *Catalog) Store() *store.Store {
	return c.store
}

// CreateTable registers a new dynamic table and provisions its backing
// storage. The internal name is immutable after creation.
func (c *Catalog) CreateTable(ctx context.Context, name, displayName string) (int64, error) {
	if err := ValidateIdentifier(name); err != nil {
		return 0, err
	}
	if displayName == "" {
		displayName = name
	}

	tx, err := c.store.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	d := c.store.Dialect
	pb := d.NewParamBuilder()
	sqlStr := fmt.Sprintf("INSERT INTO _tables (name, display_name) VALUES (%s, %s)",
		pb.Add(name), pb.Add(displayName))
	id, err := store.InsertWithID(ctx, tx, d, sqlStr, pb.Params()...)
	if err != nil {
		if errors.Is(d.MapError(err), store.ErrUniqueViolation) {
			return 0, fmt.Errorf("%w: %s", ErrDuplicateName, name)
		}
		return 0, fmt.Errorf("insert table metadata: %w", err)
	}

	if err := c.projector.ProvisionTable(ctx, tx, name); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// DeleteTable removes a table definition, its field definitions and its
// backing storage. No-op if the table does not exist.
func (c *Catalog) DeleteTable(ctx context.Context, tableID int64) error {
	table, err := c.GetTable(ctx, tableID)
	if errors.Is(err, ErrUnknownTable) {
		return nil
	}
	if err != nil {
		return err
	}

	tx, err := c.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	d := c.store.Dialect
	if _, err := store.Exec(ctx, tx,
		fmt.Sprintf("DELETE FROM _fields WHERE table_id = %s", d.Placeholder(1)), tableID); err != nil {
		return fmt.Errorf("delete field metadata: %w", err)
	}
	if _, err := store.Exec(ctx, tx,
		fmt.Sprintf("DELETE FROM _tables WHERE id = %s", d.Placeholder(1)), tableID); err != nil {
		return fmt.Errorf("delete table metadata: %w", err)
	}
	if err := c.projector.DropTable(ctx, tx, table.Name); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetTable returns a table definition by id.
func (c *Catalog) GetTable(ctx context.Context, tableID int64) (*Table, error) {
	d := c.store.Dialect
	row, err := store.QueryRow(ctx, c.store.DB,
		fmt.Sprintf("SELECT * FROM _tables WHERE id = %s", d.Placeholder(1)), tableID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownTable, tableID)
	}
	if err != nil {
		return nil, fmt.Errorf("get table %d: %w", tableID, err)
	}
	t := tableFromRow(row)
	return &t, nil
}

// GetTableByName returns a table definition by internal name.
func (c *Catalog) GetTableByName(ctx context.Context, name string) (*Table, error) {
	d := c.store.Dialect
	row, err := store.QueryRow(ctx, c.store.DB,
		fmt.Sprintf("SELECT * FROM _tables WHERE name = %s", d.Placeholder(1)), name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	if err != nil {
		return nil, fmt.Errorf("get table %s: %w", name, err)
	}
	t := tableFromRow(row)
	return &t, nil
}

// ListTables returns all table definitions ordered by internal name.
func (c *Catalog) ListTables(ctx context.Context) ([]Table, error) {
	rows, err := store.QueryRows(ctx, c.store.DB, "SELECT * FROM _tables ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	tables := make([]Table, 0, len(rows))
	for _, row := range rows {
		tables = append(tables, tableFromRow(row))
	}
	return tables, nil
}

// AddField registers a new field on a table and adds the storage column if
// it is not already present. Re-adding metadata for a name whose storage
// column survives an earlier field deletion is allowed; only the metadata
// row is duplicated-checked.
func (c *Catalog) AddField(ctx context.Context, tableID int64, spec FieldSpec) (int64, error) {
	if err := ValidateIdentifier(spec.Name); err != nil {
		return 0, err
	}
	if ReservedColumns[spec.Name] {
		return 0, fmt.Errorf("%w: %q is a reserved column", ErrInvalidIdentifier, spec.Name)
	}
	if !fieldtype.Valid(spec.Type) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFieldType, spec.Type)
	}

	table, err := c.GetTable(ctx, tableID)
	if err != nil {
		return 0, err
	}

	if fieldtype.IsReference(spec.Type) && spec.ReferenceTableID != 0 {
		if _, err := c.GetTable(ctx, spec.ReferenceTableID); err != nil {
			return 0, err
		}
	}

	showInList := true
	if spec.ShowInList != nil {
		showInList = *spec.ShowInList
	}
	displayName := spec.DisplayName
	if displayName == "" {
		displayName = spec.Name
	}
	var options any
	if len(spec.Options) > 0 {
		options = fieldtype.EncodeStrings(spec.Options)
	}
	var refTableID any
	if spec.ReferenceTableID != 0 {
		refTableID = spec.ReferenceTableID
	}
	var refDisplay any
	if spec.ReferenceDisplayField != "" {
		refDisplay = spec.ReferenceDisplayField
	}

	tx, err := c.store.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	d := c.store.Dialect
	pb := d.NewParamBuilder()
	sqlStr := fmt.Sprintf(`INSERT INTO _fields
		(table_id, name, display_name, field_type, is_required, is_unique,
		 show_in_list, cascade_delete, options, reference_table_id,
		 reference_display_field, position)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		pb.Add(tableID), pb.Add(spec.Name), pb.Add(displayName),
		pb.Add(string(spec.Type)), pb.Add(spec.Required), pb.Add(spec.Unique),
		pb.Add(showInList), pb.Add(spec.CascadeDelete), pb.Add(options),
		pb.Add(refTableID), pb.Add(refDisplay), pb.Add(spec.Position))
	id, err := store.InsertWithID(ctx, tx, d, sqlStr, pb.Params()...)
	if err != nil {
		if errors.Is(d.MapError(err), store.ErrUniqueViolation) {
			return 0, fmt.Errorf("%w: %s.%s", ErrDuplicateFieldName, table.Name, spec.Name)
		}
		return 0, fmt.Errorf("insert field metadata: %w", err)
	}

	kind := fieldtype.StorageKind(spec.Type)
	if _, err := c.projector.AddColumn(ctx, tx, table.Name, spec.Name, kind); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// DeleteField removes a field definition. The storage column is left in
// place; the returned warning records the orphan.
func (c *Catalog) DeleteField(ctx context.Context, fieldID int64) (*Warning, error) {
	field, err := c.GetField(ctx, fieldID)
	if err != nil {
		return nil, err
	}
	table, err := c.GetTable(ctx, field.TableID)
	if err != nil {
		return nil, err
	}

	d := c.store.Dialect
	if _, err := store.Exec(ctx, c.store.DB,
		fmt.Sprintf("DELETE FROM _fields WHERE id = %s", d.Placeholder(1)), fieldID); err != nil {
		return nil, fmt.Errorf("delete field metadata: %w", err)
	}

	return &Warning{
		Code:    WarnOrphanedColumn,
		Message: fmt.Sprintf("storage column %s.%s was not dropped and now holds legacy data", table.Name, field.Name),
		TableID: table.ID,
		FieldID: fieldID,
	}, nil
}

// GetField returns a field definition by id.
func (c *Catalog) GetField(ctx context.Context, fieldID int64) (*Field, error) {
	d := c.store.Dialect
	row, err := store.QueryRow(ctx, c.store.DB,
		fmt.Sprintf("SELECT * FROM _fields WHERE id = %s", d.Placeholder(1)), fieldID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownField, fieldID)
	}
	if err != nil {
		return nil, fmt.Errorf("get field %d: %w", fieldID, err)
	}
	f := fieldFromRow(row)
	return &f, nil
}

// ListFields returns the fields of a table ordered by position, then id.
func (c *Catalog) ListFields(ctx context.Context, tableID int64) ([]Field, error) {
	d := c.store.Dialect
	rows, err := store.QueryRows(ctx, c.store.DB,
		fmt.Sprintf("SELECT * FROM _fields WHERE table_id = %s ORDER BY position, id", d.Placeholder(1)),
		tableID)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	fields := make([]Field, 0, len(rows))
	for _, row := range rows {
		fields = append(fields, fieldFromRow(row))
	}
	return fields, nil
}

// AllFields returns every field definition across all tables, ordered by
// table then position. Used for reference-graph scans.
func (c *Catalog) AllFields(ctx context.Context) ([]Field, error) {
	rows, err := store.QueryRows(ctx, c.store.DB,
		"SELECT * FROM _fields ORDER BY table_id, position, id")
	if err != nil {
		return nil, fmt.Errorf("all fields: %w", err)
	}
	fields := make([]Field, 0, len(rows))
	for _, row := range rows {
		fields = append(fields, fieldFromRow(row))
	}
	return fields, nil
}

// CheckReferentialHazards reports reference fields whose target table no
// longer exists. Detection only; nothing is repaired.
func (c *Catalog) CheckReferentialHazards(ctx context.Context) ([]Warning, error) {
	fields, err := c.AllFields(ctx)
	if err != nil {
		return nil, err
	}
	tables, err := c.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]Table, len(tables))
	for _, t := range tables {
		byID[t.ID] = t
	}

	var warnings []Warning
	for _, f := range fields {
		if !fieldtype.IsReference(f.Type) {
			continue
		}
		if f.ReferenceTableID == 0 {
			warnings = append(warnings, Warning{
				Code:    WarnDanglingReference,
				Message: fmt.Sprintf("field %s of table %d has no reference target (target table deleted?)", f.Name, f.TableID),
				TableID: f.TableID,
				FieldID: f.ID,
			})
			continue
		}
		if _, ok := byID[f.ReferenceTableID]; !ok {
			warnings = append(warnings, Warning{
				Code:    WarnDanglingReference,
				Message: fmt.Sprintf("field %s points at missing table id %d", f.Name, f.ReferenceTableID),
				TableID: f.TableID,
				FieldID: f.ID,
			})
		}
	}
	return warnings, nil
}
