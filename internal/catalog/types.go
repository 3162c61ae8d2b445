// Package catalog is the durable meta-schema: the record of which dynamic
// tables and fields exist. It owns the _tables and _fields catalog and
// projects every change into the backing storage schema.
package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"gridbase/internal/fieldtype"
	"gridbase/internal/store"
)

var (
	ErrDuplicateName      = errors.New("duplicate table name")
	ErrDuplicateFieldName = errors.New("duplicate field name")
	ErrUnknownTable       = errors.New("unknown table")
	ErrUnknownField       = errors.New("unknown field")
	ErrInvalidIdentifier  = errors.New("invalid identifier")
	ErrInvalidFieldType   = errors.New("invalid field type")
)

// Table describes one user-defined dynamic table.
type Table struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Field describes one column of a dynamic table, including its semantic
// type and relational role.
type Field struct {
	ID                    int64          `json:"id"`
	TableID               int64          `json:"table_id"`
	Name                  string         `json:"name"`
	DisplayName           string         `json:"display_name"`
	Type                  fieldtype.Type `json:"field_type"`
	Required              bool           `json:"required"`
	Unique                bool           `json:"unique"`
	ShowInList            bool           `json:"show_in_list"`
	CascadeDelete         bool           `json:"cascade_delete"`
	Options               []string       `json:"options,omitempty"`
	ReferenceTableID      int64          `json:"reference_table_id,omitempty"` // 0 = none
	ReferenceDisplayField string         `json:"reference_display_field,omitempty"`
	Position              int            `json:"position"`
}

// FieldSpec is the caller-supplied description of a new field.
type FieldSpec struct {
	Name                  string         `json:"name"`
	DisplayName           string         `json:"display_name"`
	Type                  fieldtype.Type `json:"field_type"`
	Required              bool           `json:"required,omitempty"`
	Unique                bool           `json:"unique,omitempty"`
	ShowInList            *bool          `json:"show_in_list,omitempty"` // nil = true
	CascadeDelete         bool           `json:"cascade_delete,omitempty"`
	Options               []string       `json:"options,omitempty"`
	ReferenceTableID      int64          `json:"reference_table_id,omitempty"`
	ReferenceDisplayField string         `json:"reference_display_field,omitempty"`
	Position              int            `json:"position,omitempty"`
}

// Warning reports a detected but unresolved schema condition. Warnings are
// returned alongside success, never instead of it.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	TableID int64  `json:"table_id,omitempty"`
	FieldID int64  `json:"field_id,omitempty"`
}

const (
	WarnOrphanedColumn    = "orphaned_column"
	WarnDanglingReference = "dangling_reference"
)

// Identifier rule: ASCII letters/digits/underscore, must start with a
// letter. A leading underscore is rejected because catalog tables live in
// that namespace.
var identRE = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

const maxIdentLen = 63

// ValidateIdentifier checks a proposed table or field internal name.
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidIdentifier)
	}
	if len(name) > maxIdentLen {
		return fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidIdentifier, name, maxIdentLen)
	}
	if !identRE.MatchString(name) {
		return fmt.Errorf("%w: %q must match [A-Za-z][A-Za-z0-9_]*", ErrInvalidIdentifier, name)
	}
	return nil
}

// ReservedColumns are managed by the engine and never appear as field names.
var ReservedColumns = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
}

// --- row conversion helpers ---

func tableFromRow(row map[string]any) Table {
	t := Table{
		Name:        asString(row["name"]),
		DisplayName: asString(row["display_name"]),
	}
	t.ID, _ = store.AsInt64(row["id"])
	t.CreatedAt = asTime(row["created_at"])
	t.UpdatedAt = asTime(row["updated_at"])
	return t
}

func fieldFromRow(row map[string]any) Field {
	f := Field{
		Name:                  asString(row["name"]),
		DisplayName:           asString(row["display_name"]),
		Type:                  fieldtype.Type(asString(row["field_type"])),
		Required:              asBool(row["is_required"]),
		Unique:                asBool(row["is_unique"]),
		ShowInList:            asBool(row["show_in_list"]),
		CascadeDelete:         asBool(row["cascade_delete"]),
		ReferenceDisplayField: asString(row["reference_display_field"]),
	}
	f.ID, _ = store.AsInt64(row["id"])
	f.TableID, _ = store.AsInt64(row["table_id"])
	f.ReferenceTableID, _ = store.AsInt64(row["reference_table_id"])
	if pos, ok := store.AsInt64(row["position"]); ok {
		f.Position = int(pos)
	}
	f.Options, _ = fieldtype.DecodeStrings(row["options"])
	return f
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return ""
	}
}

func asBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		return b != 0
	case int:
		return b != 0
	case float64:
		return b != 0
	default:
		return false
	}
}

func asTime(v any) time.Time {
	if t, ok := v.(time.Time); ok {
		return t
	}
	return time.Time{}
}
