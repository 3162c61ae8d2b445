package api

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"gridbase/internal/catalog"
)

// CreateTable handles POST /api/schema/tables
func (h *Handler) CreateTable(c *fiber.Ctx) error {
	var body struct {
		Name        string `json:"name"`
		DisplayName string `json:"display_name"`
	}
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, InvalidPayloadError("Invalid JSON body"))
	}

	id, err := h.catalog.CreateTable(c.Context(), body.Name, body.DisplayName)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrDuplicateName):
			return respondError(c, ConflictError(fmt.Sprintf("Table %s already exists", body.Name)))
		case errors.Is(err, catalog.ErrInvalidIdentifier):
			return respondError(c, InvalidPayloadError(err.Error()))
		}
		return fmt.Errorf("create table: %w", err)
	}

	table, err := h.catalog.GetTable(c.Context(), id)
	if err != nil {
		return fmt.Errorf("fetch created table: %w", err)
	}
	return c.Status(201).JSON(fiber.Map{"data": table})
}

// ListTables handles GET /api/schema/tables
func (h *Handler) ListTables(c *fiber.Ctx) error {
	tables, err := h.catalog.ListTables(c.Context())
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	if tables == nil {
		tables = []catalog.Table{}
	}
	return c.JSON(fiber.Map{"data": tables})
}

// GetTable handles GET /api/schema/tables/:table and returns the table
// together with its fields.
func (h *Handler) GetTable(c *fiber.Ctx) error {
	table, err := h.resolveTable(c)
	if err != nil {
		return err
	}
	fields, err := h.catalog.ListFields(c.Context(), table.ID)
	if err != nil {
		return fmt.Errorf("list fields: %w", err)
	}
	if fields == nil {
		fields = []catalog.Field{}
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"table": table, "fields": fields}})
}

// DeleteTable handles DELETE /api/schema/tables/:table
func (h *Handler) DeleteTable(c *fiber.Ctx) error {
	table, err := h.resolveTable(c)
	if err != nil {
		return err
	}
	if err := h.catalog.DeleteTable(c.Context(), table.ID); err != nil {
		return fmt.Errorf("delete table: %w", err)
	}
	h.log.Infow("table deleted", "table", table.Name)
	return c.JSON(fiber.Map{"data": fiber.Map{"id": table.ID}})
}

// AddField handles POST /api/schema/tables/:table/fields
func (h *Handler) AddField(c *fiber.Ctx) error {
	table, err := h.resolveTable(c)
	if err != nil {
		return err
	}

	var spec catalog.FieldSpec
	if err := c.BodyParser(&spec); err != nil {
		return respondError(c, InvalidPayloadError("Invalid JSON body"))
	}

	id, err := h.catalog.AddField(c.Context(), table.ID, spec)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrDuplicateFieldName):
			return respondError(c, ConflictError(fmt.Sprintf("Field %s already exists on %s", spec.Name, table.Name)))
		case errors.Is(err, catalog.ErrInvalidIdentifier), errors.Is(err, catalog.ErrInvalidFieldType):
			return respondError(c, InvalidPayloadError(err.Error()))
		case errors.Is(err, catalog.ErrUnknownTable):
			return respondError(c, InvalidPayloadError("Referenced table does not exist"))
		}
		return fmt.Errorf("add field: %w", err)
	}

	field, err := h.catalog.GetField(c.Context(), id)
	if err != nil {
		return fmt.Errorf("fetch created field: %w", err)
	}
	return c.Status(201).JSON(fiber.Map{"data": field})
}

// DeleteField handles DELETE /api/schema/fields/:id. The response may
// carry a warning about the orphaned storage column.
func (h *Handler) DeleteField(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return respondError(c, InvalidPayloadError("Invalid field id"))
	}

	warning, err := h.catalog.DeleteField(c.Context(), int64(id))
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownField) {
			return respondError(c, NewAppError("UNKNOWN_FIELD", 404, "Field not found"))
		}
		return fmt.Errorf("delete field: %w", err)
	}

	resp := fiber.Map{"data": fiber.Map{"id": id}}
	if warning != nil {
		resp["warnings"] = []catalog.Warning{*warning}
	}
	return c.JSON(resp)
}

// SchemaHazards handles GET /api/schema/hazards and reports fields whose
// reference target table no longer exists.
func (h *Handler) SchemaHazards(c *fiber.Ctx) error {
	warnings, err := h.catalog.CheckReferentialHazards(c.Context())
	if err != nil {
		return fmt.Errorf("check hazards: %w", err)
	}
	if warnings == nil {
		warnings = []catalog.Warning{}
	}
	return c.JSON(fiber.Map{"data": warnings})
}

func (h *Handler) resolveTable(c *fiber.Ctx) (*catalog.Table, error) {
	name := c.Params("table")
	table, err := h.catalog.GetTableByName(c.Context(), name)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownTable) {
			return nil, respondError(c, UnknownTableError(name))
		}
		return nil, fmt.Errorf("resolve table %s: %w", name, err)
	}
	return table, nil
}
