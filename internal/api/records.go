package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"gridbase/internal/catalog"
	"gridbase/internal/fieldtype"
	"gridbase/internal/record"
	"gridbase/internal/reference"
	"gridbase/internal/store"
)

func listOptionsFromQuery(c *fiber.Ctx) record.ListOptions {
	return record.ListOptions{
		Limit:    c.QueryInt("limit"),
		Offset:   c.QueryInt("offset"),
		OrderBy:  c.Query("order_by"),
		OrderDir: c.Query("order_dir"),
	}
}

// ListRecords handles GET /api/data/:table
func (h *Handler) ListRecords(c *fiber.Ctx) error {
	table, err := h.resolveTable(c)
	if err != nil {
		return err
	}

	opts := listOptionsFromQuery(c)
	rows, err := h.engine.List(c.Context(), *table, opts)
	if err != nil {
		return h.recordError(c, err)
	}
	total, err := h.engine.Count(c.Context(), *table, "", nil)
	if err != nil {
		return fmt.Errorf("count %s: %w", table.Name, err)
	}

	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(fiber.Map{
		"data": rows,
		"meta": fiber.Map{
			"limit":  opts.Limit,
			"offset": opts.Offset,
			"total":  total,
		},
	})
}

// GetRecord handles GET /api/data/:table/:id
func (h *Handler) GetRecord(c *fiber.Ctx) error {
	table, err := h.resolveTable(c)
	if err != nil {
		return err
	}
	id, err := c.ParamsInt("id")
	if err != nil {
		return respondError(c, InvalidPayloadError("Invalid record id"))
	}

	row, err := h.engine.Get(c.Context(), *table, int64(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return respondError(c, NotFoundError(table.Name, int64(id)))
		}
		return fmt.Errorf("get %s/%d: %w", table.Name, id, err)
	}
	return c.JSON(fiber.Map{"data": row})
}

// CreateRecord handles POST /api/data/:table
func (h *Handler) CreateRecord(c *fiber.Ctx) error {
	table, err := h.resolveTable(c)
	if err != nil {
		return err
	}

	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, InvalidPayloadError("Invalid JSON body"))
	}

	id, err := h.engine.Insert(c.Context(), *table, body)
	if err != nil {
		return h.recordError(c, err)
	}

	row, err := h.engine.Get(c.Context(), *table, id)
	if err != nil {
		return fmt.Errorf("fetch created %s/%d: %w", table.Name, id, err)
	}
	return c.Status(201).JSON(fiber.Map{"data": row})
}

// UpdateRecord handles PUT /api/data/:table/:id. The engine treats a
// missing id as a no-op, so existence is checked first to give a 404.
func (h *Handler) UpdateRecord(c *fiber.Ctx) error {
	table, err := h.resolveTable(c)
	if err != nil {
		return err
	}
	id, err := c.ParamsInt("id")
	if err != nil {
		return respondError(c, InvalidPayloadError("Invalid record id"))
	}

	if _, err := h.engine.Get(c.Context(), *table, int64(id)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return respondError(c, NotFoundError(table.Name, int64(id)))
		}
		return fmt.Errorf("fetch %s/%d: %w", table.Name, id, err)
	}

	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, InvalidPayloadError("Invalid JSON body"))
	}

	if err := h.engine.Update(c.Context(), *table, int64(id), body); err != nil {
		return h.recordError(c, err)
	}

	row, err := h.engine.Get(c.Context(), *table, int64(id))
	if err != nil {
		return fmt.Errorf("fetch updated %s/%d: %w", table.Name, id, err)
	}
	return c.JSON(fiber.Map{"data": row})
}

// DeleteRecord handles DELETE /api/data/:table/:id, cascading through
// cascade-delete reference fields.
func (h *Handler) DeleteRecord(c *fiber.Ctx) error {
	table, err := h.resolveTable(c)
	if err != nil {
		return err
	}
	id, err := c.ParamsInt("id")
	if err != nil {
		return respondError(c, InvalidPayloadError("Invalid record id"))
	}

	if _, err := h.engine.Get(c.Context(), *table, int64(id)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return respondError(c, NotFoundError(table.Name, int64(id)))
		}
		return fmt.Errorf("fetch %s/%d: %w", table.Name, id, err)
	}

	if err := h.engine.Delete(c.Context(), *table, int64(id)); err != nil {
		return fmt.Errorf("delete %s/%d: %w", table.Name, id, err)
	}
	if err := h.blobs.DeleteRecordFiles(c.Context(), table.Name, int64(id)); err != nil {
		h.log.Warnw("delete record files", "table", table.Name, "id", id, "error", err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id}})
}

// SearchRecords handles GET /api/data/:table/search?q=term&fields=a,b
func (h *Handler) SearchRecords(c *fiber.Ctx) error {
	table, err := h.resolveTable(c)
	if err != nil {
		return err
	}

	term := c.Query("q")
	var fieldNames []string
	if raw := c.Query("fields"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				fieldNames = append(fieldNames, name)
			}
		}
	} else {
		// Default to every searchable field
		fields, err := h.catalog.ListFields(c.Context(), table.ID)
		if err != nil {
			return fmt.Errorf("list fields: %w", err)
		}
		fieldNames = searchableNames(fields)
	}

	rows, err := h.engine.Search(c.Context(), *table, term, fieldNames, listOptionsFromQuery(c))
	if err != nil {
		return h.recordError(c, err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(fiber.Map{"data": rows})
}

// FilterRecords handles POST /api/data/:table/filter with a body of
// per-field filter specs.
func (h *Handler) FilterRecords(c *fiber.Ctx) error {
	table, err := h.resolveTable(c)
	if err != nil {
		return err
	}

	var specs map[string]record.FilterSpec
	if err := c.BodyParser(&specs); err != nil {
		return respondError(c, InvalidPayloadError("Invalid JSON body"))
	}

	rows, err := h.engine.Filter(c.Context(), *table, specs, listOptionsFromQuery(c))
	if err != nil {
		return h.recordError(c, err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(fiber.Map{"data": rows})
}

// RecordReferences handles GET /api/data/:table/:id/references and lists
// every record pointing at this one, with display labels.
func (h *Handler) RecordReferences(c *fiber.Ctx) error {
	table, err := h.resolveTable(c)
	if err != nil {
		return err
	}
	id, err := c.ParamsInt("id")
	if err != nil {
		return respondError(c, InvalidPayloadError("Invalid record id"))
	}

	refs, err := h.resolver.FindReferencingRecords(c.Context(), table.ID, int64(id))
	if err != nil {
		return fmt.Errorf("find references: %w", err)
	}

	type labeled struct {
		reference.Referencing
		Label string `json:"label"`
	}
	out := make([]labeled, 0, len(refs))
	for _, ref := range refs {
		label, err := h.resolver.DisplayLabel(c.Context(), ref.Record, ref.SourceTable.ID, "")
		if err != nil {
			return fmt.Errorf("label reference: %w", err)
		}
		out = append(out, labeled{Referencing: ref, Label: label})
	}
	return c.JSON(fiber.Map{"data": out})
}

// ReportRecords handles GET /api/data/:table/report?group_by=f&filter=expr
func (h *Handler) ReportRecords(c *fiber.Ctx) error {
	table, err := h.resolveTable(c)
	if err != nil {
		return err
	}
	groupBy := c.Query("group_by")
	if groupBy == "" {
		return respondError(c, InvalidPayloadError("group_by is required"))
	}

	summary, err := h.reporter.GroupBy(c.Context(), *table, groupBy, c.Query("filter"))
	if err != nil {
		return h.recordError(c, err)
	}
	return c.JSON(fiber.Map{"data": summary})
}

func (h *Handler) recordError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, catalog.ErrUnknownField):
		return respondError(c, InvalidPayloadError(err.Error()))
	case errors.Is(err, store.ErrUniqueViolation):
		return respondError(c, ConflictError("A record with this value already exists"))
	}
	return err
}

func searchableNames(fields []catalog.Field) []string {
	var names []string
	for _, f := range fields {
		if fieldtype.Searchable(f.Type) {
			names = append(names, f.Name)
		}
	}
	return names
}
