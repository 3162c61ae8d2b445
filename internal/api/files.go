package api

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofiber/fiber/v2"

	"gridbase/internal/catalog"
	"gridbase/internal/fieldtype"
	"gridbase/internal/store"
)

// resolveFileField looks up a field by name and checks it holds uploads.
func (h *Handler) resolveFileField(c *fiber.Ctx, table *catalog.Table) (*catalog.Field, error) {
	name := c.Params("field")
	fields, err := h.catalog.ListFields(c.Context(), table.ID)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	for i := range fields {
		if fields[i].Name != name {
			continue
		}
		if t := fields[i].Type; t != fieldtype.Image && t != fieldtype.File {
			return nil, respondError(c, InvalidPayloadError(fmt.Sprintf("Field %s does not hold files", name)))
		}
		return &fields[i], nil
	}
	return nil, respondError(c, NewAppError("UNKNOWN_FIELD", 404, fmt.Sprintf("Unknown field: %s", name)))
}

// UploadFile handles POST /api/data/:table/:id/files/:field with a
// multipart "file" part. The stored path replaces the field value and
// any previous upload is removed.
func (h *Handler) UploadFile(c *fiber.Ctx) error {
	table, err := h.resolveTable(c)
	if err != nil {
		return err
	}
	id, err := c.ParamsInt("id")
	if err != nil {
		return respondError(c, InvalidPayloadError("Invalid record id"))
	}
	field, err := h.resolveFileField(c, table)
	if err != nil {
		return err
	}

	row, err := h.engine.Get(c.Context(), *table, int64(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return respondError(c, NotFoundError(table.Name, int64(id)))
		}
		return fmt.Errorf("get %s/%d: %w", table.Name, id, err)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return respondError(c, InvalidPayloadError("Missing file upload"))
	}
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	path, err := h.blobs.Save(c.Context(), table.Name, int64(id), field.Name, fh.Filename, src)
	if err != nil {
		return respondError(c, InvalidPayloadError(err.Error()))
	}

	// Replace a previous upload
	if old, ok := row[field.Name].(string); ok && old != "" {
		if err := h.blobs.Delete(c.Context(), old); err != nil {
			h.log.Warnw("delete old upload", "path", old, "error", err)
		}
	}

	if err := h.engine.Update(c.Context(), *table, int64(id), map[string]any{field.Name: path}); err != nil {
		return fmt.Errorf("store upload path: %w", err)
	}
	return c.Status(201).JSON(fiber.Map{"data": fiber.Map{"field": field.Name, "path": path}})
}

// DownloadFile handles GET /api/data/:table/:id/files/:field
func (h *Handler) DownloadFile(c *fiber.Ctx) error {
	table, err := h.resolveTable(c)
	if err != nil {
		return err
	}
	id, err := c.ParamsInt("id")
	if err != nil {
		return respondError(c, InvalidPayloadError("Invalid record id"))
	}
	field, err := h.resolveFileField(c, table)
	if err != nil {
		return err
	}

	row, err := h.engine.Get(c.Context(), *table, int64(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return respondError(c, NotFoundError(table.Name, int64(id)))
		}
		return fmt.Errorf("get %s/%d: %w", table.Name, id, err)
	}

	path, _ := row[field.Name].(string)
	if path == "" {
		return respondError(c, NewAppError("NO_FILE", 404, "No file stored for this field"))
	}

	f, err := h.blobs.Open(c.Context(), path)
	if err != nil {
		return respondError(c, NewAppError("NO_FILE", 404, "Stored file is missing"))
	}
	c.Attachment(downloadName(filepath.Base(path)))
	return c.SendStream(f)
}

// DeleteFile handles DELETE /api/data/:table/:id/files/:field
func (h *Handler) DeleteFile(c *fiber.Ctx) error {
	table, err := h.resolveTable(c)
	if err != nil {
		return err
	}
	id, err := c.ParamsInt("id")
	if err != nil {
		return respondError(c, InvalidPayloadError("Invalid record id"))
	}
	field, err := h.resolveFileField(c, table)
	if err != nil {
		return err
	}

	row, err := h.engine.Get(c.Context(), *table, int64(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return respondError(c, NotFoundError(table.Name, int64(id)))
		}
		return fmt.Errorf("get %s/%d: %w", table.Name, id, err)
	}

	if path, ok := row[field.Name].(string); ok && path != "" {
		if err := h.blobs.Delete(c.Context(), path); err != nil {
			return fmt.Errorf("delete upload: %w", err)
		}
	}
	if err := h.engine.Update(c.Context(), *table, int64(id), map[string]any{field.Name: nil}); err != nil {
		return fmt.Errorf("clear upload path: %w", err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"field": field.Name}})
}

// downloadName strips the uuid prefix added at save time.
func downloadName(stored string) string {
	if i := len("xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx_"); len(stored) > i && stored[i-1] == '_' {
		return stored[i:]
	}
	return stored
}
