package api

import (
	"bytes"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// ExportRecords handles GET /api/data/:table/export?format=csv|json
func (h *Handler) ExportRecords(c *fiber.Ctx) error {
	table, err := h.resolveTable(c)
	if err != nil {
		return err
	}

	opts := listOptionsFromQuery(c)
	var buf bytes.Buffer
	switch format := c.Query("format", "csv"); format {
	case "csv":
		if err := h.transfer.ExportCSV(c.Context(), &buf, *table, opts); err != nil {
			return h.recordError(c, err)
		}
		c.Set(fiber.HeaderContentType, "text/csv")
		c.Attachment(table.Name + ".csv")
	case "json":
		if err := h.transfer.ExportJSON(c.Context(), &buf, *table, opts); err != nil {
			return h.recordError(c, err)
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		c.Attachment(table.Name + ".json")
	default:
		return respondError(c, InvalidPayloadError(fmt.Sprintf("Unknown export format: %s", format)))
	}
	return c.Send(buf.Bytes())
}

// ImportTemplate handles GET /api/data/:table/import/template
func (h *Handler) ImportTemplate(c *fiber.Ctx) error {
	table, err := h.resolveTable(c)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := h.transfer.Template(c.Context(), &buf, *table); err != nil {
		return fmt.Errorf("build template: %w", err)
	}
	c.Set(fiber.HeaderContentType, "text/csv")
	c.Attachment(table.Name + "_template.csv")
	return c.Send(buf.Bytes())
}

// ImportRecords handles POST /api/data/:table/import?format=csv|json.
// The payload is either a multipart "file" part or the raw request body.
func (h *Handler) ImportRecords(c *fiber.Ctx) error {
	table, err := h.resolveTable(c)
	if err != nil {
		return err
	}

	var payload []byte
	if fh, err := c.FormFile("file"); err == nil {
		src, err := fh.Open()
		if err != nil {
			return fmt.Errorf("open upload: %w", err)
		}
		defer src.Close()
		buf := new(bytes.Buffer)
		if _, err := buf.ReadFrom(src); err != nil {
			return fmt.Errorf("read upload: %w", err)
		}
		payload = buf.Bytes()
	} else {
		payload = c.Body()
	}
	if len(payload) == 0 {
		return respondError(c, InvalidPayloadError("Empty import payload"))
	}

	format := c.Query("format", "csv")
	var result any
	switch format {
	case "csv":
		result, err = h.transfer.ImportCSV(c.Context(), bytes.NewReader(payload), *table)
	case "json":
		result, err = h.transfer.ImportJSON(c.Context(), bytes.NewReader(payload), *table)
	default:
		return respondError(c, InvalidPayloadError(fmt.Sprintf("Unknown import format: %s", format)))
	}
	if err != nil {
		return h.recordError(c, err)
	}
	return c.JSON(fiber.Map{"data": result})
}
