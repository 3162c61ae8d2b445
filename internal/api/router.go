// Package api exposes the schema catalog and record engine over HTTP.
// Read routes are open; schema mutations require the admin token.
package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"gridbase/internal/auth"
	"gridbase/internal/blob"
	"gridbase/internal/catalog"
	"gridbase/internal/csvio"
	"gridbase/internal/record"
	"gridbase/internal/reference"
	"gridbase/internal/report"
)

type Handler struct {
	catalog  *catalog.Catalog
	engine   *record.Engine
	resolver *reference.Resolver
	reporter *report.Reporter
	transfer *csvio.IO
	blobs    *blob.LocalStore
	auth     *auth.Service
	log      *zap.SugaredLogger
}

func NewHandler(cat *catalog.Catalog, engine *record.Engine, resolver *reference.Resolver,
	reporter *report.Reporter, transfer *csvio.IO, blobs *blob.LocalStore,
	authSvc *auth.Service, log *zap.SugaredLogger) *Handler {
	return &Handler{
		catalog:  cat,
		engine:   engine,
		resolver: resolver,
		reporter: reporter,
		transfer: transfer,
		blobs:    blobs,
		auth:     authSvc,
		log:      log,
	}
}

// Login handles POST /api/auth/login
func (h *Handler) Login(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, InvalidPayloadError("Invalid JSON body"))
	}

	token, err := h.auth.Login(body.Email, body.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return respondError(c, UnauthorizedError("Invalid credentials"))
		}
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"token": token}})
}

// RegisterRoutes wires every route onto the app. Fixed segments like
// /search are registered before the /:id routes so they match first.
func (h *Handler) RegisterRoutes(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Post("/api/auth/login", h.Login)

	adminMW := RequireAdmin(h.auth.Secret())

	schema := app.Group("/api/schema")
	schema.Get("/tables", h.ListTables)
	schema.Post("/tables", adminMW, h.CreateTable)
	schema.Get("/tables/:table", h.GetTable)
	schema.Delete("/tables/:table", adminMW, h.DeleteTable)
	schema.Post("/tables/:table/fields", adminMW, h.AddField)
	schema.Delete("/fields/:id", adminMW, h.DeleteField)
	schema.Get("/hazards", h.SchemaHazards)

	data := app.Group("/api/data/:table")
	data.Get("/search", h.SearchRecords)
	data.Post("/filter", h.FilterRecords)
	data.Get("/export", h.ExportRecords)
	data.Get("/import/template", h.ImportTemplate)
	data.Post("/import", h.ImportRecords)
	data.Get("/report", h.ReportRecords)
	data.Get("/", h.ListRecords)
	data.Post("/", h.CreateRecord)
	data.Get("/:id", h.GetRecord)
	data.Put("/:id", h.UpdateRecord)
	data.Delete("/:id", h.DeleteRecord)
	data.Get("/:id/references", h.RecordReferences)
	data.Post("/:id/files/:field", h.UploadFile)
	data.Get("/:id/files/:field", h.DownloadFile)
	data.Delete("/:id/files/:field", h.DeleteFile)
}
