package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"gridbase/internal/api"
	"gridbase/internal/auth"
	"gridbase/internal/blob"
	"gridbase/internal/catalog"
	"gridbase/internal/config"
	"gridbase/internal/csvio"
	"gridbase/internal/record"
	"gridbase/internal/reference"
	"gridbase/internal/report"
	"gridbase/internal/store"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zl.Sync()
	sugar := zl.Sugar()
	sugar.Infow("config loaded", "port", cfg.Server.Port, "driver", cfg.Database.Driver)

	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		sugar.Fatalw("connect database", "error", err)
	}
	defer db.Close()

	if err := db.Bootstrap(ctx); err != nil {
		sugar.Fatalw("bootstrap catalog tables", "error", err)
	}
	sugar.Info("catalog tables ready")

	cat := catalog.New(db)
	engine := record.New(cat)
	resolver := reference.NewResolver(cat)
	reporter := report.New(engine, cat, resolver)
	transfer := csvio.New(engine, cat)
	blobs := blob.NewLocalStore(cfg.Blob.LocalPath, cfg.Blob.MaxFileSize)
	authSvc := auth.NewService(cfg.Admin)

	app := fiber.New(fiber.Config{
		ErrorHandler: api.ErrorHandler,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	handler := api.NewHandler(cat, engine, resolver, reporter, transfer, blobs, authSvc, sugar)
	handler.RegisterRoutes(app)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	sugar.Infow("starting server", "addr", addr)
	sugar.Fatal(app.Listen(addr))
}
