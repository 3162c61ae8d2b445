package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"testing"

	"github.com/gofiber/fiber/v2"
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

func testApp(t *testing.T) *fiber.App {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{
		Driver: "sqlite",
		Path:   t.TempDir(),
		Name:   "test",
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	hash, err := auth.HashPassword("secret")
	if err != nil {
		t.Fatal(err)
	}

	cat := catalog.New(s)
	engine := record.New(cat)
	resolver := reference.NewResolver(cat)
	reporter := report.New(engine, cat, resolver)
	transfer := csvio.New(engine, cat)
	blobs := blob.NewLocalStore(t.TempDir(), 1<<20)
	authSvc := auth.NewService(config.AdminConfig{
		Email:        "admin@example.com",
		PasswordHash: hash,
		JWTSecret:    "test-secret",
		TokenTTLMin:  5,
	})

	app := fiber.New(fiber.Config{ErrorHandler: api.ErrorHandler})
	handler := api.NewHandler(cat, engine, resolver, reporter, transfer, blobs, authSvc, zap.NewNop().Sugar())
	handler.RegisterRoutes(app)
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, path, reader)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeData(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var envelope map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return envelope
}

func login(t *testing.T, app *fiber.App) string {
	t.Helper()
	resp := doRequest(t, app, "POST", "/api/auth/login", "", map[string]any{
		"email": "admin@example.com", "password": "secret",
	})
	if resp.StatusCode != 200 {
		t.Fatalf("login failed with status %d", resp.StatusCode)
	}
	data := decodeData(t, resp)["data"].(map[string]any)
	return data["token"].(string)
}

func TestSchemaMutationRequiresToken(t *testing.T) {
	app := testApp(t)

	resp := doRequest(t, app, "POST", "/api/schema/tables", "", map[string]any{
		"name": "books", "display_name": "Books",
	})
	if resp.StatusCode != 401 {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	token := login(t, app)
	resp = doRequest(t, app, "POST", "/api/schema/tables", token, map[string]any{
		"name": "books", "display_name": "Books",
	})
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201 with token, got %d", resp.StatusCode)
	}
}

func TestRecordLifecycleOverHTTP(t *testing.T) {
	app := testApp(t)
	token := login(t, app)

	resp := doRequest(t, app, "POST", "/api/schema/tables", token, map[string]any{
		"name": "books", "display_name": "Books",
	})
	if resp.StatusCode != 201 {
		t.Fatalf("create table: status %d", resp.StatusCode)
	}
	resp = doRequest(t, app, "POST", "/api/schema/tables/books/fields", token, map[string]any{
		"name": "title", "display_name": "Title", "field_type": "text",
	})
	if resp.StatusCode != 201 {
		t.Fatalf("add field: status %d", resp.StatusCode)
	}

	// Record routes need no token
	resp = doRequest(t, app, "POST", "/api/data/books", "", map[string]any{"title": "Café"})
	if resp.StatusCode != 201 {
		t.Fatalf("create record: status %d", resp.StatusCode)
	}
	created := decodeData(t, resp)["data"].(map[string]any)
	id := int(created["id"].(float64))

	resp = doRequest(t, app, "GET", "/api/data/books/search?q=cafe", "", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("search: status %d", resp.StatusCode)
	}
	found := decodeData(t, resp)["data"].([]any)
	if len(found) != 1 {
		t.Fatalf("folded search should find the record, got %v", found)
	}

	resp = doRequest(t, app, "DELETE", "/api/data/books/9999", "", nil)
	if resp.StatusCode != 404 {
		t.Fatalf("deleting a missing record should 404, got %d", resp.StatusCode)
	}

	resp = doRequest(t, app, "DELETE", "/api/data/books/"+strconv.Itoa(id), "", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("delete record: status %d", resp.StatusCode)
	}

	resp = doRequest(t, app, "GET", "/api/data/books/", "", nil)
	listed := decodeData(t, resp)["data"].([]any)
	if len(listed) != 0 {
		t.Fatalf("expected empty list after delete, got %v", listed)
	}
}

func TestUnknownTableIs404(t *testing.T) {
	app := testApp(t)
	resp := doRequest(t, app, "GET", "/api/data/nope/", "", nil)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
