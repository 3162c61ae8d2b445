package report

import (
	"context"
	"testing"

	"gridbase/internal/catalog"
	"gridbase/internal/config"
	"gridbase/internal/fieldtype"
	"gridbase/internal/record"
	"gridbase/internal/reference"
	"gridbase/internal/store"
)

func newTestReporter(t *testing.T) (*Reporter, *record.Engine, *catalog.Catalog) {
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
	cat := catalog.New(s)
	engine := record.New(cat)
	resolver := reference.NewResolver(cat)
	return New(engine, cat, resolver), engine, cat
}

func TestGroupByDropdown(t *testing.T) {
	reporter, engine, cat := newTestReporter(t)
	ctx := context.Background()

	id, err := cat.CreateTable(ctx, "books", "Books")
	if err != nil {
		t.Fatal(err)
	}
	for _, spec := range []catalog.FieldSpec{
		{Name: "genre", DisplayName: "Genre", Type: fieldtype.Dropdown, Options: []string{"scifi", "mystery"}},
		{Name: "price", DisplayName: "Price", Type: fieldtype.Number},
	} {
		if _, err := cat.AddField(ctx, id, spec); err != nil {
			t.Fatal(err)
		}
	}
	books, _ := cat.GetTable(ctx, id)

	for _, row := range []map[string]any{
		{"genre": "scifi", "price": 10.0},
		{"genre": "scifi", "price": 20.0},
		{"genre": "mystery", "price": 5.0},
		{"price": 1.0}, // no genre
	} {
		if _, err := engine.Insert(ctx, *books, row); err != nil {
			t.Fatal(err)
		}
	}

	summary, err := reporter.GroupBy(ctx, *books, "genre", "")
	if err != nil {
		t.Fatal(err)
	}
	if summary.Total != 4 {
		t.Fatalf("expected total 4, got %d", summary.Total)
	}
	if len(summary.Buckets) != 3 {
		t.Fatalf("expected 3 buckets, got %+v", summary.Buckets)
	}
	// Sorted by count descending
	if summary.Buckets[0].Label != "scifi" || summary.Buckets[0].Count != 2 {
		t.Fatalf("unexpected top bucket: %+v", summary.Buckets[0])
	}

	// Row filter narrows the input
	summary, err = reporter.GroupBy(ctx, *books, "genre", "price >= 10")
	if err != nil {
		t.Fatal(err)
	}
	if summary.Total != 2 || len(summary.Buckets) != 1 || summary.Buckets[0].Label != "scifi" {
		t.Fatalf("unexpected filtered summary: %+v", summary)
	}
}

func TestGroupByReferenceResolvesLabels(t *testing.T) {
	reporter, engine, cat := newTestReporter(t)
	ctx := context.Background()

	authorsID, err := cat.CreateTable(ctx, "authors", "Authors")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cat.AddField(ctx, authorsID, catalog.FieldSpec{Name: "name", DisplayName: "Name", Type: fieldtype.Text}); err != nil {
		t.Fatal(err)
	}
	booksID, err := cat.CreateTable(ctx, "books", "Books")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cat.AddField(ctx, booksID, catalog.FieldSpec{
		Name: "author", DisplayName: "Author", Type: fieldtype.Reference,
		ReferenceTableID: authorsID, ReferenceDisplayField: "name",
	}); err != nil {
		t.Fatal(err)
	}
	authors, _ := cat.GetTable(ctx, authorsID)
	books, _ := cat.GetTable(ctx, booksID)

	ada, err := engine.Insert(ctx, *authors, map[string]any{"name": "Ada"})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if _, err := engine.Insert(ctx, *books, map[string]any{"author": ada}); err != nil {
			t.Fatal(err)
		}
	}

	summary, err := reporter.GroupBy(ctx, *books, "author", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(summary.Buckets) != 1 || summary.Buckets[0].Label != "Ada" || summary.Buckets[0].Count != 2 {
		t.Fatalf("expected a resolved label bucket, got %+v", summary.Buckets)
	}
}

func TestGroupByUnknownField(t *testing.T) {
	reporter, _, cat := newTestReporter(t)
	ctx := context.Background()

	id, err := cat.CreateTable(ctx, "books", "Books")
	if err != nil {
		t.Fatal(err)
	}
	books, _ := cat.GetTable(ctx, id)

	if _, err := reporter.GroupBy(ctx, *books, "nope", ""); err == nil {
		t.Fatal("unknown group field should error")
	}
}

func TestGroupByBadFilterExpression(t *testing.T) {
	reporter, _, cat := newTestReporter(t)
	ctx := context.Background()

	id, err := cat.CreateTable(ctx, "books", "Books")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cat.AddField(ctx, id, catalog.FieldSpec{Name: "genre", DisplayName: "Genre", Type: fieldtype.Dropdown}); err != nil {
		t.Fatal(err)
	}
	books, _ := cat.GetTable(ctx, id)

	if _, err := reporter.GroupBy(ctx, *books, "genre", "genre +"); err == nil {
		t.Fatal("malformed filter expression should error")
	}
}
