package reference_test

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

func newTestResolver(t *testing.T) (*reference.Resolver, *record.Engine, *catalog.Catalog) {
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
	return reference.NewResolver(cat), record.New(cat), cat
}

func TestSources(t *testing.T) {
	fields := []catalog.Field{
		{Name: "title", Type: fieldtype.Text},
		{Name: "author", Type: fieldtype.Reference, ReferenceTableID: 1, CascadeDelete: true},
		{Name: "editor", Type: fieldtype.Reference, ReferenceTableID: 1},
		{Name: "publisher", Type: fieldtype.Reference, ReferenceTableID: 2, CascadeDelete: true},
	}

	all := reference.Sources(fields, 1, false)
	if len(all) != 2 {
		t.Fatalf("expected 2 sources for table 1, got %d", len(all))
	}
	cascading := reference.Sources(fields, 1, true)
	if len(cascading) != 1 || cascading[0].Name != "author" {
		t.Fatalf("expected only the cascading author field, got %+v", cascading)
	}
}

func TestMatchesValue(t *testing.T) {
	single := catalog.Field{Name: "author", Type: fieldtype.Reference}
	if !reference.MatchesValue(single, int64(5), 5) {
		t.Fatal("exact id should match")
	}
	if reference.MatchesValue(single, int64(50), 5) {
		t.Fatal("different id should not match")
	}

	multi := catalog.Field{Name: "editors", Type: fieldtype.MultiReference}
	if !reference.MatchesValue(multi, "[1,10]", 10) {
		t.Fatal("listed id should match")
	}
	// "[10]" contains the digit 1 but not the id 1
	if reference.MatchesValue(multi, "[10]", 1) {
		t.Fatal("substring of another id should not match")
	}
	if reference.MatchesValue(multi, "not json", 1) {
		t.Fatal("malformed list should not match")
	}
}

func TestDisplayLabelPriority(t *testing.T) {
	resolver, engine, cat := newTestResolver(t)
	ctx := context.Background()

	id, err := cat.CreateTable(ctx, "people", "People")
	if err != nil {
		t.Fatal(err)
	}
	for _, spec := range []catalog.FieldSpec{
		{Name: "age", DisplayName: "Age", Type: fieldtype.Number},
		{Name: "notes", DisplayName: "Notes", Type: fieldtype.RichText},
		{Name: "email", DisplayName: "Email", Type: fieldtype.Email},
		{Name: "name", DisplayName: "Name", Type: fieldtype.Text},
	} {
		if _, err := cat.AddField(ctx, id, spec); err != nil {
			t.Fatal(err)
		}
	}
	people, err := cat.GetTable(ctx, id)
	if err != nil {
		t.Fatal(err)
	}

	recID, err := engine.Insert(ctx, *people, map[string]any{
		"age": 30.0, "notes": "long note", "email": "x@y.z", "name": "Ada",
	})
	if err != nil {
		t.Fatal(err)
	}
	row, err := engine.Get(ctx, *people, recID)
	if err != nil {
		t.Fatal(err)
	}

	// Preferred field wins
	label, err := resolver.DisplayLabel(ctx, row, people.ID, "email")
	if err != nil {
		t.Fatal(err)
	}
	if label != "x@y.z" {
		t.Fatalf("expected preferred field, got %q", label)
	}

	// No preference: first non-empty text-like field in declared order
	label, err = resolver.DisplayLabel(ctx, row, people.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if label != "x@y.z" {
		t.Fatalf("expected first text-like field, got %q", label)
	}

	// Only non-text values present: first non-empty non-id field
	bare, err := engine.Insert(ctx, *people, map[string]any{"age": 44.0})
	if err != nil {
		t.Fatal(err)
	}
	bareRow, err := engine.Get(ctx, *people, bare)
	if err != nil {
		t.Fatal(err)
	}
	label, err = resolver.DisplayLabel(ctx, bareRow, people.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if label != "44" {
		t.Fatalf("expected the age value, got %q", label)
	}

	// Nothing at all: fall back to the id
	empty, err := engine.Insert(ctx, *people, map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	emptyRow, err := engine.Get(ctx, *people, empty)
	if err != nil {
		t.Fatal(err)
	}
	label, err = resolver.DisplayLabel(ctx, emptyRow, people.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if label == "" {
		t.Fatal("expected an id fallback label")
	}
}

func TestFindReferencingRecords(t *testing.T) {
	resolver, engine, cat := newTestResolver(t)
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
	for _, spec := range []catalog.FieldSpec{
		{Name: "title", DisplayName: "Title", Type: fieldtype.Text},
		{Name: "author", DisplayName: "Author", Type: fieldtype.Reference, ReferenceTableID: authorsID},
		{Name: "editors", DisplayName: "Editors", Type: fieldtype.MultiReference, ReferenceTableID: authorsID},
	} {
		if _, err := cat.AddField(ctx, booksID, spec); err != nil {
			t.Fatal(err)
		}
	}

	authors, _ := cat.GetTable(ctx, authorsID)
	books, _ := cat.GetTable(ctx, booksID)

	target, err := engine.Insert(ctx, *authors, map[string]any{"name": "Ada"})
	if err != nil {
		t.Fatal(err)
	}
	other, err := engine.Insert(ctx, *authors, map[string]any{"name": "Grace"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := engine.Insert(ctx, *books, map[string]any{"title": "direct", "author": target}); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Insert(ctx, *books, map[string]any{"title": "listed", "editors": []int64{target, other}}); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Insert(ctx, *books, map[string]any{"title": "unrelated", "author": other}); err != nil {
		t.Fatal(err)
	}

	refs, err := resolver.FindReferencingRecords(ctx, authorsID, target)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 2 {
		t.Fatalf("expected 2 referencing records, got %d: %+v", len(refs), refs)
	}
	titles := map[string]bool{}
	for _, ref := range refs {
		titles[ref.Record["title"].(string)] = true
		if ref.SourceTable.Name != "books" {
			t.Fatalf("unexpected source table: %s", ref.SourceTable.Name)
		}
	}
	if !titles["direct"] || !titles["listed"] {
		t.Fatalf("unexpected referencing titles: %v", titles)
	}
}
