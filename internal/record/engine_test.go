package record

import (
	"context"
	"errors"
	"testing"
	"time"

	"gridbase/internal/catalog"
	"gridbase/internal/config"
	"gridbase/internal/fieldtype"
	"gridbase/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *catalog.Catalog) {
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
	return New(cat), cat
}

func mustTable(t *testing.T, cat *catalog.Catalog, name string, fields ...catalog.FieldSpec) catalog.Table {
	t.Helper()
	ctx := context.Background()
	id, err := cat.CreateTable(ctx, name, name)
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	for _, spec := range fields {
		if _, err := cat.AddField(ctx, id, spec); err != nil {
			t.Fatalf("add %s.%s: %v", name, spec.Name, err)
		}
	}
	table, err := cat.GetTable(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	return *table
}

func TestInsertGetUpdate(t *testing.T) {
	engine, cat := newTestEngine(t)
	ctx := context.Background()

	books := mustTable(t, cat, "books",
		catalog.FieldSpec{Name: "title", DisplayName: "Title", Type: fieldtype.Text},
		catalog.FieldSpec{Name: "price", DisplayName: "Price", Type: fieldtype.Number},
		catalog.FieldSpec{Name: "in_print", DisplayName: "In Print", Type: fieldtype.Boolean},
	)

	id, err := engine.Insert(ctx, books, map[string]any{
		"title": "Dune", "price": 9.99, "in_print": true,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id == 0 {
		t.Fatal("expected a generated id")
	}

	row, err := engine.Get(ctx, books, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row["title"] != "Dune" {
		t.Fatalf("unexpected title: %v", row["title"])
	}
	if row["in_print"] != true {
		t.Fatalf("boolean should come back as bool, got %T %v", row["in_print"], row["in_print"])
	}
	if row["created_at"] == nil || row["updated_at"] == nil {
		t.Fatal("timestamps should be populated")
	}

	if err := engine.Update(ctx, books, id, map[string]any{"price": 4.99}); err != nil {
		t.Fatalf("update: %v", err)
	}
	row, err = engine.Get(ctx, books, id)
	if err != nil {
		t.Fatal(err)
	}
	if row["price"] != 4.99 {
		t.Fatalf("price not updated: %v", row["price"])
	}
	// Other columns untouched
	if row["title"] != "Dune" {
		t.Fatalf("title should be unchanged: %v", row["title"])
	}
}

func asTimestamp(t *testing.T, v any) time.Time {
	t.Helper()
	switch x := v.(type) {
	case time.Time:
		return x
	case string:
		tm, err := time.Parse("2006-01-02 15:04:05", x)
		if err != nil {
			t.Fatalf("parse timestamp %q: %v", x, err)
		}
		return tm
	default:
		t.Fatalf("unexpected timestamp type %T (%v)", v, v)
		return time.Time{}
	}
}

func TestUpdateAdvancesOnlyUpdatedAt(t *testing.T) {
	engine, cat := newTestEngine(t)
	ctx := context.Background()

	books := mustTable(t, cat, "books",
		catalog.FieldSpec{Name: "title", DisplayName: "Title", Type: fieldtype.Text},
	)
	id, err := engine.Insert(ctx, books, map[string]any{"title": "Dune"})
	if err != nil {
		t.Fatal(err)
	}

	// Backdate both stamps so the update's touch is observable without
	// sleeping across a clock second
	past := "2020-05-04 03:02:01"
	if _, err := store.Exec(ctx, engine.store.DB,
		"UPDATE books SET created_at = ?, updated_at = ? WHERE id = ?", past, past, id); err != nil {
		t.Fatal(err)
	}

	// A caller-supplied created_at is discarded like any system column
	if err := engine.Update(ctx, books, id, map[string]any{
		"title": "Dune Messiah", "created_at": "1999-01-01 00:00:00",
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	row, err := engine.Get(ctx, books, id)
	if err != nil {
		t.Fatal(err)
	}
	want, err := time.Parse("2006-01-02 15:04:05", past)
	if err != nil {
		t.Fatal(err)
	}
	if got := asTimestamp(t, row["created_at"]); !got.Equal(want) {
		t.Fatalf("created_at should be untouched, got %v", got)
	}
	if got := asTimestamp(t, row["updated_at"]); !got.After(want) {
		t.Fatalf("updated_at should advance past %v, got %v", want, got)
	}
	if row["title"] != "Dune Messiah" {
		t.Fatalf("title not updated: %v", row["title"])
	}
}

func TestInsertRejectsUnknownField(t *testing.T) {
	engine, cat := newTestEngine(t)
	ctx := context.Background()

	books := mustTable(t, cat, "books",
		catalog.FieldSpec{Name: "title", DisplayName: "Title", Type: fieldtype.Text},
	)
	_, err := engine.Insert(ctx, books, map[string]any{"nope": "x"})
	if !errors.Is(err, catalog.ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}

func TestInsertIgnoresSystemColumns(t *testing.T) {
	engine, cat := newTestEngine(t)
	ctx := context.Background()

	books := mustTable(t, cat, "books",
		catalog.FieldSpec{Name: "title", DisplayName: "Title", Type: fieldtype.Text},
	)
	id, err := engine.Insert(ctx, books, map[string]any{"id": 999, "title": "Dune"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id == 999 {
		t.Fatal("caller-supplied id should be ignored")
	}
}

func TestUpdateMissingIDIsNoOp(t *testing.T) {
	engine, cat := newTestEngine(t)
	ctx := context.Background()

	books := mustTable(t, cat, "books",
		catalog.FieldSpec{Name: "title", DisplayName: "Title", Type: fieldtype.Text},
	)
	if err := engine.Update(ctx, books, 12345, map[string]any{"title": "x"}); err != nil {
		t.Fatalf("updating a missing id should not error, got %v", err)
	}
	if _, err := engine.Get(ctx, books, 12345); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListOrderAndPaging(t *testing.T) {
	engine, cat := newTestEngine(t)
	ctx := context.Background()

	books := mustTable(t, cat, "books",
		catalog.FieldSpec{Name: "title", DisplayName: "Title", Type: fieldtype.Text},
	)
	for _, title := range []string{"b", "c", "a"} {
		if _, err := engine.Insert(ctx, books, map[string]any{"title": title}); err != nil {
			t.Fatal(err)
		}
	}

	rows, err := engine.List(ctx, books, ListOptions{OrderBy: "title"})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || rows[0]["title"] != "a" || rows[2]["title"] != "c" {
		t.Fatalf("unexpected order: %v", rows)
	}

	rows, err = engine.List(ctx, books, ListOptions{OrderBy: "title", OrderDir: "desc", Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0]["title"] != "c" {
		t.Fatalf("unexpected page: %v", rows)
	}

	if _, err := engine.List(ctx, books, ListOptions{OrderBy: "nope"}); !errors.Is(err, catalog.ErrUnknownField) {
		t.Fatalf("unknown order_by should be rejected, got %v", err)
	}

	n, err := engine.Count(ctx, books, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("expected count 3, got %d", n)
	}
}

func TestSearchFoldsDiacritics(t *testing.T) {
	engine, cat := newTestEngine(t)
	ctx := context.Background()

	books := mustTable(t, cat, "books",
		catalog.FieldSpec{Name: "title", DisplayName: "Title", Type: fieldtype.Text},
	)
	for _, title := range []string{"Café", "cafe", "CAFÉ", "tea"} {
		if _, err := engine.Insert(ctx, books, map[string]any{"title": title}); err != nil {
			t.Fatal(err)
		}
	}

	for _, term := range []string{"cafe", "Café", "CAFÉ"} {
		rows, err := engine.Search(ctx, books, term, []string{"title"}, ListOptions{})
		if err != nil {
			t.Fatalf("search %q: %v", term, err)
		}
		if len(rows) != 3 {
			t.Fatalf("search %q: expected 3 matches, got %d", term, len(rows))
		}
	}

	// Empty term degrades to a plain list
	rows, err := engine.Search(ctx, books, "", []string{"title"}, ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("empty term should list everything, got %d", len(rows))
	}
}

func TestFilterNumberRange(t *testing.T) {
	engine, cat := newTestEngine(t)
	ctx := context.Background()

	books := mustTable(t, cat, "books",
		catalog.FieldSpec{Name: "price", DisplayName: "Price", Type: fieldtype.Number},
	)
	for _, price := range []float64{5, 15, 25} {
		if _, err := engine.Insert(ctx, books, map[string]any{"price": price}); err != nil {
			t.Fatal(err)
		}
	}

	min, max := 10.0, 20.0
	rows, err := engine.Filter(ctx, books, map[string]FilterSpec{
		"price": {Kind: fieldtype.FilterNumberRange, Min: &min, Max: &max},
	}, ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0]["price"] != 15.0 {
		t.Fatalf("expected exactly the 15 row, got %v", rows)
	}

	// Open-ended bound
	rows, err = engine.Filter(ctx, books, map[string]FilterSpec{
		"price": {Kind: fieldtype.FilterNumberRange, Min: &min},
	}, ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows >= 10, got %d", len(rows))
	}
}

func TestFilterBooleanAndDropdown(t *testing.T) {
	engine, cat := newTestEngine(t)
	ctx := context.Background()

	books := mustTable(t, cat, "books",
		catalog.FieldSpec{Name: "in_print", DisplayName: "In Print", Type: fieldtype.Boolean},
		catalog.FieldSpec{Name: "genre", DisplayName: "Genre", Type: fieldtype.Dropdown, Options: []string{"scifi", "mystery"}},
	)
	if _, err := engine.Insert(ctx, books, map[string]any{"in_print": true, "genre": "scifi"}); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Insert(ctx, books, map[string]any{"in_print": false, "genre": "mystery"}); err != nil {
		t.Fatal(err)
	}

	yes := true
	rows, err := engine.Filter(ctx, books, map[string]FilterSpec{
		"in_print": {Kind: fieldtype.FilterBoolean, Bool: &yes},
	}, ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0]["genre"] != "scifi" {
		t.Fatalf("unexpected boolean filter result: %v", rows)
	}

	rows, err = engine.Filter(ctx, books, map[string]FilterSpec{
		"genre": {Kind: fieldtype.FilterDropdown, Value: "mystery"},
	}, ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0]["in_print"] != false {
		t.Fatalf("unexpected dropdown filter result: %v", rows)
	}
}

func TestFilterReference(t *testing.T) {
	engine, cat := newTestEngine(t)
	ctx := context.Background()

	authors := mustTable(t, cat, "authors",
		catalog.FieldSpec{Name: "name", DisplayName: "Name", Type: fieldtype.Text},
	)
	books := mustTable(t, cat, "books",
		catalog.FieldSpec{Name: "title", DisplayName: "Title", Type: fieldtype.Text},
		catalog.FieldSpec{Name: "author", DisplayName: "Author", Type: fieldtype.Reference, ReferenceTableID: authors.ID},
	)

	garcia, err := engine.Insert(ctx, authors, map[string]any{"name": "García Márquez"})
	if err != nil {
		t.Fatal(err)
	}
	tolkien, err := engine.Insert(ctx, authors, map[string]any{"name": "Tolkien"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Insert(ctx, books, map[string]any{"title": "Cien años", "author": garcia}); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Insert(ctx, books, map[string]any{"title": "The Hobbit", "author": tolkien}); err != nil {
		t.Fatal(err)
	}

	rows, err := engine.Filter(ctx, books, map[string]FilterSpec{
		"author": {Kind: fieldtype.FilterReference, Value: "garcia"},
	}, ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0]["title"] != "Cien años" {
		t.Fatalf("unexpected reference filter result: %v", rows)
	}

	// No author matches: empty result, not an error
	rows, err = engine.Filter(ctx, books, map[string]FilterSpec{
		"author": {Kind: fieldtype.FilterReference, Value: "nosuch"},
	}, ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows, got %v", rows)
	}
}

func TestFilterReferenceMatchesTextLikeFieldsOnly(t *testing.T) {
	engine, cat := newTestEngine(t)
	ctx := context.Background()

	authors := mustTable(t, cat, "authors",
		catalog.FieldSpec{Name: "name", DisplayName: "Name", Type: fieldtype.Text},
		catalog.FieldSpec{Name: "bio", DisplayName: "Bio", Type: fieldtype.RichText},
	)
	books := mustTable(t, cat, "books",
		catalog.FieldSpec{Name: "title", DisplayName: "Title", Type: fieldtype.Text},
		catalog.FieldSpec{Name: "author", DisplayName: "Author", Type: fieldtype.Reference, ReferenceTableID: authors.ID},
	)

	a, err := engine.Insert(ctx, authors, map[string]any{"name": "Tolkien", "bio": "wrote about hobbits"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Insert(ctx, books, map[string]any{"title": "LOTR", "author": a}); err != nil {
		t.Fatal(err)
	}

	// The term appears only in the richtext bio, which the one-hop
	// reference filter does not search
	rows, err := engine.Filter(ctx, books, map[string]FilterSpec{
		"author": {Kind: fieldtype.FilterReference, Value: "hobbits"},
	}, ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Fatalf("richtext content should not match, got %v", rows)
	}

	rows, err = engine.Filter(ctx, books, map[string]FilterSpec{
		"author": {Kind: fieldtype.FilterReference, Value: "tolkien"},
	}, ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one match via the name field, got %v", rows)
	}
}

func TestCascadeDelete(t *testing.T) {
	engine, cat := newTestEngine(t)
	ctx := context.Background()

	authors := mustTable(t, cat, "authors",
		catalog.FieldSpec{Name: "name", DisplayName: "Name", Type: fieldtype.Text},
	)
	books := mustTable(t, cat, "books",
		catalog.FieldSpec{Name: "title", DisplayName: "Title", Type: fieldtype.Text},
		catalog.FieldSpec{Name: "author", DisplayName: "Author", Type: fieldtype.Reference,
			ReferenceTableID: authors.ID, CascadeDelete: true},
	)

	a1, err := engine.Insert(ctx, authors, map[string]any{"name": "First"})
	if err != nil {
		t.Fatal(err)
	}
	a2, err := engine.Insert(ctx, authors, map[string]any{"name": "Second"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Insert(ctx, books, map[string]any{"title": "by first", "author": a1}); err != nil {
		t.Fatal(err)
	}
	kept, err := engine.Insert(ctx, books, map[string]any{"title": "by second", "author": a2})
	if err != nil {
		t.Fatal(err)
	}

	if err := engine.Delete(ctx, authors, a1); err != nil {
		t.Fatalf("cascade delete: %v", err)
	}

	if _, err := engine.Get(ctx, authors, a1); !errors.Is(err, store.ErrNotFound) {
		t.Fatal("author should be gone")
	}
	rows, err := engine.List(ctx, books, ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("books of the deleted author should cascade, got %v", rows)
	}
	if id, _ := store.AsInt64(rows[0]["id"]); id != kept {
		t.Fatalf("wrong book survived: %v", rows[0])
	}
}

func TestDeleteWithoutCascadeLeavesDanglingID(t *testing.T) {
	engine, cat := newTestEngine(t)
	ctx := context.Background()

	authors := mustTable(t, cat, "authors",
		catalog.FieldSpec{Name: "name", DisplayName: "Name", Type: fieldtype.Text},
	)
	books := mustTable(t, cat, "books",
		catalog.FieldSpec{Name: "title", DisplayName: "Title", Type: fieldtype.Text},
		catalog.FieldSpec{Name: "author", DisplayName: "Author", Type: fieldtype.Reference,
			ReferenceTableID: authors.ID},
	)

	a1, err := engine.Insert(ctx, authors, map[string]any{"name": "First"})
	if err != nil {
		t.Fatal(err)
	}
	bookID, err := engine.Insert(ctx, books, map[string]any{"title": "orphan", "author": a1})
	if err != nil {
		t.Fatal(err)
	}

	if err := engine.Delete(ctx, authors, a1); err != nil {
		t.Fatal(err)
	}

	row, err := engine.Get(ctx, books, bookID)
	if err != nil {
		t.Fatalf("book should survive, got %v", err)
	}
	if id, _ := store.AsInt64(row["author"]); id != a1 {
		t.Fatalf("dangling id should remain, got %v", row["author"])
	}
}

func TestCascadeDeleteMultiReference(t *testing.T) {
	engine, cat := newTestEngine(t)
	ctx := context.Background()

	authors := mustTable(t, cat, "authors",
		catalog.FieldSpec{Name: "name", DisplayName: "Name", Type: fieldtype.Text},
	)
	books := mustTable(t, cat, "books",
		catalog.FieldSpec{Name: "title", DisplayName: "Title", Type: fieldtype.Text},
		catalog.FieldSpec{Name: "editors", DisplayName: "Editors", Type: fieldtype.MultiReference,
			ReferenceTableID: authors.ID, CascadeDelete: true},
	)

	// Ten authors so an id of 10 exists alongside 1
	ids := make([]int64, 10)
	for i := range ids {
		id, err := engine.Insert(ctx, authors, map[string]any{"name": "a"})
		if err != nil {
			t.Fatal(err)
		}
		ids[i] = id
	}

	doomed, err := engine.Insert(ctx, books, map[string]any{"title": "doomed", "editors": []int64{ids[0]}})
	if err != nil {
		t.Fatal(err)
	}
	// References id 10 only; the "%1%" prefilter also matches "[10]"
	survivor, err := engine.Insert(ctx, books, map[string]any{"title": "survivor", "editors": []int64{ids[9]}})
	if err != nil {
		t.Fatal(err)
	}

	if err := engine.Delete(ctx, authors, ids[0]); err != nil {
		t.Fatal(err)
	}

	if _, err := engine.Get(ctx, books, doomed); !errors.Is(err, store.ErrNotFound) {
		t.Fatal("book listing the deleted editor should cascade")
	}
	if _, err := engine.Get(ctx, books, survivor); err != nil {
		t.Fatalf("book listing editor 10 should survive a delete of editor 1, got %v", err)
	}
}

func TestCascadeDeleteCycleTerminates(t *testing.T) {
	engine, cat := newTestEngine(t)
	ctx := context.Background()

	left := mustTable(t, cat, "left_side",
		catalog.FieldSpec{Name: "label", DisplayName: "Label", Type: fieldtype.Text},
	)
	right := mustTable(t, cat, "right_side",
		catalog.FieldSpec{Name: "label", DisplayName: "Label", Type: fieldtype.Text},
		catalog.FieldSpec{Name: "peer", DisplayName: "Peer", Type: fieldtype.Reference,
			ReferenceTableID: left.ID, CascadeDelete: true},
	)
	if _, err := cat.AddField(ctx, left.ID, catalog.FieldSpec{
		Name: "peer", DisplayName: "Peer", Type: fieldtype.Reference,
		ReferenceTableID: right.ID, CascadeDelete: true,
	}); err != nil {
		t.Fatal(err)
	}

	l, err := engine.Insert(ctx, left, map[string]any{"label": "l"})
	if err != nil {
		t.Fatal(err)
	}
	r, err := engine.Insert(ctx, right, map[string]any{"label": "r", "peer": l})
	if err != nil {
		t.Fatal(err)
	}
	if err := engine.Update(ctx, left, l, map[string]any{"peer": r}); err != nil {
		t.Fatal(err)
	}

	// Mutual cascade references must not loop forever
	if err := engine.Delete(ctx, left, l); err != nil {
		t.Fatalf("cyclic cascade should terminate cleanly, got %v", err)
	}
	if _, err := engine.Get(ctx, left, l); !errors.Is(err, store.ErrNotFound) {
		t.Fatal("left record should be gone")
	}
	if _, err := engine.Get(ctx, right, r); !errors.Is(err, store.ErrNotFound) {
		t.Fatal("right record should be gone")
	}
}
