package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sakif/snippetd/internal/apperror"
	"github.com/sakif/snippetd/internal/model"
	"github.com/sakif/snippetd/internal/repository"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func strPtr(s string) *string {
	return &s
}

func createTestSnippet(t *testing.T, db *DB, fields repository.Fields, content string) *model.Snippet {
	t.Helper()
	snippet, err := db.Create(context.Background(), fields, content)
	if err != nil {
		t.Fatalf("failed to create test snippet: %v", err)
	}
	return snippet
}

// setTimestamps rewrites a snippet's timestamps directly, so tests can lay
// out a deterministic keyset order without sleeping between writes.
func setTimestamps(t *testing.T, db *DB, id, createdAt, updatedAt int64) {
	t.Helper()
	_, err := db.conn.Exec(
		`UPDATE snippets SET created_at = ?, updated_at = ? WHERE id = ?`,
		createdAt, updatedAt, id)
	if err != nil {
		t.Fatalf("failed to set timestamps: %v", err)
	}
}

func TestCreate_RoundTrip(t *testing.T) {
	db := newTestDB(t)

	created := createTestSnippet(t, db, repository.Fields{
		Title:  strPtr("hello"),
		Syntax: strPtr("python"),
		Tags:   []string{"demo", "first-steps"},
	}, "print('hi')")

	if created.ID != 1 {
		t.Errorf("ID = %d, want 1", created.ID)
	}
	if created.CreatedAt != created.UpdatedAt {
		t.Errorf("CreatedAt %v != UpdatedAt %v", created.CreatedAt, created.UpdatedAt)
	}

	got, err := db.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Content() != "print('hi')" {
		t.Errorf("Content() = %q, want %q", got.Content(), "print('hi')")
	}
	if len(got.Changesets) != 1 {
		t.Fatalf("len(Changesets) = %d, want 1", len(got.Changesets))
	}
	if got.Title == nil || *got.Title != "hello" {
		t.Errorf("Title = %v, want hello", got.Title)
	}
	if got.Syntax == nil || *got.Syntax != "python" {
		t.Errorf("Syntax = %v, want python", got.Syntax)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "demo" || got.Tags[1] != "first-steps" {
		t.Errorf("Tags = %v, want [demo first-steps] in order", got.Tags)
	}
}

func TestCreate_DefaultsAreNull(t *testing.T) {
	db := newTestDB(t)

	created := createTestSnippet(t, db, repository.Fields{}, "content")

	got, err := db.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Title != nil {
		t.Errorf("Title = %v, want nil", got.Title)
	}
	if got.Syntax != nil {
		t.Errorf("Syntax = %v, want nil", got.Syntax)
	}
	if got.Tags == nil || len(got.Tags) != 0 {
		t.Errorf("Tags = %v, want empty non-nil slice", got.Tags)
	}
}

func TestCreate_IDsAreSequentialAndNeverReused(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		s := createTestSnippet(t, db, repository.Fields{}, "c")
		if s.ID != want {
			t.Fatalf("ID = %d, want %d", s.ID, want)
		}
	}

	if err := db.Delete(ctx, 3); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	// A deleted id must never come back.
	s := createTestSnippet(t, db, repository.Fields{}, "c")
	if s.ID != 4 {
		t.Errorf("ID after delete = %d, want 4", s.ID)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetByID(context.Background(), 42)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestReplace_OverwritesFieldsAndAppendsChangeset(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	created := createTestSnippet(t, db, repository.Fields{
		Title: strPtr("old title"),
		Tags:  []string{"old"},
	}, "v1")

	got, err := db.Replace(ctx, created.ID, repository.Fields{
		Syntax: strPtr("go"),
		Tags:   []string{"new", "shiny"},
	}, "v2")
	if err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	// Replace normalizes like create: unsupplied title resets to null.
	if got.Title != nil {
		t.Errorf("Title = %v, want nil after replace", got.Title)
	}
	if got.Syntax == nil || *got.Syntax != "go" {
		t.Errorf("Syntax = %v, want go", got.Syntax)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "new" {
		t.Errorf("Tags = %v, want [new shiny]", got.Tags)
	}
	if len(got.Changesets) != 2 {
		t.Fatalf("len(Changesets) = %d, want 2", len(got.Changesets))
	}
	if got.Content() != "v2" {
		t.Errorf("Content() = %q, want v2", got.Content())
	}
	if got.Changesets[0].Content != "v1" {
		t.Errorf("history was rewritten: Changesets[0] = %q, want v1", got.Changesets[0].Content)
	}
}

func TestReplace_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Replace(context.Background(), 42, repository.Fields{}, "c")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Replace() error = %v, want ErrNotFound", err)
	}
}

func TestUpdate_PartialMergeWithoutContent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	created := createTestSnippet(t, db, repository.Fields{
		Title:  strPtr("title"),
		Syntax: strPtr("python"),
		Tags:   []string{"keep"},
	}, "v1")
	setTimestamps(t, db, created.ID, 1000, 1000)

	got, err := db.Update(ctx, created.ID, repository.Patch{
		Title: strPtr("renamed"),
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if got.Title == nil || *got.Title != "renamed" {
		t.Errorf("Title = %v, want renamed", got.Title)
	}
	if got.Syntax == nil || *got.Syntax != "python" {
		t.Errorf("Syntax = %v, want python (untouched)", got.Syntax)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "keep" {
		t.Errorf("Tags = %v, want [keep] (untouched)", got.Tags)
	}
	if len(got.Changesets) != 1 {
		t.Errorf("len(Changesets) = %d, want 1 (no content supplied)", len(got.Changesets))
	}
	// updated_at advances even without a content change.
	if got.UpdatedAt.Unix() <= 1000 {
		t.Errorf("UpdatedAt = %d, want > 1000", got.UpdatedAt.Unix())
	}
	if got.CreatedAt.Unix() != 1000 {
		t.Errorf("CreatedAt = %d, want 1000 (immutable)", got.CreatedAt.Unix())
	}
}

func TestUpdate_ContentAppendsHistory(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	created := createTestSnippet(t, db, repository.Fields{}, "v1")

	const updates = 4
	for i := 2; i <= updates+1; i++ {
		content := fmt.Sprintf("v%d", i)
		if _, err := db.Update(ctx, created.ID, repository.Patch{Content: &content}); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
	}

	got, err := db.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if len(got.Changesets) != updates+1 {
		t.Fatalf("len(Changesets) = %d, want %d", len(got.Changesets), updates+1)
	}
	if got.Content() != "v5" {
		t.Errorf("Content() = %q, want v5", got.Content())
	}
	for i, cs := range got.Changesets {
		if want := fmt.Sprintf("v%d", i+1); cs.Content != want {
			t.Errorf("Changesets[%d] = %q, want %q", i, cs.Content, want)
		}
	}
}

func TestUpdate_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Update(context.Background(), 42, repository.Patch{Title: strPtr("x")})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
}

func TestDelete_RemovesRecordAndChildren(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	created := createTestSnippet(t, db, repository.Fields{Tags: []string{"a"}}, "c")

	if err := db.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := db.GetByID(ctx, created.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() after delete = %v, want ErrNotFound", err)
	}
	// Second delete reports NotFound rather than silently succeeding.
	if err := db.Delete(ctx, created.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("second Delete() = %v, want ErrNotFound", err)
	}

	// Cascade cleanup of history and tags.
	var count int
	if err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM changesets WHERE snippet_id = ?`, created.ID).Scan(&count); err != nil {
		t.Fatalf("counting changesets: %v", err)
	}
	if count != 0 {
		t.Errorf("changesets left behind: %d", count)
	}
	if err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM snippet_tags WHERE snippet_id = ?`, created.ID).Scan(&count); err != nil {
		t.Fatalf("counting tags: %v", err)
	}
	if count != 0 {
		t.Errorf("tags left behind: %d", count)
	}
}

// seedOrdered creates n snippets with strictly increasing timestamps, so
// id i has updated_at base+i and the newest snippet has the highest id.
func seedOrdered(t *testing.T, db *DB, n int) {
	t.Helper()
	const base = 1_700_000_000
	for i := 1; i <= n; i++ {
		s := createTestSnippet(t, db, repository.Fields{}, fmt.Sprintf("c%d", i))
		setTimestamps(t, db, s.ID, base+int64(i), base+int64(i))
	}
}

func listIDs(t *testing.T, db *DB, q repository.ListQuery) []int64 {
	t.Helper()
	snippets, err := db.List(context.Background(), q)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	ids := make([]int64, len(snippets))
	for i, s := range snippets {
		ids[i] = s.ID
	}
	return ids
}

func anchorOf(t *testing.T, db *DB, id int64) *repository.Anchor {
	t.Helper()
	s, err := db.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%d) error = %v", id, err)
	}
	return &repository.Anchor{UpdatedAt: s.UpdatedAt, ID: s.ID}
}

func TestList_NewestFirst(t *testing.T) {
	db := newTestDB(t)
	seedOrdered(t, db, 5)

	ids := listIDs(t, db, repository.ListQuery{Limit: 10})
	want := []int64{5, 4, 3, 2, 1}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
}

func TestList_ForwardAnchorIsStrictlyOlder(t *testing.T) {
	db := newTestDB(t)
	seedOrdered(t, db, 5)

	ids := listIDs(t, db, repository.ListQuery{
		Limit:     10,
		Anchor:    anchorOf(t, db, 3),
		Direction: repository.Forward,
	})
	if len(ids) != 2 || ids[0] != 2 || ids[1] != 1 {
		t.Errorf("ids = %v, want [2 1]", ids)
	}
}

func TestList_BackwardIncludesAnchor(t *testing.T) {
	db := newTestDB(t)
	seedOrdered(t, db, 5)

	ids := listIDs(t, db, repository.ListQuery{
		Limit:     10,
		Anchor:    anchorOf(t, db, 3),
		Direction: repository.Backward,
	})
	// Ascending from the anchor, anchor row included.
	if len(ids) != 3 || ids[0] != 3 || ids[1] != 4 || ids[2] != 5 {
		t.Errorf("ids = %v, want [3 4 5]", ids)
	}
}

func TestList_IdenticalTimestampsBreakTiesByID(t *testing.T) {
	db := newTestDB(t)
	for i := 0; i < 3; i++ {
		s := createTestSnippet(t, db, repository.Fields{}, "c")
		setTimestamps(t, db, s.ID, 1000, 1000)
	}

	// Reproducible across repeated queries.
	for run := 0; run < 3; run++ {
		ids := listIDs(t, db, repository.ListQuery{Limit: 10})
		if len(ids) != 3 || ids[0] != 3 || ids[1] != 2 || ids[2] != 1 {
			t.Fatalf("run %d: ids = %v, want [3 2 1]", run, ids)
		}
	}

	// The anchor tie-break: forward from id 2 must yield exactly id 1.
	ids := listIDs(t, db, repository.ListQuery{
		Limit:     10,
		Anchor:    anchorOf(t, db, 2),
		Direction: repository.Forward,
	})
	if len(ids) != 1 || ids[0] != 1 {
		t.Errorf("forward from tied anchor: ids = %v, want [1]", ids)
	}
}

func TestList_TitlePrefixFilter(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, title := range []string{"go tour", "golang tips", "rust book"} {
		if _, err := db.Create(ctx, repository.Fields{Title: strPtr(title)}, "c"); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	ids := listIDs(t, db, repository.ListQuery{Title: "go", Limit: 10})
	if len(ids) != 2 {
		t.Errorf("prefix go: got %d results, want 2", len(ids))
	}

	// Anchored at the start: "tour" matches nothing.
	ids = listIDs(t, db, repository.ListQuery{Title: "tour", Limit: 10})
	if len(ids) != 0 {
		t.Errorf("prefix tour: got %d results, want 0", len(ids))
	}
}

func TestList_TitleFilterEscapesPatternCharacters(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := db.Create(ctx, repository.Fields{Title: strPtr("100% legit")}, "c"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := db.Create(ctx, repository.Fields{Title: strPtr("100x faster")}, "c"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// "%" must match only itself, not act as a wildcard.
	ids := listIDs(t, db, repository.ListQuery{Title: "100%", Limit: 10})
	if len(ids) != 1 {
		t.Fatalf("got %d results, want 1", len(ids))
	}

	snippets, err := db.List(ctx, repository.ListQuery{Title: "100%", Limit: 10})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if *snippets[0].Title != "100% legit" {
		t.Errorf("Title = %q, want %q", *snippets[0].Title, "100% legit")
	}
}

func TestList_TagAndSyntaxFilters(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	mk := func(syntax string, tags ...string) {
		t.Helper()
		if _, err := db.Create(ctx, repository.Fields{Syntax: strPtr(syntax), Tags: tags}, "c"); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	mk("python", "web", "api")
	mk("python", "cli")
	mk("go", "web")

	if ids := listIDs(t, db, repository.ListQuery{Tag: "web", Limit: 10}); len(ids) != 2 {
		t.Errorf("tag web: got %v, want 2 results", ids)
	}
	if ids := listIDs(t, db, repository.ListQuery{Syntax: "go", Limit: 10}); len(ids) != 1 {
		t.Errorf("syntax go: got %v, want 1 result", ids)
	}
	if ids := listIDs(t, db, repository.ListQuery{Tag: "web", Syntax: "python", Limit: 10}); len(ids) != 1 {
		t.Errorf("tag web + syntax python: got %v, want 1 result", ids)
	}
}

func TestList_LimitIsHonoured(t *testing.T) {
	db := newTestDB(t)
	seedOrdered(t, db, 5)

	ids := listIDs(t, db, repository.ListQuery{Limit: 2})
	if len(ids) != 2 || ids[0] != 5 || ids[1] != 4 {
		t.Errorf("ids = %v, want [5 4]", ids)
	}
}
