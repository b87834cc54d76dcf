package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/sakif/snippetd/internal/apperror"
	"github.com/sakif/snippetd/internal/model"
	"github.com/sakif/snippetd/internal/repository"
)

var _ repository.SnippetRepository = (*DB)(nil)

// Create allocates a new id, stores the normalized fields and the initial
// changeset, and returns the snippet. Everything happens in one transaction
// so a failure leaves no partial record behind.
func (db *DB) Create(ctx context.Context, fields repository.Fields, content string) (*model.Snippet, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperror.StorageFailed("beginning create transaction", err)
	}
	defer tx.Rollback()

	id, err := nextID(ctx, tx, snippetsCounter)
	if err != nil {
		return nil, apperror.StorageFailed("allocating snippet id", err)
	}

	now := model.Now()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO snippets (id, title, syntax, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, fields.Title, fields.Syntax, now.Unix(), now.Unix(),
	)
	if err != nil {
		return nil, apperror.StorageFailed("inserting snippet", err)
	}

	if err := appendChangeset(ctx, tx, id, content, now); err != nil {
		return nil, err
	}
	if err := replaceTags(ctx, tx, id, fields.Tags); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, apperror.StorageFailed("committing create", err)
	}

	return &model.Snippet{
		ID:         id,
		Title:      fields.Title,
		Syntax:     fields.Syntax,
		Tags:       normalizeTags(fields.Tags),
		CreatedAt:  now,
		UpdatedAt:  now,
		Changesets: []model.Changeset{{Content: content, CreatedAt: now}},
	}, nil
}

// GetByID returns a snippet with its full changeset history.
func (db *DB) GetByID(ctx context.Context, id int64) (*model.Snippet, error) {
	var (
		s                model.Snippet
		title, syntax    sql.NullString
		created, updated int64
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, title, syntax, created_at, updated_at
		 FROM snippets WHERE id = ?`,
		id,
	).Scan(&s.ID, &title, &syntax, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.SnippetNotFound()
	}
	if err != nil {
		return nil, apperror.StorageFailed(fmt.Sprintf("getting snippet %d", id), err)
	}

	s.Title = nullableString(title)
	s.Syntax = nullableString(syntax)
	s.CreatedAt = model.FromUnix(created)
	s.UpdatedAt = model.FromUnix(updated)

	if s.Changesets, err = db.changesetsOf(ctx, id); err != nil {
		return nil, err
	}
	if s.Tags, err = db.tagsOf(ctx, id); err != nil {
		return nil, err
	}

	return &s, nil
}

// Replace overwrites all mutable fields and appends a changeset with the
// given content, exactly like Create normalizes them.
func (db *DB) Replace(ctx context.Context, id int64, fields repository.Fields, content string) (*model.Snippet, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperror.StorageFailed("beginning replace transaction", err)
	}
	defer tx.Rollback()

	now := model.Now()

	result, err := tx.ExecContext(ctx,
		`UPDATE snippets SET title = ?, syntax = ?, updated_at = ? WHERE id = ?`,
		fields.Title, fields.Syntax, now.Unix(), id,
	)
	if err != nil {
		return nil, apperror.StorageFailed(fmt.Sprintf("replacing snippet %d", id), err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, apperror.StorageFailed("checking rows affected", err)
	} else if n == 0 {
		return nil, apperror.SnippetNotFound()
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM snippet_tags WHERE snippet_id = ?`, id); err != nil {
		return nil, apperror.StorageFailed("clearing snippet tags", err)
	}
	if err := replaceTags(ctx, tx, id, fields.Tags); err != nil {
		return nil, err
	}
	if err := appendChangeset(ctx, tx, id, content, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, apperror.StorageFailed("committing replace", err)
	}

	return db.GetByID(ctx, id)
}

// Update merges only the supplied fields. updated_at always advances, and a
// changeset is appended only when content was supplied.
func (db *DB) Update(ctx context.Context, id int64, patch repository.Patch) (*model.Snippet, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperror.StorageFailed("beginning update transaction", err)
	}
	defer tx.Rollback()

	now := model.Now()

	set := []string{"updated_at = ?"}
	args := []any{now.Unix()}
	if patch.Title != nil {
		set = append(set, "title = ?")
		args = append(args, *patch.Title)
	}
	if patch.Syntax != nil {
		set = append(set, "syntax = ?")
		args = append(args, *patch.Syntax)
	}
	args = append(args, id)

	result, err := tx.ExecContext(ctx,
		`UPDATE snippets SET `+strings.Join(set, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, apperror.StorageFailed(fmt.Sprintf("updating snippet %d", id), err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, apperror.StorageFailed("checking rows affected", err)
	} else if n == 0 {
		return nil, apperror.SnippetNotFound()
	}

	if patch.Tags != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM snippet_tags WHERE snippet_id = ?`, id); err != nil {
			return nil, apperror.StorageFailed("clearing snippet tags", err)
		}
		if err := replaceTags(ctx, tx, id, patch.Tags); err != nil {
			return nil, err
		}
	}
	if patch.Content != nil {
		if err := appendChangeset(ctx, tx, id, *patch.Content, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apperror.StorageFailed("committing update", err)
	}

	return db.GetByID(ctx, id)
}

// Delete removes the record. A second delete of the same id reports
// NotFound rather than silently succeeding.
func (db *DB) Delete(ctx context.Context, id int64) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM snippets WHERE id = ?`, id)
	if err != nil {
		return apperror.StorageFailed(fmt.Sprintf("deleting snippet %d", id), err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return apperror.StorageFailed("checking rows affected", err)
	}
	if n == 0 {
		return apperror.SnippetNotFound()
	}
	return nil
}

// List runs one page query over the keyset order.
//
// The anchor condition is the strict compound-key comparison: forward
// fetches rows with (updated_at, id) strictly below the anchor in
// descending order; backward fetches rows at or above the anchor in
// ascending order, anchor row included. updated_at alone is not unique
// (two snippets can change within the same second), so the id tie-break is
// what prevents rows from being skipped or duplicated across pages.
func (db *DB) List(ctx context.Context, q repository.ListQuery) ([]model.Snippet, error) {
	var (
		where []string
		args  []any
	)

	if q.Title != "" {
		// The filter value is escaped so it matches as a literal prefix,
		// never as a pattern.
		where = append(where, `s.title LIKE ? ESCAPE '\'`)
		args = append(args, escapeLike(q.Title)+"%")
	}
	if q.Tag != "" {
		where = append(where, `EXISTS (
			SELECT 1 FROM snippet_tags t WHERE t.snippet_id = s.id AND t.tag = ?)`)
		args = append(args, q.Tag)
	}
	if q.Syntax != "" {
		where = append(where, `s.syntax = ?`)
		args = append(args, q.Syntax)
	}

	order := `ORDER BY s.updated_at DESC, s.id DESC`
	if q.Anchor != nil {
		anchor := q.Anchor.UpdatedAt.Unix()
		switch q.Direction {
		case repository.Forward:
			where = append(where, `(s.updated_at < ? OR (s.updated_at = ? AND s.id < ?))`)
		case repository.Backward:
			where = append(where, `(s.updated_at > ? OR (s.updated_at = ? AND s.id >= ?))`)
		}
		args = append(args, anchor, anchor, q.Anchor.ID)
	}
	if q.Direction == repository.Backward {
		order = `ORDER BY s.updated_at ASC, s.id ASC`
	}

	query := `SELECT s.id, s.title, s.syntax, s.created_at, s.updated_at,
		(SELECT c.content FROM changesets c
		 WHERE c.snippet_id = s.id ORDER BY c.seq DESC LIMIT 1),
		(SELECT c.created_at FROM changesets c
		 WHERE c.snippet_id = s.id ORDER BY c.seq DESC LIMIT 1)
		FROM snippets s`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ` + order + ` LIMIT ?`
	args = append(args, q.Limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperror.StorageFailed("listing snippets", err)
	}
	defer rows.Close()

	snippets := make([]model.Snippet, 0, q.Limit)
	for rows.Next() {
		var (
			s                         model.Snippet
			title, syntax             sql.NullString
			created, updated, changed int64
			content                   string
		)
		if err := rows.Scan(&s.ID, &title, &syntax, &created, &updated, &content, &changed); err != nil {
			return nil, apperror.StorageFailed("scanning snippet row", err)
		}
		s.Title = nullableString(title)
		s.Syntax = nullableString(syntax)
		s.CreatedAt = model.FromUnix(created)
		s.UpdatedAt = model.FromUnix(updated)
		s.Changesets = []model.Changeset{{Content: content, CreatedAt: model.FromUnix(changed)}}
		snippets = append(snippets, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.StorageFailed("iterating snippets", err)
	}

	if err := db.attachTags(ctx, snippets); err != nil {
		return nil, err
	}

	return snippets, nil
}

// appendChangeset adds the next revision for a snippet. Historical entries
// are never touched.
func appendChangeset(ctx context.Context, tx *sql.Tx, id int64, content string, now model.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO changesets (snippet_id, seq, content, created_at)
		 SELECT ?, COALESCE(MAX(seq), 0) + 1, ?, ?
		 FROM changesets WHERE snippet_id = ?`,
		id, content, now.Unix(), id,
	)
	if err != nil {
		return apperror.StorageFailed("appending changeset", err)
	}
	return nil
}

func replaceTags(ctx context.Context, tx *sql.Tx, id int64, tags []string) error {
	for i, tag := range tags {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO snippet_tags (snippet_id, position, tag) VALUES (?, ?, ?)`,
			id, i+1, tag,
		)
		if err != nil {
			return apperror.StorageFailed("inserting snippet tag", err)
		}
	}
	return nil
}

func (db *DB) changesetsOf(ctx context.Context, id int64) ([]model.Changeset, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT content, created_at FROM changesets
		 WHERE snippet_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, apperror.StorageFailed("loading changesets", err)
	}
	defer rows.Close()

	var changesets []model.Changeset
	for rows.Next() {
		var (
			cs      model.Changeset
			created int64
		)
		if err := rows.Scan(&cs.Content, &created); err != nil {
			return nil, apperror.StorageFailed("scanning changeset row", err)
		}
		cs.CreatedAt = model.FromUnix(created)
		changesets = append(changesets, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.StorageFailed("iterating changesets", err)
	}
	return changesets, nil
}

func (db *DB) tagsOf(ctx context.Context, id int64) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT tag FROM snippet_tags WHERE snippet_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, apperror.StorageFailed("loading tags", err)
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, apperror.StorageFailed("scanning tag row", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.StorageFailed("iterating tags", err)
	}
	return tags, nil
}

// attachTags fills Tags for a page of snippets in a single query.
func (db *DB) attachTags(ctx context.Context, snippets []model.Snippet) error {
	if len(snippets) == 0 {
		return nil
	}

	index := make(map[int64]int, len(snippets))
	placeholders := make([]string, len(snippets))
	args := make([]any, len(snippets))
	for i := range snippets {
		snippets[i].Tags = []string{}
		index[snippets[i].ID] = i
		placeholders[i] = "?"
		args[i] = snippets[i].ID
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT snippet_id, tag FROM snippet_tags
		 WHERE snippet_id IN (`+strings.Join(placeholders, ", ")+`)
		 ORDER BY snippet_id, position`, args...)
	if err != nil {
		return apperror.StorageFailed("loading page tags", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id  int64
			tag string
		)
		if err := rows.Scan(&id, &tag); err != nil {
			return apperror.StorageFailed("scanning page tag row", err)
		}
		if i, ok := index[id]; ok {
			snippets[i].Tags = append(snippets[i].Tags, tag)
		}
	}
	if err := rows.Err(); err != nil {
		return apperror.StorageFailed("iterating page tags", err)
	}
	return nil
}

// escapeLike escapes LIKE metacharacters so the filter value is treated as
// a literal, matching the ESCAPE '\' clause used in List.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func nullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

// normalizeTags maps a nil tag list to an empty one so representations
// always render a JSON array.
func normalizeTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
