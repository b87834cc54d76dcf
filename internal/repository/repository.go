// Package repository declares the storage interface consumed by the service
// layer. The concrete implementation lives in repository/sqlite.
package repository

import (
	"context"

	"github.com/sakif/snippetd/internal/model"
)

// Direction selects which side of the pagination anchor a List call walks.
type Direction int

const (
	// Forward is the normal traversal: records strictly older than the
	// anchor in (updated_at DESC, id DESC) order.
	Forward Direction = iota

	// Backward probes the page preceding the anchor: records at or after
	// the anchor key in (updated_at ASC, id ASC) order. The anchor row
	// itself is included so a probe of exactly one page means the previous
	// page is the very first one.
	Backward
)

// Anchor is the resolved compound sort key of a marker snippet. The pair
// (UpdatedAt, ID) is unique across the collection, which is what makes the
// keyset traversal a total order.
type Anchor struct {
	UpdatedAt model.Time
	ID        int64
}

// ListQuery describes one page query. Zero-valued filters are unset.
type ListQuery struct {
	Title  string // anchored literal prefix match
	Tag    string // tag-set membership
	Syntax string // exact match

	Limit     int // number of records to fetch; callers over-fetch themselves
	Anchor    *Anchor
	Direction Direction
}

// Fields are the mutable snippet attributes, already normalized to their
// declared defaults (nil title, nil syntax, empty tag list).
type Fields struct {
	Title  *string
	Syntax *string
	Tags   []string
}

// Patch is a partial update. Nil members are left untouched; a non-nil
// Content appends a changeset.
type Patch struct {
	Title   *string
	Syntax  *string
	Tags    []string
	Content *string
}

// SnippetRepository is the versioned record store. All operations capture
// "now" once, truncated to whole seconds.
type SnippetRepository interface {
	// Create allocates an id, stores the fields and the sole initial
	// changeset, and returns the snippet.
	Create(ctx context.Context, fields Fields, content string) (*model.Snippet, error)

	// GetByID returns the snippet with its full changeset history, or
	// apperror.ErrNotFound.
	GetByID(ctx context.Context, id int64) (*model.Snippet, error)

	// Replace overwrites every mutable field and appends a changeset with
	// the given content.
	Replace(ctx context.Context, id int64, fields Fields, content string) (*model.Snippet, error)

	// Update merges only the supplied fields. updated_at advances whether
	// or not content was supplied.
	Update(ctx context.Context, id int64, patch Patch) (*model.Snippet, error)

	// Delete removes the record entirely. The id is never reissued.
	Delete(ctx context.Context, id int64) error

	// List runs one page query. Results carry only the current changeset,
	// not the full history.
	List(ctx context.Context, q ListQuery) ([]model.Snippet, error)
}
