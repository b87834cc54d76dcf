// Package service contains the business logic layer: field normalization,
// business-rule validation, and the pagination engine that turns a marker
// into page results plus navigation state.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"

	"github.com/sakif/snippetd/internal/apperror"
	"github.com/sakif/snippetd/internal/model"
	"github.com/sakif/snippetd/internal/repository"
)

const (
	// DefaultListLimit applies when the caller does not pass a limit.
	DefaultListLimit = 20
	// MaxListLimit is the hard upper bound on page size.
	MaxListLimit = 20
)

// tagPattern is the permitted tag shape: word characters, underscore,
// hyphen. No whitespace.
var tagPattern = regexp.MustCompile(`^[\w_-]+$`)

// Input carries the mutable snippet fields for create and replace. Nil
// title/syntax normalize to their declared defaults (null, null); a nil tag
// list normalizes to empty.
type Input struct {
	Title   *string
	Syntax  *string
	Tags    []string
	Content string
}

// PatchInput carries a partial update. Nil members were not supplied.
type PatchInput struct {
	Title   *string
	Syntax  *string
	Tags    []string
	Content *string
}

// ListParams are the collection query parameters after shape validation.
// Zero values mean unset.
type ListParams struct {
	Title  string
	Tag    string
	Syntax string
	Limit  int
	Marker int64
}

// Page is one page of results plus the navigation state the link builder
// needs. PrevMarker of zero with HasPrev set means the previous page is the
// very first one and its link carries no marker.
type Page struct {
	Snippets   []model.Snippet
	Limit      int
	HasNext    bool
	NextMarker int64
	HasPrev    bool
	PrevMarker int64
}

// SnippetService implements the domain operations over the record store.
type SnippetService struct {
	repo     repository.SnippetRepository
	syntaxes []string // allow-list; empty accepts anything
	logger   *slog.Logger
}

// NewSnippetService creates a SnippetService. syntaxes is the configured
// syntax allow-list; an empty list disables the check.
func NewSnippetService(repo repository.SnippetRepository, syntaxes []string, logger *slog.Logger) *SnippetService {
	return &SnippetService{
		repo:     repo,
		syntaxes: syntaxes,
		logger:   logger,
	}
}

// Create validates and stores a new snippet with its initial changeset.
func (s *SnippetService) Create(ctx context.Context, in Input) (*model.Snippet, error) {
	if err := s.validateInput(in.Tags, in.Syntax, &in.Content); err != nil {
		return nil, err
	}

	snippet, err := s.repo.Create(ctx, repository.Fields{
		Title:  in.Title,
		Syntax: in.Syntax,
		Tags:   in.Tags,
	}, in.Content)
	if err != nil {
		s.logger.Error("failed to create snippet", slog.String("error", err.Error()))
		return nil, fmt.Errorf("creating snippet: %w", err)
	}

	s.logger.Info("snippet created", slog.Int64("id", snippet.ID))
	return snippet, nil
}

// Get returns one snippet with its full history.
func (s *SnippetService) Get(ctx context.Context, id int64) (*model.Snippet, error) {
	return s.repo.GetByID(ctx, id)
}

// Replace re-normalizes every mutable field and appends a changeset.
func (s *SnippetService) Replace(ctx context.Context, id int64, in Input) (*model.Snippet, error) {
	if err := s.validateInput(in.Tags, in.Syntax, &in.Content); err != nil {
		return nil, err
	}

	snippet, err := s.repo.Replace(ctx, id, repository.Fields{
		Title:  in.Title,
		Syntax: in.Syntax,
		Tags:   in.Tags,
	}, in.Content)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("failed to replace snippet",
			slog.Int64("id", id), slog.String("error", err.Error()))
		return nil, fmt.Errorf("replacing snippet %d: %w", id, err)
	}

	s.logger.Info("snippet replaced", slog.Int64("id", id))
	return snippet, nil
}

// Update merges only the supplied fields; a supplied content appends a
// changeset. updated_at advances either way.
func (s *SnippetService) Update(ctx context.Context, id int64, in PatchInput) (*model.Snippet, error) {
	if err := s.validateInput(in.Tags, in.Syntax, in.Content); err != nil {
		return nil, err
	}

	snippet, err := s.repo.Update(ctx, id, repository.Patch{
		Title:   in.Title,
		Syntax:  in.Syntax,
		Tags:    in.Tags,
		Content: in.Content,
	})
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("failed to update snippet",
			slog.Int64("id", id), slog.String("error", err.Error()))
		return nil, fmt.Errorf("updating snippet %d: %w", id, err)
	}

	s.logger.Info("snippet updated", slog.Int64("id", id))
	return snippet, nil
}

// Delete removes a snippet entirely. Its id is never reissued.
func (s *SnippetService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		s.logger.Error("failed to delete snippet",
			slog.Int64("id", id), slog.String("error", err.Error()))
		return fmt.Errorf("deleting snippet %d: %w", id, err)
	}

	s.logger.Info("snippet deleted", slog.Int64("id", id))
	return nil
}

// List runs one page of the keyset traversal.
//
// A marker is resolved into the anchor (updated_at, id) pair of the snippet
// it names; a marker that no longer resolves fails the whole call with the
// marker-specific not-found error. The main query over-fetches limit+1 rows
// to learn whether a next page exists. When a marker was given, a backward
// probe of limit+1 rows (anchor included) sizes the previous page: at least
// limit rows means a prev page exists, and exactly limit rows means that
// prev page is the first one, so its link needs no marker.
func (s *SnippetService) List(ctx context.Context, p ListParams) (*Page, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	var anchor *repository.Anchor
	if p.Marker != 0 {
		specimen, err := s.repo.GetByID(ctx, p.Marker)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return nil, apperror.MarkerNotFound()
			}
			return nil, fmt.Errorf("resolving marker %d: %w", p.Marker, err)
		}
		anchor = &repository.Anchor{UpdatedAt: specimen.UpdatedAt, ID: specimen.ID}
	}

	items, err := s.repo.List(ctx, repository.ListQuery{
		Title:     p.Title,
		Tag:       p.Tag,
		Syntax:    p.Syntax,
		Limit:     limit + 1,
		Anchor:    anchor,
		Direction: repository.Forward,
	})
	if err != nil {
		s.logger.Error("failed to list snippets", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing snippets: %w", err)
	}

	page := &Page{Limit: limit}
	if len(items) > limit {
		items = items[:limit]
		page.HasNext = true
		page.NextMarker = items[limit-1].ID
	}
	page.Snippets = items

	if anchor != nil {
		probe, err := s.repo.List(ctx, repository.ListQuery{
			Title:     p.Title,
			Tag:       p.Tag,
			Syntax:    p.Syntax,
			Limit:     limit + 1,
			Anchor:    anchor,
			Direction: repository.Backward,
		})
		if err != nil {
			s.logger.Error("failed to probe previous page", slog.String("error", err.Error()))
			return nil, fmt.Errorf("probing previous page: %w", err)
		}
		if len(probe) >= limit {
			page.HasPrev = true
			if len(probe) > limit {
				page.PrevMarker = probe[limit].ID
			}
		}
	}

	return page, nil
}

// validateInput enforces the business rules shared by all mutating
// operations: tags must match the permitted shape, the syntax must be on
// the configured allow-list, and content, when supplied, must be non-empty.
func (s *SnippetService) validateInput(tags []string, syntax *string, content *string) error {
	for _, tag := range tags {
		if !tagPattern.MatchString(tag) {
			return apperror.ValidationFailed("tags",
				fmt.Sprintf("`tags` - %q is not a valid tag", tag))
		}
	}
	if syntax != nil && len(s.syntaxes) > 0 && !slices.Contains(s.syntaxes, *syntax) {
		return apperror.ValidationFailed("syntax", "`syntax` - invalid value")
	}
	if content != nil && *content == "" {
		return apperror.ValidationFailed("content", "`content` - must not be empty")
	}
	return nil
}
