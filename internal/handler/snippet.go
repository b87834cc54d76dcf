// Package handler implements the HTTP surface of the API: request shape
// validation, orchestration of the service layer, and translation of
// domain errors into responses. No business rules live here.
package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/snippetd/internal/apperror"
	"github.com/sakif/snippetd/internal/auth"
	"github.com/sakif/snippetd/internal/model"
	"github.com/sakif/snippetd/internal/service"
)

var tagParamPattern = regexp.MustCompile(`^[\w_-]+$`)

// listParamNames are the only query parameters the collection endpoint
// accepts; anything else is rejected as malformed.
var listParamNames = []string{"title", "tag", "syntax", "limit", "marker"}

// SnippetHandler serves the snippet collection and item endpoints.
type SnippetHandler struct {
	service    *service.SnippetService
	authorizer auth.Authorizer
	syntaxes   []string
	logger     *slog.Logger
}

// NewSnippetHandler creates a SnippetHandler. syntaxes is the configured
// syntax allow-list used to validate the syntax filter; empty disables it.
func NewSnippetHandler(svc *service.SnippetService, authorizer auth.Authorizer, syntaxes []string, logger *slog.Logger) *SnippetHandler {
	return &SnippetHandler{
		service:    svc,
		authorizer: authorizer,
		syntaxes:   syntaxes,
		logger:     logger,
	}
}

// snippetJSON is the wire representation of a snippet. Content mirrors the
// latest changeset; the history itself is not exposed.
type snippetJSON struct {
	ID        int64      `json:"id"`
	Title     *string    `json:"title"`
	Content   string     `json:"content"`
	Syntax    *string    `json:"syntax"`
	Tags      []string   `json:"tags"`
	CreatedAt model.Time `json:"created_at"`
	UpdatedAt model.Time `json:"updated_at"`
}

func toJSON(s *model.Snippet) snippetJSON {
	tags := s.Tags
	if tags == nil {
		tags = []string{}
	}
	return snippetJSON{
		ID:        s.ID,
		Title:     s.Title,
		Content:   s.Content(),
		Syntax:    s.Syntax,
		Tags:      tags,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

// snippetRequest is the decode target for POST/PUT/PATCH bodies. Read-only
// fields are decoded only so their presence can be rejected.
type snippetRequest struct {
	ID        *json.RawMessage `json:"id"`
	Title     *string          `json:"title"`
	Content   *string          `json:"content"`
	Syntax    *string          `json:"syntax"`
	Tags      []string         `json:"tags"`
	CreatedAt *json.RawMessage `json:"created_at"`
	UpdatedAt *json.RawMessage `json:"updated_at"`
}

// decodeSnippetRequest parses and shape-checks a request body: it must be
// well-formed JSON with no unknown fields, and must not carry the
// server-assigned id or timestamps.
func decodeSnippetRequest(r *http.Request) (*snippetRequest, error) {
	var req snippetRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		return nil, apperror.ValidationFailed("body",
			"Cannot parse the request body as a snippet.")
	}
	switch {
	case req.ID != nil:
		return nil, apperror.ValidationFailed("id", "`id` - the field is read-only")
	case req.CreatedAt != nil:
		return nil, apperror.ValidationFailed("created_at", "`created_at` - the field is read-only")
	case req.UpdatedAt != nil:
		return nil, apperror.ValidationFailed("updated_at", "`updated_at` - the field is read-only")
	}
	return &req, nil
}

// snippetID parses the {id} path segment as a positive integer.
func snippetID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		return 0, apperror.ValidationFailed("id", "`id` - must be a positive integer")
	}
	return id, nil
}

// HandleList serves GET /snippets: filter parsing, keyset pagination, and
// the Link navigation header.
func (h *SnippetHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	params, err := h.parseListParams(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}

	page, err := h.service.List(r.Context(), *params)
	if err != nil {
		writeError(w, err)
		return
	}

	links := buildLinks(requestBaseURL(r), r.URL.Query(), page)
	w.Header().Set("Link", formatLinkHeader(links))

	items := make([]snippetJSON, len(page.Snippets))
	for i := range page.Snippets {
		items[i] = toJSON(&page.Snippets[i])
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *SnippetHandler) parseListParams(query url.Values) (*service.ListParams, error) {
	for name := range query {
		if !slices.Contains(listParamNames, name) {
			return nil, apperror.ValidationFailed(name,
				fmt.Sprintf("`%s` - unknown query parameter", name))
		}
	}

	params := service.ListParams{Limit: service.DefaultListLimit}

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > service.MaxListLimit {
			return nil, apperror.ValidationFailed("limit",
				fmt.Sprintf("`limit` - must be an integer between 1 and %d", service.MaxListLimit))
		}
		params.Limit = limit
	}
	if raw := query.Get("marker"); raw != "" {
		marker, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || marker < 1 {
			return nil, apperror.ValidationFailed("marker",
				"`marker` - must be a positive integer")
		}
		params.Marker = marker
	}
	if _, present := query["title"]; present {
		title := query.Get("title")
		if title == "" {
			return nil, apperror.ValidationFailed("title", "`title` - must not be empty")
		}
		params.Title = title
	}
	if tag := query.Get("tag"); tag != "" {
		if !tagParamPattern.MatchString(tag) {
			return nil, apperror.ValidationFailed("tag", "`tag` - invalid value")
		}
		params.Tag = tag
	}
	if syntax := query.Get("syntax"); syntax != "" {
		if len(h.syntaxes) > 0 && !slices.Contains(h.syntaxes, syntax) {
			return nil, apperror.ValidationFailed("syntax", "`syntax` - invalid value")
		}
		params.Syntax = syntax
	}

	return &params, nil
}

// HandleCreate serves POST /snippets.
func (h *SnippetHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSnippetRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Content == nil {
		writeError(w, apperror.ValidationFailed("content", "`content` - required field"))
		return
	}

	snippet, err := h.service.Create(r.Context(), service.Input{
		Title:   req.Title,
		Syntax:  req.Syntax,
		Tags:    req.Tags,
		Content: *req.Content,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toJSON(snippet))
}

// HandleGet serves GET /snippets/{id}.
func (h *SnippetHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := snippetID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	snippet, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toJSON(snippet))
}

// HandleReplace serves PUT /snippets/{id}: a full replace with the same
// body rules as create.
func (h *SnippetHandler) HandleReplace(w http.ResponseWriter, r *http.Request) {
	if !h.authorizer.Authorize(r) {
		writeError(w, apperror.Forbidden())
		return
	}

	id, err := snippetID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	req, err := decodeSnippetRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Content == nil {
		writeError(w, apperror.ValidationFailed("content", "`content` - required field"))
		return
	}

	snippet, err := h.service.Replace(r.Context(), id, service.Input{
		Title:   req.Title,
		Syntax:  req.Syntax,
		Tags:    req.Tags,
		Content: *req.Content,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toJSON(snippet))
}

// HandlePatch serves PATCH /snippets/{id}: a partial merge. Content may be
// omitted; when present it appends a revision.
func (h *SnippetHandler) HandlePatch(w http.ResponseWriter, r *http.Request) {
	if !h.authorizer.Authorize(r) {
		writeError(w, apperror.Forbidden())
		return
	}

	id, err := snippetID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	req, err := decodeSnippetRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	snippet, err := h.service.Update(r.Context(), id, service.PatchInput{
		Title:   req.Title,
		Syntax:  req.Syntax,
		Tags:    req.Tags,
		Content: req.Content,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toJSON(snippet))
}

// HandleDelete serves DELETE /snippets/{id}.
func (h *SnippetHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if !h.authorizer.Authorize(r) {
		writeError(w, apperror.Forbidden())
		return
	}

	id, err := snippetID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
