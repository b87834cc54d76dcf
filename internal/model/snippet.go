// Package model defines the data structures shared across the application
// layers: snippets, their append-only changeset history, and the
// second-resolution timestamps used on the wire.
package model

import (
	"fmt"
	"time"
)

// timeLayout is the wire format for timestamps: ISO-8601 with second
// precision and no timezone suffix. All times are UTC.
const timeLayout = "2006-01-02T15:04:05"

// Time is a UTC timestamp truncated to whole seconds.
//
// The wire format carries no sub-second component, so anything finer than a
// second is dropped at capture time rather than at serialization time.
// That keeps stored values and rendered values identical, which matters for
// the pagination anchor comparisons on updated_at.
type Time struct {
	time.Time
}

// Now returns the current UTC time truncated to second resolution.
func Now() Time {
	return Time{time.Now().UTC().Truncate(time.Second)}
}

// FromUnix converts a stored unix-seconds value back into a Time.
func FromUnix(sec int64) Time {
	return Time{time.Unix(sec, 0).UTC()}
}

// MarshalJSON renders the timestamp as an ISO-8601 string, e.g.
// "2024-05-01T12:30:00".
func (t Time) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.UTC().Format(timeLayout) + `"`), nil
}

// UnmarshalJSON parses the ISO-8601 wire format.
func (t *Time) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("model: timestamp must be a JSON string, got %s", s)
	}
	parsed, err := time.Parse(timeLayout, s[1:len(s)-1])
	if err != nil {
		return fmt.Errorf("model: parsing timestamp: %w", err)
	}
	t.Time = parsed.UTC()
	return nil
}

// Changeset is one immutable content revision of a snippet.
type Changeset struct {
	Content   string `json:"content"`
	CreatedAt Time   `json:"created_at"`
}

// Snippet is the primary entity: metadata plus an append-only sequence of
// content revisions. The last changeset holds the current content, and a
// snippet always has at least one changeset.
//
// Title and Syntax are optional and render as JSON null when unset. The id
// is assigned once at creation and never reused, even after deletion.
type Snippet struct {
	ID         int64
	Title      *string
	Syntax     *string
	Tags       []string
	CreatedAt  Time
	UpdatedAt  Time
	Changesets []Changeset
}

// Content returns the current content: the content of the last changeset.
func (s *Snippet) Content() string {
	if len(s.Changesets) == 0 {
		return ""
	}
	return s.Changesets[len(s.Changesets)-1].Content
}
