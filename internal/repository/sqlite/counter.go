package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// snippetsCounter names the counter row backing snippet id allocation.
const snippetsCounter = "snippets"

// querier lets nextID run either on the pool or inside a transaction.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// nextID atomically increments and returns the named counter. The upsert
// with RETURNING is a single statement, so concurrent creators cannot
// observe the same value; no application-level locking is involved.
//
// When called inside a transaction, a rollback also rolls the counter back.
// That only ever "reuses" values that were never handed out, so the
// never-reissued guarantee for published ids still holds.
func nextID(ctx context.Context, q querier, name string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO counters (name, next) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET next = next + 1
		RETURNING next`,
		name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("sqlite: incrementing counter %q: %w", name, err)
	}
	return id, nil
}
