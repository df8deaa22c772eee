package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/fielddesk/chatcore/pkg/models"
)

// SnippetResult is one raw FTS match: either a parent record row
// (ChildID == "") or a collection item row (ChildID == "field_index").
// It is a narrower, snippet-level view used by callers (HistoryLog's
// thread/message search) that want to show where a match occurred
// rather than the full record it occurred in.
type SnippetResult struct {
	RecordID string
	ChildID  string
	Snippet  string
	Rank     float64
}

// SnippetSearch runs query against name's FTS index scoped to userID
// and returns raw match rows with highlighted snippets, ordered by
// rank. It does not deduplicate by parent: a record with N matching
// collection items returns N rows. limit <= 0 defaults to 20.
func (s *Store) SnippetSearch(ctx context.Context, userID, name, query string, limit int) ([]SnippetResult, error) {
	if _, err := s.schemaFor(ctx, name); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, models.NewError(models.ErrValidation, "search query must not be empty", nil)
	}
	if limit <= 0 {
		limit = 20
	}

	fts := ftsTableName(name)
	q := fmt.Sprintf(`
SELECT parent_id, child_id, snippet(%s, -1, '>>>', '<<<', '...', 16) AS snip, rank
FROM %s
WHERE %s MATCH ? AND user_id = ?
ORDER BY rank
LIMIT ?`, fts, fts, fts)

	rows, err := s.reader.QueryContext(ctx, q, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("fts query %s: %w", fts, err)
	}
	defer rows.Close()

	var out []SnippetResult
	for rows.Next() {
		var r SnippetResult
		if err := rows.Scan(&r.RecordID, &r.ChildID, &r.Snippet, &r.Rank); err != nil {
			return nil, fmt.Errorf("scan fts result from %s: %w", fts, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FullTextSearch implements the documented two-phase contract: rank
// distinct parent ids via the FTS virtual table, then fetch and
// deserialize the full parent records those ids name. A record with
// several matching collection items still contributes exactly one
// result. limit <= 0 defaults to 20; offset < 0 is treated as 0.
func (s *Store) FullTextSearch(ctx context.Context, userID, name, query string, limit, offset int) ([]*models.Record, error) {
	if _, err := s.schemaFor(ctx, name); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, models.NewError(models.ErrValidation, "search query must not be empty", nil)
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	fts := ftsTableName(name)
	rankQ := fmt.Sprintf(`
SELECT DISTINCT parent_id
FROM %s
WHERE %s MATCH ? AND user_id = ?
ORDER BY rank
LIMIT ? OFFSET ?`, fts, fts)

	rows, err := s.reader.QueryContext(ctx, rankQ, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("fts rank query %s: %w", fts, err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan fts rank result from %s: %w", fts, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Fetch phase preserves the rank order the first phase established,
	// since "WHERE id IN (...)" itself carries no ordering guarantee.
	out := make([]*models.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Get(ctx, userID, name, id, false)
		if err != nil {
			return nil, fmt.Errorf("fetch fts match %s/%s: %w", name, id, err)
		}
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}
