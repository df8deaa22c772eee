package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/fielddesk/chatcore/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	st, err := Open(Config{WriterPath: dsn})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestCreateStoreIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	schema := models.Schema{"title": models.FieldText}

	if err := st.CreateStoreIfNotExists(ctx, "notes", schema); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := st.CreateStoreIfNotExists(ctx, "notes", schema); err != nil {
		t.Fatalf("second create should be idempotent: %v", err)
	}
}

func TestCreateStoreConflictingKindFails(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.CreateStoreIfNotExists(ctx, "notes", models.Schema{"title": models.FieldText}); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := st.CreateStoreIfNotExists(ctx, "notes", models.Schema{"title": models.FieldInteger})
	if err == nil {
		t.Fatal("expected schema conflict error")
	}
	var storeErr *models.Error
	if !errors.As(err, &storeErr) || storeErr.Kind != models.ErrSchemaConflict {
		t.Errorf("expected ErrSchemaConflict, got %v", err)
	}
}

func TestAddGetUpdateDelete(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	schema := models.Schema{"title": models.FieldText, "count": models.FieldInteger}
	if err := st.CreateStoreIfNotExists(ctx, "items", schema); err != nil {
		t.Fatalf("create: %v", err)
	}

	id, err := st.Add(ctx, "user-1", "items", map[string]interface{}{"title": "first", "count": int64(1)}, "")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if id == "" {
		t.Fatal("expected a generated id")
	}

	rec, err := st.Get(ctx, "user-1", "items", id, false)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec == nil {
		t.Fatal("expected record, got nil")
	}
	if rec.Fields["title"] != "first" {
		t.Errorf("unexpected title: %v", rec.Fields["title"])
	}

	if rec2, err := st.Get(ctx, "user-2", "items", id, false); err != nil || rec2 != nil {
		t.Errorf("expected nil record for foreign user, got %+v (err=%v)", rec2, err)
	}

	if err := st.Update(ctx, "user-1", "items", id, map[string]interface{}{"title": "updated"}, true); err != nil {
		t.Fatalf("update: %v", err)
	}
	rec, err = st.Get(ctx, "user-1", "items", id, false)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if rec.Fields["title"] != "updated" {
		t.Errorf("expected updated title, got %v", rec.Fields["title"])
	}

	if err := st.Delete(ctx, "user-1", "items", id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	rec, err = st.Get(ctx, "user-1", "items", id, false)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil record after delete, got %+v", rec)
	}
}

func TestAddRejectsUnknownField(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	if err := st.CreateStoreIfNotExists(ctx, "items", models.Schema{"title": models.FieldText}); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err := st.Add(ctx, "user-1", "items", map[string]interface{}{"nope": "x"}, "")
	if err == nil {
		t.Fatal("expected validation error for unknown field")
	}
	var storeErr *models.Error
	if !errors.As(err, &storeErr) || storeErr.Kind != models.ErrValidation {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestCollectionAppendDoesNotMutateParent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	schema := models.Schema{"title": models.FieldText, "tags": models.FieldJSONCollection}
	if err := st.CreateStoreIfNotExists(ctx, "lists", schema); err != nil {
		t.Fatalf("create: %v", err)
	}

	id, err := st.Add(ctx, "user-1", "lists", map[string]interface{}{"title": "groceries"}, "")
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	before, err := st.Get(ctx, "user-1", "lists", id, false)
	if err != nil {
		t.Fatalf("get before append: %v", err)
	}

	idx1, err := st.CollectionAppend(ctx, "user-1", "lists", "tags", id, "milk")
	if err != nil {
		t.Fatalf("collection append: %v", err)
	}
	idx2, err := st.CollectionAppend(ctx, "user-1", "lists", "tags", id, "eggs")
	if err != nil {
		t.Fatalf("collection append: %v", err)
	}
	if idx1 != 1 || idx2 != 2 {
		t.Fatalf("expected order indices 1,2, got %d,%d", idx1, idx2)
	}

	after, err := st.Get(ctx, "user-1", "lists", id, false)
	if err != nil {
		t.Fatalf("get after append: %v", err)
	}
	if before.Fields["title"] != after.Fields["title"] {
		t.Errorf("expected parent fields unchanged by collection append")
	}

	items, err := st.CollectionGet(ctx, "user-1", "lists", "tags", id, 0, 0)
	if err != nil {
		t.Fatalf("collection get: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 collection items, got %d", len(items))
	}
	if items[0].Value != "milk" || items[1].Value != "eggs" {
		t.Errorf("unexpected collection order: %+v", items)
	}
}

func TestCollectionAppendOrderIndexStartsAtOne(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	schema := models.Schema{"title": models.FieldText, "messages": models.FieldJSONCollection}
	if err := st.CreateStoreIfNotExists(ctx, "threads", schema); err != nil {
		t.Fatalf("create: %v", err)
	}

	id, err := st.Add(ctx, "user-1", "threads", map[string]interface{}{"title": "T"}, "")
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	for i, want := range []int{1, 2, 3} {
		got, err := st.CollectionAppend(ctx, "user-1", "threads", "messages", id, fmt.Sprintf("msg-%d", i))
		if err != nil {
			t.Fatalf("collection append %d: %v", i, err)
		}
		if got != want {
			t.Fatalf("append %d: order_index = %d, want %d", i, got, want)
		}
	}
}

func TestFindFiltersByUserAndField(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	if err := st.CreateStoreIfNotExists(ctx, "items", models.Schema{"title": models.FieldText}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := st.Add(ctx, "user-1", "items", map[string]interface{}{"title": "alpha"}, ""); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := st.Add(ctx, "user-1", "items", map[string]interface{}{"title": "beta"}, ""); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := st.Add(ctx, "user-2", "items", map[string]interface{}{"title": "alpha"}, ""); err != nil {
		t.Fatalf("add: %v", err)
	}

	recs, err := st.Find(ctx, "user-1", "items", models.FindOptions{
		Filters: []models.Filter{{Field: "title", Op: "eq", Value: "alpha"}},
	})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record scoped to user-1, got %d", len(recs))
	}
}

func TestFullTextSearchFindsMatch(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	if err := st.CreateStoreIfNotExists(ctx, "notes", models.Schema{"body": models.FieldText}); err != nil {
		t.Fatalf("create: %v", err)
	}

	foxID, err := st.Add(ctx, "user-1", "notes", map[string]interface{}{"body": "the quick brown fox"}, "")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := st.Add(ctx, "user-1", "notes", map[string]interface{}{"body": "lazy dog sleeps"}, ""); err != nil {
		t.Fatalf("add: %v", err)
	}

	results, err := st.FullTextSearch(ctx, "user-1", "notes", "fox", 10, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 match, got %d", len(results))
	}
	if results[0].ID != foxID {
		t.Fatalf("expected match %s, got %s", foxID, results[0].ID)
	}
	if results[0].Fields["body"] != "the quick brown fox" {
		t.Fatalf("expected full record body, got %v", results[0].Fields["body"])
	}
}

func TestFullTextSearchDedupesCollectionMatches(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	schema := models.Schema{"title": models.FieldText, "messages": models.FieldJSONCollection}
	if err := st.CreateStoreIfNotExists(ctx, "threads", schema); err != nil {
		t.Fatalf("create: %v", err)
	}

	threadID, err := st.Add(ctx, "user-1", "threads", map[string]interface{}{"title": "fox thread"}, "")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := st.CollectionAppend(ctx, "user-1", "threads", "messages", threadID, map[string]interface{}{"content": "fox says hello"}); err != nil {
		t.Fatalf("collection append: %v", err)
	}
	if _, err := st.CollectionAppend(ctx, "user-1", "threads", "messages", threadID, map[string]interface{}{"content": "fox again"}); err != nil {
		t.Fatalf("collection append: %v", err)
	}

	results, err := st.FullTextSearch(ctx, "user-1", "threads", "fox", 10, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected exactly 1 deduplicated match despite 3 matching rows, got %d", len(results))
	}
}

func TestFullTextSearchOffsetPaginates(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	if err := st.CreateStoreIfNotExists(ctx, "notes", models.Schema{"body": models.FieldText}); err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := st.Add(ctx, "user-1", "notes", map[string]interface{}{"body": "fox entry"}, ""); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	page1, err := st.FullTextSearch(ctx, "user-1", "notes", "fox", 2, 0)
	if err != nil {
		t.Fatalf("search page1: %v", err)
	}
	if len(page1) != 2 {
		t.Fatalf("expected 2 results on page 1, got %d", len(page1))
	}

	page2, err := st.FullTextSearch(ctx, "user-1", "notes", "fox", 2, 2)
	if err != nil {
		t.Fatalf("search page2: %v", err)
	}
	if len(page2) != 1 {
		t.Fatalf("expected 1 result on page 2, got %d", len(page2))
	}
	if page1[0].ID == page2[0].ID {
		t.Fatalf("expected page2 to contain a different record than page1")
	}
}

func TestSnippetSearchReturnsRawRows(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	if err := st.CreateStoreIfNotExists(ctx, "notes", models.Schema{"body": models.FieldText}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := st.Add(ctx, "user-1", "notes", map[string]interface{}{"body": "the quick brown fox"}, ""); err != nil {
		t.Fatalf("add: %v", err)
	}

	results, err := st.SnippetSearch(ctx, "user-1", "notes", "fox", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 match, got %d", len(results))
	}
	if !strings.Contains(results[0].Snippet, ">>>fox<<<") {
		t.Fatalf("expected highlighted snippet, got %q", results[0].Snippet)
	}
}

func TestUpdateNonexistentRecordFailsNotFound(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	if err := st.CreateStoreIfNotExists(ctx, "items", models.Schema{"title": models.FieldText}); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := st.Update(ctx, "user-1", "items", "missing-id", map[string]interface{}{"title": "x"}, true)
	if err == nil {
		t.Fatal("expected not-found error")
	}
	var storeErr *models.Error
	if !errors.As(err, &storeErr) || storeErr.Kind != models.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
