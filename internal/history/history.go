package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/fielddesk/chatcore/internal/store"
	"github.com/fielddesk/chatcore/pkg/models"
)

const (
	threadsStore  = "threads"
	messagesStore = "messages"
)

// Store is the subset of internal/store.Store's surface HistoryLog
// depends on.
type Store interface {
	CreateStoreIfNotExists(ctx context.Context, name string, schema models.Schema) error
	Add(ctx context.Context, userID, name string, data map[string]interface{}, recordID string) (string, error)
	Get(ctx context.Context, userID, name, id string, loadCollections bool) (*models.Record, error)
	Update(ctx context.Context, userID, name, id string, updates map[string]interface{}, partial bool) error
	Find(ctx context.Context, userID, name string, opts models.FindOptions) ([]models.Record, error)
	SnippetSearch(ctx context.Context, userID, name, query string, limit int) ([]store.SnippetResult, error)
}

// Log is the HistoryLog façade: thread and message bookkeeping scoped
// to a single user_id per call, enforced entirely by the Store.
type Log struct {
	store Store
}

var threadSchema = models.Schema{
	"title":         models.FieldText,
	"model":         models.FieldText,
	"system_prompt": models.FieldText,
	"is_archived":   models.FieldBool,
}

var messageSchema = models.Schema{
	"thread_id": models.FieldText,
	"role":      models.FieldText,
	"type":      models.FieldText,
	"content":   models.FieldText,
	"model":     models.FieldText,
	"call_id":   models.FieldText,
}

// Open declares the threads and messages stores and returns a ready Log.
func Open(ctx context.Context, st Store) (*Log, error) {
	if err := st.CreateStoreIfNotExists(ctx, threadsStore, threadSchema); err != nil {
		return nil, fmt.Errorf("create threads store: %w", err)
	}
	if err := st.CreateStoreIfNotExists(ctx, messagesStore, messageSchema); err != nil {
		return nil, fmt.Errorf("create messages store: %w", err)
	}
	return &Log{store: st}, nil
}

// CreateThread creates a thread owned by userID and returns its id.
func (l *Log) CreateThread(ctx context.Context, userID, title, model, systemPrompt string) (string, error) {
	return l.store.Add(ctx, userID, threadsStore, map[string]interface{}{
		"title":         title,
		"model":         model,
		"system_prompt": systemPrompt,
		"is_archived":   false,
	}, "")
}

// ListThreads returns thread headers for userID, archived filtering
// applied.
func (l *Log) ListThreads(ctx context.Context, userID string, archived bool) ([]models.ThreadHeader, error) {
	recs, err := l.store.Find(ctx, userID, threadsStore, models.FindOptions{
		Filters:   []models.Filter{{Field: "is_archived", Op: "eq", Value: archived}},
		OrderBy:   "created_at",
		OrderDesc: true,
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.ThreadHeader, 0, len(recs))
	for _, rec := range recs {
		out = append(out, recordToThread(rec).Header())
	}
	return out, nil
}

// GetThread returns the thread header for threadID, or nil if absent
// under userID.
func (l *Log) GetThread(ctx context.Context, userID, threadID string) (*models.ThreadHeader, error) {
	rec, err := l.store.Get(ctx, userID, threadsStore, threadID, false)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	header := recordToThread(*rec).Header()
	return &header, nil
}

// GetMessages returns threadID's messages in chronological order, or
// nil if the thread is not userID's.
func (l *Log) GetMessages(ctx context.Context, userID, threadID string) ([]models.Message, error) {
	thread, err := l.store.Get(ctx, userID, threadsStore, threadID, false)
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, nil
	}

	recs, err := l.store.Find(ctx, userID, messagesStore, models.FindOptions{
		Filters: []models.Filter{{Field: "thread_id", Op: "eq", Value: threadID}},
		OrderBy: "created_at",
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.Message, 0, len(recs))
	for _, rec := range recs {
		out = append(out, recordToMessage(rec))
	}
	return out, nil
}

// AppendMessage appends a message to threadID, returning false if the
// thread is not userID's.
func (l *Log) AppendMessage(ctx context.Context, userID, threadID string, role models.Role, msgType models.MessageType, content, model, callID string) (bool, error) {
	thread, err := l.store.Get(ctx, userID, threadsStore, threadID, false)
	if err != nil {
		return false, err
	}
	if thread == nil {
		return false, nil
	}

	_, err = l.store.Add(ctx, userID, messagesStore, map[string]interface{}{
		"thread_id": threadID,
		"role":      string(role),
		"type":      string(msgType),
		"content":   content,
		"model":     model,
		"call_id":   callID,
	}, "")
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpdateThread patches a thread's title.
func (l *Log) UpdateThread(ctx context.Context, userID, threadID, title string) error {
	return l.store.Update(ctx, userID, threadsStore, threadID, map[string]interface{}{"title": title}, true)
}

// ArchiveThread marks a thread archived.
func (l *Log) ArchiveThread(ctx context.Context, userID, threadID string) error {
	return l.store.Update(ctx, userID, threadsStore, threadID, map[string]interface{}{"is_archived": true}, true)
}

// SearchResult is one deduplicated hit returned by Search.
type SearchResult struct {
	ThreadID string
	Title    string
	Snippet  string
}

// Search unions thread-title matches and message-content matches,
// grouping and deduplicating by thread.
func (l *Log) Search(ctx context.Context, userID, query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.NewError(models.ErrValidation, "search query must not be empty", nil)
	}

	byThread := make(map[string]SearchResult)
	order := make([]string, 0)

	titleHits, err := l.store.SnippetSearch(ctx, userID, threadsStore, query, 25)
	if err != nil {
		return nil, err
	}
	for _, hit := range titleHits {
		if hit.ChildID != "" {
			continue
		}
		title, err := l.threadTitle(ctx, userID, hit.RecordID)
		if err != nil {
			return nil, err
		}
		if _, seen := byThread[hit.RecordID]; !seen {
			order = append(order, hit.RecordID)
		}
		byThread[hit.RecordID] = SearchResult{ThreadID: hit.RecordID, Title: title, Snippet: hit.Snippet}
	}

	msgHits, err := l.store.SnippetSearch(ctx, userID, messagesStore, query, 50)
	if err != nil {
		return nil, err
	}
	for _, hit := range msgHits {
		if hit.ChildID != "" {
			continue
		}
		msgRec, err := l.store.Get(ctx, userID, messagesStore, hit.RecordID, false)
		if err != nil || msgRec == nil {
			continue
		}
		threadID := fmt.Sprint(msgRec.Fields["thread_id"])
		if _, exists := byThread[threadID]; exists {
			continue
		}
		title, err := l.threadTitle(ctx, userID, threadID)
		if err != nil {
			return nil, err
		}
		order = append(order, threadID)
		byThread[threadID] = SearchResult{ThreadID: threadID, Title: title, Snippet: hit.Snippet}
	}

	out := make([]SearchResult, 0, len(order))
	seen := make(map[string]bool)
	for _, id := range order {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, byThread[id])
	}
	return out, nil
}

func (l *Log) threadTitle(ctx context.Context, userID, threadID string) (string, error) {
	rec, err := l.store.Get(ctx, userID, threadsStore, threadID, false)
	if err != nil || rec == nil {
		return "", err
	}
	return fmt.Sprint(rec.Fields["title"]), nil
}

func recordToThread(rec models.Record) models.Thread {
	archived, _ := rec.Fields["is_archived"].(bool)
	return models.Thread{
		ID:           rec.ID,
		UserID:       rec.UserID,
		Title:        fmt.Sprint(rec.Fields["title"]),
		Model:        fmt.Sprint(rec.Fields["model"]),
		SystemPrompt: fmt.Sprint(rec.Fields["system_prompt"]),
		CreatedAt:    rec.CreatedAt,
		IsArchived:   archived,
	}
}

func recordToMessage(rec models.Record) models.Message {
	return models.Message{
		ID:        rec.ID,
		ThreadID:  fmt.Sprint(rec.Fields["thread_id"]),
		Role:      models.Role(fmt.Sprint(rec.Fields["role"])),
		Type:      models.MessageType(fmt.Sprint(rec.Fields["type"])),
		Content:   fmt.Sprint(rec.Fields["content"]),
		Timestamp: rec.CreatedAt,
		Model:     fmt.Sprint(rec.Fields["model"]),
		CallID:    fmt.Sprint(rec.Fields["call_id"]),
	}
}
