package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fielddesk/chatcore/internal/history"
	"github.com/fielddesk/chatcore/internal/tools"
)

// ThreadSearcher is the subset of history.Log the search tool needs.
type ThreadSearcher interface {
	Search(ctx context.Context, userID, query string) ([]history.SearchResult, error)
}

// ThreadSearchTool is a schema-explicit tool searching the caller's own
// threads by title and message content.
type ThreadSearchTool struct {
	search ThreadSearcher
}

// NewThreadSearchTool wires a ThreadSearchTool to a history log.
func NewThreadSearchTool(search ThreadSearcher) *ThreadSearchTool {
	return &ThreadSearchTool{search: search}
}

func (t *ThreadSearchTool) Name() string { return "thread_search" }

func (t *ThreadSearchTool) Description() string {
	return "Search the caller's chat threads by title and message content, returning the best-matching threads with a highlighted snippet."
}

func (t *ThreadSearchTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Free-text search query.",
			},
		},
		"required": []string{"query"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *ThreadSearchTool) Execute(ctx context.Context, userID, threadID, turnCorrelationID string, arguments json.RawMessage) *tools.Invocation {
	return tools.FromFunc(ctx, t.Name(), arguments, func(ctx context.Context) (tools.Result, error) {
		var input struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal(arguments, &input); err != nil {
			return tools.Result{}, fmt.Errorf("invalid parameters: %w", err)
		}
		if input.Query == "" {
			return tools.Result{}, fmt.Errorf("query is required")
		}

		hits, err := t.search.Search(ctx, userID, input.Query)
		if err != nil {
			return tools.Result{}, err
		}
		payload, err := json.Marshal(hits)
		if err != nil {
			return tools.Result{}, err
		}
		return tools.Result{Content: string(payload)}, nil
	})
}
