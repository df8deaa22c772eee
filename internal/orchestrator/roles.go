package orchestrator

import (
	"context"

	"github.com/fielddesk/chatcore/internal/contextcache"
	"github.com/fielddesk/chatcore/internal/history"
	"github.com/fielddesk/chatcore/internal/plugins"
	"github.com/fielddesk/chatcore/internal/tools"
	"github.com/fielddesk/chatcore/pkg/models"
)

// HistoryPlugin is the history role's capability interface: the
// orchestrator reaches it only through the registry, never by holding
// a direct reference to a concrete history.Log.
type HistoryPlugin interface {
	CreateThread(ctx context.Context, userID, title, model, systemPrompt string) (string, error)
	GetThread(ctx context.Context, userID, threadID string) (*models.ThreadHeader, error)
	AppendMessage(ctx context.Context, userID, threadID string, role models.Role, msgType models.MessageType, content, model, callID string) (bool, error)
}

// ContextPlugin is the context role's capability interface.
type ContextPlugin interface {
	GetContext(ctx context.Context, userID, threadID string, stripReasoning bool) ([]models.ContextEntry, error)
	AddMessage(ctx context.Context, userID, threadID string, item models.ContextEntry, id string) (string, error)
	RemoveMessages(ctx context.Context, userID, threadID string, ids []string) error
	Invalidate(userID, threadID string)
	MutationCount(userID, threadID string) (int, bool)
	SetContext(ctx context.Context, userID, threadID string, expectedMutationCount int, newItems []models.ContextEntry) (bool, error)
}

// SystemPromptPlugin is the system_prompt role's capability interface:
// resolve a prompt key to its text.
type SystemPromptPlugin interface {
	Resolve(ctx context.Context, key string) (string, error)
}

// AuthPlugin is the auth role's capability interface the orchestrator
// needs: whether a user may invoke a given model.
type AuthPlugin interface {
	AuthorizeModelAccess(ctx context.Context, user *models.User, model string) error
}

// ModelEventKind is one of the five shapes a model plugin's stream
// yields.
type ModelEventKind string

const (
	ModelAssistantText ModelEventKind = "assistant_text"
	ModelThinkingText  ModelEventKind = "thinking_text"
	ModelToolCallDelta ModelEventKind = "tool_call_delta"
	ModelUsage         ModelEventKind = "usage"
	ModelEnd           ModelEventKind = "end"
)

// ModelEvent is one item from a model plugin's stream. Only the
// fields matching Kind are meaningful.
type ModelEvent struct {
	Kind ModelEventKind
	Text string

	ToolCallID          string
	ToolCallIndex       int
	ToolNameDelta       string
	ToolArgumentsDelta  string

	Err error
}

// ModelPlugin is the model role's capability interface.
type ModelPlugin interface {
	ListModels(ctx context.Context) ([]string, error)
	Stream(ctx context.Context, messages []map[string]interface{}, modelName, systemPromptText string, toolSchemas []tools.Schema) (<-chan ModelEvent, error)
}

// historyAdapter lets a concrete *history.Log register into the
// plugins.Registry under RoleHistory without history.Log itself
// needing to know about plugin identity or priority.
type historyAdapter struct {
	*history.Log
	id       string
	priority int
}

func (a *historyAdapter) ID() string       { return a.id }
func (a *historyAdapter) Priority() int    { return a.priority }

// NewHistoryPlugin wraps log as a RoleHistory plugin.
func NewHistoryPlugin(log *history.Log, id string, priority int) plugins.Plugin {
	return &historyAdapter{Log: log, id: id, priority: priority}
}

// contextAdapter lets a concrete *contextcache.Cache register into
// the plugins.Registry under RoleContext.
type contextAdapter struct {
	*contextcache.Cache
	id       string
	priority int
}

func (a *contextAdapter) ID() string    { return a.id }
func (a *contextAdapter) Priority() int { return a.priority }

// NewContextPlugin wraps cache as a RoleContext plugin.
func NewContextPlugin(cache *contextcache.Cache, id string, priority int) plugins.Plugin {
	return &contextAdapter{Cache: cache, id: id, priority: priority}
}
