package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fielddesk/chatcore/internal/observability"
	"github.com/fielddesk/chatcore/internal/plugins"
	"github.com/fielddesk/chatcore/internal/tools"
	"github.com/fielddesk/chatcore/pkg/models"
)

// TurnRequest is one user message driving the orchestrator.
type TurnRequest struct {
	UserID           string
	Content          string
	ThreadID         string
	Model            string
	SystemPromptKey  string
}

// Config bounds the orchestrator's resource usage.
type Config struct {
	// MaxRounds caps LOOP_ROUND iterations; exceeding it is FAILED with
	// kind ToolLoopExhausted.
	MaxRounds int
	// ToolTimeout is each tool invocation's wall-clock cap. Zero means
	// no cap.
	ToolTimeout time.Duration
	// ThreadTitleChars is how many leading characters of the first
	// message become a new thread's title.
	ThreadTitleChars int
}

// DefaultConfig returns the orchestrator's default bounds.
func DefaultConfig() Config {
	return Config{MaxRounds: 8, ToolTimeout: 30 * time.Second, ThreadTitleChars: 60}
}

func sanitizeConfig(c Config) Config {
	d := DefaultConfig()
	if c.MaxRounds <= 0 {
		c.MaxRounds = d.MaxRounds
	}
	if c.ToolTimeout < 0 {
		c.ToolTimeout = d.ToolTimeout
	}
	if c.ThreadTitleChars <= 0 {
		c.ThreadTitleChars = d.ThreadTitleChars
	}
	return c
}

// Orchestrator runs the TurnOrchestrator state machine. It depends
// only on roles resolved from the plugin registry, never on a
// concrete plugin's identity.
type Orchestrator struct {
	registry   *plugins.Registry
	tools      *tools.Registry
	background *BackgroundTasks
	config     Config
	log        plugins.Logger

	history       HistoryPlugin
	contextCache  ContextPlugin
	systemPrompts SystemPromptPlugin
	auth          AuthPlugin
	model         ModelPlugin
}

// New resolves the history/context/system_prompt/model roles from
// registry and returns a ready Orchestrator. It fails fast if any
// required single-slot role has no active plugin.
func New(registry *plugins.Registry, toolRegistry *tools.Registry, background *BackgroundTasks, config Config, log plugins.Logger) (*Orchestrator, error) {
	if log == nil {
		log = noopLogger{}
	}
	o := &Orchestrator{
		registry:   registry,
		tools:      toolRegistry,
		background: background,
		config:     sanitizeConfig(config),
		log:        log,
	}
	if err := o.resolveRoles(); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Orchestrator) resolveRoles() error {
	hp, ok := o.registry.Active(plugins.RoleHistory)
	if !ok {
		return fmt.Errorf("no active history plugin")
	}
	history, ok := hp.(HistoryPlugin)
	if !ok {
		return fmt.Errorf("history plugin %q does not implement HistoryPlugin", hp.ID())
	}
	o.history = history

	cp, ok := o.registry.Active(plugins.RoleContext)
	if !ok {
		return fmt.Errorf("no active context plugin")
	}
	ctxPlugin, ok := cp.(ContextPlugin)
	if !ok {
		return fmt.Errorf("context plugin %q does not implement ContextPlugin", cp.ID())
	}
	o.contextCache = ctxPlugin

	sp, ok := o.registry.Active(plugins.RoleSystemPrompt)
	if ok {
		spPlugin, ok := sp.(SystemPromptPlugin)
		if !ok {
			return fmt.Errorf("system_prompt plugin %q does not implement SystemPromptPlugin", sp.ID())
		}
		o.systemPrompts = spPlugin
	}

	ap, ok := o.registry.Active(plugins.RoleAuth)
	if ok {
		authPlugin, ok := ap.(AuthPlugin)
		if !ok {
			return fmt.Errorf("auth plugin %q does not implement AuthPlugin", ap.ID())
		}
		o.auth = authPlugin
	}

	mp, ok := o.registry.Active(plugins.RoleModel)
	if !ok {
		return fmt.Errorf("no active model plugin")
	}
	modelPlugin, ok := mp.(ModelPlugin)
	if !ok {
		return fmt.Errorf("model plugin %q does not implement ModelPlugin", mp.ID())
	}
	o.model = modelPlugin

	return nil
}

// RunTurn starts the state machine for req and returns the event
// stream. The channel is closed once stream_end has been emitted (or
// the turn failed before producing one).
func (o *Orchestrator) RunTurn(ctx context.Context, req TurnRequest) (<-chan models.Event, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, models.NewError(models.ErrValidation, "user_id is required", nil)
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, models.NewError(models.ErrValidation, "content is required", nil)
	}

	turnID := uuid.New().String()
	events := make(chan models.Event, 32)

	go o.run(ctx, req, turnID, events)
	return events, nil
}

func (o *Orchestrator) run(ctx context.Context, req TurnRequest, turnID string, events chan<- models.Event) {
	defer close(events)

	ctx = observability.AddTurnCorrelationID(ctx, turnID)
	ctx = observability.AddUserID(ctx, req.UserID)

	threadID, isNew, err := o.resolveThread(ctx, req)
	if err != nil {
		o.failTurn(ctx, events, turnID, req, "", err)
		return
	}
	ctx = observability.AddThreadID(ctx, threadID)
	if isNew {
		events <- models.NewThreadIDEvent(turnID, threadID)
	}

	if _, err := o.history.AppendMessage(ctx, req.UserID, threadID, models.RoleUser, models.MessageText, req.Content, "", ""); err != nil {
		o.failTurn(ctx, events, turnID, req, threadID, err)
		return
	}
	if _, err := o.contextCache.AddMessage(ctx, req.UserID, threadID, models.ContextEntry{Role: models.RoleUser, Content: req.Content}, ""); err != nil {
		o.failTurn(ctx, events, turnID, req, threadID, err)
		return
	}

	thread, err := o.history.GetThread(ctx, req.UserID, threadID)
	if err != nil {
		o.failTurn(ctx, events, turnID, req, threadID, err)
		return
	}
	if thread == nil {
		o.failTurn(ctx, events, turnID, req, threadID, models.NewError(models.ErrNotFound, "thread not found", nil))
		return
	}

	params := &plugins.CallParams{
		Model:        firstNonEmpty(req.Model, thread.Model),
		SystemPrompt: req.SystemPromptKey,
	}
	o.registry.RunPreCall(ctx, params)

	if o.auth != nil {
		if err := o.auth.AuthorizeModelAccess(ctx, &models.User{ID: req.UserID}, params.Model); err != nil {
			o.failTurn(ctx, events, turnID, req, threadID, models.NewError(models.ErrPermissionDenied, "model access denied", err))
			return
		}
	}

	systemPromptText := ""
	if params.SystemPrompt != "" && o.systemPrompts != nil {
		if text, err := o.systemPrompts.Resolve(ctx, params.SystemPrompt); err == nil {
			systemPromptText = text
		} else {
			o.log.Warn(ctx, "system_prompt resolution failed", "key", params.SystemPrompt, "error", err)
		}
	}

	toolSchemas := o.tools.Schemas()
	if len(params.ToolNames) > 0 {
		toolSchemas = filterSchemas(toolSchemas, params.ToolNames)
	}

	var lastAssistantText string
	for round := 0; ; round++ {
		if round >= o.config.MaxRounds {
			events <- models.NewErrorEvent(turnID, "tool round limit reached")
			events <- models.NewStreamEndEvent(turnID)
			o.registry.RunPostCall(ctx, plugins.PostCallResult{
				UserID: req.UserID, ThreadID: threadID, TurnCorrelationID: turnID,
				Err: models.NewError(models.ErrToolLoopExhausted, "max rounds reached", nil),
			})
			return
		}

		entries, err := o.contextCache.GetContext(ctx, req.UserID, threadID, false)
		if err != nil {
			o.failTurn(ctx, events, turnID, req, threadID, err)
			return
		}
		messages := contextEntriesToMessages(entries)

		streamCh, err := o.model.Stream(ctx, messages, params.Model, systemPromptText, toolSchemas)
		if err != nil {
			events <- models.NewErrorEvent(turnID, err.Error())
			events <- models.NewStreamEndEvent(turnID)
			return
		}

		assistantText, thinkingText, calls, err := o.consumeStream(ctx, turnID, streamCh, events)
		if err != nil {
			events <- models.NewErrorEvent(turnID, err.Error())
			events <- models.NewStreamEndEvent(turnID)
			return
		}

		if len(calls) == 0 {
			lastAssistantText = assistantText
			if err := o.finalize(ctx, req.UserID, threadID, params.Model, assistantText, thinkingText); err != nil {
				o.failTurn(ctx, events, turnID, req, threadID, err)
				return
			}
			o.registry.RunPostCall(ctx, plugins.PostCallResult{
				UserID: req.UserID, ThreadID: threadID, TurnCorrelationID: turnID, FinalContent: lastAssistantText,
			})
			events <- models.NewStreamEndEvent(turnID)
			return
		}

		if err := o.persistPendingToolCalls(ctx, req.UserID, threadID, params.Model, assistantText, calls); err != nil {
			o.failTurn(ctx, events, turnID, req, threadID, err)
			return
		}

		o.runToolRound(ctx, req.UserID, threadID, turnID, thinkingText, calls, events)
	}
}

// resolveThread implements step 1: create a thread if absent, or
// verify ownership of the supplied one.
func (o *Orchestrator) resolveThread(ctx context.Context, req TurnRequest) (threadID string, isNew bool, err error) {
	if req.ThreadID == "" {
		title := req.Content
		if len(title) > o.config.ThreadTitleChars {
			title = title[:o.config.ThreadTitleChars]
		}
		id, err := o.history.CreateThread(ctx, req.UserID, title, req.Model, req.SystemPromptKey)
		if err != nil {
			return "", false, err
		}
		return id, true, nil
	}

	thread, err := o.history.GetThread(ctx, req.UserID, req.ThreadID)
	if err != nil {
		return "", false, err
	}
	if thread == nil {
		return "", false, models.NewError(models.ErrNotFound, "thread not found for this user", nil)
	}
	return req.ThreadID, false, nil
}

func (o *Orchestrator) failTurn(ctx context.Context, events chan<- models.Event, turnID string, req TurnRequest, threadID string, err error) {
	o.log.Warn(ctx, "turn failed", "error", err)
	events <- models.NewErrorEvent(turnID, err.Error())
	events <- models.NewStreamEndEvent(turnID)
}

// finalize persists the model's final text (and any thinking that
// preceded it, as reasoning on the same entry) and pushes the
// projection into the context cache.
func (o *Orchestrator) finalize(ctx context.Context, userID, threadID, model, assistantText, thinkingText string) error {
	if thinkingText != "" {
		if _, err := o.history.AppendMessage(ctx, userID, threadID, models.RoleThinking, models.MessageText, thinkingText, model, ""); err != nil {
			return err
		}
	}
	if _, err := o.history.AppendMessage(ctx, userID, threadID, models.RoleAssistant, models.MessageText, assistantText, model, ""); err != nil {
		return err
	}
	_, err := o.contextCache.AddMessage(ctx, userID, threadID, models.ContextEntry{
		Role: models.RoleAssistant, Content: assistantText, ReasoningContent: thinkingText,
	}, "")
	return err
}

// persistPendingToolCalls records the assistant turn that requested
// calls, before any tool result entries are appended. A subsequent
// model round's messages must see this entry ahead of the tool-role
// results, the same requirement real provider APIs enforce — a
// tool-role message with no preceding assistant message declaring
// its tool_call_id is invalid against them. assistantText may be
// empty (a model that calls a tool with no narration); it is only
// persisted to history when non-empty, since an empty chunk was never
// itself streamed to the client, but the context entry is always
// pushed since the pending tool_calls must be visible regardless.
func (o *Orchestrator) persistPendingToolCalls(ctx context.Context, userID, threadID, model, assistantText string, calls []resolvedToolCall) error {
	if assistantText != "" {
		if _, err := o.history.AppendMessage(ctx, userID, threadID, models.RoleAssistant, models.MessageText, assistantText, model, ""); err != nil {
			return err
		}
	}

	stubs := make([]models.ToolCallStub, len(calls))
	for i, c := range calls {
		stubs[i] = models.ToolCallStub{ID: c.ID, Name: c.Name, Arguments: c.Arguments}
	}
	_, err := o.contextCache.AddMessage(ctx, userID, threadID, models.ContextEntry{
		Role: models.RoleAssistant, Content: assistantText, ToolCalls: stubs,
	}, "")
	return err
}

// runToolRound implements step 6: one pass over the model's requested
// tool calls, each driven through the ToolRegistry's R2R adapter.
func (o *Orchestrator) runToolRound(ctx context.Context, userID, threadID, turnID, thinkingText string, calls []resolvedToolCall, events chan<- models.Event) {
	var thinkingEntryID string
	if thinkingText != "" {
		if _, err := o.history.AppendMessage(ctx, userID, threadID, models.RoleThinking, models.MessageText, thinkingText, "", ""); err != nil {
			o.log.Warn(ctx, "persist thinking failed", "error", err)
		}
		if id, err := o.contextCache.AddMessage(ctx, userID, threadID, models.ContextEntry{Role: models.RoleThinking, Content: thinkingText}, ""); err == nil {
			thinkingEntryID = id
		}
	}

	for _, call := range calls {
		initial := fmt.Sprintf("🔧 %s(%s)", call.Name, call.Arguments)
		events <- models.NewToolUpdateEvent(turnID, call.ID, initial)
		o.persistToolUpdate(ctx, userID, threadID, call.ID, initial, call.Name)

		toolCtx := ctx
		var cancel context.CancelFunc
		if o.config.ToolTimeout > 0 {
			toolCtx, cancel = context.WithTimeout(ctx, o.config.ToolTimeout)
		}

		inv := o.tools.Invoke(toolCtx, call.Name, userID, threadID, turnID, json.RawMessage(call.Arguments))
		for progress := range inv.IterateProgress() {
			events <- models.NewToolUpdateEvent(turnID, call.ID, progress)
			o.persistToolUpdate(ctx, userID, threadID, call.ID, progress, call.Name)
		}
		result, err := inv.FinalValue(toolCtx)
		if cancel != nil {
			cancel()
		}

		var finalLine, finalContent string
		switch {
		case err != nil:
			finalContent = err.Error()
			finalLine = fmt.Sprintf("❌ %s: %v", call.Name, err)
		case result.IsError:
			finalContent = result.Content
			finalLine = fmt.Sprintf("❌ %s: %s", call.Name, result.Content)
		default:
			finalContent = result.Content
			finalLine = fmt.Sprintf("✅ %s: %s", call.Name, result.Content)
		}

		events <- models.NewToolUpdateEvent(turnID, call.ID, finalLine)
		o.persistToolUpdate(ctx, userID, threadID, call.ID, finalLine, call.Name)

		if _, err := o.contextCache.AddMessage(ctx, userID, threadID, models.ContextEntry{
			Role: models.RoleTool, Content: finalContent, ToolCallID: call.ID, ToolName: call.Name,
		}, ""); err != nil {
			o.log.Warn(ctx, "push tool result to context failed", "call", call.ID, "error", err)
		}
	}

	if thinkingEntryID != "" {
		if err := o.contextCache.RemoveMessages(ctx, userID, threadID, []string{thinkingEntryID}); err != nil {
			o.log.Warn(ctx, "remove resolved thinking entry failed", "error", err)
		}
	}
}

func (o *Orchestrator) persistToolUpdate(ctx context.Context, userID, threadID, callID, content, toolName string) {
	if _, err := o.history.AppendMessage(ctx, userID, threadID, models.RoleTool, models.MessageToolUpdate, content, toolName, callID); err != nil {
		o.log.Warn(ctx, "persist tool_update failed", "call", callID, "error", err)
	}
}

type resolvedToolCall struct {
	ID        string
	Name      string
	Arguments string
}

type pendingToolCall struct {
	id   string
	name strings.Builder
	args strings.Builder
}

// consumeStream implements step 5: demultiplex the model's stream
// into the assistant/thinking accumulators and per-call tool argument
// buffers, emitting message_tokens/thinking_tokens events (through
// filter_stream) as chunks arrive.
func (o *Orchestrator) consumeStream(ctx context.Context, turnID string, in <-chan ModelEvent, events chan<- models.Event) (assistantText, thinkingText string, calls []resolvedToolCall, err error) {
	var textBuf, thinkBuf strings.Builder
	order := make([]string, 0)
	pending := make(map[string]*pendingToolCall)
	indexToID := make(map[int]string)

	for ev := range in {
		if ev.Err != nil {
			return "", "", nil, ev.Err
		}
		switch ev.Kind {
		case ModelAssistantText:
			if ev.Text == "" {
				continue
			}
			textBuf.WriteString(ev.Text)
			events <- models.NewMessageTokensEvent(turnID, o.registry.RunFilterStream(ctx, ev.Text))

		case ModelThinkingText:
			if ev.Text == "" {
				continue
			}
			thinkBuf.WriteString(ev.Text)
			events <- models.NewThinkingTokensEvent(turnID, o.registry.RunFilterStream(ctx, ev.Text))

		case ModelToolCallDelta:
			id := ev.ToolCallID
			if id == "" {
				if existing, ok := indexToID[ev.ToolCallIndex]; ok {
					id = existing
				} else {
					id = fmt.Sprintf("call_%d", ev.ToolCallIndex)
					indexToID[ev.ToolCallIndex] = id
				}
			} else {
				indexToID[ev.ToolCallIndex] = id
			}
			pc, ok := pending[id]
			if !ok {
				pc = &pendingToolCall{id: id}
				pending[id] = pc
				order = append(order, id)
			}
			pc.name.WriteString(ev.ToolNameDelta)
			pc.args.WriteString(ev.ToolArgumentsDelta)

		case ModelUsage, ModelEnd:
			// no accumulator state; ModelEnd's arrival just drains the
			// channel on the next iteration until the producer closes it.
		}
	}

	for _, id := range order {
		pc := pending[id]
		calls = append(calls, resolvedToolCall{ID: pc.id, Name: pc.name.String(), Arguments: pc.args.String()})
	}
	return textBuf.String(), thinkBuf.String(), calls, nil
}

func contextEntriesToMessages(entries []models.ContextEntry) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		m := map[string]interface{}{"role": string(e.Role), "content": e.Content}
		if e.ToolCallID != "" {
			m["tool_call_id"] = e.ToolCallID
		}
		if e.ToolName != "" {
			m["tool_name"] = e.ToolName
		}
		if e.ReasoningContent != "" {
			m["reasoning_content"] = e.ReasoningContent
		}
		if len(e.ToolCalls) > 0 {
			stubs := make([]map[string]interface{}, len(e.ToolCalls))
			for i, tc := range e.ToolCalls {
				stubs[i] = map[string]interface{}{"id": tc.ID, "name": tc.Name, "arguments": tc.Arguments}
			}
			m["tool_calls"] = stubs
		}
		out = append(out, m)
	}
	return out
}

func filterSchemas(schemas []tools.Schema, names []string) []tools.Schema {
	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[n] = true
	}
	out := make([]tools.Schema, 0, len(schemas))
	for _, s := range schemas {
		if allowed[s.Name] {
			out = append(out, s)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
