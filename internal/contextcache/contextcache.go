package contextcache

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/fielddesk/chatcore/pkg/models"
)

// HistoryReader is the subset of history.Log that ContextCache
// rebuilds from.
type HistoryReader interface {
	GetMessages(ctx context.Context, userID, threadID string) ([]models.Message, error)
}

type cacheKey struct {
	userID   string
	threadID string
}

type entry struct {
	items         []models.ContextEntry
	mutationCount int
}

// Cache holds the model-visible context for each (thread, user),
// regenerated from history on demand and mutated in place while a
// turn is in flight.
type Cache struct {
	history HistoryReader

	mu    sync.Mutex
	cache map[cacheKey]*entry
}

// New constructs a Cache backed by history.
func New(history HistoryReader) *Cache {
	return &Cache{history: history, cache: make(map[cacheKey]*entry)}
}

// GetContext returns the cached view for (threadID, userID),
// regenerating it from history on first access. When stripReasoning is
// set, thinking entries are omitted from the returned slice (the
// cache itself is unaffected).
func (c *Cache) GetContext(ctx context.Context, userID, threadID string, stripReasoning bool) ([]models.ContextEntry, error) {
	e, err := c.ensure(ctx, userID, threadID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, nil
	}

	if !stripReasoning {
		return append([]models.ContextEntry(nil), e.items...), nil
	}

	out := make([]models.ContextEntry, 0, len(e.items))
	for _, item := range e.items {
		if item.Role == models.RoleThinking {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

// RegenerateContext rebuilds the cached view from HistoryLog.GetMessages,
// discarding any mid-flight mutations. Increments mutation_count.
func (c *Cache) RegenerateContext(ctx context.Context, userID, threadID string) error {
	msgs, err := c.history.GetMessages(ctx, userID, threadID)
	if err != nil {
		return err
	}

	items := project(msgs)

	key := cacheKey{userID, threadID}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.cache[key]
	if !ok {
		e = &entry{}
		c.cache[key] = e
	}
	e.items = items
	e.mutationCount++
	return nil
}

// AddMessage appends a model-visible entry and returns its id,
// assigning a new one if id is empty.
func (c *Cache) AddMessage(ctx context.Context, userID, threadID string, item models.ContextEntry, id string) (string, error) {
	if id == "" {
		id = uuid.New().String()
	}
	item.ID = id

	e, err := c.ensure(ctx, userID, threadID)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e == nil {
		e = &entry{}
		c.cache[cacheKey{userID, threadID}] = e
	}
	e.items = append(e.items, item)
	e.mutationCount++
	return id, nil
}

// UpdateMessage mutates the entry with id in place.
func (c *Cache) UpdateMessage(ctx context.Context, userID, threadID, id string, mutate func(*models.ContextEntry)) error {
	e, err := c.ensure(ctx, userID, threadID)
	if err != nil {
		return err
	}
	if e == nil {
		return models.NewError(models.ErrNotFound, "no cached context for thread", nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range e.items {
		if e.items[i].ID == id {
			mutate(&e.items[i])
			e.mutationCount++
			return nil
		}
	}
	return models.NewError(models.ErrNotFound, "context entry not found", nil)
}

// RemoveMessages deletes entries matching ids, used to scrub transient
// thinking entries once a tool round resolves.
func (c *Cache) RemoveMessages(ctx context.Context, userID, threadID string, ids []string) error {
	e, err := c.ensure(ctx, userID, threadID)
	if err != nil {
		return err
	}
	if e == nil {
		return nil
	}

	remove := make(map[string]bool, len(ids))
	for _, id := range ids {
		remove[id] = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	kept := e.items[:0:0]
	for _, item := range e.items {
		if !remove[item.ID] {
			kept = append(kept, item)
		}
	}
	e.items = kept
	e.mutationCount++
	return nil
}

// SetContext atomically replaces the cached items for (userID,
// threadID), but only if the cache's mutation count still matches
// expectedMutationCount, and bumps the counter as part of the same
// write. This is the one primitive a background task may use to
// rewrite context without racing a concurrent append: it reads
// MutationCount, does its work, then calls SetContext with the count
// it read. A mutation landing in between means ok is false and
// newItems is discarded rather than clobbering the interleaved write.
func (c *Cache) SetContext(ctx context.Context, userID, threadID string, expectedMutationCount int, newItems []models.ContextEntry) (bool, error) {
	if _, err := c.ensure(ctx, userID, threadID); err != nil {
		return false, err
	}

	key := cacheKey{userID, threadID}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.cache[key]
	if !ok {
		e = &entry{}
		c.cache[key] = e
	}
	if e.mutationCount != expectedMutationCount {
		return false, nil
	}
	e.items = append([]models.ContextEntry(nil), newItems...)
	e.mutationCount++
	return true, nil
}

// Invalidate drops the cached list so the next GetContext regenerates
// from history.
func (c *Cache) Invalidate(userID, threadID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, cacheKey{userID, threadID})
}

// MutationCount returns the cached mutation counter, or (0, false) if
// nothing has been loaded yet.
func (c *Cache) MutationCount(userID, threadID string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.cache[cacheKey{userID, threadID}]
	if !ok {
		return 0, false
	}
	return e.mutationCount, true
}

func (c *Cache) ensure(ctx context.Context, userID, threadID string) (*entry, error) {
	key := cacheKey{userID, threadID}

	c.mu.Lock()
	e, ok := c.cache[key]
	c.mu.Unlock()
	if ok {
		return e, nil
	}

	if err := c.RegenerateContext(ctx, userID, threadID); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache[key], nil
}

// project applies the history->model-view rules: user/assistant text
// messages map straight across; consecutive thinking chunks collapse
// into the following assistant entry's reasoning content; tool_update
// rows for the same call_id collapse into a single final tool entry.
//
// A thinking chunk only survives into the assistant entry that closes
// its own round. Once a tool_update for that round arrives, the round
// has resolved and thinkingBuf is dropped rather than carried forward
// to whatever assistant message eventually follows — otherwise a
// resolved round's reasoning would reattach to a later, unrelated
// turn's final text on the next regeneration.
func project(msgs []models.Message) []models.ContextEntry {
	out := make([]models.ContextEntry, 0, len(msgs))
	var thinkingBuf []string
	toolOrder := make([]string, 0)
	toolFinal := make(map[string]string)

	flushTools := func() {
		for _, callID := range toolOrder {
			out = append(out, models.ContextEntry{
				Role:       models.RoleTool,
				Content:    toolFinal[callID],
				ToolCallID: callID,
			})
		}
		toolOrder = toolOrder[:0]
		toolFinal = make(map[string]string)
	}

	for _, m := range msgs {
		switch {
		case m.Role == models.RoleUser && m.Type == models.MessageText:
			flushTools()
			thinkingBuf = nil
			out = append(out, models.ContextEntry{Role: models.RoleUser, Content: m.Content})

		case m.Role == models.RoleThinking:
			thinkingBuf = append(thinkingBuf, m.Content)

		case m.Role == models.RoleAssistant && m.Type == models.MessageText:
			flushTools()
			reasoning := ""
			if len(thinkingBuf) > 0 {
				for i, chunk := range thinkingBuf {
					if i > 0 {
						reasoning += "\n"
					}
					reasoning += chunk
				}
				thinkingBuf = nil
			}
			out = append(out, models.ContextEntry{
				Role:             models.RoleAssistant,
				Content:          m.Content,
				ReasoningContent: reasoning,
			})

		case m.Role == models.RoleTool && m.Type == models.MessageToolUpdate:
			// The round that produced thinkingBuf has now resolved;
			// that reasoning belongs to this round's tool calls, not
			// to whatever assistant text eventually follows.
			thinkingBuf = nil
			if _, seen := toolFinal[m.CallID]; !seen {
				toolOrder = append(toolOrder, m.CallID)
			}
			toolFinal[m.CallID] = m.Content
		}
	}
	flushTools()

	return out
}
