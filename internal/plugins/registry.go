package plugins

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Role is one of the plugin roles the core depends on. Core code never
// references a concrete plugin; it asks the Registry for a role's
// active (single-slot) or ordered (multi-slot) plugins.
type Role string

const (
	RoleAuth             Role = "auth"
	RoleStore            Role = "store"
	RoleHistory          Role = "history"
	RoleContext          Role = "context"
	RoleModel            Role = "model"
	RoleSystemPrompt     Role = "system_prompt"
	RoleMessageProcessor Role = "message_processor"
	RoleTool             Role = "tool"
	RoleFunction         Role = "function"
)

// singleSlotRoles have exactly one active plugin; the highest-priority
// registrant wins.
var singleSlotRoles = map[Role]bool{
	RoleAuth:             true,
	RoleStore:            true,
	RoleHistory:          true,
	RoleContext:          true,
	RoleModel:            true,
	RoleSystemPrompt:     true,
	RoleMessageProcessor: true,
}

// allRoles is every role the core recognizes, single- or multi-slot.
var allRoles = []Role{
	RoleAuth, RoleStore, RoleHistory, RoleContext, RoleModel,
	RoleSystemPrompt, RoleMessageProcessor, RoleTool, RoleFunction,
}

// AllRoles returns every role the core recognizes, for callers (like
// a status tool) that need to enumerate what a registry could hold.
func AllRoles() []Role {
	out := make([]Role, len(allRoles))
	copy(out, allRoles)
	return out
}

// Plugin is the minimum every registered plugin exposes: an
// identifier and a priority used to resolve single-slot roles and
// order multi-slot roles.
type Plugin interface {
	ID() string
	Priority() int
}

// Shutdowner is implemented by plugins with teardown work; the
// registry awaits it on process stop.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// Logger is the minimal structured-logging surface the registry
// depends on.
type Logger interface {
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(context.Context, string, ...any) {}
func (noopLogger) Warn(context.Context, string, ...any) {}

// Registry holds every registered plugin, keyed by role, and resolves
// single-slot roles to their highest-priority registrant. Plugins must
// reach other plugins only through the Registry, never by holding a
// direct reference, so that a higher-priority override takes effect
// for every caller.
type Registry struct {
	mu      sync.RWMutex
	byRole  map[Role][]Plugin
	log     Logger
	started bool
}

// NewRegistry constructs an empty Registry.
func NewRegistry(logger Logger) *Registry {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Registry{byRole: make(map[Role][]Plugin), log: logger}
}

// Register adds plugin to role. Valid for any of the nine roles;
// single-slot roles may be registered more than once (e.g. a builtin
// default plus an override) — Active resolves ties by priority.
func (r *Registry) Register(ctx context.Context, role Role, p Plugin) error {
	if p.ID() == "" {
		return fmt.Errorf("plugin for role %s has no id", role)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byRole[role] {
		if existing.ID() == p.ID() {
			return fmt.Errorf("plugin %q already registered for role %s", p.ID(), role)
		}
	}
	r.byRole[role] = append(r.byRole[role], p)
	r.log.Info(ctx, "plugin registered", "role", string(role), "id", p.ID(), "priority", p.Priority())
	return nil
}

// Active returns the highest-priority plugin registered for a
// single-slot role. Ties resolve to whichever was registered first.
func (r *Registry) Active(role Role) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	plugins := r.byRole[role]
	if len(plugins) == 0 {
		return nil, false
	}
	best := plugins[0]
	for _, p := range plugins[1:] {
		if p.Priority() > best.Priority() {
			best = p
		}
	}
	return best, true
}

// PreCallOrder returns role's plugins ordered highest priority first.
func (r *Registry) PreCallOrder(role Role) []Plugin {
	return r.ordered(role, true)
}

// LowestFirstOrder returns role's plugins ordered lowest priority
// first — used for filter_stream and post_call, so transforms layer
// outwards from the plugin closest to the model.
func (r *Registry) LowestFirstOrder(role Role) []Plugin {
	return r.ordered(role, false)
}

func (r *Registry) ordered(role Role, highestFirst bool) []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Plugin, len(r.byRole[role]))
	copy(out, r.byRole[role])
	sort.SliceStable(out, func(i, j int) bool {
		if highestFirst {
			return out[i].Priority() > out[j].Priority()
		}
		return out[i].Priority() < out[j].Priority()
	})
	return out
}

// All returns every plugin registered for role, registration order.
func (r *Registry) All(role Role) []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Plugin, len(r.byRole[role]))
	copy(out, r.byRole[role])
	return out
}

// Shutdown awaits every registered plugin's Shutdown, in no particular
// order, collecting the first error encountered but still attempting
// the rest.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.RLock()
	all := make([]Plugin, 0)
	for _, plugins := range r.byRole {
		all = append(all, plugins...)
	}
	r.mu.RUnlock()

	var firstErr error
	for _, p := range all {
		sd, ok := p.(Shutdowner)
		if !ok {
			continue
		}
		if err := sd.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("shutdown plugin %q: %w", p.ID(), err)
		}
	}
	return firstErr
}

// IsSingleSlot reports whether role has single-slot (highest-priority-
// wins) semantics, as opposed to multi-slot (tool, function).
func IsSingleSlot(role Role) bool {
	return singleSlotRoles[role]
}
