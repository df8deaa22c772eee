package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fielddesk/chatcore/internal/tools"
)

// StatusProvider is the subset of system state the status tool reports.
type StatusProvider interface {
	RegisteredToolCount() int
	ActivePluginRoles() []string
}

// SystemStatusTool is a schema-explicit tool reporting the running
// deployment's registered tools and active plugin roles, grounded on
// the teacher's system health check tool shape.
type SystemStatusTool struct {
	provider StatusProvider
}

// NewSystemStatusTool wires a SystemStatusTool to live registry state.
func NewSystemStatusTool(provider StatusProvider) *SystemStatusTool {
	return &SystemStatusTool{provider: provider}
}

func (t *SystemStatusTool) Name() string { return "system_status" }

func (t *SystemStatusTool) Description() string {
	return "Report the running deployment's registered tool count and active plugin roles."
}

func (t *SystemStatusTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{},"required":[]}`)
}

func (t *SystemStatusTool) Execute(ctx context.Context, userID, threadID, turnCorrelationID string, arguments json.RawMessage) *tools.Invocation {
	return tools.FromFunc(ctx, t.Name(), arguments, func(ctx context.Context) (tools.Result, error) {
		if t.provider == nil {
			return tools.Result{}, fmt.Errorf("status provider unavailable")
		}
		status := struct {
			RegisteredTools int      `json:"registered_tools"`
			ActiveRoles     []string `json:"active_plugin_roles"`
		}{
			RegisteredTools: t.provider.RegisteredToolCount(),
			ActiveRoles:     t.provider.ActivePluginRoles(),
		}
		payload, err := json.Marshal(status)
		if err != nil {
			return tools.Result{}, err
		}
		return tools.Result{Content: string(payload)}, nil
	})
}
