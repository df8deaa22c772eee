// Package systemprompt resolves a prompt key to text from a YAML
// file, keyed the way an operator would hand-edit one: a map of
// prompt name to {content, description}.
package systemprompt

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fielddesk/chatcore/internal/plugins"
)

// Entry is one prompt definition in the YAML file.
type Entry struct {
	Content     string `yaml:"content"`
	Description string `yaml:"description"`
}

var defaultPrompts = map[string]Entry{
	"zero":    {Content: "", Description: "No system prompt - use the model's default behavior"},
	"default": {Content: "You are a helpful assistant.", Description: "General purpose assistant"},
}

// Manager is the system_prompt role's reference plugin: a key ->
// text lookup backed by a YAML file read once at construction.
type Manager struct {
	prompts  map[string]Entry
	id       string
	priority int
}

func (m *Manager) ID() string    { return m.id }
func (m *Manager) Priority() int { return m.priority }

// Load reads path and builds a Manager. A missing file or one that
// fails to parse falls back to a two-entry built-in default set
// ("zero", "default") rather than failing construction — a chat
// backend with no prompt file configured should still boot.
func Load(path, id string, priority int, log plugins.Logger) (*Manager, error) {
	if log == nil {
		log = noopLogger{}
	}
	if id == "" {
		id = "yaml-system-prompt"
	}

	path = strings.TrimSpace(path)
	if path == "" {
		log.Warn(context.Background(), "no system prompts file configured, using built-in defaults")
		return &Manager{prompts: defaultPrompts, id: id, priority: priority}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn(context.Background(), "system prompts file not found, using built-in defaults", "path", path)
			return &Manager{prompts: defaultPrompts, id: id, priority: priority}, nil
		}
		return nil, fmt.Errorf("systemprompt: read %s: %w", path, err)
	}

	var raw map[string]Entry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("systemprompt: parse %s: %w", path, err)
	}
	if len(raw) == 0 {
		log.Warn(context.Background(), "system prompts file is empty, using built-in defaults", "path", path)
		return &Manager{prompts: defaultPrompts, id: id, priority: priority}, nil
	}

	log.Info(context.Background(), "loaded system prompts", "path", path, "count", len(raw))
	return &Manager{prompts: raw, id: id, priority: priority}, nil
}

// Resolve implements orchestrator.SystemPromptPlugin.
func (m *Manager) Resolve(ctx context.Context, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", nil
	}
	entry, ok := m.prompts[key]
	if !ok {
		return "", fmt.Errorf("systemprompt: unknown key %q", key)
	}
	return entry.Content, nil
}

// List returns every available prompt key and its description.
func (m *Manager) List() map[string]string {
	out := make(map[string]string, len(m.prompts))
	for key, entry := range m.prompts {
		out[key] = entry.Description
	}
	return out
}

type noopLogger struct{}

func (noopLogger) Info(context.Context, string, ...any) {}
func (noopLogger) Warn(context.Context, string, ...any) {}
