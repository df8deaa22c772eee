// Package gemini adapts google.golang.org/genai's generate-content
// stream into the orchestrator's ModelPlugin/ModelEvent shape.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"

	"google.golang.org/genai"

	"github.com/fielddesk/chatcore/internal/orchestrator"
	"github.com/fielddesk/chatcore/internal/tools"
)

// Config configures a Provider.
type Config struct {
	APIKey       string
	DefaultModel string
	MaxTokens    int32
	ID           string
	Priority     int
}

// Provider is the model role's Gemini adapter.
type Provider struct {
	client       *genai.Client
	defaultModel string
	maxTokens    int32
	models       []string
	id           string
	priority     int
}

// New constructs a Provider from cfg.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gemini-2.0-flash"
	}
	if cfg.ID == "" {
		cfg.ID = "gemini"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &Provider{
		client:       client,
		defaultModel: cfg.DefaultModel,
		maxTokens:    cfg.MaxTokens,
		models:       []string{"gemini-2.0-flash", "gemini-2.5-pro", "gemini-2.5-flash"},
		id:           cfg.ID,
		priority:     cfg.Priority,
	}, nil
}

func (p *Provider) ID() string    { return p.id }
func (p *Provider) Priority() int { return p.priority }

// ListModels returns the models this adapter is willing to route to.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	return p.models, nil
}

// Stream sends messages to a Gemini model and demultiplexes the
// response iterator into ModelEvents. Unlike Anthropic/OpenAI, Gemini
// delivers each function call whole rather than as argument
// fragments, so every tool_call_delta here is also the final one for
// its index.
func (p *Provider) Stream(ctx context.Context, messages []map[string]interface{}, modelName, systemPromptText string, toolSchemas []tools.Schema) (<-chan orchestrator.ModelEvent, error) {
	model := modelName
	if model == "" {
		model = p.defaultModel
	}

	contents, err := convertMessages(messages)
	if err != nil {
		return nil, fmt.Errorf("gemini: convert messages: %w", err)
	}

	config := &genai.GenerateContentConfig{}
	if systemPromptText != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemPromptText}}}
	}
	if p.maxTokens > 0 {
		config.MaxOutputTokens = p.maxTokens
	}
	if len(toolSchemas) > 0 {
		config.Tools = convertTools(toolSchemas)
	}

	streamIter := p.client.Models.GenerateContentStream(ctx, model, contents, config)

	out := make(chan orchestrator.ModelEvent, 16)
	go processStream(ctx, streamIter, out)
	return out, nil
}

func processStream(ctx context.Context, streamIter iter.Seq2[*genai.GenerateContentResponse, error], out chan<- orchestrator.ModelEvent) {
	defer close(out)

	toolIndex := 0
	for resp, err := range streamIter {
		select {
		case <-ctx.Done():
			out <- orchestrator.ModelEvent{Err: ctx.Err()}
			return
		default:
		}
		if err != nil {
			out <- orchestrator.ModelEvent{Err: fmt.Errorf("gemini: %w", err)}
			return
		}
		if resp == nil {
			continue
		}

		for _, candidate := range resp.Candidates {
			if candidate == nil || candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part == nil {
					continue
				}
				if part.Text != "" {
					out <- orchestrator.ModelEvent{Kind: orchestrator.ModelAssistantText, Text: part.Text}
				}
				if part.FunctionCall != nil {
					args, marshalErr := json.Marshal(part.FunctionCall.Args)
					if marshalErr != nil {
						args = []byte("{}")
					}
					out <- orchestrator.ModelEvent{
						Kind:               orchestrator.ModelToolCallDelta,
						ToolCallID:         syntheticCallID(part.FunctionCall.Name, toolIndex),
						ToolCallIndex:      toolIndex,
						ToolNameDelta:      part.FunctionCall.Name,
						ToolArgumentsDelta: string(args),
					}
					toolIndex++
				}
			}
		}
	}

	out <- orchestrator.ModelEvent{Kind: orchestrator.ModelEnd}
}

func syntheticCallID(name string, index int) string {
	return fmt.Sprintf("%s_%d", name, index)
}

// toolCallRef is one pending tool call carried on an assistant
// context entry, read back out of the generic message map.
type toolCallRef struct {
	id, name, arguments string
}

func toolCallStubs(m map[string]interface{}) []toolCallRef {
	raw, _ := m["tool_calls"].([]map[string]interface{})
	out := make([]toolCallRef, 0, len(raw))
	for _, tc := range raw {
		id, _ := tc["id"].(string)
		name, _ := tc["name"].(string)
		args, _ := tc["arguments"].(string)
		out = append(out, toolCallRef{id: id, name: name, arguments: args})
	}
	return out
}

// convertMessages maps the orchestrator's role/content entries onto
// Gemini contents. Gemini has no "tool" role of its own; a tool
// result becomes a user-turn FunctionResponse part, and thinking
// entries are dropped for the same reason the other adapters drop
// them.
func convertMessages(messages []map[string]interface{}) ([]*genai.Content, error) {
	var out []*genai.Content
	for _, m := range messages {
		role, _ := m["role"].(string)
		content, _ := m["content"].(string)

		switch role {
		case "user":
			out = append(out, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{Text: content}}})
		case "assistant":
			var parts []*genai.Part
			if content != "" {
				parts = append(parts, &genai.Part{Text: content})
			}
			for _, tc := range toolCallStubs(m) {
				var args map[string]any
				if err := json.Unmarshal([]byte(tc.arguments), &args); err != nil {
					return nil, fmt.Errorf("tool call %s has invalid arguments: %w", tc.id, err)
				}
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{Name: tc.name, Args: args}})
			}
			out = append(out, &genai.Content{Role: genai.RoleModel, Parts: parts})
		case "tool":
			name, _ := m["tool_name"].(string)
			var response map[string]any
			if err := json.Unmarshal([]byte(content), &response); err != nil {
				response = map[string]any{"result": content}
			}
			out = append(out, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{Name: name, Response: response},
				}},
			})
		case "thinking":
			continue
		default:
			return nil, fmt.Errorf("unsupported role %q", role)
		}
	}
	return out, nil
}

func convertTools(schemas []tools.Schema) []*genai.Tool {
	if len(schemas) == 0 {
		return nil
	}
	declarations := make([]*genai.FunctionDeclaration, 0, len(schemas))
	for _, s := range schemas {
		var schemaMap map[string]any
		if err := json.Unmarshal(s.Parameters, &schemaMap); err != nil {
			continue
		}
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  jsonSchemaToGemini(schemaMap),
		})
	}
	if len(declarations) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// jsonSchemaToGemini recursively translates a plain JSON-schema map
// (the shape every tool in this repo produces) into Gemini's typed
// Schema.
func jsonSchemaToGemini(schemaMap map[string]any) *genai.Schema {
	if schemaMap == nil {
		return nil
	}
	schema := &genai.Schema{}

	if t, ok := schemaMap["type"].(string); ok {
		schema.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schemaMap["description"].(string); ok {
		schema.Description = desc
	}
	if enum, ok := schemaMap["enum"].([]any); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}
	if props, ok := schemaMap["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				schema.Properties[name] = jsonSchemaToGemini(propMap)
			}
		}
	}
	if required, ok := schemaMap["required"].([]any); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if items, ok := schemaMap["items"].(map[string]any); ok {
		schema.Items = jsonSchemaToGemini(items)
	}
	return schema
}
