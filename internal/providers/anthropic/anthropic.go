// Package anthropic adapts the Anthropic SDK's message stream into the
// orchestrator's ModelPlugin/ModelEvent shape.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/fielddesk/chatcore/internal/orchestrator"
	"github.com/fielddesk/chatcore/internal/tools"
)

// Config configures a Provider.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxTokens    int64
	// ID and Priority are this plugin's registration identity under
	// plugins.RoleModel.
	ID       string
	Priority int
}

// Provider is the model role's Anthropic adapter.
type Provider struct {
	client       anthropicsdk.Client
	defaultModel string
	maxTokens    int64
	models       []string
	id           string
	priority     int
}

// New constructs a Provider from cfg.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-5"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.ID == "" {
		cfg.ID = "anthropic"
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Provider{
		client:       anthropicsdk.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
		maxTokens:    cfg.MaxTokens,
		models:       []string{"claude-opus-4-1", "claude-sonnet-4-5", "claude-haiku-4-5"},
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

// Stream sends messages to Claude and demultiplexes the SSE response
// into ModelEvents.
func (p *Provider) Stream(ctx context.Context, messages []map[string]interface{}, modelName, systemPromptText string, toolSchemas []tools.Schema) (<-chan orchestrator.ModelEvent, error) {
	model := modelName
	if model == "" {
		model = p.defaultModel
	}

	converted, err := convertMessages(messages)
	if err != nil {
		return nil, fmt.Errorf("anthropic: convert messages: %w", err)
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(model),
		Messages:  converted,
		MaxTokens: p.maxTokens,
	}
	if systemPromptText != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: systemPromptText}}
	}
	if len(toolSchemas) > 0 {
		toolParams, err := convertTools(toolSchemas)
		if err != nil {
			return nil, fmt.Errorf("anthropic: convert tools: %w", err)
		}
		params.Tools = toolParams
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	out := make(chan orchestrator.ModelEvent, 16)
	go processStream(stream, out)
	return out, nil
}

// processStream demultiplexes Claude's SSE stream. Anthropic emits
// content blocks sequentially (never interleaved), so a single
// in-flight tool call is tracked at a time, counted up by index as
// each resolves.
func processStream(stream *ssestream.Stream[anthropicsdk.MessageStreamEventUnion], out chan<- orchestrator.ModelEvent) {
	defer close(out)

	var toolIndex int
	var currentToolID string
	inTool := false

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				currentToolID = toolUse.ID
				inTool = true
				out <- orchestrator.ModelEvent{
					Kind:          orchestrator.ModelToolCallDelta,
					ToolCallID:    currentToolID,
					ToolCallIndex: toolIndex,
					ToolNameDelta: toolUse.Name,
				}
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					out <- orchestrator.ModelEvent{Kind: orchestrator.ModelAssistantText, Text: delta.Text}
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					out <- orchestrator.ModelEvent{Kind: orchestrator.ModelThinkingText, Text: delta.Thinking}
				}
			case "input_json_delta":
				if inTool && delta.PartialJSON != "" {
					out <- orchestrator.ModelEvent{
						Kind:               orchestrator.ModelToolCallDelta,
						ToolCallID:         currentToolID,
						ToolCallIndex:      toolIndex,
						ToolArgumentsDelta: delta.PartialJSON,
					}
				}
			}

		case "content_block_stop":
			if inTool {
				inTool = false
				toolIndex++
			}

		case "message_delta":
			usage := event.AsMessageDelta().Usage
			if usage.OutputTokens > 0 {
				out <- orchestrator.ModelEvent{Kind: orchestrator.ModelUsage}
			}

		case "message_stop":
			out <- orchestrator.ModelEvent{Kind: orchestrator.ModelEnd}
			return

		case "error":
			out <- orchestrator.ModelEvent{Err: errors.New("anthropic: server-side stream error")}
			return
		}
	}

	if err := stream.Err(); err != nil {
		out <- orchestrator.ModelEvent{Err: fmt.Errorf("anthropic: %w", err)}
		return
	}
	out <- orchestrator.ModelEvent{Kind: orchestrator.ModelEnd}
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
// Anthropic message params. Thinking entries are dropped from the
// outbound request — Anthropic's extended-thinking replay needs a
// signed block this adapter doesn't carry, so a turn's thinking is
// never resubmitted once produced.
func convertMessages(messages []map[string]interface{}) ([]anthropicsdk.MessageParam, error) {
	var out []anthropicsdk.MessageParam
	for _, m := range messages {
		role, _ := m["role"].(string)
		content, _ := m["content"].(string)

		switch role {
		case "user":
			out = append(out, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(content)))
		case "assistant":
			var blocks []anthropicsdk.ContentBlockParamUnion
			if content != "" {
				blocks = append(blocks, anthropicsdk.NewTextBlock(content))
			}
			for _, tc := range toolCallStubs(m) {
				var input map[string]interface{}
				if err := json.Unmarshal([]byte(tc.arguments), &input); err != nil {
					return nil, fmt.Errorf("tool call %s has invalid arguments: %w", tc.id, err)
				}
				blocks = append(blocks, anthropicsdk.NewToolUseBlock(tc.id, input, tc.name))
			}
			out = append(out, anthropicsdk.NewAssistantMessage(blocks...))
		case "tool":
			callID, _ := m["tool_call_id"].(string)
			out = append(out, anthropicsdk.NewUserMessage(anthropicsdk.NewToolResultBlock(callID, content, false)))
		case "thinking":
			continue
		default:
			return nil, fmt.Errorf("unsupported role %q", role)
		}
	}
	return out, nil
}

func convertTools(schemas []tools.Schema) ([]anthropicsdk.ToolUnionParam, error) {
	var out []anthropicsdk.ToolUnionParam
	for _, s := range schemas {
		var schema anthropicsdk.ToolInputSchemaParam
		if err := json.Unmarshal(s.Parameters, &schema); err != nil {
			return nil, fmt.Errorf("invalid schema for %s: %w", s.Name, err)
		}
		toolParam := anthropicsdk.ToolUnionParamOfTool(schema, s.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid schema for %s: missing tool definition", s.Name)
		}
		toolParam.OfTool.Description = anthropicsdk.String(s.Description)
		out = append(out, toolParam)
	}
	return out, nil
}
