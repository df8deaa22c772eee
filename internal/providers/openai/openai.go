// Package openai adapts sashabaranov/go-openai's chat-completion stream
// into the orchestrator's ModelPlugin/ModelEvent shape.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	openaisdk "github.com/sashabaranov/go-openai"

	"github.com/fielddesk/chatcore/internal/orchestrator"
	"github.com/fielddesk/chatcore/internal/tools"
)

// Config configures a Provider.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxTokens    int
	ID           string
	Priority     int
}

// Provider is the model role's OpenAI adapter.
type Provider struct {
	client       *openaisdk.Client
	defaultModel string
	maxTokens    int
	models       []string
	id           string
	priority     int
}

// New constructs a Provider from cfg.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-5"
	}
	if cfg.ID == "" {
		cfg.ID = "openai"
	}

	clientConfig := openaisdk.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &Provider{
		client:       openaisdk.NewClientWithConfig(clientConfig),
		defaultModel: cfg.DefaultModel,
		maxTokens:    cfg.MaxTokens,
		models:       []string{"gpt-5", "gpt-5-mini", "gpt-4o"},
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

// Stream sends messages to a GPT model and demultiplexes the
// server-sent chunks into ModelEvents.
func (p *Provider) Stream(ctx context.Context, messages []map[string]interface{}, modelName, systemPromptText string, toolSchemas []tools.Schema) (<-chan orchestrator.ModelEvent, error) {
	model := modelName
	if model == "" {
		model = p.defaultModel
	}

	chatMessages := convertMessages(messages, systemPromptText)

	req := openaisdk.ChatCompletionRequest{
		Model:    model,
		Messages: chatMessages,
		Stream:   true,
	}
	if p.maxTokens > 0 {
		req.MaxTokens = p.maxTokens
	}
	if len(toolSchemas) > 0 {
		req.Tools = convertTools(toolSchemas)
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai: create stream: %w", err)
	}

	out := make(chan orchestrator.ModelEvent, 16)
	go processStream(stream, out)
	return out, nil
}

// processStream demultiplexes OpenAI's SSE chunks. Tool calls are
// streamed incrementally and keyed by index, since OpenAI may
// interleave several calls in one turn.
func processStream(stream *openaisdk.ChatCompletionStream, out chan<- orchestrator.ModelEvent) {
	defer close(out)
	defer stream.Close()

	seenIndex := make(map[int]bool)

	for {
		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				out <- orchestrator.ModelEvent{Kind: orchestrator.ModelEnd}
				return
			}
			out <- orchestrator.ModelEvent{Err: fmt.Errorf("openai: %w", err)}
			return
		}
		if len(response.Choices) == 0 {
			continue
		}

		delta := response.Choices[0].Delta
		if delta.Content != "" {
			out <- orchestrator.ModelEvent{Kind: orchestrator.ModelAssistantText, Text: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			ev := orchestrator.ModelEvent{
				Kind:               orchestrator.ModelToolCallDelta,
				ToolCallIndex:      index,
				ToolArgumentsDelta: tc.Function.Arguments,
			}
			if !seenIndex[index] {
				seenIndex[index] = true
				ev.ToolCallID = tc.ID
				ev.ToolNameDelta = tc.Function.Name
			}
			out <- ev
		}

		if reason := response.Choices[0].FinishReason; reason == "tool_calls" || reason == "stop" {
			out <- orchestrator.ModelEvent{Kind: orchestrator.ModelEnd}
			return
		}
	}
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
// OpenAI chat messages, injecting systemPromptText as the leading
// system message the way the OpenAI API requires.
func convertMessages(messages []map[string]interface{}, systemPromptText string) []openaisdk.ChatCompletionMessage {
	out := make([]openaisdk.ChatCompletionMessage, 0, len(messages)+1)
	if systemPromptText != "" {
		out = append(out, openaisdk.ChatCompletionMessage{Role: openaisdk.ChatMessageRoleSystem, Content: systemPromptText})
	}

	for _, m := range messages {
		role, _ := m["role"].(string)
		content, _ := m["content"].(string)

		switch role {
		case "user":
			out = append(out, openaisdk.ChatCompletionMessage{Role: openaisdk.ChatMessageRoleUser, Content: content})
		case "assistant":
			msg := openaisdk.ChatCompletionMessage{Role: openaisdk.ChatMessageRoleAssistant, Content: content}
			if stubs := toolCallStubs(m); len(stubs) > 0 {
				msg.ToolCalls = make([]openaisdk.ToolCall, len(stubs))
				for i, tc := range stubs {
					msg.ToolCalls[i] = openaisdk.ToolCall{
						ID:   tc.id,
						Type: openaisdk.ToolTypeFunction,
						Function: openaisdk.FunctionCall{
							Name:      tc.name,
							Arguments: tc.arguments,
						},
					}
				}
			}
			out = append(out, msg)
		case "tool":
			callID, _ := m["tool_call_id"].(string)
			out = append(out, openaisdk.ChatCompletionMessage{Role: openaisdk.ChatMessageRoleTool, Content: content, ToolCallID: callID})
		case "thinking":
			continue
		}
	}
	return out
}

func convertTools(schemas []tools.Schema) []openaisdk.Tool {
	out := make([]openaisdk.Tool, 0, len(schemas))
	for _, s := range schemas {
		var params map[string]any
		if err := json.Unmarshal(s.Parameters, &params); err != nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, openaisdk.Tool{
			Type: openaisdk.ToolTypeFunction,
			Function: &openaisdk.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
