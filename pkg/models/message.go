package models

import "time"

// Role is who or what produced a history message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleThinking  Role = "thinking"
	RoleTool      Role = "tool"
)

// MessageType distinguishes plain text from a tool-progress line.
type MessageType string

const (
	MessageText MessageType = "message_text"
	MessageToolUpdate MessageType = "tool_update"
)

// Message is one append-only item in a thread's "messages" collection.
// Immutable after append; never rewritten through the public API.
type Message struct {
	ID        string      `json:"id"`
	ThreadID  string      `json:"thread_id"`
	Role      Role        `json:"role"`
	Type      MessageType `json:"type"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
	Model     string      `json:"model,omitempty"`
	CallID    string      `json:"call_id,omitempty"`
}
