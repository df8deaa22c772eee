package models

import "testing"

func TestEventConstructors_SetKindAndTurn(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		kind EventKind
	}{
		{"thread_id", NewThreadIDEvent("t1", "thread-1"), EventThreadID},
		{"message_tokens", NewMessageTokensEvent("t1", "hi"), EventMessageTokens},
		{"thinking_tokens", NewThinkingTokensEvent("t1", "hmm"), EventThinkingTokens},
		{"tool_update", NewToolUpdateEvent("t1", "call-1", "🔧 add"), EventToolUpdate},
		{"error", NewErrorEvent("t1", "boom"), EventError},
		{"stream_end", NewStreamEndEvent("t1"), EventStreamEnd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.ev.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", tt.ev.Kind, tt.kind)
			}
			if tt.ev.TurnCorrelationID != "t1" {
				t.Errorf("TurnCorrelationID = %q, want %q", tt.ev.TurnCorrelationID, "t1")
			}
			if tt.ev.Timestamp.IsZero() {
				t.Error("expected Timestamp to be set")
			}
		})
	}
}

func TestToolUpdateEvent_CarriesCallID(t *testing.T) {
	ev := NewToolUpdateEvent("t1", "call-42", "✅ add: 5")
	if ev.CallID != "call-42" {
		t.Errorf("CallID = %q, want %q", ev.CallID, "call-42")
	}
	if ev.Content != "✅ add: 5" {
		t.Errorf("Content = %q, want %q", ev.Content, "✅ add: 5")
	}
}
