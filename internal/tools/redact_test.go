package tools

import (
	"context"
	"testing"
)

func TestInvokeAppliesResultGuardDenylist(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(&stubTool{name: "secrets"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	reg.SetResultGuard(ResultGuard{Denylist: []string{"secrets"}})

	inv := reg.Invoke(context.Background(), "secrets", "u1", "t1", "c1", nil)
	result, err := inv.FinalValue(context.Background())
	if err != nil {
		t.Fatalf("FinalValue: %v", err)
	}
	if result.Content != "[redacted]" {
		t.Fatalf("expected redacted content, got %q", result.Content)
	}
}

func TestInvokeAppliesResultGuardPatternsAndTruncation(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(&stubTool{name: "alpha"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	reg.SetResultGuard(ResultGuard{
		RedactPatterns: []string{`alpha:\w+`},
		MaxChars:       4,
		TruncateSuffix: "~",
	})

	inv := reg.Invoke(context.Background(), "alpha", "u1", "t1", "c1", nil)
	result, err := inv.FinalValue(context.Background())
	if err != nil {
		t.Fatalf("FinalValue: %v", err)
	}
	if result.Content != "[red~" {
		t.Fatalf("unexpected content: %q", result.Content)
	}
}

func TestInvokeWithoutGuardPassesThroughUnchanged(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(&stubTool{name: "alpha"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	inv := reg.Invoke(context.Background(), "alpha", "u1", "t1", "c1", nil)
	result, err := inv.FinalValue(context.Background())
	if err != nil {
		t.Fatalf("FinalValue: %v", err)
	}
	if result.Content != "alpha:u1" {
		t.Fatalf("unexpected content: %q", result.Content)
	}
}
