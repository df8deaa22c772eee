package tools

import (
	"context"
	"encoding/json"
	"testing"
)

type greetParams struct {
	UserID string `json:"-"`
	Name   string `json:"name" jsonschema:"required,description=Name to greet."`
}

func TestRegisterDerivedInjectsCorrelationFields(t *testing.T) {
	reg := NewRegistry()
	var capturedUserID string

	err := RegisterDerived(reg, "greet", "Greets the caller by name.",
		func(ctx context.Context, userID, threadID, turnCorrelationID string, params greetParams) (Result, error) {
			capturedUserID = userID
			return Result{Content: "hello " + params.Name}, nil
		})
	if err != nil {
		t.Fatalf("RegisterDerived: %v", err)
	}

	tool, ok := reg.Get("greet")
	if !ok {
		t.Fatal("expected greet to be registered")
	}

	inv := tool.Execute(context.Background(), "user-42", "thread-1", "turn-1", json.RawMessage(`{"name":"Ada"}`))
	result, err := inv.FinalValue(context.Background())
	if err != nil {
		t.Fatalf("FinalValue: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result)
	}
	if result.Content != "hello Ada" {
		t.Fatalf("unexpected content: %q", result.Content)
	}
	if capturedUserID != "user-42" {
		t.Fatalf("expected injected userID, got %q", capturedUserID)
	}
}

func TestRegisterDerivedSchemaExcludesCorrelationFields(t *testing.T) {
	reg := NewRegistry()
	err := RegisterDerived(reg, "greet", "Greets the caller by name.",
		func(ctx context.Context, userID, threadID, turnCorrelationID string, params greetParams) (Result, error) {
			return Result{}, nil
		})
	if err != nil {
		t.Fatalf("RegisterDerived: %v", err)
	}

	tool, _ := reg.Get("greet")
	var schema map[string]interface{}
	if err := json.Unmarshal(tool.Schema(), &schema); err != nil {
		t.Fatalf("decode schema: %v", err)
	}
	props, ok := schema["properties"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected properties map, got %v", schema["properties"])
	}
	if _, present := props["UserID"]; present {
		t.Fatalf("expected UserID excluded from schema, got %v", props)
	}
	if _, present := props["name"]; !present {
		t.Fatalf("expected name present in schema, got %v", props)
	}
}

func TestRegisterDerivedRejectsInvalidArguments(t *testing.T) {
	reg := NewRegistry()
	err := RegisterDerived(reg, "greet", "Greets the caller by name.",
		func(ctx context.Context, userID, threadID, turnCorrelationID string, params greetParams) (Result, error) {
			return Result{Content: "hello " + params.Name}, nil
		})
	if err != nil {
		t.Fatalf("RegisterDerived: %v", err)
	}

	tool, _ := reg.Get("greet")
	inv := tool.Execute(context.Background(), "user-1", "thread-1", "turn-1", json.RawMessage(`{}`))
	result, err := inv.FinalValue(context.Background())
	if err != nil {
		t.Fatalf("FinalValue: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected missing required field to be reported as an error, got %+v", result)
	}
}
