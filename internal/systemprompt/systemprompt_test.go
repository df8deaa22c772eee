package systemprompt

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeTempPrompts(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "system_prompts.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write temp prompts file: %v", err)
	}
	return path
}

func TestLoadResolvesKnownKey(t *testing.T) {
	path := writeTempPrompts(t, `
default:
  content: "You are a helpful assistant."
  description: "General purpose"
code-assistant:
  content: "You are an expert programming assistant."
  description: "Expert programming help"
`)
	manager, err := Load(path, "", 0, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	text, err := manager.Resolve(context.Background(), "code-assistant")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if text != "You are an expert programming assistant." {
		t.Errorf("Resolve() = %q, want the code-assistant prompt", text)
	}
}

func TestResolveUnknownKeyErrors(t *testing.T) {
	path := writeTempPrompts(t, "default:\n  content: \"hi\"\n")
	manager, err := Load(path, "", 0, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, err := manager.Resolve(context.Background(), "nonexistent"); err == nil {
		t.Error("expected an error for an unknown prompt key")
	}
}

func TestResolveEmptyKeyReturnsEmptyString(t *testing.T) {
	manager, err := Load("", "", 0, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	text, err := manager.Resolve(context.Background(), "")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if text != "" {
		t.Errorf("Resolve(\"\") = %q, want empty string", text)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	manager, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "", 0, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	text, err := manager.Resolve(context.Background(), "default")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if text != "You are a helpful assistant." {
		t.Errorf("Resolve(\"default\") = %q, want the built-in default", text)
	}
}
