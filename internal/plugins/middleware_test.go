package plugins

import (
	"context"
	"errors"
	"testing"
)

type failingPreCallPlugin struct {
	fakePlugin
}

func (failingPreCallPlugin) PreCall(ctx context.Context, params *CallParams) error {
	return errors.New("boom")
}

func TestRunPreCallContinuesPastAFailingHook(t *testing.T) {
	r := NewRegistry(nil)
	ctx := context.Background()
	_ = r.Register(ctx, RoleFunction, failingPreCallPlugin{fakePlugin: fakePlugin{id: "broken", priority: 10}})
	_ = r.Register(ctx, RoleFunction, preCallPlugin{
		fakePlugin: fakePlugin{id: "ok", priority: 1},
		mutate:     func(p *CallParams) { p.Model = "ok-model" },
	})

	params := &CallParams{Model: "default"}
	r.RunPreCall(ctx, params)

	if params.Model != "ok-model" {
		t.Fatalf("expected the surviving hook to still run, got %q", params.Model)
	}
}

type failingFilterPlugin struct {
	fakePlugin
}

func (failingFilterPlugin) FilterStream(ctx context.Context, chunk string) (string, error) {
	return "", errors.New("boom")
}

func TestRunFilterStreamSkipsAFailingFilter(t *testing.T) {
	r := NewRegistry(nil)
	ctx := context.Background()
	_ = r.Register(ctx, RoleFunction, failingFilterPlugin{fakePlugin: fakePlugin{id: "broken", priority: 1}})
	_ = r.Register(ctx, RoleFunction, filterPlugin{fakePlugin: fakePlugin{id: "ok", priority: 10}, suffix: "-ok"})

	out := r.RunFilterStream(ctx, "chunk")
	if out != "chunk-ok" {
		t.Fatalf("expected the surviving filter to still apply, got %q", out)
	}
}
