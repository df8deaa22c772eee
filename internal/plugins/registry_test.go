package plugins

import (
	"context"
	"testing"
)

type fakePlugin struct {
	id       string
	priority int
}

func (f fakePlugin) ID() string   { return f.id }
func (f fakePlugin) Priority() int { return f.priority }

func TestActiveResolvesHighestPriority(t *testing.T) {
	r := NewRegistry(nil)
	ctx := context.Background()

	if err := r.Register(ctx, RoleAuth, fakePlugin{id: "default-auth", priority: 0}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(ctx, RoleAuth, fakePlugin{id: "override-auth", priority: 10}); err != nil {
		t.Fatalf("register: %v", err)
	}

	active, ok := r.Active(RoleAuth)
	if !ok {
		t.Fatal("expected an active auth plugin")
	}
	if active.ID() != "override-auth" {
		t.Errorf("expected override-auth to win, got %s", active.ID())
	}
}

func TestRegisterDuplicateIDRejected(t *testing.T) {
	r := NewRegistry(nil)
	ctx := context.Background()

	if err := r.Register(ctx, RoleTool, fakePlugin{id: "search", priority: 0}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(ctx, RoleTool, fakePlugin{id: "search", priority: 1}); err == nil {
		t.Fatal("expected duplicate id to be rejected")
	}
}

func TestPreCallOrderHighestFirst(t *testing.T) {
	r := NewRegistry(nil)
	ctx := context.Background()
	_ = r.Register(ctx, RoleFunction, fakePlugin{id: "low", priority: 1})
	_ = r.Register(ctx, RoleFunction, fakePlugin{id: "high", priority: 10})
	_ = r.Register(ctx, RoleFunction, fakePlugin{id: "mid", priority: 5})

	order := r.PreCallOrder(RoleFunction)
	ids := make([]string, len(order))
	for i, p := range order {
		ids[i] = p.ID()
	}
	want := []string{"high", "mid", "low"}
	for i, id := range ids {
		if id != want[i] {
			t.Fatalf("pre_call order = %v, want %v", ids, want)
		}
	}
}

func TestLowestFirstOrder(t *testing.T) {
	r := NewRegistry(nil)
	ctx := context.Background()
	_ = r.Register(ctx, RoleFunction, fakePlugin{id: "low", priority: 1})
	_ = r.Register(ctx, RoleFunction, fakePlugin{id: "high", priority: 10})

	order := r.LowestFirstOrder(RoleFunction)
	if order[0].ID() != "low" || order[1].ID() != "high" {
		t.Errorf("expected lowest-first order, got %v, %v", order[0].ID(), order[1].ID())
	}
}

type fakeShutdownPlugin struct {
	fakePlugin
	shutdownCalled *bool
}

func (f fakeShutdownPlugin) Shutdown(ctx context.Context) error {
	*f.shutdownCalled = true
	return nil
}

func TestShutdownAwaitsAllPlugins(t *testing.T) {
	r := NewRegistry(nil)
	ctx := context.Background()
	called := false
	_ = r.Register(ctx, RoleModel, fakeShutdownPlugin{fakePlugin: fakePlugin{id: "model-1"}, shutdownCalled: &called})

	if err := r.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !called {
		t.Error("expected Shutdown to be called on the registered plugin")
	}
}

type preCallPlugin struct {
	fakePlugin
	mutate func(*CallParams)
}

func (p preCallPlugin) PreCall(ctx context.Context, params *CallParams) error {
	p.mutate(params)
	return nil
}

func TestRunPreCallMutatesParamsInOrder(t *testing.T) {
	r := NewRegistry(nil)
	ctx := context.Background()
	_ = r.Register(ctx, RoleFunction, preCallPlugin{
		fakePlugin: fakePlugin{id: "low-prio", priority: 1},
		mutate:     func(p *CallParams) { p.Model = "low-prio-model" },
	})
	_ = r.Register(ctx, RoleFunction, preCallPlugin{
		fakePlugin: fakePlugin{id: "high-prio", priority: 10},
		mutate:     func(p *CallParams) { p.Model = "high-prio-model" },
	})

	params := &CallParams{Model: "default"}
	r.RunPreCall(ctx, params)
	if params.Model != "low-prio-model" {
		t.Errorf("expected the last-applied (lowest priority) mutation to win, got %q", params.Model)
	}
}

type filterPlugin struct {
	fakePlugin
	suffix string
}

func (p filterPlugin) FilterStream(ctx context.Context, chunk string) (string, error) {
	return chunk + p.suffix, nil
}

func TestRunFilterStreamChains(t *testing.T) {
	r := NewRegistry(nil)
	ctx := context.Background()
	_ = r.Register(ctx, RoleFunction, filterPlugin{fakePlugin: fakePlugin{id: "inner", priority: 1}, suffix: "-inner"})
	_ = r.Register(ctx, RoleFunction, filterPlugin{fakePlugin: fakePlugin{id: "outer", priority: 10}, suffix: "-outer"})

	out := r.RunFilterStream(ctx, "chunk")
	if out != "chunk-inner-outer" {
		t.Errorf("expected lowest-priority-first chaining, got %q", out)
	}
}
