package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/fielddesk/chatcore/internal/plugins"
)

// BackgroundTasks is the orchestrator's registry of fire-and-forget
// work launched by post_call middleware. Tasks are cancelled and
// awaited to completion on Shutdown; a client disconnecting from its
// own request never cancels a task it launched.
type BackgroundTasks struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    plugins.Logger

	mu      sync.Mutex
	inFlight int
}

// NewBackgroundTasks constructs a registry whose tasks are derived
// from parent but survive the cancellation of any single request.
func NewBackgroundTasks(parent context.Context, log plugins.Logger) *BackgroundTasks {
	if log == nil {
		log = noopLogger{}
	}
	ctx, cancel := context.WithCancel(parent)
	return &BackgroundTasks{ctx: ctx, cancel: cancel, log: log}
}

// Launch starts fn in its own goroutine under the registry's own
// context, independent of the request that triggered it.
func (b *BackgroundTasks) Launch(name string, fn func(ctx context.Context)) {
	b.mu.Lock()
	b.inFlight++
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			b.mu.Lock()
			b.inFlight--
			b.mu.Unlock()
			if r := recover(); r != nil {
				b.log.Warn(b.ctx, "background task panicked", "task", name, "panic", fmt.Sprint(r))
			}
		}()
		fn(b.ctx)
	}()
}

// InFlight reports how many launched tasks have not yet returned.
func (b *BackgroundTasks) InFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inFlight
}

// Shutdown signals every running task to stop and waits for them all
// to return.
func (b *BackgroundTasks) Shutdown() {
	b.cancel()
	b.wg.Wait()
}

type noopLogger struct{}

func (noopLogger) Info(context.Context, string, ...any) {}
func (noopLogger) Warn(context.Context, string, ...any) {}
