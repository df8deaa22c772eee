package plugins

import "context"

// CallParams is the mutable cell middleware mutates in place during
// pre_call. The orchestrator constructs one per turn, runs every
// function plugin's PreCall (highest priority first) against it, then
// reads the post-middleware values to drive the model call.
type CallParams struct {
	Model        string
	SystemPrompt string
	Messages     []map[string]interface{}
	ToolNames    []string
	Metadata     map[string]interface{}
}

// PreCaller is the pre_call hook: inspects or mutates CallParams
// before the model is invoked. Runs highest priority first.
type PreCaller interface {
	PreCall(ctx context.Context, params *CallParams) error
}

// StreamFilterer is the filter_stream hook: transforms a chunk of
// model output before it reaches the client. Runs lowest priority
// first, so the plugin registered with the lowest priority is closest
// to the raw model stream and higher-priority plugins layer outwards.
type StreamFilterer interface {
	FilterStream(ctx context.Context, chunk string) (string, error)
}

// PostCallResult is what a post_call hook observes once a turn
// completes.
type PostCallResult struct {
	UserID            string
	ThreadID          string
	TurnCorrelationID string
	FinalContent      string
	Err               error
}

// PostCaller is the post_call hook: observes a completed turn, often
// to launch a background task. Runs lowest priority first, mirroring
// filter_stream's outward-layering order.
type PostCaller interface {
	PostCall(ctx context.Context, result PostCallResult) error
}

// RunPreCall runs every function plugin's PreCall against params,
// highest priority first. A hook's failure is logged and does not
// abort the turn or skip the remaining hooks — per the propagation
// policy, only the model call and user-message persistence are fatal
// to a turn.
func (r *Registry) RunPreCall(ctx context.Context, params *CallParams) {
	for _, p := range r.PreCallOrder(RoleFunction) {
		hook, ok := p.(PreCaller)
		if !ok {
			continue
		}
		if err := hook.PreCall(ctx, params); err != nil {
			r.log.Warn(ctx, "pre_call middleware failed", "plugin", p.ID(), "error", err)
		}
	}
}

// RunFilterStream runs every function plugin's FilterStream against
// chunk, lowest priority first, threading the (possibly transformed)
// chunk through each in turn. A filter's failure is logged and the
// chunk passes through unchanged to the next filter, rather than
// aborting the chain.
func (r *Registry) RunFilterStream(ctx context.Context, chunk string) string {
	for _, p := range r.LowestFirstOrder(RoleFunction) {
		hook, ok := p.(StreamFilterer)
		if !ok {
			continue
		}
		out, err := hook.FilterStream(ctx, chunk)
		if err != nil {
			r.log.Warn(ctx, "filter_stream middleware failed", "plugin", p.ID(), "error", err)
			continue
		}
		chunk = out
	}
	return chunk
}

// RunPostCall runs every function plugin's PostCall, lowest priority
// first. Failures are logged and discarded; post_call hooks are
// typically where background tasks are launched, and one hook's
// failure must not prevent the others from observing the turn.
func (r *Registry) RunPostCall(ctx context.Context, result PostCallResult) {
	for _, p := range r.LowestFirstOrder(RoleFunction) {
		hook, ok := p.(PostCaller)
		if !ok {
			continue
		}
		if err := hook.PostCall(ctx, result); err != nil {
			r.log.Warn(ctx, "post_call middleware failed", "plugin", p.ID(), "error", err)
		}
	}
}
