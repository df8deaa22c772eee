package tools

import (
	"context"
	"encoding/json"
)

// Result is the outcome of one tool invocation.
type Result struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// errorEnvelope is the structured shape an execution error is reported
// as — never thrown past the adapter, always surfaced as the final
// value.
type errorEnvelope struct {
	Error     string          `json:"error"`
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Invocation is the R2R shape: a lazy stream of zero or more progress
// values followed by exactly one final value. Progress is closed once
// the final value is available.
type Invocation struct {
	progress <-chan string
	final    <-chan Result
}

// IterateProgress returns the progress stream. It is closed once the
// invocation has a final value.
func (inv *Invocation) IterateProgress() <-chan string {
	return inv.progress
}

// FinalValue blocks until the invocation's final value is available or
// ctx is canceled.
func (inv *Invocation) FinalValue(ctx context.Context) (Result, error) {
	select {
	case r, ok := <-inv.final:
		if !ok {
			return Result{}, context.Canceled
		}
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// FromFunc adapts a plain function (0 progress items, 1 final value)
// into an Invocation.
func FromFunc(ctx context.Context, toolName string, arguments json.RawMessage, fn func(ctx context.Context) (Result, error)) *Invocation {
	progress := make(chan string)
	final := make(chan Result, 1)
	close(progress)

	go func() {
		defer close(final)
		r, err := fn(ctx)
		if err != nil {
			final <- errToResult(toolName, arguments, err)
			return
		}
		final <- r
	}()

	return &Invocation{progress: progress, final: final}
}

// FromGenerator adapts a progress-reporting function into an
// Invocation. fn is handed a channel to emit progress values on; it
// must not close it — FromGenerator does, once fn returns.
func FromGenerator(ctx context.Context, toolName string, arguments json.RawMessage, fn func(ctx context.Context, progress chan<- string) (Result, error)) *Invocation {
	progressIn := make(chan string)
	progressOut := make(chan string)
	final := make(chan Result, 1)

	go func() {
		defer close(progressOut)
		for {
			select {
			case v, ok := <-progressIn:
				if !ok {
					return
				}
				select {
				case progressOut <- v:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		defer close(final)
		defer close(progressIn)
		r, err := fn(ctx, progressIn)
		if err != nil {
			final <- errToResult(toolName, arguments, err)
			return
		}
		final <- r
	}()

	return &Invocation{progress: progressOut, final: final}
}

func errToResult(toolName string, arguments json.RawMessage, err error) Result {
	envelope := errorEnvelope{Error: err.Error(), Tool: toolName, Arguments: arguments}
	b, marshalErr := json.Marshal(envelope)
	if marshalErr != nil {
		b = []byte(`{"error":"` + err.Error() + `"}`)
	}
	return Result{Content: string(b), IsError: true}
}
