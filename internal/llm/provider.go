package llm

import (
	"context"

	"github.com/cascadialabs/turnengine/internal/events"
)

// CompletionRequest is the input to Provider.Call (§6).
type CompletionRequest struct {
	Messages  []Message
	Tools     []ToolDefinition
	Stream    bool
	SessionID string
}

// Provider is the external LLM protocol adapter contract (§6). The concrete
// HTTP/streaming client is out of scope; the engine only depends on this
// interface. The provider MUST emit, in order: zero or more content-delta
// (monotone Index from 0), at most one content-complete (with resolved
// FinishReason and assembled ToolCalls), and MAY emit llm-usage (any
// position) and thought-stream (interleaved with deltas).
type Provider interface {
	// Call issues one LLM completion request and returns a channel of raw
	// events.Event (not yet stamped with context/task). The channel is
	// closed when the call completes or the context is canceled.
	Call(ctx context.Context, req CompletionRequest) (<-chan events.Event, error)

	// Name identifies the provider for logging/tracing and API key resolution.
	Name() string
}

// Factory builds a Provider for one iteration, given the aggregated
// system-prompt metadata (§4.5 step 3). Lets prompts advertise a model or
// parameters that steer provider selection/config.
type Factory func(ctx context.Context, metadata map[string]any) (Provider, error)

// Source is either a fixed Provider or a per-iteration Factory.
type Source struct {
	Provider Provider
	Factory  Factory
}

// Resolve returns the Provider to use for one iteration.
func (s Source) Resolve(ctx context.Context, metadata map[string]any) (Provider, error) {
	if s.Factory != nil {
		return s.Factory(ctx, metadata)
	}
	return s.Provider, nil
}
