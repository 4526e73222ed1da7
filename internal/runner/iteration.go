package runner

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/cascadialabs/turnengine/internal/events"
	"github.com/cascadialabs/turnengine/internal/llm"
	"github.com/cascadialabs/turnengine/internal/observability"
	"github.com/cascadialabs/turnengine/internal/pluginapi"
)

// IterationConfig is the per-iteration input (§4.5).
type IterationConfig struct {
	IterationNumber int
	Provider        llm.Source
	Plugins         []pluginapi.Plugin
	ContextID       string
	TaskID          string
	Logger          *slog.Logger

	// Tracer is optional; when nil no spans are created.
	Tracer *observability.Tracer
}

func (c IterationConfig) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// RunIteration implements runIteration (§4.5). It gathers system prompts and
// tool definitions from plugins, resolves and invokes the provider, then
// classifies each event as it arrives: non-tool-call events are forwarded
// immediately (pass-through), tool-call events are buffered and fanned out
// to RunToolCall only after the provider channel closes. This realizes the
// shareReplay(refCount)+concat([passThrough, toolFanOut]) ordering contract
// (§4.5 steps 5-7) without a physical multicast primitive — see DESIGN.md.
func RunIteration(ctx context.Context, cfg IterationConfig, history []llm.Message) (<-chan events.ContextEvent, error) {
	var iterSpan trace.Span
	if cfg.Tracer != nil {
		ctx, iterSpan = cfg.Tracer.TraceIteration(ctx, cfg.ContextID, cfg.TaskID, cfg.IterationNumber)
	}
	endIterSpan := func() {
		if iterSpan != nil {
			iterSpan.End()
		}
	}

	before, after, err := pluginapi.GatherSystemPrompts(ctx, cfg.Plugins, pluginapi.InvocationContext{ContextID: cfg.ContextID, TaskID: cfg.TaskID})
	if err != nil {
		endIterSpan()
		return nil, err
	}
	tools, err := pluginapi.GatherTools(ctx, cfg.Plugins)
	if err != nil {
		endIterSpan()
		return nil, err
	}
	metadata := pluginapi.MergeMetadata(before, after)

	provider, err := cfg.Provider.Resolve(ctx, metadata)
	if err != nil {
		endIterSpan()
		return nil, err
	}
	if provider == nil {
		endIterSpan()
		return nil, ErrNoProvider
	}

	messages := assembleMessages(before, after, history)

	var llmSpan trace.Span
	if cfg.Tracer != nil {
		ctx, llmSpan = cfg.Tracer.TraceLLMCall(ctx, provider.Name())
	}

	raw, err := provider.Call(ctx, llm.CompletionRequest{Messages: messages, Tools: tools, Stream: true, SessionID: cfg.TaskID})
	if llmSpan != nil {
		if err != nil {
			cfg.Tracer.RecordError(llmSpan, err)
		}
		llmSpan.End()
	}
	if err != nil {
		endIterSpan()
		return nil, err
	}

	out := make(chan events.ContextEvent, 8)
	stamp := func(e events.Event) events.ContextEvent { return events.Stamp(e, cfg.ContextID, cfg.TaskID) }

	go func() {
		defer close(out)
		defer endIterSpan()

		var pendingCalls []events.ToolCall
		for e := range raw {
			if tce, ok := events.AsToolCallEvent(e); ok {
				pendingCalls = append(pendingCalls, tce.Call)
				continue
			}
			if cc, ok := events.AsContentComplete(e); ok && len(cc.ToolCalls) > 0 {
				pendingCalls = append(pendingCalls, cc.ToolCalls...)
			}
			out <- stamp(e)
			if _, ok := events.AsStreamError(e); ok {
				// A mid-stream failure means any tool calls buffered so far
				// came from an incomplete response: don't fan them out, let
				// the loop observe the stream-error event and fail the turn.
				return
			}
		}

		if len(pendingCalls) == 0 {
			return
		}

		subs := make([]<-chan events.ContextEvent, len(pendingCalls))
		for i, call := range pendingCalls {
			rc := ToolRunnerContext{
				ContextID: cfg.ContextID,
				TaskID:    cfg.TaskID,
				Plugins:   cfg.Plugins,
				Logger:    cfg.Logger,
				Invoke:    pluginapi.InvocationContext{ContextID: cfg.ContextID, TaskID: cfg.TaskID},
				Tracer:    cfg.Tracer,
			}
			subs[i] = RunToolCall(ctx, rc, call)
		}
		mergeConcurrent(out, subs)
	}()

	return out, nil
}

// assembleMessages prepends before-prompts as system messages and appends
// after-prompts, around the existing history (§4.5 step 1).
func assembleMessages(before, after []pluginapi.SystemPrompt, history []llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(before)+len(history)+len(after))
	for _, p := range before {
		out = append(out, llm.Message{Role: llm.RoleSystem, Content: p.Content})
	}
	out = append(out, history...)
	for _, p := range after {
		out = append(out, llm.Message{Role: llm.RoleSystem, Content: p.Content})
	}
	return out
}

// mergeConcurrent fans multiple tool substreams into out concurrently:
// intra-tool order is preserved (each sub is drained by exactly one
// goroutine, in arrival order), inter-tool interleaving is allowed (§4.5
// step 6, §5 ordering guarantees).
func mergeConcurrent(out chan<- events.ContextEvent, subs []<-chan events.ContextEvent) {
	var wg sync.WaitGroup
	for _, sub := range subs {
		sub := sub
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := range sub {
				out <- e
			}
		}()
	}
	wg.Wait()
}
