package pluginapi

import (
	"context"
	"sort"
	"sync"

	"github.com/cascadialabs/turnengine/internal/llm"
)

// GatherSystemPrompts queries every SystemPromptPlugin in plugins in
// parallel, flattens the results, and returns the "before" and "after" lists
// sorted by (PositionSequence ascending) within each list (§4.5 step 1).
func GatherSystemPrompts(ctx context.Context, plugins []Plugin, ictx InvocationContext) (before, after []SystemPrompt, err error) {
	type result struct {
		prompts []SystemPrompt
		err     error
	}
	results := make([]result, len(plugins))
	var wg sync.WaitGroup
	for i, p := range plugins {
		sp, ok := AsSystemPromptPlugin(p)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(i int, sp SystemPromptPlugin) {
			defer wg.Done()
			prompts, perr := sp.GenerateSystemPrompts(ctx, ictx)
			results[i] = result{prompts: prompts, err: perr}
		}(i, sp)
	}
	wg.Wait()

	for _, r := range results {
		if r.err != nil {
			return nil, nil, r.err
		}
		for _, sp := range r.prompts {
			if sp.Position == PositionAfter {
				after = append(after, sp)
			} else {
				before = append(before, sp)
			}
		}
	}

	sort.SliceStable(before, func(i, j int) bool { return before[i].PositionSequence < before[j].PositionSequence })
	sort.SliceStable(after, func(i, j int) bool { return after[i].PositionSequence < after[j].PositionSequence })
	return before, after, nil
}

// GatherTools queries every ToolPlugin in plugins in parallel and
// concatenates their tool definitions. Duplicate tool ids are NOT filtered
// (§4.5 step 2) — that is the integrator's responsibility.
func GatherTools(ctx context.Context, plugins []Plugin) ([]llm.ToolDefinition, error) {
	type result struct {
		tools []llm.ToolDefinition
		err   error
	}
	results := make([]result, len(plugins))
	var wg sync.WaitGroup
	for i, p := range plugins {
		tp, ok := AsToolPlugin(p)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(i int, tp ToolPlugin) {
			defer wg.Done()
			tools, terr := tp.ListTools(ctx)
			results[i] = result{tools: tools, err: terr}
		}(i, tp)
	}
	wg.Wait()

	var all []llm.ToolDefinition
	for _, r := range results {
		if r.err != nil {
			return nil, r.err
		}
		all = append(all, r.tools...)
	}
	return all, nil
}

// MergeMetadata merges the Metadata of every prompt in order, last-write-wins
// by declaration order (§4.5 step 3).
func MergeMetadata(prompts ...[]SystemPrompt) map[string]any {
	merged := make(map[string]any)
	for _, list := range prompts {
		for _, p := range list {
			for k, v := range p.Metadata {
				merged[k] = v
			}
		}
	}
	return merged
}

// FindTool queries ToolPlugins in order and returns the first plugin whose
// GetTool resolves a definition for id (§4.4 step 2, §9 Open Question:
// first match in plugin order wins on duplicate ids).
func FindTool(ctx context.Context, plugins []Plugin, id string) (ToolPlugin, *llm.ToolDefinition, bool) {
	for _, p := range plugins {
		tp, ok := AsToolPlugin(p)
		if !ok {
			continue
		}
		def, found, err := tp.GetTool(ctx, id)
		if err != nil || !found || def == nil {
			continue
		}
		return tp, def, true
	}
	return nil, nil, false
}
