// Package anthropic adapts Claude's Messages streaming API to llm.Provider.
// Grounded on the teacher's internal/agent/providers/anthropic.go
// AnthropicProvider: same SDK, same retry-then-stream shape, same
// content_block_start/delta/stop state machine for assembling tool calls
// out of streamed JSON fragments.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"golang.org/x/time/rate"

	"github.com/cascadialabs/turnengine/internal/events"
	"github.com/cascadialabs/turnengine/internal/llm"
	"github.com/cascadialabs/turnengine/internal/providerutil"
)

// Config configures Provider. APIKey is the only required field.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxTokens    int
	MaxRetries   int
	RetryDelay   time.Duration

	// RequestsPerMinute/Burst throttle outbound calls to this provider.
	// Zero disables throttling.
	RequestsPerMinute int
	Burst             int
}

const defaultModel = "claude-sonnet-4-20250514"
const defaultMaxTokens = 4096

// Provider implements llm.Provider against the Anthropic Messages API.
type Provider struct {
	client       anthropic.Client
	retrier      providerutil.Retrier
	limiter      *rate.Limiter
	defaultModel string
	maxTokens    int
}

// New builds a Provider. Returns an error if config.APIKey is empty.
func New(config Config) (*Provider, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.DefaultModel == "" {
		config.DefaultModel = defaultModel
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = defaultMaxTokens
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &Provider{
		client:       anthropic.NewClient(opts...),
		retrier:      providerutil.NewRetrier(config.MaxRetries, config.RetryDelay),
		limiter:      providerutil.NewLimiter(config.RequestsPerMinute, config.Burst),
		defaultModel: config.DefaultModel,
		maxTokens:    config.MaxTokens,
	}, nil
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return "anthropic" }

// Call implements llm.Provider: opens a streaming Messages request, retrying
// transient failures before the stream starts, and translates SSE events
// into the engine's tagged-union events.Event stream as they arrive.
func (p *Provider) Call(ctx context.Context, req llm.CompletionRequest) (<-chan events.Event, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("anthropic: rate limit wait: %w", err)
	}

	var stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
	err = p.retrier.Do(ctx, isRetryableError, func(int) error {
		stream = p.client.Messages.NewStreaming(ctx, params)
		return stream.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	out := make(chan events.Event, 8)
	go func() {
		defer close(out)
		processStream(stream, out)
	}()
	return out, nil
}

func (p *Provider) buildParams(req llm.CompletionRequest) (anthropic.MessageNewParams, error) {
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.defaultModel),
		Messages:  messages,
		MaxTokens: int64(p.maxTokens),
	}

	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: convert tools: %w", err)
		}
		params.Tools = tools
	}

	return params, nil
}

// convertMessages maps llm.Message onto Anthropic's content-block message
// shape: tool-role messages become tool_result blocks on a user turn,
// assistant tool calls become tool_use blocks.
func convertMessages(messages []llm.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		if msg.Role == llm.RoleTool {
			content = append(content, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
		} else {
			if msg.Content != "" {
				content = append(content, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				content = append(content, anthropic.NewToolUseBlock(call.ID, call.Function.Arguments, call.Function.Name))
			}
		}

		if msg.Role == llm.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result, nil
}

func convertTools(tools []llm.ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Parameters, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.ID, err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.ID)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.ID)
		}
		toolParam.OfTool.Description = anthropic.String(tool.Description)
		result = append(result, toolParam)
	}
	return result, nil
}

// processStream drains the Anthropic SSE stream, assembling streamed tool
// call JSON fragments and emitting a content-delta per text fragment, one
// content-complete when the message finishes, and an llm-usage when token
// counts are known. Grounded on the teacher's processStream state machine,
// trimmed to the block types the turn engine's event taxonomy needs.
func processStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], out chan<- events.Event) {
	var textIndex int
	var contentBuilder strings.Builder
	var pendingCalls []events.ToolCall
	var currentToolID, currentToolName string
	var currentToolInput strings.Builder
	var inputTokens, outputTokens int
	finish := events.FinishStop

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			inputTokens = int(ms.Message.Usage.InputTokens)

		case "content_block_start":
			contentBlock := event.AsContentBlockStart().ContentBlock
			if contentBlock.Type == "tool_use" {
				toolUse := contentBlock.AsToolUse()
				currentToolID = toolUse.ID
				currentToolName = toolUse.Name
				currentToolInput.Reset()
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					contentBuilder.WriteString(delta.Text)
					out <- events.NewContentDelta(textIndex, delta.Text)
					textIndex++
				}
			case "input_json_delta":
				currentToolInput.WriteString(delta.PartialJSON)
			}

		case "content_block_stop":
			if currentToolID != "" {
				var args map[string]any
				_ = json.Unmarshal([]byte(currentToolInput.String()), &args)
				pendingCalls = append(pendingCalls, events.ToolCall{
					ID:   currentToolID,
					Type: "function",
					Function: events.ToolCallFunction{
						Name:      currentToolName,
						Arguments: args,
					},
				})
				currentToolID, currentToolName = "", ""
			}

		case "message_delta":
			messageDelta := event.AsMessageDelta()
			if messageDelta.Usage.OutputTokens > 0 {
				outputTokens = int(messageDelta.Usage.OutputTokens)
			}
			if messageDelta.Delta.StopReason == "tool_use" {
				finish = events.FinishToolCalls
			}

		case "message_stop":
			// Nothing to extract; finish reason/usage already captured above.
		}
	}

	// A mid-stream transport/API failure ends stream.Next()'s loop the same
	// way a clean finish does, so the error must be checked explicitly here
	// (mirrors the teacher's processStream checking err right after the same
	// loop) — otherwise a truncated response would be reported as success.
	if err := stream.Err(); err != nil {
		out <- events.NewStreamError(err)
		return
	}

	if inputTokens > 0 || outputTokens > 0 {
		out <- events.NewLLMUsage(inputTokens, outputTokens, inputTokens+outputTokens)
	}
	if len(pendingCalls) > 0 && finish != events.FinishToolCalls {
		finish = events.FinishToolCalls
	}
	out <- events.NewContentComplete(contentBuilder.String(), finish, pendingCalls)
}

// isRetryableError mirrors the teacher's isRetryableError: API rate limits
// and 5xx server errors are retried, as is context.DeadlineExceeded;
// everything else (bad request, auth failure, other transport errors) is not.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	}
	return errors.Is(err, context.DeadlineExceeded)
}
