// Package openai adapts the Chat Completions streaming API to llm.Provider.
// Grounded on the teacher's internal/agent/providers/openai.go
// OpenAIProvider: sashabaranov/go-openai streaming client, per-index tool
// call assembly across delta chunks, and substring-based retryable-error
// classification (the OpenAI SDK doesn't expose a typed status code the way
// the Anthropic SDK does).
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/cascadialabs/turnengine/internal/events"
	"github.com/cascadialabs/turnengine/internal/llm"
	"github.com/cascadialabs/turnengine/internal/providerutil"
)

// Config configures Provider. APIKey is required.
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

const defaultModel = "gpt-4o"

// Provider implements llm.Provider against OpenAI's Chat Completions API.
type Provider struct {
	client       *openai.Client
	retrier      providerutil.Retrier
	limiter      *rate.Limiter
	defaultModel string
	maxTokens    int
}

// New builds a Provider. Returns an error if config.APIKey is empty.
func New(config Config) (*Provider, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if config.DefaultModel == "" {
		config.DefaultModel = defaultModel
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &Provider{
		client:       openai.NewClientWithConfig(clientConfig),
		retrier:      providerutil.NewRetrier(config.MaxRetries, config.RetryDelay),
		limiter:      providerutil.NewLimiter(config.RequestsPerMinute, config.Burst),
		defaultModel: config.DefaultModel,
		maxTokens:    config.MaxTokens,
	}, nil
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return "openai" }

// Call implements llm.Provider.
func (p *Provider) Call(ctx context.Context, req llm.CompletionRequest) (<-chan events.Event, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    p.defaultModel,
		Messages: convertMessages(req.Messages),
		Stream:   true,
	}
	if p.maxTokens > 0 {
		chatReq.MaxTokens = p.maxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertTools(req.Tools)
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("openai: rate limit wait: %w", err)
	}

	var stream *openai.ChatCompletionStream
	err := p.retrier.Do(ctx, isRetryableError, func(int) error {
		s, err := p.client.CreateChatCompletionStream(ctx, chatReq)
		if err != nil {
			return err
		}
		stream = s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	out := make(chan events.Event, 8)
	go func() {
		defer close(out)
		processStream(ctx, stream, out)
	}()
	return out, nil
}

func convertMessages(messages []llm.Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleTool:
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
			})
		case llm.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: msg.Content}
			for _, call := range msg.ToolCalls {
				args, _ := json.Marshal(call.Function.Arguments)
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Function.Name,
						Arguments: string(args),
					},
				})
			}
			result = append(result, oaiMsg)
		case llm.RoleSystem:
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: msg.Content})
		default:
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.Content})
		}
	}
	return result
}

func convertTools(tools []llm.ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		var schema map[string]any
		if err := json.Unmarshal(tool.Parameters, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.ID,
				Description: tool.Description,
				Parameters:  schema,
			},
		}
	}
	return result
}

// partialToolCall assembles one tool call across its streamed delta chunks,
// keyed by the chunk's array index (§ teacher's toolCalls map[int]*ToolCall).
type partialToolCall struct {
	id, name string
	args     strings.Builder
}

// processStream drains the OpenAI chat completion stream, emitting a
// content-delta per text fragment and a single content-complete once the
// stream ends or the finish reason is "tool_calls".
func processStream(ctx context.Context, stream *openai.ChatCompletionStream, out chan<- events.Event) {
	defer stream.Close()

	pending := make(map[int]*partialToolCall)
	var contentBuilder strings.Builder
	var index int
	var promptTokens, completionTokens int

	emit := func(reason events.FinishReason) {
		calls := make([]events.ToolCall, 0, len(pending))
		for _, tc := range pending {
			if tc.id == "" || tc.name == "" {
				continue
			}
			var args map[string]any
			_ = json.Unmarshal([]byte(tc.args.String()), &args)
			calls = append(calls, events.ToolCall{
				ID: tc.id, Type: "function",
				Function: events.ToolCallFunction{Name: tc.name, Arguments: args},
			})
		}
		if promptTokens > 0 || completionTokens > 0 {
			out <- events.NewLLMUsage(promptTokens, completionTokens, promptTokens+completionTokens)
		}
		out <- events.NewContentComplete(contentBuilder.String(), reason, calls)
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				emit(events.FinishStop)
			} else {
				out <- events.NewStreamError(err)
			}
			return
		}
		if response.Usage != nil {
			promptTokens = response.Usage.PromptTokens
			completionTokens = response.Usage.CompletionTokens
		}
		if len(response.Choices) == 0 {
			continue
		}

		delta := response.Choices[0].Delta
		if delta.Content != "" {
			contentBuilder.WriteString(delta.Content)
			out <- events.NewContentDelta(index, delta.Content)
			index++
		}

		for _, tc := range delta.ToolCalls {
			i := 0
			if tc.Index != nil {
				i = *tc.Index
			}
			if pending[i] == nil {
				pending[i] = &partialToolCall{}
			}
			if tc.ID != "" {
				pending[i].id = tc.ID
			}
			if tc.Function.Name != "" {
				pending[i].name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				pending[i].args.WriteString(tc.Function.Arguments)
			}
		}

		if response.Choices[0].FinishReason == openai.FinishReasonToolCalls {
			emit(events.FinishToolCalls)
			return
		}
	}
}

// isRetryableError mirrors the teacher's substring-based classification:
// the go-openai client doesn't expose a typed status code the way the
// Anthropic SDK does, so rate-limit/server/timeout errors are recognized by
// their error-string content instead.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"rate limit", "429", "500", "502", "503", "504", "timeout", "deadline exceeded"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
