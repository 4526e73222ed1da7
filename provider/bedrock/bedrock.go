// Package bedrock adapts AWS Bedrock's Converse streaming API to
// llm.Provider. Grounded on the teacher's
// internal/agent/providers/bedrock.go BedrockProvider: same
// ConverseStream/ContentBlockStart/Delta/Stop event shape, same AWS
// credential-chain construction, same throttling-aware retry classifier.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"golang.org/x/time/rate"

	"github.com/cascadialabs/turnengine/internal/events"
	"github.com/cascadialabs/turnengine/internal/llm"
	"github.com/cascadialabs/turnengine/internal/providerutil"
)

// Config configures Provider.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	DefaultModel    string
	MaxTokens       int
	MaxRetries      int
	RetryDelay      time.Duration

	// RequestsPerMinute/Burst throttle outbound calls to this provider.
	// Zero disables throttling.
	RequestsPerMinute int
	Burst             int
}

const defaultRegion = "us-east-1"
const defaultModel = "anthropic.claude-3-sonnet-20240229-v1:0"

// Provider implements llm.Provider against AWS Bedrock's Converse API.
type Provider struct {
	client       *bedrockruntime.Client
	retrier      providerutil.Retrier
	limiter      *rate.Limiter
	defaultModel string
	maxTokens    int
}

// New builds a Provider, loading AWS credentials from the explicit
// key/secret/session-token fields when given, or from the default
// credential chain (environment, shared config, IAM role) otherwise.
func New(ctx context.Context, config Config) (*Provider, error) {
	if config.Region == "" {
		config.Region = defaultRegion
	}
	if config.DefaultModel == "" {
		config.DefaultModel = defaultModel
	}

	var awsCfg aws.Config
	var err error
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		awsCfg, err = awsconfigLoad(ctx, config.Region, credentials.NewStaticCredentialsProvider(
			config.AccessKeyID, config.SecretAccessKey, config.SessionToken,
		))
	} else {
		awsCfg, err = awsconfigLoad(ctx, config.Region, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to load AWS config: %w", err)
	}

	return &Provider{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		retrier:      providerutil.NewRetrier(config.MaxRetries, config.RetryDelay),
		limiter:      providerutil.NewLimiter(config.RequestsPerMinute, config.Burst),
		defaultModel: config.DefaultModel,
		maxTokens:    config.MaxTokens,
	}, nil
}

func awsconfigLoad(ctx context.Context, region string, creds aws.CredentialsProvider) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if creds != nil {
		opts = append(opts, config.WithCredentialsProvider(creds))
	}
	return config.LoadDefaultConfig(ctx, opts...)
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return "bedrock" }

// Call implements llm.Provider.
func (p *Provider) Call(ctx context.Context, req llm.CompletionRequest) (<-chan events.Event, error) {
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("bedrock: convert messages: %w", err)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("bedrock: rate limit wait: %w", err)
	}

	converseReq := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(p.defaultModel),
		Messages: messages,
	}
	if system := systemPrompt(req.Messages); system != "" {
		converseReq.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: system}}
	}
	maxTokens := p.maxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	converseReq.InferenceConfig = &types.InferenceConfiguration{
		MaxTokens: aws.Int32(int32(min(maxTokens, math.MaxInt32))),
	}
	if len(req.Tools) > 0 {
		toolConfig, err := convertTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("bedrock: convert tools: %w", err)
		}
		converseReq.ToolConfig = toolConfig
	}

	var stream *bedrockruntime.ConverseStreamOutput
	err = p.retrier.Do(ctx, isRetryableError, func(int) error {
		s, err := p.client.ConverseStream(ctx, converseReq)
		if err != nil {
			return err
		}
		stream = s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock: %w", err)
	}

	out := make(chan events.Event, 8)
	go func() {
		defer close(out)
		processStream(ctx, stream, out)
	}()
	return out, nil
}

func systemPrompt(messages []llm.Message) string {
	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			return msg.Content
		}
	}
	return ""
}

func convertMessages(messages []llm.Message) ([]types.Message, error) {
	result := make([]types.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			continue
		}

		var content []types.ContentBlock
		if msg.Content != "" {
			content = append(content, &types.ContentBlockMemberText{Value: msg.Content})
		}
		if msg.Role == llm.RoleTool {
			content = append(content, &types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: aws.String(msg.ToolCallID),
					Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: msg.Content}},
				},
			})
		}
		for _, call := range msg.ToolCalls {
			content = append(content, &types.ContentBlockMemberToolUse{
				Value: types.ToolUseBlock{
					ToolUseId: aws.String(call.ID),
					Name:      aws.String(call.Function.Name),
					Input:     document.NewLazyDocument(call.Function.Arguments),
				},
			})
		}
		if len(content) == 0 {
			continue
		}

		role := types.ConversationRoleUser
		if msg.Role == llm.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		result = append(result, types.Message{Role: role, Content: content})
	}
	return result, nil
}

func convertTools(tools []llm.ToolDefinition) (*types.ToolConfiguration, error) {
	specs := make([]types.Tool, len(tools))
	for i, tool := range tools {
		var schema any
		if err := json.Unmarshal(tool.Parameters, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.ID, err)
		}
		specs[i] = &types.ToolMemberToolSpec{
			Value: types.ToolSpec{
				Name:        aws.String(tool.ID),
				Description: aws.String(tool.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			},
		}
	}
	return &types.ToolConfiguration{Tools: specs}, nil
}

// processStream drains the Converse event stream, assembling tool-call
// input fragments and translating each event into the engine's event
// taxonomy. Grounded on the teacher's processStream select-loop shape.
func processStream(ctx context.Context, stream *bedrockruntime.ConverseStreamOutput, out chan<- events.Event) {
	eventStream := stream.GetStream()
	defer eventStream.Close()

	var textIndex int
	var contentBuilder strings.Builder
	var pendingCalls []events.ToolCall
	var currentID, currentName string
	var inputBuilder strings.Builder
	finish := events.FinishStop

	finalizeCall := func() {
		if currentID == "" {
			return
		}
		var args map[string]any
		_ = json.Unmarshal([]byte(inputBuilder.String()), &args)
		pendingCalls = append(pendingCalls, events.ToolCall{
			ID: currentID, Type: "function",
			Function: events.ToolCallFunction{Name: currentName, Arguments: args},
		})
		currentID, currentName = "", ""
		inputBuilder.Reset()
	}

	emit := func() {
		if len(pendingCalls) > 0 {
			finish = events.FinishToolCalls
		}
		out <- events.NewContentComplete(contentBuilder.String(), finish, pendingCalls)
	}

	eventChan := eventStream.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-eventChan:
			if !ok {
				// The channel closing isn't itself success: check for a
				// stream-level error the same way the channel-closed branch
				// does, mirroring the teacher's eventStream.Err() check
				// right after this same "!ok" branch.
				if err := eventStream.Err(); err != nil {
					out <- events.NewStreamError(err)
					return
				}
				finalizeCall()
				emit()
				return
			}
			switch ev := event.(type) {
			case *types.ConverseStreamOutputMemberContentBlockStart:
				if toolUse, ok := ev.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
					currentID = aws.ToString(toolUse.Value.ToolUseId)
					currentName = aws.ToString(toolUse.Value.Name)
					inputBuilder.Reset()
				}
			case *types.ConverseStreamOutputMemberContentBlockDelta:
				switch delta := ev.Value.Delta.(type) {
				case *types.ContentBlockDeltaMemberText:
					if delta.Value != "" {
						contentBuilder.WriteString(delta.Value)
						out <- events.NewContentDelta(textIndex, delta.Value)
						textIndex++
					}
				case *types.ContentBlockDeltaMemberToolUse:
					if delta.Value.Input != nil {
						inputBuilder.WriteString(*delta.Value.Input)
					}
				}
			case *types.ConverseStreamOutputMemberContentBlockStop:
				finalizeCall()
			case *types.ConverseStreamOutputMemberMessageStop:
				emit()
				return
			}
		}
	}
}

// isRetryableError mirrors the teacher's classifier: AWS throttling
// exception names first, then the same generic substring patterns shared
// with the other provider adapters.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{"ThrottlingException", "TooManyRequestsException", "ServiceUnavailableException"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	lower := strings.ToLower(msg)
	for _, marker := range []string{"rate limit", "429", "500", "502", "503", "504", "timeout", "deadline exceeded"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
