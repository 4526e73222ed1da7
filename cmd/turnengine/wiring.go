// wiring.go builds the concrete llm.Provider, the observability Tracer,
// and the process logger from a loaded Config. Kept out of the command files so
// run/cleanup/serve each stay a thin RunE body, the way the teacher
// separates command definitions (commands_*.go) from their handlers
// (handlers_*.go).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/cascadialabs/turnengine/internal/llm"
	"github.com/cascadialabs/turnengine/internal/observability"
	"github.com/cascadialabs/turnengine/provider/anthropic"
	"github.com/cascadialabs/turnengine/provider/bedrock"
	"github.com/cascadialabs/turnengine/provider/openai"
)

// buildProvider constructs the configured llm.Provider backend.
func buildProvider(ctx context.Context, cfg ProviderConfig) (llm.Provider, error) {
	switch cfg.Kind {
	case "", "anthropic":
		return anthropic.New(anthropic.Config{
			APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, DefaultModel: cfg.DefaultModel,
			MaxTokens: cfg.MaxTokens, MaxRetries: cfg.MaxRetries, RetryDelay: cfg.RetryDelay,
			RequestsPerMinute: cfg.RequestsPerMinute, Burst: cfg.Burst,
		})
	case "openai":
		return openai.New(openai.Config{
			APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, DefaultModel: cfg.DefaultModel,
			MaxTokens: cfg.MaxTokens, MaxRetries: cfg.MaxRetries, RetryDelay: cfg.RetryDelay,
			RequestsPerMinute: cfg.RequestsPerMinute, Burst: cfg.Burst,
		})
	case "bedrock":
		return bedrock.New(ctx, bedrock.Config{
			Region: cfg.Region, DefaultModel: cfg.DefaultModel,
			MaxTokens: cfg.MaxTokens, MaxRetries: cfg.MaxRetries, RetryDelay: cfg.RetryDelay,
			RequestsPerMinute: cfg.RequestsPerMinute, Burst: cfg.Burst,
		})
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Kind)
	}
}

// buildTracer constructs a Tracer from the configured endpoint, or a no-op
// tracer (and no-op shutdown) when tracing is unconfigured.
func buildTracer(cfg TracingConfig) (*observability.Tracer, func(context.Context) error) {
	return observability.NewTracer(observability.TraceConfig{
		ServiceName:  "turnengine",
		Endpoint:     cfg.Endpoint,
		SamplingRate: cfg.SamplingRate,
		EnableInsecure: cfg.EnableInsecure,
	})
}

// newLogger builds the process-wide structured logger. --debug always wins;
// otherwise LOG_LEVEL (one of the two environment variables the engine
// allows, per the ambient-stack config rules) selects the level, defaulting
// to info.
func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	switch logLevelFromEnv() {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if debug {
		level = slog.LevelDebug
	}

	attrs := []any{}
	if env := strings.TrimSpace(os.Getenv("APP_ENV")); env != "" {
		attrs = append(attrs, "env", env)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})).With(attrs...)
	slog.SetDefault(logger)
	return logger
}
