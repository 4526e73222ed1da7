package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cascadialabs/turnengine/internal/agent"
	"github.com/cascadialabs/turnengine/internal/ids"
	"github.com/cascadialabs/turnengine/internal/llm"
	"github.com/cascadialabs/turnengine/internal/runner"
)

// buildRunCmd creates the "run" command: it drives one turn of the engine
// against a user message read from --message or stdin, and prints each
// emitted event as a JSON line on stdout.
func buildRunCmd() *cobra.Command {
	var (
		configPath string
		contextID  string
		message    string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one turn of the engine against a message",
		Long: `Run drives a single StartTurn call: it loads the configured provider,
assembles an Agent, sends the given message (or stdin if --message is
omitted), and streams the resulting events as JSON lines on stdout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(debug)
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return err
			}

			msg := message
			if msg == "" {
				data, err := io.ReadAll(bufio.NewReader(cmd.InOrStdin()))
				if err != nil {
					return fmt.Errorf("read message from stdin: %w", err)
				}
				msg = strings.TrimSpace(string(data))
			}
			if msg == "" {
				return fmt.Errorf("no message provided: pass --message or pipe one on stdin")
			}

			ctx := cmd.Context()
			provider, err := buildProvider(ctx, cfg.Provider)
			if err != nil {
				return fmt.Errorf("build provider: %w", err)
			}
			tracer, shutdownTracer := buildTracer(cfg.Tracing)
			defer shutdownTracer(ctx)

			if contextID == "" {
				contextID = ids.New()
			}

			a := agent.New(agent.Config{
				ContextID:   contextID,
				MaxMessages: cfg.MaxMessages,
				AutoCompact: cfg.AutoCompact,
				LoopConfig: runner.LoopConfig{
					MaxIterations: cfg.Loop.MaxIterations,
					MaxToolCalls:  cfg.Loop.MaxToolCalls,
					MaxWallTime:   cfg.Loop.MaxWallTime,
				},
				Provider: llm.Source{Provider: provider},
				Logger:   logger,
				Tracer:   tracer,
			})
			if err := a.Initialize(ctx); err != nil {
				return fmt.Errorf("initialize agent: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for event := range a.StartTurn(ctx, msg, agent.StartTurnOptions{}) {
				if err := enc.Encode(event); err != nil {
					return fmt.Errorf("encode event: %w", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", DefaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().StringVar(&contextID, "context", "", "Context ID to run the turn in (generated if omitted)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "User message (reads stdin if omitted)")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}
