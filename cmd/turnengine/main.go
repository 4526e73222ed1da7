// Package main provides the CLI entry point for the turn engine.
//
// turnengine drives the Agent/Loop/Iteration state machine (internal/agent,
// internal/runner) against a configured LLM provider, and supervises the
// idle-state TTL sweep (internal/cleanup). It is explicitly thin: no
// channel adapters, no HTTP/gRPC gateway, no auth — those are Non-goals of
// the engine itself (§1).
//
// # Basic usage
//
//	turnengine run --config turnengine.yaml --message "hello"
//	turnengine cleanup --config turnengine.yaml
//	turnengine serve --config turnengine.yaml
//
// # Environment variables
//
// The engine core reads exactly two environment variables, both outside
// internal/* (handled here in the CLI):
//
//   - LOG_LEVEL: debug|info|warn|error (default info)
//   - APP_ENV: deployment environment tag, attached to every log record as "env"
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := buildRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached,
// separated from main() to facilitate testing, matching the teacher's
// cmd/nexus buildRootCmd split.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "turnengine",
		Short:        "turnengine - LLM turn execution engine",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildRunCmd(), buildCleanupCmd(), buildServeCmd())
	return rootCmd
}

func logLevelFromEnv() string {
	return strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
}
