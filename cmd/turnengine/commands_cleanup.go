package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cascadialabs/turnengine/internal/artifacts"
	"github.com/cascadialabs/turnengine/internal/cleanup"
	"github.com/cascadialabs/turnengine/internal/store"
)

// buildCleanupCmd creates the "cleanup" command: it starts the TTL sweep
// service against in-memory stores and runs until interrupted, the same
// lifecycle "serve" gives it, but standalone for operators who want the
// sweep without a running agent process.
func buildCleanupCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Run the idle-state TTL sweep service",
		Long: `Cleanup starts the StateCleanupService, which periodically prunes idle
agent state, message logs, and artifact contexts according to the
configured TTLs and cron schedule. It runs until interrupted (SIGINT/SIGTERM).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(debug)
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return err
			}

			svc, err := cleanup.New(cleanup.Config{
				Schedule:    cfg.Cleanup.Schedule,
				AgentTTL:    cfg.Cleanup.AgentTTL,
				MessageTTL:  cfg.Cleanup.MessageTTL,
				ArtifactTTL: cfg.Cleanup.ArtifactTTL,
				Agents:      store.NewMemoryAgentStore(),
				Messages:    store.NewMemoryMessageStore(),
				Artifacts:   artifacts.NewMemoryStore(logger),
				Logger:      logger,
				Metrics:     cleanup.NewMetrics(),
			})
			if err != nil {
				return fmt.Errorf("build cleanup service: %w", err)
			}

			// Start blocks until ctx is canceled (SIGINT/SIGTERM via the
			// root command's signal-notifying context).
			svc.Start(cmd.Context())
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", DefaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}
