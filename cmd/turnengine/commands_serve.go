package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cascadialabs/turnengine/internal/artifacts"
	"github.com/cascadialabs/turnengine/internal/cleanup"
	"github.com/cascadialabs/turnengine/internal/store"
)

// buildServeCmd creates the "serve" command: a thin long-running process
// that keeps the TTL sweep active and restarts it with fresh schedule/TTLs
// whenever the config file changes, until interrupted. The engine itself
// has no transport layer (§1 Non-goals) — "serve" is process supervision,
// not a gateway, grounded on the teacher's signal.NotifyContext shutdown
// shape in handlers_serve.go, minus everything gateway-specific.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the turn engine's background services",
		Long: `Serve starts the cleanup sweep service and watches the config file for
changes, restarting the sweep with the new schedule/TTLs on each reload.
It runs until interrupted (SIGINT/SIGTERM).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(debug)
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return err
			}

			stores := serveStores{
				agents:    store.NewMemoryAgentStore(),
				messages:  store.NewMemoryMessageStore(),
				artifacts: artifacts.NewMemoryStore(logger),
				metrics:   cleanup.NewMetrics(),
			}

			ctx := cmd.Context()
			reload := make(chan CleanupConfig, 1)
			reload <- cfg.Cleanup

			if err := watchConfig(ctx, configPath, logger, func(reloaded *Config) {
				reload <- reloaded.Cleanup
			}); err != nil {
				logger.Warn("config watch disabled", "error", err)
			}

			return runServeLoop(ctx, logger, stores, reload)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", DefaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

// serveStores holds the store/metrics instances that survive across
// cleanup-service restarts triggered by a config reload.
type serveStores struct {
	agents    store.AgentStore
	messages  store.MessageStore
	artifacts artifacts.Store
	metrics   *cleanup.Metrics
}

// runServeLoop (re)starts a StateCleanupService each time reload delivers a
// new CleanupConfig, canceling the previous run first, until ctx is done.
func runServeLoop(ctx context.Context, logger *slog.Logger, stores serveStores, reload <-chan CleanupConfig) error {
	var cancelRun context.CancelFunc
	defer func() {
		if cancelRun != nil {
			cancelRun()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case cleanupCfg := <-reload:
			svc, err := cleanup.New(cleanup.Config{
				Schedule:    cleanupCfg.Schedule,
				AgentTTL:    cleanupCfg.AgentTTL,
				MessageTTL:  cleanupCfg.MessageTTL,
				ArtifactTTL: cleanupCfg.ArtifactTTL,
				Agents:      stores.agents,
				Messages:    stores.messages,
				Artifacts:   stores.artifacts,
				Logger:      logger,
				Metrics:     stores.metrics,
			})
			if err != nil {
				logger.Error("invalid cleanup config on reload, keeping previous service running", "error", err)
				continue
			}

			if cancelRun != nil {
				cancelRun()
			}
			runCtx, cancel := context.WithCancel(ctx)
			cancelRun = cancel
			go svc.Start(runCtx)
		}
	}
}
