// Package cleanup implements the TTL sweep (§5) that reclaims idle agent
// state, message logs, and artifact contexts. Grounded on the teacher's
// internal/artifacts/cleanup.go CleanupService: a ticker-driven background
// loop wrapping a store's PruneExpired, generalized here to sweep three
// stores instead of one and to accept a cron expression (via
// github.com/robfig/cron/v3) in addition to a bare interval, the way the
// teacher's internal/cron package layers cron-expression scheduling over a
// config-driven job runner.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cascadialabs/turnengine/internal/artifacts"
	"github.com/cascadialabs/turnengine/internal/store"
)

// cronParser mirrors the teacher's internal/cron cronParser: standard five
// fields plus an optional leading seconds field and named descriptors
// ("@every 1h").
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Config configures StateCleanupService.
type Config struct {
	// Schedule is a cron expression (e.g. "@every 1h" or "0 */15 * * * *").
	// Defaults to "@every 1h" when empty.
	Schedule string

	// AgentTTL/MessageTTL/ArtifactTTL bound how long idle state survives
	// before a sweep reclaims it. A zero value disables sweeping for that
	// store.
	AgentTTL    time.Duration
	MessageTTL  time.Duration
	ArtifactTTL time.Duration

	Agents    store.AgentStore
	Messages  store.MessageStore
	Artifacts artifacts.Store

	Logger  *slog.Logger
	Metrics *Metrics
	Now     func() time.Time
}

const defaultSchedule = "@every 1h"

func sanitizeConfig(cfg Config) Config {
	if cfg.Schedule == "" {
		cfg.Schedule = defaultSchedule
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return cfg
}

// StateCleanupService periodically prunes idle agent state, message logs,
// and artifact contexts (§5), grounded on the teacher's CleanupService.
type StateCleanupService struct {
	cfg      Config
	schedule cron.Schedule
	stopCh   chan struct{}
}

// New builds a StateCleanupService from cfg. Returns an error if Schedule
// fails to parse as a cron expression.
func New(cfg Config) (*StateCleanupService, error) {
	cfg = sanitizeConfig(cfg)
	sched, err := cronParser.Parse(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("parse cleanup schedule %q: %w", cfg.Schedule, err)
	}
	return &StateCleanupService{cfg: cfg, schedule: sched, stopCh: make(chan struct{})}, nil
}

// Start runs the sweep loop until ctx is canceled or Stop is called,
// matching the teacher's ctx-or-stopCh select in CleanupService.Start.
func (s *StateCleanupService) Start(ctx context.Context) {
	s.cfg.Logger.Info("state cleanup service started", "schedule", s.cfg.Schedule)

	next := s.schedule.Next(s.cfg.Now())
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.cfg.Logger.Info("state cleanup service stopping (context)")
			return
		case <-s.stopCh:
			s.cfg.Logger.Info("state cleanup service stopping (signal)")
			return
		case <-timer.C:
			s.Sweep(ctx)
			next = s.schedule.Next(s.cfg.Now())
			timer.Reset(time.Until(next))
		}
	}
}

// Stop signals the sweep loop to stop.
func (s *StateCleanupService) Stop() {
	close(s.stopCh)
}

// Sweep runs one sweep pass immediately, pruning every configured store
// whose TTL is non-zero. Returns the total number of contexts/states
// reclaimed across all three stores.
func (s *StateCleanupService) Sweep(ctx context.Context) (int, error) {
	start := s.cfg.Now()
	total := 0
	var firstErr error

	if s.cfg.Agents != nil && s.cfg.AgentTTL > 0 {
		n, err := s.cfg.Agents.PruneExpired(ctx, s.cfg.AgentTTL)
		if err != nil {
			s.cfg.Logger.Error("agent state sweep failed", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		} else if n > 0 {
			s.cfg.Logger.Info("agent state sweep completed", "pruned", n)
		}
		s.cfg.Metrics.recordAgentsExpired(n)
		total += n
	}

	if s.cfg.Messages != nil && s.cfg.MessageTTL > 0 {
		n, err := s.cfg.Messages.PruneExpired(ctx, s.cfg.MessageTTL)
		if err != nil {
			s.cfg.Logger.Error("message log sweep failed", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		} else if n > 0 {
			s.cfg.Logger.Info("message log sweep completed", "pruned", n)
		}
		s.cfg.Metrics.recordContextsExpired(n)
		total += n
	}

	if s.cfg.Artifacts != nil && s.cfg.ArtifactTTL > 0 {
		n, err := s.cfg.Artifacts.PruneExpired(ctx, s.cfg.ArtifactTTL)
		if err != nil {
			s.cfg.Logger.Error("artifact sweep failed", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		} else if n > 0 {
			s.cfg.Logger.Info("artifact sweep completed", "pruned", n)
		}
		s.cfg.Metrics.recordArtifactsExpired(n)
		total += n
	}

	s.cfg.Metrics.recordSweep(s.cfg.Now().Sub(start).Seconds(), firstErr)
	return total, firstErr
}
