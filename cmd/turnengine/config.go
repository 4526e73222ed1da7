// config.go loads the CLI's YAML configuration file and the two
// environment variables the core engine allows (LOG_LEVEL, APP_ENV);
// everything else the engine needs is constructor-injected, never read
// from the environment inside internal/*. Grounded on the teacher's
// internal/config.Load (YAML unmarshal + defaults) and
// internal/templates/registry.go's debounced fsnotify watch loop.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// ProviderConfig selects and configures one llm.Provider backend.
type ProviderConfig struct {
	Kind         string        `yaml:"kind"` // "anthropic", "openai", or "bedrock"
	APIKey       string        `yaml:"apiKey"`
	BaseURL      string        `yaml:"baseUrl"`
	DefaultModel string        `yaml:"defaultModel"`
	MaxTokens    int           `yaml:"maxTokens"`
	MaxRetries   int           `yaml:"maxRetries"`
	RetryDelay   time.Duration `yaml:"retryDelay"`
	Region       string        `yaml:"region"` // bedrock only

	RequestsPerMinute int `yaml:"requestsPerMinute"`
	Burst             int `yaml:"burst"`
}

// LoopConfig mirrors runner.LoopConfig in YAML form.
type LoopConfig struct {
	MaxIterations int           `yaml:"maxIterations"`
	MaxToolCalls  int           `yaml:"maxToolCalls"`
	MaxWallTime   time.Duration `yaml:"maxWallTime"`
}

// CleanupConfig mirrors cleanup.Config in YAML form.
type CleanupConfig struct {
	Schedule    string        `yaml:"schedule"`
	AgentTTL    time.Duration `yaml:"agentTtl"`
	MessageTTL  time.Duration `yaml:"messageTtl"`
	ArtifactTTL time.Duration `yaml:"artifactTtl"`
}

// TracingConfig mirrors observability.TraceConfig in YAML form.
type TracingConfig struct {
	Endpoint       string  `yaml:"endpoint"`
	SamplingRate   float64 `yaml:"samplingRate"`
	EnableInsecure bool    `yaml:"enableInsecure"`
}

// Config is the turnengine CLI's top-level configuration file shape.
type Config struct {
	Provider    ProviderConfig `yaml:"provider"`
	Loop        LoopConfig     `yaml:"loop"`
	Cleanup     CleanupConfig  `yaml:"cleanup"`
	Tracing     TracingConfig  `yaml:"tracing"`
	MaxMessages int            `yaml:"maxMessages"`
	AutoCompact bool           `yaml:"autoCompact"`
}

// DefaultConfigPath is used when --config is not given.
const DefaultConfigPath = "turnengine.yaml"

// LoadConfig reads and unmarshals path; fields the file omits keep their
// zero values, and no defaults are applied here. A missing file is not an error: the CLI runs against a zero-value
// Config, matching the teacher's graceful degradation when nexus.yaml is
// absent.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// watchConfig calls onChange with a freshly reloaded Config whenever path
// changes on disk, debounced the same way the teacher's template registry
// debounces filesystem events, so a run of rapid saves triggers one reload.
func watchConfig(ctx context.Context, path string, logger *slog.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start config watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config %s: %w", path, err)
	}

	go func() {
		defer watcher.Close()

		var mu sync.Mutex
		var timer *time.Timer
		scheduleReload := func() {
			mu.Lock()
			defer mu.Unlock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(250*time.Millisecond, func() {
				cfg, err := LoadConfig(path)
				if err != nil {
					logger.Warn("config reload failed", "error", err)
					return
				}
				logger.Info("config reloaded", "path", path)
				onChange(cfg)
			})
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					scheduleReload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watch error", "error", err)
			}
		}
	}()
	return nil
}
