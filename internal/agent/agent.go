// Package agent implements the multi-turn Agent lifecycle (§4.7): the
// created→idle→busy state machine around one invocation of runLoop, and the
// guards that refuse a turn while shutdown, errored, or already busy.
// Grounded on the teacher's status-guarded, goroutine-per-turn shape in
// internal/agent/loop.go's Run and the AgenticLoop/LoopState comment block.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cascadialabs/turnengine/internal/events"
	"github.com/cascadialabs/turnengine/internal/ids"
	"github.com/cascadialabs/turnengine/internal/llm"
	"github.com/cascadialabs/turnengine/internal/observability"
	"github.com/cascadialabs/turnengine/internal/pluginapi"
	"github.com/cascadialabs/turnengine/internal/runner"
	"github.com/cascadialabs/turnengine/internal/store"
)

// Config configures one Agent instance, mirroring the teacher's
// constructor-injected *LoopConfig shape (DefaultConfig + sanitize).
type Config struct {
	ContextID     string
	MaxMessages   int
	AutoCompact   bool
	LoopConfig    runner.LoopConfig
	Provider      llm.Source
	Plugins       []pluginapi.Plugin
	Messages      store.MessageStore
	Agents        store.AgentStore // optional
	Logger        *slog.Logger
	Now           func() time.Time

	// Tracer is optional; when nil no spans are created.
	Tracer *observability.Tracer
}

// DefaultConfig returns sensible defaults (MaxMessages: 50), matching the
// teacher's DefaultLoopConfig pattern of explicit, documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxMessages: 50,
		LoopConfig:  runner.DefaultLoopConfig(),
		Now:         time.Now,
	}
}

func sanitizeConfig(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = defaults.MaxMessages
	}
	if cfg.Now == nil {
		cfg.Now = defaults.Now
	}
	if cfg.Messages == nil {
		cfg.Messages = store.NewMemoryMessageStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// StartTurnOptions is the optional input to StartTurn (§4.7).
type StartTurnOptions struct {
	AuthContext any
	TaskID      string
	Metadata    map[string]any
}

// Agent owns one AgentState exclusively and borrows every other dependency
// by reference (§3 Ownership).
type Agent struct {
	cfg Config

	mu        sync.Mutex
	status    store.AgentStatus
	turnCount int
	createdAt time.Time
	lastErr   string
}

// New constructs an Agent in status=created. Initialize must be called
// before the first StartTurn (§4.7: "created → idle on first-turn initialize()").
func New(cfg Config) *Agent {
	cfg = sanitizeConfig(cfg)
	return &Agent{cfg: cfg, status: store.AgentCreated, createdAt: cfg.Now()}
}

// Initialize loads persisted AgentState (if an AgentStore is configured) and
// transitions created → idle. It does nothing once the agent is shut down.
func (a *Agent) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status == store.AgentShutdown {
		return nil
	}

	if a.cfg.Agents != nil {
		st, err := a.cfg.Agents.Load(ctx, a.cfg.ContextID)
		if err != nil {
			return fmt.Errorf("load agent state: %w", err)
		}
		if st != nil {
			a.status = store.AgentIdle
			a.turnCount = st.TurnCount
			a.createdAt = st.CreatedAt
			a.cfg.Logger.Info("agent state resumed", "contextId", a.cfg.ContextID, "turnCount", st.TurnCount)
			return nil
		}
	}
	a.status = store.AgentIdle
	return nil
}

// Shutdown transitions any state to shutdown, a terminal state (§8 invariant 10).
func (a *Agent) Shutdown(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = store.AgentShutdown
	a.persistLocked(ctx)
}

func (a *Agent) persistLocked(ctx context.Context) {
	if a.cfg.Agents == nil {
		return
	}
	_ = a.cfg.Agents.Save(ctx, a.cfg.ContextID, store.AgentState{
		Status:       a.status,
		TurnCount:    a.turnCount,
		LastActivity: a.cfg.Now(),
		CreatedAt:    a.createdAt,
		Error:        a.lastErr,
	})
}

// guardFailure returns the failure message for a turn refused by a lifecycle
// guard (§4.7 Guards) and true, or ("", false) if the turn may proceed.
func (a *Agent) guardFailure() (string, bool) {
	switch a.status {
	case store.AgentShutdown:
		return "Agent has been shutdown", true
	case store.AgentError:
		return fmt.Sprintf("Agent is in error state: %s", a.lastErr), true
	case store.AgentBusy:
		return "Agent is already executing a turn", true
	default:
		return "", false
	}
}

// StartTurn implements startTurn (§4.7). Guard failures return a
// single-event stream containing exactly one task-status{failed}; success
// starts a goroutine driving runLoop and persisting results as events arrive.
func (a *Agent) StartTurn(ctx context.Context, userMessage string, opts StartTurnOptions) <-chan events.ContextEvent {
	a.mu.Lock()
	if msg, blocked := a.guardFailure(); blocked {
		a.mu.Unlock()
		out := make(chan events.ContextEvent, 1)
		taskID := opts.TaskID
		if taskID == "" {
			taskID = a.nextTaskID()
		}
		out <- events.Stamp(events.NewTaskStatus(events.TaskFailed, msg), a.cfg.ContextID, taskID)
		close(out)
		return out
	}
	a.status = store.AgentBusy
	a.mu.Unlock()

	taskID := opts.TaskID
	if taskID == "" {
		taskID = a.nextTaskID()
	}

	out := make(chan events.ContextEvent, 16)
	go a.runTurn(ctx, taskID, userMessage, opts, out)
	return out
}

func (a *Agent) nextTaskID() string {
	return fmt.Sprintf("%s-turn-%d-%s", a.cfg.ContextID, a.turnCount+1, ids.New())
}

func (a *Agent) runTurn(ctx context.Context, taskID, userMessage string, opts StartTurnOptions, out chan<- events.ContextEvent) {
	defer close(out)

	history, err := a.cfg.Messages.GetRecent(ctx, a.cfg.ContextID, store.RecentOptions{MaxMessages: a.cfg.MaxMessages})
	if err != nil {
		a.finishWithError(ctx, err)
		return
	}

	if userMessage != "" {
		userMsg := llm.Message{Role: llm.RoleUser, Content: userMessage}
		history = append(history, userMsg)
		if err := a.cfg.Messages.Append(ctx, a.cfg.ContextID, []llm.Message{userMsg}); err != nil {
			a.finishWithError(ctx, err)
			return
		}
	}

	loopOut := runner.RunLoop(ctx, runner.LoopInput{
		ContextID: a.cfg.ContextID,
		TaskID:    taskID,
		Provider:  a.cfg.Provider,
		Plugins:   a.cfg.Plugins,
		Logger:    a.cfg.Logger,
		Config:    a.cfg.LoopConfig,
		History:   history,
		Tracer:    a.cfg.Tracer,
	})

	for ce := range loopOut {
		a.persistFromEvent(ctx, ce)
		if ce.IsExternal() {
			out <- ce
		}
	}

	a.finishTurn(ctx)
}

// persistFromEvent implements §4.7 step 4: append assistant/tool/internal
// messages to the message store as events arrive, in arrival order.
func (a *Agent) persistFromEvent(ctx context.Context, ce events.ContextEvent) {
	switch e := ce.Event.(type) {
	case *events.ContentComplete:
		if e.Content != "" || len(e.ToolCalls) > 0 {
			a.cfg.Messages.Append(ctx, a.cfg.ContextID, []llm.Message{{
				Role: llm.RoleAssistant, Content: e.Content, ToolCalls: e.ToolCalls,
			}})
		}
	case *events.ToolComplete:
		a.cfg.Messages.Append(ctx, a.cfg.ContextID, []llm.Message{{
			Role: llm.RoleTool, Name: e.ToolName, ToolCallID: e.ToolCallID,
			Content: toolResultContent(e),
		}})
	case *events.InternalToolMessage:
		a.cfg.Messages.Append(ctx, a.cfg.ContextID, []llm.Message{{Role: llm.Role(e.Role), Content: e.Content}})
	}
}

// toolResultContent mirrors runner's §4.6 tool-complete → message content
// rule, applied here to the messages persisted as a turn's events arrive.
func toolResultContent(e *events.ToolComplete) string {
	if !e.Success {
		if e.Error != "" {
			return e.Error
		}
		return "Error executing tool"
	}
	if e.Result == nil {
		return "Success"
	}
	b, err := json.Marshal(e.Result)
	if err != nil {
		return "Success"
	}
	return string(b)
}

func (a *Agent) finishWithError(ctx context.Context, err error) {
	a.mu.Lock()
	a.status = store.AgentError
	a.lastErr = err.Error()
	a.persistLocked(ctx)
	a.mu.Unlock()
}

func (a *Agent) finishTurn(ctx context.Context) {
	a.mu.Lock()
	a.turnCount++
	a.status = store.AgentIdle
	a.persistLocked(ctx)
	maxMessages := a.cfg.MaxMessages
	autoCompact := a.cfg.AutoCompact
	contextID := a.cfg.ContextID
	a.mu.Unlock()

	if !autoCompact {
		return
	}
	all, err := a.cfg.Messages.GetAll(ctx, contextID)
	if err != nil || len(all) <= maxMessages {
		return
	}
	a.cfg.Messages.Compact(ctx, contextID, store.CompactOptions{
		Strategy:   "summarization",
		KeepRecent: maxMessages / 2,
	})
}
