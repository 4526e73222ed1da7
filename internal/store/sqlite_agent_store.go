package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	// Registers the "sqlite" driver used by SQLiteAgentStore: a lighter
	// single-file store for the optional AgentStore, distinct from the
	// Postgres-backed SQLMessageStore's main message log.
	_ "modernc.org/sqlite"
)

const agentStateSchema = `
CREATE TABLE IF NOT EXISTS turnengine_agent_state (
	context_id    TEXT PRIMARY KEY,
	status        TEXT NOT NULL,
	turn_count    INTEGER NOT NULL,
	last_activity TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	error         TEXT,
	metadata      TEXT
)`

// SQLiteAgentStore is a modernc.org/sqlite-backed AgentStore.
type SQLiteAgentStore struct {
	db *sql.DB
}

// NewSQLiteAgentStore opens db (expected driver name "sqlite") and ensures
// the schema exists.
func NewSQLiteAgentStore(db *sql.DB) (*SQLiteAgentStore, error) {
	if _, err := db.Exec(agentStateSchema); err != nil {
		return nil, fmt.Errorf("create agent state schema: %w", err)
	}
	return &SQLiteAgentStore{db: db}, nil
}

// Load implements AgentStore.
func (s *SQLiteAgentStore) Load(ctx context.Context, contextID string) (*AgentState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT status, turn_count, last_activity, created_at, error, metadata
		FROM turnengine_agent_state WHERE context_id = ?
	`, contextID)

	var status, lastActivity, createdAt string
	var errMsg, metadata sql.NullString
	var turnCount int
	if err := row.Scan(&status, &turnCount, &lastActivity, &createdAt, &errMsg, &metadata); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load agent state: %w", err)
	}

	la, err := time.Parse(time.RFC3339Nano, lastActivity)
	if err != nil {
		return nil, fmt.Errorf("parse lastActivity: %w", err)
	}
	ca, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse createdAt: %w", err)
	}

	state := &AgentState{
		Status:       AgentStatus(status),
		TurnCount:    turnCount,
		LastActivity: la,
		CreatedAt:    ca,
		Error:        errMsg.String,
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &state.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return state, nil
}

// Save implements AgentStore, upserting by context_id.
func (s *SQLiteAgentStore) Save(ctx context.Context, contextID string, state AgentState) error {
	var metadata []byte
	if len(state.Metadata) > 0 {
		b, err := json.Marshal(state.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		metadata = b
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO turnengine_agent_state (context_id, status, turn_count, last_activity, created_at, error, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(context_id) DO UPDATE SET
			status = excluded.status,
			turn_count = excluded.turn_count,
			last_activity = excluded.last_activity,
			error = excluded.error,
			metadata = excluded.metadata
	`, contextID, string(state.Status), state.TurnCount,
		state.LastActivity.Format(time.RFC3339Nano), state.CreatedAt.Format(time.RFC3339Nano),
		state.Error, nullableJSON(metadata))
	if err != nil {
		return fmt.Errorf("save agent state: %w", err)
	}
	return nil
}

// Delete implements AgentStore.
func (s *SQLiteAgentStore) Delete(ctx context.Context, contextID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM turnengine_agent_state WHERE context_id = ?`, contextID)
	return err
}

// PruneExpired implements AgentStore.
func (s *SQLiteAgentStore) PruneExpired(ctx context.Context, olderThan time.Duration) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM turnengine_agent_state WHERE last_activity < ?
	`, time.Now().Add(-olderThan).Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("prune expired agent state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

var _ AgentStore = (*SQLiteAgentStore)(nil)
