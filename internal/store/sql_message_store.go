package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	// Registers the "postgres" driver used by SQLMessageStore, grounded on
	// the teacher's SQLRepository (internal/artifacts/sql_repository.go),
	// which is built against the same lib/pq $-placeholder dialect.
	_ "github.com/lib/pq"

	"github.com/cascadialabs/turnengine/internal/llm"
)

// SQLMessageStore is a Postgres-backed MessageStore, grounded on the
// teacher's SQLRepository: a *sql.DB plus prepared statements prepared once
// at construction time.
type SQLMessageStore struct {
	db     *sql.DB
	logger *slog.Logger

	stmtInsert *sql.Stmt
	stmtGetAll *sql.Stmt
	stmtClear  *sql.Stmt
	stmtTouch  *sql.Stmt
}

// messagesSchema creates the backing table; callers run it once against a
// fresh database (mirrors the teacher's migration-free CREATE TABLE IF NOT
// EXISTS style used alongside sql_repository.go).
const messagesSchema = `
CREATE TABLE IF NOT EXISTS turnengine_messages (
	context_id   TEXT NOT NULL,
	seq          BIGSERIAL,
	role         TEXT NOT NULL,
	content      TEXT NOT NULL,
	tool_calls   JSONB,
	tool_call_id TEXT,
	name         TEXT,
	PRIMARY KEY (context_id, seq)
);
CREATE TABLE IF NOT EXISTS turnengine_message_activity (
	context_id    TEXT PRIMARY KEY,
	last_activity TIMESTAMPTZ NOT NULL
)`

// NewSQLMessageStore opens prepared statements against db and ensures the
// schema exists.
func NewSQLMessageStore(db *sql.DB, logger *slog.Logger) (*SQLMessageStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.Exec(messagesSchema); err != nil {
		return nil, fmt.Errorf("create messages schema: %w", err)
	}

	s := &SQLMessageStore{db: db, logger: logger}
	var err error
	s.stmtInsert, err = db.Prepare(`
		INSERT INTO turnengine_messages (context_id, role, content, tool_calls, tool_call_id, name)
		VALUES ($1, $2, $3, $4, $5, $6)
	`)
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}

	s.stmtGetAll, err = db.Prepare(`
		SELECT role, content, tool_calls, tool_call_id, name
		FROM turnengine_messages WHERE context_id = $1 ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("prepare get all: %w", err)
	}

	s.stmtClear, err = db.Prepare(`DELETE FROM turnengine_messages WHERE context_id = $1`)
	if err != nil {
		return nil, fmt.Errorf("prepare clear: %w", err)
	}

	s.stmtTouch, err = db.Prepare(`
		INSERT INTO turnengine_message_activity (context_id, last_activity)
		VALUES ($1, $2)
		ON CONFLICT (context_id) DO UPDATE SET last_activity = excluded.last_activity
	`)
	if err != nil {
		return nil, fmt.Errorf("prepare touch: %w", err)
	}

	return s, nil
}

// GetAll implements MessageStore.
func (s *SQLMessageStore) GetAll(ctx context.Context, contextID string) ([]llm.Message, error) {
	rows, err := s.stmtGetAll.QueryContext(ctx, contextID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []llm.Message
	for rows.Next() {
		var m llm.Message
		var role string
		var toolCalls sql.NullString
		var toolCallID, name sql.NullString
		if err := rows.Scan(&role, &m.Content, &toolCalls, &toolCallID, &name); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = llm.Role(role)
		m.ToolCallID = toolCallID.String
		m.Name = name.String
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &m.ToolCalls); err != nil {
				return nil, fmt.Errorf("decode tool calls: %w", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetRecent implements MessageStore by loading the full log and trimming in
// memory; a larger deployment would push the trim into SQL with a LIMIT,
// left out here since the trim policy (approxTokens) is shared with
// MemoryMessageStore and easiest to keep in one place.
func (s *SQLMessageStore) GetRecent(ctx context.Context, contextID string, opts RecentOptions) ([]llm.Message, error) {
	all, err := s.GetAll(ctx, contextID)
	if err != nil {
		return nil, err
	}
	if opts.MaxMessages > 0 && len(all) > opts.MaxMessages {
		all = all[len(all)-opts.MaxMessages:]
	}
	if opts.MaxTokens > 0 {
		total := 0
		start := len(all)
		for i := len(all) - 1; i >= 0; i-- {
			total += approxTokens(all[i])
			if total > opts.MaxTokens {
				break
			}
			start = i
		}
		all = all[start:]
	}
	return all, nil
}

// Append implements MessageStore.
func (s *SQLMessageStore) Append(ctx context.Context, contextID string, messages []llm.Message) error {
	for _, m := range messages {
		var toolCalls []byte
		if len(m.ToolCalls) > 0 {
			b, err := json.Marshal(m.ToolCalls)
			if err != nil {
				return fmt.Errorf("encode tool calls: %w", err)
			}
			toolCalls = b
		}
		if _, err := s.stmtInsert.ExecContext(ctx, contextID, string(m.Role), m.Content, nullableJSON(toolCalls), m.ToolCallID, m.Name); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}
	if _, err := s.stmtTouch.ExecContext(ctx, contextID, time.Now()); err != nil {
		return fmt.Errorf("touch message activity: %w", err)
	}
	s.logger.Info("messages appended", "contextId", contextID, "count", len(messages))
	return nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// Compact implements MessageStore by deleting all but the most recent
// KeepRecent rows for contextID.
func (s *SQLMessageStore) Compact(ctx context.Context, contextID string, opts CompactOptions) error {
	if opts.KeepRecent <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM turnengine_messages
		WHERE context_id = $1 AND seq NOT IN (
			SELECT seq FROM turnengine_messages WHERE context_id = $1 ORDER BY seq DESC LIMIT $2
		)
	`, contextID, opts.KeepRecent)
	if err != nil {
		return fmt.Errorf("compact messages: %w", err)
	}
	return nil
}

// Clear implements MessageStore.
func (s *SQLMessageStore) Clear(ctx context.Context, contextID string) error {
	if _, err := s.stmtClear.ExecContext(ctx, contextID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM turnengine_message_activity WHERE context_id = $1`, contextID)
	return err
}

// PruneExpired implements MessageStore.
func (s *SQLMessageStore) PruneExpired(ctx context.Context, olderThan time.Duration) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT context_id FROM turnengine_message_activity WHERE last_activity < $1
	`, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("query expired message contexts: %w", err)
	}
	var expired []string
	for rows.Next() {
		var contextID string
		if err := rows.Scan(&contextID); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan expired message context: %w", err)
		}
		expired = append(expired, contextID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, contextID := range expired {
		if err := s.Clear(ctx, contextID); err != nil {
			return 0, err
		}
	}
	return len(expired), nil
}

var _ MessageStore = (*SQLMessageStore)(nil)
