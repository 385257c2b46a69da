package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jitc-genai/conformance/backend/internal/model/agent"
	"github.com/jitc-genai/conformance/backend/internal/model/chat"
)

const schema = `
CREATE TABLE IF NOT EXISTS compliance_agents (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	model_name TEXT NOT NULL,
	system_prompt TEXT NOT NULL DEFAULT '',
	user_prompt_template TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS debate_sessions (
	session_id TEXT NOT NULL,
	agent_id TEXT NOT NULL REFERENCES compliance_agents(id),
	debate_order INTEGER NOT NULL,
	PRIMARY KEY (session_id, debate_order)
);

CREATE INDEX IF NOT EXISTS idx_debate_sessions_session
	ON debate_sessions(session_id);

CREATE TABLE IF NOT EXISTS chat_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_query TEXT NOT NULL,
	response TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Store provides durable storage for agent definitions, debate session
// membership and chat history on a single SQLite database.
type Store struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at path and ensures the schema
// exists. The parent directory is created if missing.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// modernc sqlite serializes writers; a single connection avoids
	// SQLITE_BUSY churn under concurrent fan-out.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SeedAgents inserts the supplied agents when the registry table is empty.
func (s *Store) SeedAgents(ctx context.Context, agents []agent.Agent) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM compliance_agents`).Scan(&count); err != nil {
		return fmt.Errorf("count agents: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, a := range agents {
		if err := s.CreateAgent(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// CreateAgent stores a new agent definition.
func (s *Store) CreateAgent(ctx context.Context, a agent.Agent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO compliance_agents (id, name, model_name, system_prompt, user_prompt_template)
		 VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.ModelName, a.SystemPrompt, a.UserPromptTemplate)
	if err != nil {
		return fmt.Errorf("insert agent %s: %w", a.ID, err)
	}
	return nil
}

// ListAgents returns every stored agent definition.
func (s *Store) ListAgents(ctx context.Context) ([]agent.Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, model_name, system_prompt, user_prompt_template
		 FROM compliance_agents ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	return scanAgents(rows)
}

// AgentByID looks up a single agent definition.
func (s *Store) AgentByID(ctx context.Context, id string) (agent.Agent, error) {
	var a agent.Agent
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, model_name, system_prompt, user_prompt_template
		 FROM compliance_agents WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &a.ModelName, &a.SystemPrompt, &a.UserPromptTemplate)
	if errors.Is(err, sql.ErrNoRows) {
		return agent.Agent{}, agent.ErrNotFound
	}
	if err != nil {
		return agent.Agent{}, fmt.Errorf("query agent %s: %w", id, err)
	}
	return a, nil
}

// AgentsByIDs returns the agents matching the given ids. Unknown ids are
// skipped; the result order is not guaranteed to follow the input.
func (s *Store) AgentsByIDs(ctx context.Context, ids []string) ([]agent.Agent, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT id, name, model_name, system_prompt, user_prompt_template
		 FROM compliance_agents WHERE id IN (?` + repeatPlaceholder(len(ids)-1) + `)`
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query agents by ids: %w", err)
	}
	defer rows.Close()

	return scanAgents(rows)
}

// ReplaceSession atomically replaces the ordered membership of a debate
// session: existing rows for the session are deleted, then one row per
// agent id is inserted with its 1-based position. Replacing an unknown
// session id is a no-op delete followed by the inserts.
func (s *Store) ReplaceSession(ctx context.Context, sessionID string, agentIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace session: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM debate_sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear session %s: %w", sessionID, err)
	}

	for i, agentID := range agentIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO debate_sessions (session_id, agent_id, debate_order) VALUES (?, ?, ?)`,
			sessionID, agentID, i+1); err != nil {
			return fmt.Errorf("insert session member %s/%s: %w", sessionID, agentID, err)
		}
	}

	return tx.Commit()
}

// LoadOrdered returns the full agent records of a session in ascending
// debate order. An unknown session id yields an empty slice, not an error.
func (s *Store) LoadOrdered(ctx context.Context, sessionID string) ([]agent.Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.name, a.model_name, a.system_prompt, a.user_prompt_template
		 FROM debate_sessions d
		 JOIN compliance_agents a ON a.id = d.agent_id
		 WHERE d.session_id = ?
		 ORDER BY d.debate_order`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	defer rows.Close()

	return scanAgents(rows)
}

// Record stores one question/answer pair in the chat history.
func (s *Store) Record(ctx context.Context, userQuery, response string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_history (user_query, response) VALUES (?, ?)`,
		userQuery, response)
	if err != nil {
		return fmt.Errorf("record chat history: %w", err)
	}
	return nil
}

// History returns the most recent chat history records, newest first.
func (s *Store) History(ctx context.Context, limit int) ([]chat.Record, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_query, response, created_at
		 FROM chat_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query chat history: %w", err)
	}
	defer rows.Close()

	records := make([]chat.Record, 0, limit)
	for rows.Next() {
		var rec chat.Record
		var created string
		if err := rows.Scan(&rec.ID, &rec.UserQuery, &rec.Response, &created); err != nil {
			return nil, fmt.Errorf("scan chat history: %w", err)
		}
		if ts, err := time.Parse("2006-01-02 15:04:05", created); err == nil {
			rec.CreatedAt = ts
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanAgents(rows *sql.Rows) ([]agent.Agent, error) {
	agents := make([]agent.Agent, 0, 8)
	for rows.Next() {
		var a agent.Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.ModelName, &a.SystemPrompt, &a.UserPromptTemplate); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func repeatPlaceholder(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ", ?"
	}
	return out
}
