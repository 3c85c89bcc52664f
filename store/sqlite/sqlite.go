// Package sqlite persists reasoning traces using pure-Go SQLite.
// Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"crewsim"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store. When set, the store
// emits debug logs for every operation including timing and row counts.
// If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store persists reasoning trace events to a local SQLite file so runs
// can be replayed and prompt behavior inspected after the fact.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates the traces table.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS llm_traces (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id TEXT NOT NULL,
		agent_name TEXT NOT NULL,
		request_type TEXT NOT NULL,
		prompts TEXT NOT NULL,
		raw_response TEXT,
		parsed_decision TEXT,
		context TEXT,
		prompt_tokens INTEGER NOT NULL,
		completion_tokens INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		success INTEGER NOT NULL,
		timestamp INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_llm_traces_agent ON llm_traces(agent_id, timestamp)`)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	s.logger.Debug("sqlite: init done", "took", time.Since(start))
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// SaveTrace persists one reasoning trace event.
func (s *Store) SaveTrace(ctx context.Context, ev crewsim.TraceEvent) error {
	start := time.Now()
	prompts, err := json.Marshal(ev.Prompts)
	if err != nil {
		return fmt.Errorf("marshal prompts: %w", err)
	}
	var decision []byte
	if ev.ParsedDecision != nil {
		if decision, err = json.Marshal(ev.ParsedDecision); err != nil {
			return fmt.Errorf("marshal decision: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO llm_traces
		(agent_id, agent_name, request_type, prompts, raw_response, parsed_decision,
		 context, prompt_tokens, completion_tokens, duration_ms, success, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.AgentID, ev.AgentName, ev.RequestType, string(prompts), ev.RawResponse,
		string(decision), ev.Context, ev.Tokens.PromptTokens, ev.Tokens.CompletionTokens,
		ev.DurationMs, boolInt(ev.Success), ev.Timestamp)
	if err != nil {
		return fmt.Errorf("insert trace: %w", err)
	}
	s.logger.Debug("sqlite: trace saved",
		"agent", ev.AgentName, "type", ev.RequestType, "took", time.Since(start))
	return nil
}

// RecentTraces returns the newest traces for one agent, most recent first.
// An empty agentID returns traces across all agents.
func (s *Store) RecentTraces(ctx context.Context, agentID string, limit int) ([]crewsim.TraceEvent, error) {
	start := time.Now()
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT agent_id, agent_name, request_type, prompts, raw_response,
		parsed_decision, context, prompt_tokens, completion_tokens, duration_ms,
		success, timestamp FROM llm_traces`
	args := []any{}
	if agentID != "" {
		query += ` WHERE agent_id = ?`
		args = append(args, agentID)
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query traces: %w", err)
	}
	defer rows.Close()

	var out []crewsim.TraceEvent
	for rows.Next() {
		var ev crewsim.TraceEvent
		var prompts, decision string
		var success int
		if err := rows.Scan(&ev.AgentID, &ev.AgentName, &ev.RequestType, &prompts,
			&ev.RawResponse, &decision, &ev.Context, &ev.Tokens.PromptTokens,
			&ev.Tokens.CompletionTokens, &ev.DurationMs, &success, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		if err := json.Unmarshal([]byte(prompts), &ev.Prompts); err != nil {
			return nil, fmt.Errorf("unmarshal prompts: %w", err)
		}
		if decision != "" {
			ev.ParsedDecision = &crewsim.Decision{}
			if err := json.Unmarshal([]byte(decision), ev.ParsedDecision); err != nil {
				return nil, fmt.Errorf("unmarshal decision: %w", err)
			}
		}
		ev.Success = success != 0
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate traces: %w", err)
	}

	s.logger.Debug("sqlite: traces loaded",
		"agent", agentID, "count", len(out), "took", time.Since(start))
	return out, nil
}

// Prune deletes traces older than the cutoff timestamp (ms). Returns the
// number of rows removed.
func (s *Store) Prune(ctx context.Context, cutoff int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM llm_traces WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune traces: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Debug("sqlite: traces pruned", "removed", n)
	}
	return n, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
