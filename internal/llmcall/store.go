package llmcall

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get when no call has the requested ID.
var ErrNotFound = errors.New("llm call not found")

const schemaSQL = `
CREATE TABLE IF NOT EXISTS llm_calls (
	id            TEXT PRIMARY KEY,
	timestamp     TEXT NOT NULL,
	latency_ms    INTEGER NOT NULL DEFAULT 0,
	run_id        TEXT NOT NULL DEFAULT '',
	stage         TEXT NOT NULL DEFAULT '',
	prompt_key    TEXT NOT NULL DEFAULT '',
	prompt_hash   TEXT NOT NULL DEFAULT '',
	provider      TEXT NOT NULL DEFAULT '',
	model         TEXT NOT NULL DEFAULT '',
	temperature   REAL,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost_usd      REAL NOT NULL DEFAULT 0,
	attempts      INTEGER NOT NULL DEFAULT 0,
	response      TEXT NOT NULL DEFAULT '',
	success       INTEGER NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_llm_calls_run ON llm_calls(run_id);
CREATE INDEX IF NOT EXISTS idx_llm_calls_prompt ON llm_calls(prompt_key);
CREATE INDEX IF NOT EXISTS idx_llm_calls_ts ON llm_calls(timestamp);
`

// timeLayout is fixed width so timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const callColumns = `id, timestamp, latency_ms, run_id, stage, prompt_key, prompt_hash,
	provider, model, temperature, input_tokens, output_tokens, cost_usd, attempts,
	response, success, error`

// Store persists LLM call records in SQLite.
type Store struct {
	db *sql.DB
}

// QueryFilter specifies filters for listing LLM calls.
type QueryFilter struct {
	RunID     string
	Stage     string
	PromptKey string
	Provider  string
	Model     string
	After     *time.Time
	Before    *time.Time
	Success   *bool
	Limit     int
	Offset    int
}

// OpenStore opens (creating if needed) the call database at path.
// Use ":memory:" for an ephemeral store.
func OpenStore(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("llmcall: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("llmcall: open: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	for _, p := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("llmcall: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("llmcall: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert stores calls in a single transaction.
func (s *Store) Insert(ctx context.Context, calls ...*Call) error {
	if len(calls) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO llm_calls (`+callColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range calls {
		if c == nil {
			continue
		}
		var temp sql.NullFloat64
		if c.Temperature != nil {
			temp = sql.NullFloat64{Float64: *c.Temperature, Valid: true}
		}
		_, err := stmt.ExecContext(ctx,
			c.ID, c.Timestamp.UTC().Format(timeLayout), c.LatencyMs,
			c.RunID, c.Stage, c.PromptKey, c.PromptHash,
			c.Provider, c.Model, temp, c.InputTokens, c.OutputTokens, c.CostUSD, c.Attempts,
			c.Response, c.Success, c.Error)
		if err != nil {
			return fmt.Errorf("insert %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// Get retrieves a single LLM call by ID.
func (s *Store) Get(ctx context.Context, id string) (*Call, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM llm_calls WHERE id = ?`, id)
	call, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return call, nil
}

// List returns calls matching filter, newest first.
func (s *Store) List(ctx context.Context, filter QueryFilter) ([]Call, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		where = append(where, cond)
		args = append(args, v)
	}
	if filter.RunID != "" {
		add("run_id = ?", filter.RunID)
	}
	if filter.Stage != "" {
		add("stage = ?", filter.Stage)
	}
	if filter.PromptKey != "" {
		add("prompt_key = ?", filter.PromptKey)
	}
	if filter.Provider != "" {
		add("provider = ?", filter.Provider)
	}
	if filter.Model != "" {
		add("model = ?", filter.Model)
	}
	if filter.After != nil {
		add("timestamp > ?", filter.After.UTC().Format(timeLayout))
	}
	if filter.Before != nil {
		add("timestamp < ?", filter.Before.UTC().Format(timeLayout))
	}
	if filter.Success != nil {
		add("success = ?", *filter.Success)
	}

	query := `SELECT ` + callColumns + ` FROM llm_calls`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	} else if filter.Offset > 0 {
		query += fmt.Sprintf(" LIMIT -1 OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var calls []Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, *call)
	}
	return calls, rows.Err()
}

// CountByPromptKey returns call counts grouped by prompt key for a run.
// An empty runID counts across all runs.
func (s *Store) CountByPromptKey(ctx context.Context, runID string) (map[string]int, error) {
	query := `SELECT prompt_key, COUNT(*) FROM llm_calls`
	var args []any
	if runID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	query += ` GROUP BY prompt_key`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCall(row scanner) (*Call, error) {
	var (
		c    Call
		ts   string
		temp sql.NullFloat64
	)
	err := row.Scan(&c.ID, &ts, &c.LatencyMs, &c.RunID, &c.Stage, &c.PromptKey, &c.PromptHash,
		&c.Provider, &c.Model, &temp, &c.InputTokens, &c.OutputTokens, &c.CostUSD, &c.Attempts,
		&c.Response, &c.Success, &c.Error)
	if err != nil {
		return nil, err
	}
	if t, err := time.Parse(timeLayout, ts); err == nil {
		c.Timestamp = t
	}
	if temp.Valid {
		v := temp.Float64
		c.Temperature = &v
	}
	return &c, nil
}
