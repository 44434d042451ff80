package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hupe1980/basketmesh/core"
)

// AuditStore is the durable backing store for long-term audit records,
// basket definitions and the execution history that cleanup cascades over.
// Durable records are retained independently of the ephemeral purge.
type AuditStore interface {
	AppendLog(ctx context.Context, rec Record) error
	ExecutionLogs(ctx context.Context, executionID string, limit int) ([]Record, error)
	AgentLogs(ctx context.Context, agent string, limit int) ([]Record, error)

	SaveBasket(ctx context.Context, def core.BasketDefinition) error
	GetBasket(ctx context.Context, name string) (core.BasketDefinition, bool, error)
	ListBaskets(ctx context.Context) ([]core.BasketDefinition, error)
	DeleteBasket(ctx context.Context, name string) (int64, error)

	RecordExecution(ctx context.Context, basket, executionID string) error
	ExecutionsForBasket(ctx context.Context, basket string) ([]string, error)
	DeleteExecutions(ctx context.Context, basket string) (int64, error)
	DeleteLogsForExecutions(ctx context.Context, executionIDs []string) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// SQLiteStore implements AuditStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dsn and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			execution_id TEXT NOT NULL,
			agent_name TEXT NOT NULL,
			step_index INTEGER NOT NULL DEFAULT 0,
			level TEXT NOT NULL,
			payload TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_execution ON audit_logs(execution_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_agent ON audit_logs(agent_name, created_at)`,
		`CREATE TABLE IF NOT EXISTS baskets (
			name TEXT PRIMARY KEY,
			definition TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS executions (
			execution_id TEXT PRIMARY KEY,
			basket_name TEXT NOT NULL,
			started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_basket ON executions(basket_name, started_at)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// AppendLog inserts one audit record.
func (s *SQLiteStore) AppendLog(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_logs (execution_id, agent_name, step_index, level, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ExecutionID, rec.Agent, rec.Step, rec.Level, string(payload), rec.Timestamp.UTC())
	return err
}

func (s *SQLiteStore) queryLogs(ctx context.Context, where, arg string, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT execution_id, agent_name, step_index, level, payload, created_at
		 FROM audit_logs WHERE `+where+` = ? ORDER BY created_at DESC, id DESC LIMIT ?`, arg, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var rec Record
		var payload string
		var at time.Time
		if err := rows.Scan(&rec.ExecutionID, &rec.Agent, &rec.Step, &rec.Level, &payload, &at); err != nil {
			return nil, err
		}
		rec.Timestamp = at
		if payload != "" {
			if err := json.Unmarshal([]byte(payload), &rec.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// ExecutionLogs returns up to limit records for one execution, newest first.
func (s *SQLiteStore) ExecutionLogs(ctx context.Context, executionID string, limit int) ([]Record, error) {
	return s.queryLogs(ctx, "execution_id", executionID, limit)
}

// AgentLogs returns up to limit records for one agent, newest first.
func (s *SQLiteStore) AgentLogs(ctx context.Context, agent string, limit int) ([]Record, error) {
	return s.queryLogs(ctx, "agent_name", agent, limit)
}

// SaveBasket upserts a basket definition as a named record.
func (s *SQLiteStore) SaveBasket(ctx context.Context, def core.BasketDefinition) error {
	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to marshal basket: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO baskets (name, definition) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET definition = excluded.definition`,
		def.Name, string(data))
	return err
}

// GetBasket fetches a basket record by name.
func (s *SQLiteStore) GetBasket(ctx context.Context, name string) (core.BasketDefinition, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT definition FROM baskets WHERE name = ?`, name).Scan(&data)
	if err == sql.ErrNoRows {
		return core.BasketDefinition{}, false, nil
	}
	if err != nil {
		return core.BasketDefinition{}, false, err
	}
	var def core.BasketDefinition
	if err := json.Unmarshal([]byte(data), &def); err != nil {
		return core.BasketDefinition{}, false, fmt.Errorf("failed to unmarshal basket %s: %w", name, err)
	}
	return def, true, nil
}

// ListBaskets returns all persisted basket definitions in creation order.
func (s *SQLiteStore) ListBaskets(ctx context.Context) ([]core.BasketDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT definition FROM baskets ORDER BY created_at, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []core.BasketDefinition
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var def core.BasketDefinition
		if err := json.Unmarshal([]byte(data), &def); err != nil {
			return nil, fmt.Errorf("failed to unmarshal basket: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// DeleteBasket removes the basket record, returning the number of rows removed.
func (s *SQLiteStore) DeleteBasket(ctx context.Context, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM baskets WHERE name = ?`, name)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RecordExecution associates an execution identifier with a basket name.
func (s *SQLiteStore) RecordExecution(ctx context.Context, basket, executionID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO executions (execution_id, basket_name) VALUES (?, ?)`,
		executionID, basket)
	return err
}

// ExecutionsForBasket returns the execution identifiers historically tied to
// the basket name, oldest first.
func (s *SQLiteStore) ExecutionsForBasket(ctx context.Context, basket string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT execution_id FROM executions WHERE basket_name = ? ORDER BY started_at`, basket)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteExecutions removes the execution history rows for a basket.
func (s *SQLiteStore) DeleteExecutions(ctx context.Context, basket string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM executions WHERE basket_name = ?`, basket)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteLogsForExecutions removes audit records for the given execution ids.
func (s *SQLiteStore) DeleteLogsForExecutions(ctx context.Context, executionIDs []string) (int64, error) {
	if len(executionIDs) == 0 {
		return 0, nil
	}
	placeholders := strings.Repeat("?,", len(executionIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(executionIDs))
	for i, id := range executionIDs {
		args[i] = id
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM audit_logs WHERE execution_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Ping reports database reachability.
func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }
