// SQLite-backed tracker.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/r-salas/linguista/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteTracker is a Tracker backed by a local SQLite database.
type SQLiteTracker struct {
	db *sql.DB
}

// NewSQLiteTracker opens (creating if needed) the SQLite database named
// by the DSN option and applies migrations.
func NewSQLiteTracker(opts ...Option) (*SQLiteTracker, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Error("SQLiteTracker DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	if dir := filepath.Dir(cfg.DSN); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("Failed to create database directory", "error", err, "dir", dir)
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLiteTracker ready", "dsn", cfg.DSN)
	return &SQLiteTracker{db: db}, nil
}

// Close closes the underlying database handle.
func (t *SQLiteTracker) Close() error {
	return t.db.Close()
}

func (t *SQLiteTracker) AppendMessage(ctx context.Context, sessionID string, msg models.Message) error {
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content) VALUES (?, ?, ?)`,
		sessionID, string(msg.Role), msg.Content)
	if err != nil {
		slog.Error("SQLiteTracker AppendMessage failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

func (t *SQLiteTracker) History(ctx context.Context, sessionID string) ([]models.Message, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT role, content FROM messages WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		slog.Error("SQLiteTracker History query failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var history []models.Message
	for rows.Next() {
		var msg models.Message
		var role string
		if err := rows.Scan(&role, &msg.Content); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		msg.Role = models.Role(role)
		history = append(history, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	return history, nil
}

func (t *SQLiteTracker) SlotValue(ctx context.Context, sessionID, flowName, slotName string) (string, bool, error) {
	var value string
	err := t.db.QueryRowContext(ctx,
		`SELECT value FROM slot_values WHERE session_id = ? AND flow_name = ? AND slot_name = ?`,
		sessionID, flowName, slotName).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		slog.Error("SQLiteTracker SlotValue failed", "error", err, "sessionID", sessionID, "flow", flowName, "slot", slotName)
		return "", false, fmt.Errorf("failed to read slot value: %w", err)
	}
	return value, true, nil
}

func (t *SQLiteTracker) SetSlotValue(ctx context.Context, sessionID, flowName, slotName, value string) error {
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO slot_values (session_id, flow_name, slot_name, value, updated_at)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(session_id, flow_name, slot_name)
		 DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		sessionID, flowName, slotName, value)
	if err != nil {
		slog.Error("SQLiteTracker SetSlotValue failed", "error", err, "sessionID", sessionID, "flow", flowName, "slot", slotName)
		return fmt.Errorf("failed to store slot value: %w", err)
	}
	return nil
}

func (t *SQLiteTracker) DeleteSlotValue(ctx context.Context, sessionID, flowName, slotName string) error {
	_, err := t.db.ExecContext(ctx,
		`DELETE FROM slot_values WHERE session_id = ? AND flow_name = ? AND slot_name = ?`,
		sessionID, flowName, slotName)
	if err != nil {
		return fmt.Errorf("failed to delete slot value: %w", err)
	}
	return nil
}

func (t *SQLiteTracker) DeleteSlotValues(ctx context.Context, sessionID, flowName string) error {
	_, err := t.db.ExecContext(ctx,
		`DELETE FROM slot_values WHERE session_id = ? AND flow_name = ?`, sessionID, flowName)
	if err != nil {
		return fmt.Errorf("failed to delete slot values: %w", err)
	}
	return nil
}

func (t *SQLiteTracker) PendingQueue(ctx context.Context, sessionID string) ([]models.PendingQueueEntry, error) {
	var entries string
	err := t.db.QueryRowContext(ctx,
		`SELECT entries FROM pending_queues WHERE session_id = ?`, sessionID).Scan(&entries)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteTracker PendingQueue failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to read pending queue: %w", err)
	}
	queue, err := models.UnmarshalQueue([]byte(entries))
	if err != nil {
		return nil, fmt.Errorf("pending queue for session %s: %w", sessionID, err)
	}
	return queue, nil
}

func (t *SQLiteTracker) SavePendingQueue(ctx context.Context, sessionID string, queue []models.PendingQueueEntry) error {
	data, err := models.MarshalQueue(queue)
	if err != nil {
		return fmt.Errorf("pending queue for session %s: %w", sessionID, err)
	}
	_, err = t.db.ExecContext(ctx,
		`INSERT INTO pending_queues (session_id, entries, updated_at)
		 VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(session_id)
		 DO UPDATE SET entries = excluded.entries, updated_at = CURRENT_TIMESTAMP`,
		sessionID, string(data))
	if err != nil {
		slog.Error("SQLiteTracker SavePendingQueue failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to save pending queue: %w", err)
	}
	return nil
}

func (t *SQLiteTracker) DeletePendingQueue(ctx context.Context, sessionID string) error {
	_, err := t.db.ExecContext(ctx,
		`DELETE FROM pending_queues WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete pending queue: %w", err)
	}
	return nil
}

func (t *SQLiteTracker) SaveContinuation(ctx context.Context, sessionID, flowName, slotName string, actions []models.Action) error {
	data, err := models.MarshalActions(actions)
	if err != nil {
		return fmt.Errorf("continuation for slot %s.%s: %w", flowName, slotName, err)
	}
	_, err = t.db.ExecContext(ctx,
		`INSERT INTO continuations (session_id, flow_name, slot_name, actions, updated_at)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(session_id, flow_name, slot_name)
		 DO UPDATE SET actions = excluded.actions, updated_at = CURRENT_TIMESTAMP`,
		sessionID, flowName, slotName, string(data))
	if err != nil {
		slog.Error("SQLiteTracker SaveContinuation failed", "error", err, "sessionID", sessionID, "flow", flowName, "slot", slotName)
		return fmt.Errorf("failed to save continuation: %w", err)
	}
	return nil
}

func (t *SQLiteTracker) Continuation(ctx context.Context, sessionID, flowName, slotName string) ([]models.Action, bool, error) {
	var data string
	err := t.db.QueryRowContext(ctx,
		`SELECT actions FROM continuations WHERE session_id = ? AND flow_name = ? AND slot_name = ?`,
		sessionID, flowName, slotName).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read continuation: %w", err)
	}
	actions, err := models.UnmarshalActions([]byte(data))
	if err != nil {
		return nil, false, fmt.Errorf("continuation for slot %s.%s: %w", flowName, slotName, err)
	}
	return actions, true, nil
}

func (t *SQLiteTracker) DeleteContinuations(ctx context.Context, sessionID, flowName string) error {
	_, err := t.db.ExecContext(ctx,
		`DELETE FROM continuations WHERE session_id = ? AND flow_name = ?`, sessionID, flowName)
	if err != nil {
		return fmt.Errorf("failed to delete continuations: %w", err)
	}
	return nil
}
