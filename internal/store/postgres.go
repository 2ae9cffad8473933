// PostgreSQL-backed tracker.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "embed"

	"github.com/r-salas/linguista/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresTracker is a Tracker backed by a PostgreSQL database.
type PostgresTracker struct {
	db *sql.DB
}

// NewPostgresTracker connects to the database named by the DSN option
// and applies migrations.
func NewPostgresTracker(opts ...Option) (*PostgresTracker, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Error("PostgresTracker DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgresTracker ready")
	return &PostgresTracker{db: db}, nil
}

// Close closes the underlying database handle.
func (t *PostgresTracker) Close() error {
	return t.db.Close()
}

func (t *PostgresTracker) AppendMessage(ctx context.Context, sessionID string, msg models.Message) error {
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content) VALUES ($1, $2, $3)`,
		sessionID, string(msg.Role), msg.Content)
	if err != nil {
		slog.Error("PostgresTracker AppendMessage failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

func (t *PostgresTracker) History(ctx context.Context, sessionID string) ([]models.Message, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT role, content FROM messages WHERE session_id = $1 ORDER BY id`, sessionID)
	if err != nil {
		slog.Error("PostgresTracker History query failed", "error", err, "sessionID", sessionID)
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

func (t *PostgresTracker) SlotValue(ctx context.Context, sessionID, flowName, slotName string) (string, bool, error) {
	var value string
	err := t.db.QueryRowContext(ctx,
		`SELECT value FROM slot_values WHERE session_id = $1 AND flow_name = $2 AND slot_name = $3`,
		sessionID, flowName, slotName).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		slog.Error("PostgresTracker SlotValue failed", "error", err, "sessionID", sessionID, "flow", flowName, "slot", slotName)
		return "", false, fmt.Errorf("failed to read slot value: %w", err)
	}
	return value, true, nil
}

func (t *PostgresTracker) SetSlotValue(ctx context.Context, sessionID, flowName, slotName, value string) error {
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO slot_values (session_id, flow_name, slot_name, value, updated_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (session_id, flow_name, slot_name)
		 DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		sessionID, flowName, slotName, value)
	if err != nil {
		slog.Error("PostgresTracker SetSlotValue failed", "error", err, "sessionID", sessionID, "flow", flowName, "slot", slotName)
		return fmt.Errorf("failed to store slot value: %w", err)
	}
	return nil
}

func (t *PostgresTracker) DeleteSlotValue(ctx context.Context, sessionID, flowName, slotName string) error {
	_, err := t.db.ExecContext(ctx,
		`DELETE FROM slot_values WHERE session_id = $1 AND flow_name = $2 AND slot_name = $3`,
		sessionID, flowName, slotName)
	if err != nil {
		return fmt.Errorf("failed to delete slot value: %w", err)
	}
	return nil
}

func (t *PostgresTracker) DeleteSlotValues(ctx context.Context, sessionID, flowName string) error {
	_, err := t.db.ExecContext(ctx,
		`DELETE FROM slot_values WHERE session_id = $1 AND flow_name = $2`, sessionID, flowName)
	if err != nil {
		return fmt.Errorf("failed to delete slot values: %w", err)
	}
	return nil
}

func (t *PostgresTracker) PendingQueue(ctx context.Context, sessionID string) ([]models.PendingQueueEntry, error) {
	var entries string
	err := t.db.QueryRowContext(ctx,
		`SELECT entries FROM pending_queues WHERE session_id = $1`, sessionID).Scan(&entries)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresTracker PendingQueue failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to read pending queue: %w", err)
	}
	queue, err := models.UnmarshalQueue([]byte(entries))
	if err != nil {
		return nil, fmt.Errorf("pending queue for session %s: %w", sessionID, err)
	}
	return queue, nil
}

func (t *PostgresTracker) SavePendingQueue(ctx context.Context, sessionID string, queue []models.PendingQueueEntry) error {
	data, err := models.MarshalQueue(queue)
	if err != nil {
		return fmt.Errorf("pending queue for session %s: %w", sessionID, err)
	}
	_, err = t.db.ExecContext(ctx,
		`INSERT INTO pending_queues (session_id, entries, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (session_id)
		 DO UPDATE SET entries = EXCLUDED.entries, updated_at = NOW()`,
		sessionID, string(data))
	if err != nil {
		slog.Error("PostgresTracker SavePendingQueue failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to save pending queue: %w", err)
	}
	return nil
}

func (t *PostgresTracker) DeletePendingQueue(ctx context.Context, sessionID string) error {
	_, err := t.db.ExecContext(ctx,
		`DELETE FROM pending_queues WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete pending queue: %w", err)
	}
	return nil
}

func (t *PostgresTracker) SaveContinuation(ctx context.Context, sessionID, flowName, slotName string, actions []models.Action) error {
	data, err := models.MarshalActions(actions)
	if err != nil {
		return fmt.Errorf("continuation for slot %s.%s: %w", flowName, slotName, err)
	}
	_, err = t.db.ExecContext(ctx,
		`INSERT INTO continuations (session_id, flow_name, slot_name, actions, updated_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (session_id, flow_name, slot_name)
		 DO UPDATE SET actions = EXCLUDED.actions, updated_at = NOW()`,
		sessionID, flowName, slotName, string(data))
	if err != nil {
		slog.Error("PostgresTracker SaveContinuation failed", "error", err, "sessionID", sessionID, "flow", flowName, "slot", slotName)
		return fmt.Errorf("failed to save continuation: %w", err)
	}
	return nil
}

func (t *PostgresTracker) Continuation(ctx context.Context, sessionID, flowName, slotName string) ([]models.Action, bool, error) {
	var data string
	err := t.db.QueryRowContext(ctx,
		`SELECT actions FROM continuations WHERE session_id = $1 AND flow_name = $2 AND slot_name = $3`,
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

func (t *PostgresTracker) DeleteContinuations(ctx context.Context, sessionID, flowName string) error {
	_, err := t.db.ExecContext(ctx,
		`DELETE FROM continuations WHERE session_id = $1 AND flow_name = $2`, sessionID, flowName)
	if err != nil {
		return fmt.Errorf("failed to delete continuations: %w", err)
	}
	return nil
}
