// Package store provides session tracker backends for linguista.
//
// A Tracker persists everything mutable about a conversation: the
// ordered history, per-(flow,slot) values, the pending action queue and
// the slot continuations used for corrections. Every operation is scoped
// by session id; a tracker never reads or writes another session's keys.
// Callers must serialize turns within one session — the pending queue is
// not safe for concurrent mutation.
package store

import (
	"context"

	"github.com/r-salas/linguista/internal/models"
)

// Tracker is the durable session store consumed by the engine.
type Tracker interface {
	// AppendMessage appends one message to the session's conversation history.
	AppendMessage(ctx context.Context, sessionID string, msg models.Message) error

	// History returns the session's conversation history in order.
	History(ctx context.Context, sessionID string) ([]models.Message, error)

	// SlotValue returns the stored value of a flow slot and whether it is set.
	SlotValue(ctx context.Context, sessionID, flowName, slotName string) (string, bool, error)

	// SetSlotValue stores the value of a flow slot.
	SetSlotValue(ctx context.Context, sessionID, flowName, slotName, value string) error

	// DeleteSlotValue removes a single stored slot value.
	DeleteSlotValue(ctx context.Context, sessionID, flowName, slotName string) error

	// DeleteSlotValues removes every stored slot value for a flow.
	DeleteSlotValues(ctx context.Context, sessionID, flowName string) error

	// PendingQueue returns the persisted pending action queue, empty when
	// the session has no pending work.
	PendingQueue(ctx context.Context, sessionID string) ([]models.PendingQueueEntry, error)

	// SavePendingQueue persists the pending action queue.
	SavePendingQueue(ctx context.Context, sessionID string, queue []models.PendingQueueEntry) error

	// DeletePendingQueue removes the session's pending queue record.
	DeletePendingQueue(ctx context.Context, sessionID string) error

	// SaveContinuation records the actions scheduled after a slot's ask.
	SaveContinuation(ctx context.Context, sessionID, flowName, slotName string, actions []models.Action) error

	// Continuation returns the recorded continuation for a slot, if any.
	Continuation(ctx context.Context, sessionID, flowName, slotName string) ([]models.Action, bool, error)

	// DeleteContinuations removes every recorded continuation for a flow.
	DeleteContinuations(ctx context.Context, sessionID, flowName string) error
}

// Opts holds configuration options for tracker backends.
type Opts struct {
	// DSN is the database connection string for the SQL backends.
	DSN string
	// Addr is the host:port of the Redis server.
	Addr string
	// Password is the Redis password, empty for none.
	Password string
	// DB is the Redis database number.
	DB int
	// KeyPrefix namespaces every Redis key; defaults to "linguista".
	KeyPrefix string
}

// Option configures a tracker backend.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithAddr sets the Redis server address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithPassword sets the Redis password.
func WithPassword(password string) Option {
	return func(o *Opts) {
		o.Password = password
	}
}

// WithDB selects the Redis database number.
func WithDB(db int) Option {
	return func(o *Opts) {
		o.DB = db
	}
}

// WithKeyPrefix overrides the Redis key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(o *Opts) {
		o.KeyPrefix = prefix
	}
}
