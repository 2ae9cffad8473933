// Redis-backed tracker.
//
// Key layout, namespaced by prefix (default "linguista"):
//
//	<prefix>:conversation:<session>          list of JSON messages
//	<prefix>:flow_slots:<session>:<flow>     hash slot -> value
//	<prefix>:pending:<session>               JSON pending queue
//	<prefix>:continuations:<session>:<flow>  hash slot -> JSON actions
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/r-salas/linguista/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces Redis keys when no prefix option is given.
const DefaultKeyPrefix = "linguista"

// RedisTracker is a Tracker backed by a Redis server.
type RedisTracker struct {
	client *redis.Client
	prefix string
}

// NewRedisTracker connects to the Redis server named by the Addr option.
func NewRedisTracker(opts ...Option) (*RedisTracker, error) {
	cfg := Opts{Addr: "localhost:6379", KeyPrefix: DefaultKeyPrefix}
	for _, opt := range opts {
		opt(&cfg)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		slog.Error("Redis ping failed", "error", err, "addr", cfg.Addr)
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	slog.Debug("RedisTracker ready", "addr", cfg.Addr, "db", cfg.DB)
	return &RedisTracker{client: client, prefix: cfg.KeyPrefix}, nil
}

// Close closes the underlying Redis client.
func (t *RedisTracker) Close() error {
	return t.client.Close()
}

func (t *RedisTracker) conversationKey(sessionID string) string {
	return fmt.Sprintf("%s:conversation:%s", t.prefix, sessionID)
}

func (t *RedisTracker) slotsKey(sessionID, flowName string) string {
	return fmt.Sprintf("%s:flow_slots:%s:%s", t.prefix, sessionID, flowName)
}

func (t *RedisTracker) pendingKey(sessionID string) string {
	return fmt.Sprintf("%s:pending:%s", t.prefix, sessionID)
}

func (t *RedisTracker) continuationsKey(sessionID, flowName string) string {
	return fmt.Sprintf("%s:continuations:%s:%s", t.prefix, sessionID, flowName)
}

func (t *RedisTracker) AppendMessage(ctx context.Context, sessionID string, msg models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if err := t.client.RPush(ctx, t.conversationKey(sessionID), data).Err(); err != nil {
		slog.Error("RedisTracker AppendMessage failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

func (t *RedisTracker) History(ctx context.Context, sessionID string) ([]models.Message, error) {
	raw, err := t.client.LRange(ctx, t.conversationKey(sessionID), 0, -1).Result()
	if err != nil {
		slog.Error("RedisTracker History failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	history := make([]models.Message, 0, len(raw))
	for _, item := range raw {
		var msg models.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("failed to decode message: %w", err)
		}
		history = append(history, msg)
	}
	return history, nil
}

func (t *RedisTracker) SlotValue(ctx context.Context, sessionID, flowName, slotName string) (string, bool, error) {
	value, err := t.client.HGet(ctx, t.slotsKey(sessionID, flowName), slotName).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		slog.Error("RedisTracker SlotValue failed", "error", err, "sessionID", sessionID, "flow", flowName, "slot", slotName)
		return "", false, fmt.Errorf("failed to read slot value: %w", err)
	}
	return value, true, nil
}

func (t *RedisTracker) SetSlotValue(ctx context.Context, sessionID, flowName, slotName, value string) error {
	if err := t.client.HSet(ctx, t.slotsKey(sessionID, flowName), slotName, value).Err(); err != nil {
		slog.Error("RedisTracker SetSlotValue failed", "error", err, "sessionID", sessionID, "flow", flowName, "slot", slotName)
		return fmt.Errorf("failed to store slot value: %w", err)
	}
	return nil
}

func (t *RedisTracker) DeleteSlotValue(ctx context.Context, sessionID, flowName, slotName string) error {
	if err := t.client.HDel(ctx, t.slotsKey(sessionID, flowName), slotName).Err(); err != nil {
		return fmt.Errorf("failed to delete slot value: %w", err)
	}
	return nil
}

func (t *RedisTracker) DeleteSlotValues(ctx context.Context, sessionID, flowName string) error {
	if err := t.client.Del(ctx, t.slotsKey(sessionID, flowName)).Err(); err != nil {
		return fmt.Errorf("failed to delete slot values: %w", err)
	}
	return nil
}

func (t *RedisTracker) PendingQueue(ctx context.Context, sessionID string) ([]models.PendingQueueEntry, error) {
	data, err := t.client.Get(ctx, t.pendingKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		slog.Error("RedisTracker PendingQueue failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to read pending queue: %w", err)
	}
	queue, err := models.UnmarshalQueue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("pending queue for session %s: %w", sessionID, err)
	}
	return queue, nil
}

func (t *RedisTracker) SavePendingQueue(ctx context.Context, sessionID string, queue []models.PendingQueueEntry) error {
	data, err := models.MarshalQueue(queue)
	if err != nil {
		return fmt.Errorf("pending queue for session %s: %w", sessionID, err)
	}
	if err := t.client.Set(ctx, t.pendingKey(sessionID), data, 0).Err(); err != nil {
		slog.Error("RedisTracker SavePendingQueue failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to save pending queue: %w", err)
	}
	return nil
}

func (t *RedisTracker) DeletePendingQueue(ctx context.Context, sessionID string) error {
	if err := t.client.Del(ctx, t.pendingKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete pending queue: %w", err)
	}
	return nil
}

func (t *RedisTracker) SaveContinuation(ctx context.Context, sessionID, flowName, slotName string, actions []models.Action) error {
	data, err := models.MarshalActions(actions)
	if err != nil {
		return fmt.Errorf("continuation for slot %s.%s: %w", flowName, slotName, err)
	}
	if err := t.client.HSet(ctx, t.continuationsKey(sessionID, flowName), slotName, data).Err(); err != nil {
		slog.Error("RedisTracker SaveContinuation failed", "error", err, "sessionID", sessionID, "flow", flowName, "slot", slotName)
		return fmt.Errorf("failed to save continuation: %w", err)
	}
	return nil
}

func (t *RedisTracker) Continuation(ctx context.Context, sessionID, flowName, slotName string) ([]models.Action, bool, error) {
	data, err := t.client.HGet(ctx, t.continuationsKey(sessionID, flowName), slotName).Result()
	if errors.Is(err, redis.Nil) {
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

func (t *RedisTracker) DeleteContinuations(ctx context.Context, sessionID, flowName string) error {
	if err := t.client.Del(ctx, t.continuationsKey(sessionID, flowName)).Err(); err != nil {
		return fmt.Errorf("failed to delete continuations: %w", err)
	}
	return nil
}
