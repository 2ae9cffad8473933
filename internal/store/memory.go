package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/r-salas/linguista/internal/models"
)

// InMemoryTracker is a Tracker backed by process memory. It round-trips
// queues and continuations through the wire format so tests exercise the
// same serialization as the persistent backends.
type InMemoryTracker struct {
	mu            sync.RWMutex
	histories     map[string][]models.Message
	slots         map[string]map[string]string // sessionID:flow -> slot -> value
	queues        map[string][]byte
	continuations map[string]map[string][]byte // sessionID:flow -> slot -> actions
}

// NewInMemoryTracker creates an empty in-memory tracker.
func NewInMemoryTracker() *InMemoryTracker {
	return &InMemoryTracker{
		histories:     make(map[string][]models.Message),
		slots:         make(map[string]map[string]string),
		queues:        make(map[string][]byte),
		continuations: make(map[string]map[string][]byte),
	}
}

func flowKey(sessionID, flowName string) string {
	return sessionID + ":" + flowName
}

func (t *InMemoryTracker) AppendMessage(ctx context.Context, sessionID string, msg models.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.histories[sessionID] = append(t.histories[sessionID], msg)
	return nil
}

func (t *InMemoryTracker) History(ctx context.Context, sessionID string) ([]models.Message, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	history := t.histories[sessionID]
	out := make([]models.Message, len(history))
	copy(out, history)
	return out, nil
}

func (t *InMemoryTracker) SlotValue(ctx context.Context, sessionID, flowName, slotName string) (string, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	value, ok := t.slots[flowKey(sessionID, flowName)][slotName]
	return value, ok, nil
}

func (t *InMemoryTracker) SetSlotValue(ctx context.Context, sessionID, flowName, slotName, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := flowKey(sessionID, flowName)
	if t.slots[key] == nil {
		t.slots[key] = make(map[string]string)
	}
	t.slots[key][slotName] = value
	return nil
}

func (t *InMemoryTracker) DeleteSlotValue(ctx context.Context, sessionID, flowName, slotName string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.slots[flowKey(sessionID, flowName)], slotName)
	return nil
}

func (t *InMemoryTracker) DeleteSlotValues(ctx context.Context, sessionID, flowName string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.slots, flowKey(sessionID, flowName))
	return nil
}

func (t *InMemoryTracker) PendingQueue(ctx context.Context, sessionID string) ([]models.PendingQueueEntry, error) {
	t.mu.RLock()
	data, ok := t.queues[sessionID]
	t.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	queue, err := models.UnmarshalQueue(data)
	if err != nil {
		return nil, fmt.Errorf("pending queue for session %s: %w", sessionID, err)
	}
	return queue, nil
}

func (t *InMemoryTracker) SavePendingQueue(ctx context.Context, sessionID string, queue []models.PendingQueueEntry) error {
	data, err := models.MarshalQueue(queue)
	if err != nil {
		return fmt.Errorf("pending queue for session %s: %w", sessionID, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queues[sessionID] = data
	return nil
}

func (t *InMemoryTracker) DeletePendingQueue(ctx context.Context, sessionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.queues, sessionID)
	return nil
}

func (t *InMemoryTracker) SaveContinuation(ctx context.Context, sessionID, flowName, slotName string, actions []models.Action) error {
	data, err := models.MarshalActions(actions)
	if err != nil {
		return fmt.Errorf("continuation for slot %s.%s: %w", flowName, slotName, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	key := flowKey(sessionID, flowName)
	if t.continuations[key] == nil {
		t.continuations[key] = make(map[string][]byte)
	}
	t.continuations[key][slotName] = data
	return nil
}

func (t *InMemoryTracker) Continuation(ctx context.Context, sessionID, flowName, slotName string) ([]models.Action, bool, error) {
	t.mu.RLock()
	data, ok := t.continuations[flowKey(sessionID, flowName)][slotName]
	t.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	actions, err := models.UnmarshalActions(data)
	if err != nil {
		return nil, false, fmt.Errorf("continuation for slot %s.%s: %w", flowName, slotName, err)
	}
	return actions, true, nil
}

func (t *InMemoryTracker) DeleteContinuations(ctx context.Context, sessionID, flowName string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.continuations, flowKey(sessionID, flowName))
	return nil
}
