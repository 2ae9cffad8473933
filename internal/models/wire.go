package models

import (
	"encoding/json"
	"fmt"
)

// Wire tags for persisted actions. These must stay stable across process
// restarts; an unknown tag on read is a fatal deserialization error.
const (
	actionKindReply    = "reply"
	actionKindAsk      = "ask"
	actionKindCallFlow = "call_flow"
	actionKindEnd      = "end"
	actionKindStep     = "step"
)

// actionEnvelope is the persisted form of a single action: a kind tag
// plus the variant-specific fields.
type actionEnvelope struct {
	Kind    string    `json:"kind"`
	Message string    `json:"message,omitempty"`
	Slot    *FlowSlot `json:"slot,omitempty"`
	Prompt  string    `json:"prompt,omitempty"`
	Flow    string    `json:"flow,omitempty"`
	Step    string    `json:"step,omitempty"`
}

func envelopeFor(a Action) (actionEnvelope, error) {
	switch v := a.(type) {
	case Reply:
		return actionEnvelope{Kind: actionKindReply, Message: v.Message}, nil
	case Ask:
		slot := v.Slot
		return actionEnvelope{Kind: actionKindAsk, Slot: &slot, Prompt: v.Prompt}, nil
	case CallFlow:
		return actionEnvelope{Kind: actionKindCallFlow, Flow: v.Flow}, nil
	case End:
		return actionEnvelope{Kind: actionKindEnd}, nil
	case Step:
		return actionEnvelope{Kind: actionKindStep, Step: v.Name}, nil
	default:
		return actionEnvelope{}, fmt.Errorf("cannot serialize %T: %w", a, ErrUnknownActionKind)
	}
}

func (e actionEnvelope) action() (Action, error) {
	switch e.Kind {
	case actionKindReply:
		return Reply{Message: e.Message}, nil
	case actionKindAsk:
		if e.Slot == nil {
			return nil, fmt.Errorf("ask entry without slot: %w", ErrUnknownActionKind)
		}
		return Ask{Slot: *e.Slot, Prompt: e.Prompt}, nil
	case actionKindCallFlow:
		return CallFlow{Flow: e.Flow}, nil
	case actionKindEnd:
		return End{}, nil
	case actionKindStep:
		return Step{Name: e.Step}, nil
	default:
		return nil, fmt.Errorf("tag %q: %w", e.Kind, ErrUnknownActionKind)
	}
}

// MarshalActions serializes an ordered action list, as stored for slot
// continuations. Chains must be flattened before serialization.
func MarshalActions(actions []Action) ([]byte, error) {
	envelopes := make([]actionEnvelope, 0, len(actions))
	for _, a := range actions {
		env, err := envelopeFor(a)
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, env)
	}
	return json.Marshal(envelopes)
}

// UnmarshalActions restores an ordered action list.
func UnmarshalActions(data []byte) ([]Action, error) {
	var envelopes []actionEnvelope
	if err := json.Unmarshal(data, &envelopes); err != nil {
		return nil, fmt.Errorf("failed to decode action list: %w", err)
	}
	actions := make([]Action, 0, len(envelopes))
	for _, env := range envelopes {
		a, err := env.action()
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, nil
}

// PendingQueueEntry pairs a queued action with the name of the flow that
// owns it. The persisted pending queue is a strict FIFO of these.
type PendingQueueEntry struct {
	Action Action
	Flow   string
}

type queueEntryEnvelope struct {
	Action actionEnvelope `json:"action"`
	Flow   string         `json:"flow"`
}

// MarshalQueue serializes a pending queue for persistence.
func MarshalQueue(queue []PendingQueueEntry) ([]byte, error) {
	envelopes := make([]queueEntryEnvelope, 0, len(queue))
	for _, entry := range queue {
		env, err := envelopeFor(entry.Action)
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, queueEntryEnvelope{Action: env, Flow: entry.Flow})
	}
	return json.Marshal(envelopes)
}

// UnmarshalQueue restores a persisted pending queue. Unknown action tags
// are fatal: they indicate a version mismatch between the stored state
// and this engine.
func UnmarshalQueue(data []byte) ([]PendingQueueEntry, error) {
	var envelopes []queueEntryEnvelope
	if err := json.Unmarshal(data, &envelopes); err != nil {
		return nil, fmt.Errorf("failed to decode pending queue: %w", err)
	}
	queue := make([]PendingQueueEntry, 0, len(envelopes))
	for _, env := range envelopes {
		a, err := env.Action.action()
		if err != nil {
			return nil, err
		}
		queue = append(queue, PendingQueueEntry{Action: a, Flow: env.Flow})
	}
	return queue, nil
}
