// Package models defines the core data structures for linguista.
//
// It includes the closed Action and Command variant sets, flow slot
// declarations with typed value coercion, conversation messages and the
// persisted pending-queue entry, which are shared across modules.
package models

import "errors"

// Error variables for protocol mismatches between persisted state, the
// classifier output and this engine version.
var (
	ErrUnknownActionKind  = errors.New("unknown action kind")
	ErrUnknownCommandKind = errors.New("unknown command kind")
	ErrUnknownFlow        = errors.New("unknown flow")
	ErrUnknownStep        = errors.New("unknown step")
	ErrUnknownSlot        = errors.New("unknown slot")
	ErrBadSlotValue       = errors.New("bad slot value")
)

// Action is one unit of engine-driven output or control work. The set of
// variants is closed: Reply, Ask, CallFlow, End, Step and Chain.
type Action interface {
	isAction()
}

// Reply emits a single message to the user.
type Reply struct {
	Message string
}

// Ask requests a slot value from the user. An Ask at the head of the
// pending queue is the engine's only blocking state.
type Ask struct {
	Slot   FlowSlot
	Prompt string
}

// Question returns the text to show the user for this Ask. Prompt wins
// over the default question derived from the slot description.
func (a Ask) Question() string {
	if a.Prompt != "" {
		return a.Prompt
	}
	return a.Slot.Description + "?"
}

// CallFlow pushes another flow's start step onto the queue head.
type CallFlow struct {
	Flow string
}

// End purges every queued entry owned by the same flow as this entry,
// not only the head.
type End struct{}

// Step invokes a named step of the owning flow. Steps are persisted by
// name and resolved through the flow catalog on rehydration.
type Step struct {
	Name string
}

// Chain is an ordered composition of actions. Chains are flattened on
// construction and never nest; they exist only as step return values and
// are never queued or persisted directly.
type Chain struct {
	Actions []Action
}

func (Reply) isAction()    {}
func (Ask) isAction()      {}
func (CallFlow) isAction() {}
func (End) isAction()      {}
func (Step) isAction()     {}
func (Chain) isAction()    {}

// Seq composes actions into a single flattened chain.
func Seq(actions ...Action) Action {
	return Chain{Actions: Flatten(actions...)}
}

// Flatten normalizes an action sequence into a flat ordered list,
// expanding nested chains and dropping nil entries.
func Flatten(actions ...Action) []Action {
	out := make([]Action, 0, len(actions))
	for _, a := range actions {
		if a == nil {
			continue
		}
		if chain, ok := a.(Chain); ok {
			out = append(out, Flatten(chain.Actions...)...)
		} else {
			out = append(out, a)
		}
	}
	return out
}
