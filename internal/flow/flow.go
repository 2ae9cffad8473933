// Package flow defines conversational flow definitions and the runtime
// context handed to their steps.
//
// A Flow is an immutable unit of conversational work: ordered slot
// declarations, a start step and further named steps. Flow instances are
// stateless; everything mutable lives in the session tracker keyed by
// (session, flow name). Slot declaration order is significant — it
// decides backtracking precedence when the user corrects earlier answers.
package flow

import (
	"context"
	"fmt"

	"github.com/r-salas/linguista/internal/models"
)

// StartStep is the reserved name of a flow's entry step.
const StartStep = "start"

// StepFunc is a single flow step. It returns the next actions to queue;
// returning nil ends the flow's work.
type StepFunc func(ctx context.Context, rt *Runtime) (models.Action, error)

// Flow is a named, described unit of conversational work.
type Flow struct {
	Name        string
	Description string
	// Slots, in declaration order.
	Slots []models.FlowSlot
	// Steps maps step names to callables; StartStep must be present.
	// Queue entries persist steps by name and resolve through this map.
	Steps map[string]StepFunc
	// Overrides tags this flow as replacing a built-in event flow.
	Overrides models.EventKind
}

// Validate checks the flow definition is complete and internally
// consistent.
func (f *Flow) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("flow has no name")
	}
	if _, ok := f.Steps[StartStep]; !ok {
		return fmt.Errorf("flow %q has no %q step", f.Name, StartStep)
	}
	seen := make(map[string]bool, len(f.Slots))
	for _, slot := range f.Slots {
		if slot.Name == "" {
			return fmt.Errorf("flow %q declares a slot without a name", f.Name)
		}
		if seen[slot.Name] {
			return fmt.Errorf("flow %q declares slot %q twice", f.Name, slot.Name)
		}
		if !slot.Type.Valid() {
			return fmt.Errorf("flow %q slot %q has an invalid type", f.Name, slot.Name)
		}
		seen[slot.Name] = true
	}
	return nil
}

// Slot returns the declaration of the named slot.
func (f *Flow) Slot(name string) (models.FlowSlot, bool) {
	for _, slot := range f.Slots {
		if slot.Name == name {
			return slot, true
		}
	}
	return models.FlowSlot{}, false
}

// SlotIndex returns the declaration index of the named slot, or -1.
func (f *Flow) SlotIndex(name string) int {
	for i, slot := range f.Slots {
		if slot.Name == name {
			return i
		}
	}
	return -1
}
