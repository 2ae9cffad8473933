package flow

import (
	"context"
	"fmt"

	"github.com/r-salas/linguista/internal/models"
	"github.com/r-salas/linguista/internal/store"
)

// Runtime is the execution context handed to a flow step. It scopes slot
// access to the (session, flow) pair the step runs for; steps never see
// another flow's state.
type Runtime struct {
	tracker   store.Tracker
	sessionID string
	flow      *Flow
	clarify   []string
}

// NewRuntime builds the execution context for one step invocation.
func NewRuntime(tracker store.Tracker, sessionID string, f *Flow, clarifyOptions []string) *Runtime {
	return &Runtime{
		tracker:   tracker,
		sessionID: sessionID,
		flow:      f,
		clarify:   clarifyOptions,
	}
}

// SessionID returns the session the step runs for.
func (rt *Runtime) SessionID() string {
	return rt.sessionID
}

// Flow returns the flow definition the step belongs to.
func (rt *Runtime) Flow() *Flow {
	return rt.flow
}

// ClarifyOptions returns the sorted candidate flow names carried by a
// clarify command, empty outside a clarify fallback.
func (rt *Runtime) ClarifyOptions() []string {
	return rt.clarify
}

// SlotString returns the raw stored value of a slot.
func (rt *Runtime) SlotString(ctx context.Context, slot models.FlowSlot) (string, bool, error) {
	return rt.tracker.SlotValue(ctx, rt.sessionID, rt.flow.Name, slot.Name)
}

// SlotValue returns the stored value of a slot converted to the Go type
// matching its declaration: int, float64, bool or string.
func (rt *Runtime) SlotValue(ctx context.Context, slot models.FlowSlot) (any, bool, error) {
	stored, ok, err := rt.tracker.SlotValue(ctx, rt.sessionID, rt.flow.Name, slot.Name)
	if err != nil || !ok {
		return nil, ok, err
	}
	value, err := slot.Parse(stored)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// ClearSlot removes a slot's stored value so a later ask for it blocks
// again. Steps use it to reject an invalid answer and re-prompt.
func (rt *Runtime) ClearSlot(ctx context.Context, slot models.FlowSlot) error {
	return rt.tracker.DeleteSlotValue(ctx, rt.sessionID, rt.flow.Name, slot.Name)
}

// SetSlot stores a slot value, formatting it canonically for the slot's
// type.
func (rt *Runtime) SetSlot(ctx context.Context, slot models.FlowSlot, value any) error {
	return rt.tracker.SetSlotValue(ctx, rt.sessionID, rt.flow.Name, slot.Name, fmt.Sprint(value))
}
