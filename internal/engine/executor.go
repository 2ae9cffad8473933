package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/r-salas/linguista/internal/flow"
	"github.com/r-salas/linguista/internal/models"
	"github.com/r-salas/linguista/internal/store"
)

// Executor drains the pending action queue from the head until it either
// empties or blocks on an Ask awaiting user input. Exactly one of those
// holds when Drain returns without error.
type Executor struct {
	tracker store.Tracker
	flows   *flowSet
}

// NewExecutor creates an executor over the given tracker and flow set.
func NewExecutor(tracker store.Tracker, flows *flowSet) *Executor {
	return &Executor{tracker: tracker, flows: flows}
}

// Drain processes queue entries in order. Replies are emitted, steps are
// invoked and their actions spliced ahead of the remaining queue, and an
// unsatisfiable Ask is pushed back to the head before returning.
func (e *Executor) Drain(ctx context.Context, sessionID string, st *turnState) error {
	for len(st.queue) > 0 {
		entry := st.queue[0]
		st.queue = st.queue[1:]

		switch a := entry.Action.(type) {
		case models.Reply:
			if err := st.emit(a.Message); err != nil {
				return err
			}

		case models.Ask:
			blocked, err := e.askBlocks(ctx, sessionID, entry.Flow, a, st.requested)
			if err != nil {
				return err
			}
			if blocked {
				st.prepend(entry)
				slog.Debug("Drain blocked awaiting user input",
					"sessionID", sessionID, "flow", entry.Flow, "slot", a.Slot.Name)
				return nil
			}

		case models.Step:
			if err := e.runStep(ctx, sessionID, entry.Flow, a.Name, st); err != nil {
				return err
			}

		case models.CallFlow:
			called, ok := e.flows.flow(a.Flow)
			if !ok {
				return fmt.Errorf("call flow %q: %w", a.Flow, models.ErrUnknownFlow)
			}
			st.prepend(startEntry(called.Name))

		case models.End:
			e.purgeFlow(st, entry.Flow)
			slog.Debug("Drain purged flow entries", "sessionID", sessionID, "flow", entry.Flow)

		default:
			return fmt.Errorf("queue entry for flow %q: %w", entry.Flow, models.ErrUnknownActionKind)
		}
	}
	return nil
}

// askBlocks decides whether an Ask halts draining. An ask_before_filling
// slot re-prompts even when filled, unless this Ask is the very question
// the user just answered.
func (e *Executor) askBlocks(ctx context.Context, sessionID, flowName string, a models.Ask, requested *requestedSlot) (bool, error) {
	_, filled, err := e.tracker.SlotValue(ctx, sessionID, flowName, a.Slot.Name)
	if err != nil {
		return false, err
	}
	mustAsk := a.Slot.AskBeforeFilling && !requested.matches(flowName, a.Slot.Name)
	return (!filled && a.Slot.Required) || mustAsk, nil
}

// runStep invokes a flow step and splices its normalized actions ahead
// of the queue. For every Ask in the result the actions following it are
// persisted as that slot's continuation — the resumption point a later
// correction backtracks to.
func (e *Executor) runStep(ctx context.Context, sessionID, flowName, stepName string, st *turnState) error {
	owner, ok := e.flows.flow(flowName)
	if !ok {
		return fmt.Errorf("flow %q: %w", flowName, models.ErrUnknownFlow)
	}
	fn, ok := owner.Steps[stepName]
	if !ok {
		return fmt.Errorf("step %q of flow %q: %w", stepName, flowName, models.ErrUnknownStep)
	}

	// Clarify options are consumed by the clarify flow alone; any other
	// step invoked later in the turn must not see them.
	var clarify []string
	if owner == e.flows.events.Flow(models.EventClarify) {
		clarify = st.clarify
		st.clarify = nil
	}
	rt := flow.NewRuntime(e.tracker, sessionID, owner, clarify)
	result, err := fn(ctx, rt)
	if err != nil {
		return fmt.Errorf("step %s.%s failed: %w", flowName, stepName, err)
	}

	actions := models.Flatten(result)
	for i, action := range actions {
		ask, isAsk := action.(models.Ask)
		if !isAsk {
			continue
		}
		if err := e.tracker.SaveContinuation(ctx, sessionID, flowName, ask.Slot.Name, actions[i+1:]); err != nil {
			return err
		}
	}
	st.prepend(entriesFor(actions, flowName)...)
	return nil
}

// purgeFlow removes every remaining queued entry owned by the flow.
func (e *Executor) purgeFlow(st *turnState, flowName string) {
	kept := make([]models.PendingQueueEntry, 0, len(st.queue))
	for _, entry := range st.queue {
		if entry.Flow != flowName {
			kept = append(kept, entry)
		}
	}
	st.queue = kept
}
