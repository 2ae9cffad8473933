package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/r-salas/linguista/internal/flow"
	"github.com/r-salas/linguista/internal/models"
	"github.com/r-salas/linguista/internal/store"
)

// Interpreter applies the turn's command list to the pending queue, then
// delegates to the executor. Command effects mutate the queue at the
// head, taking priority over whatever was already queued.
type Interpreter struct {
	tracker  store.Tracker
	flows    *flowSet
	executor *Executor
}

// NewInterpreter creates an interpreter over the given collaborators.
func NewInterpreter(tracker store.Tracker, flows *flowSet, executor *Executor) *Interpreter {
	return &Interpreter{tracker: tracker, flows: flows, executor: executor}
}

// HandleTurn applies every command in classifier order and drains the
// queue. The history parameter is the conversation as it stood before
// this turn's user message, needed by the Repeat command.
func (in *Interpreter) HandleTurn(ctx context.Context, sessionID string, commands []models.Command, history []models.Message, st *turnState) error {
	active := in.activeFlow(st)

	if len(commands) == 0 {
		in.prependEvent(st, models.EventCannotHandle)
	}
	commands = dropCancelRestart(commands, active)

	// Slot corrections seen so far this turn, by declaration index.
	corrections := make(map[string]int)

	for _, cmd := range commands {
		switch c := cmd.(type) {
		case models.SetSlot:
			if err := in.handleSetSlot(ctx, sessionID, c, active, corrections, st); err != nil {
				return err
			}
		case models.StartFlow:
			active = in.handleStartFlow(c, active, st)
		case models.CancelFlow:
			in.handleCancelFlow(active, st)
		case models.ChitChat:
			in.prependEvent(st, models.EventChitChat)
		case models.Clarify:
			options := append([]string(nil), c.Flows...)
			sort.Strings(options)
			st.clarify = options
			in.prependEvent(st, models.EventClarify)
		case models.HumanHandoff:
			in.prependEvent(st, models.EventHumanHandoff)
		case models.SkipQuestion:
			in.prependEvent(st, models.EventSkipQuestion)
		case models.Repeat:
			if err := in.handleRepeat(history, st); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%T: %w", cmd, models.ErrUnknownCommandKind)
		}
	}

	return in.executor.Drain(ctx, sessionID, st)
}

// activeFlow derives the currently active flow from the queue head's
// owning flow, nil when the session is idle.
func (in *Interpreter) activeFlow(st *turnState) *flow.Flow {
	if len(st.queue) == 0 {
		return nil
	}
	f, ok := in.flows.flow(st.queue[0].Flow)
	if !ok {
		return nil
	}
	return f
}

func (in *Interpreter) prependEvent(st *turnState, kind models.EventKind) {
	st.prepend(startEntry(in.flows.events.Flow(kind).Name))
}

// dropCancelRestart removes a StartFlow/CancelFlow pair targeting the
// currently active flow: restarting the very flow being cancelled is a
// no-op, not a literal cancel-then-restart.
func dropCancelRestart(commands []models.Command, active *flow.Flow) []models.Command {
	if active == nil {
		return commands
	}
	restart, cancel := -1, -1
	for i, cmd := range commands {
		switch c := cmd.(type) {
		case models.StartFlow:
			if restart < 0 && c.Flow == active.Name {
				restart = i
			}
		case models.CancelFlow:
			if cancel < 0 {
				cancel = i
			}
		}
	}
	if restart < 0 || cancel < 0 {
		return commands
	}
	kept := make([]models.Command, 0, len(commands)-2)
	for i, cmd := range commands {
		if i != restart && i != cancel {
			kept = append(kept, cmd)
		}
	}
	return kept
}

// handleSetSlot coerces and stores a slot value. A value for a slot that
// already had one is a correction and triggers backtracking.
func (in *Interpreter) handleSetSlot(ctx context.Context, sessionID string, c models.SetSlot, active *flow.Flow, corrections map[string]int, st *turnState) error {
	if active == nil {
		slog.Warn("SetSlot with no active flow", "sessionID", sessionID, "slot", c.Name)
		in.prependEvent(st, models.EventCannotHandle)
		return nil
	}
	slot, ok := active.Slot(c.Name)
	if !ok {
		slog.Warn("SetSlot for unknown slot", "sessionID", sessionID, "flow", active.Name, "slot", c.Name)
		in.prependEvent(st, models.EventCannotHandle)
		return nil
	}

	value, ambiguous, err := slot.Coerce(c.Value)
	if err != nil {
		slog.Warn("Slot coercion failed", "sessionID", sessionID, "flow", active.Name, "slot", slot.Name, "value", c.Value, "error", err)
		in.prependEvent(st, models.EventCannotHandle)
		return nil
	}
	if ambiguous {
		slog.Warn("Ambiguous categorical value, picking first match",
			"sessionID", sessionID, "flow", active.Name, "slot", slot.Name, "value", c.Value, "picked", value)
	}

	_, hadValue, err := in.tracker.SlotValue(ctx, sessionID, active.Name, slot.Name)
	if err != nil {
		return err
	}
	if err := in.tracker.SetSlotValue(ctx, sessionID, active.Name, slot.Name, value); err != nil {
		return err
	}
	if !hadValue {
		return nil
	}

	corrections[slot.Name] = active.SlotIndex(slot.Name)
	return in.backtrack(ctx, sessionID, active, corrections, st)
}

// backtrack rewinds the queue after a slot correction. Across all
// corrections seen this turn only the earliest-declared slot matters: a
// correction to an earlier question invalidates everything that depended
// on later answers, and resuming from it re-derives the later steps.
func (in *Interpreter) backtrack(ctx context.Context, sessionID string, active *flow.Flow, corrections map[string]int, st *turnState) error {
	earliest := ""
	earliestIdx := -1
	for name, idx := range corrections {
		if earliestIdx < 0 || idx < earliestIdx {
			earliest, earliestIdx = name, idx
		}
	}

	actions, ok, err := in.tracker.Continuation(ctx, sessionID, active.Name, earliest)
	if err != nil {
		return err
	}
	st.requested = nil
	if !ok {
		// The slot was filled proactively and never asked; there is no
		// resumption point to rewind to.
		slog.Warn("No continuation recorded for corrected slot",
			"sessionID", sessionID, "flow", active.Name, "slot", earliest)
		st.queue = nil
	} else {
		st.queue = entriesFor(actions, active.Name)
	}
	in.prependEvent(st, models.EventCorrection)
	slog.Debug("Backtracked to slot continuation",
		"sessionID", sessionID, "flow", active.Name, "slot", earliest)
	return nil
}

// handleStartFlow queues a new flow's start, announcing first that the
// interrupted task will resume (or offering further help when idle).
// The started flow becomes the active flow for subsequent commands.
func (in *Interpreter) handleStartFlow(c models.StartFlow, active *flow.Flow, st *turnState) *flow.Flow {
	if active != nil {
		in.prependEvent(st, models.EventContinueInterrupted)
	} else {
		in.prependEvent(st, models.EventCompleted)
	}

	started, ok := in.flows.catalog.Flow(c.Flow)
	if !ok {
		slog.Warn("StartFlow for unknown flow", "flow", c.Flow)
		in.prependEvent(st, models.EventCannotHandle)
		return active
	}
	st.prepend(startEntry(started.Name))
	return started
}

// handleCancelFlow queues an End for the active flow behind the cancel
// reply, so the flow's remaining work is purged once the cancel flow
// finishes.
func (in *Interpreter) handleCancelFlow(active *flow.Flow, st *turnState) {
	if active != nil {
		st.prepend(models.PendingQueueEntry{Action: models.End{}, Flow: active.Name})
	} else {
		slog.Warn("CancelFlow with no active flow")
	}
	in.prependEvent(st, models.EventCancel)
}

// handleRepeat re-emits the previous turn's replies: the trailing run of
// assistant messages before the latest user message. With an Ask already
// pending the command is a no-op — the pending question is the repeat.
// The replies are emitted directly rather than queued: they belong to no
// flow, and a queue entry without a resolvable owner would fail
// rehydration on the next turn.
func (in *Interpreter) handleRepeat(history []models.Message, st *turnState) error {
	if st.requested != nil {
		return nil
	}

	start := len(history)
	for start > 0 && history[start-1].Role == models.RoleAssistant {
		start--
	}
	if start == len(history) {
		in.prependEvent(st, models.EventCannotHandle)
		return nil
	}
	for _, msg := range history[start:] {
		if err := st.emit(msg.Content); err != nil {
			return err
		}
	}
	return nil
}
