// Package engine implements the turn execution engine: the action queue
// executor, the command interpreter with slot-correction backtracking,
// and the turn controller tying them to the tracker and classifier.
//
// The engine is a deterministic fold over the turn's command list and
// the persisted pending queue. Within one session turns must be
// serialized by the caller; across sessions the engine shares only the
// immutable flow catalog and event registry.
package engine

import (
	"github.com/r-salas/linguista/internal/events"
	"github.com/r-salas/linguista/internal/flow"
	"github.com/r-salas/linguista/internal/models"
)

// flowSet resolves flow and step references across the combined set of
// task flows and event flows. Persisted queue entries rehydrate their
// step names through it.
type flowSet struct {
	catalog *flow.Catalog
	events  *events.Registry
}

func (fs *flowSet) flow(name string) (*flow.Flow, bool) {
	if f, ok := fs.catalog.Flow(name); ok {
		return f, true
	}
	return fs.events.FlowByName(name)
}

// requestedSlot identifies the Ask at the head of the queue when the
// turn began: the question the user was just asked.
type requestedSlot struct {
	flow string
	slot string
}

func (r *requestedSlot) matches(flowName, slotName string) bool {
	return r != nil && r.flow == flowName && r.slot == slotName
}

// turnState is the mutable per-turn execution state shared between the
// interpreter and the executor.
type turnState struct {
	queue     []models.PendingQueueEntry
	requested *requestedSlot
	clarify   []string
	emit      func(line string) error
}

// prepend splices entries ahead of the current queue head, preserving
// their order.
func (st *turnState) prepend(entries ...models.PendingQueueEntry) {
	st.queue = append(entries, st.queue...)
}

// entriesFor tags a flat action list with its owning flow.
func entriesFor(actions []models.Action, flowName string) []models.PendingQueueEntry {
	entries := make([]models.PendingQueueEntry, 0, len(actions))
	for _, a := range actions {
		entries = append(entries, models.PendingQueueEntry{Action: a, Flow: flowName})
	}
	return entries
}

// startEntry is the queue entry invoking a flow's start step.
func startEntry(flowName string) models.PendingQueueEntry {
	return models.PendingQueueEntry{Action: models.Step{Name: flow.StartStep}, Flow: flowName}
}
