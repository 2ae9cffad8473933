// Package classifier turns raw user utterances into the structured
// commands the engine consumes.
//
// A Classifier receives the rendered conversation context — available
// flows, the active flow and slot, filled slot values and the recent
// history — and returns the command list for the turn. The OpenAI
// implementation renders a prompt, calls the chat completion API at
// temperature zero and parses the response line by line.
package classifier

import (
	"context"

	"github.com/r-salas/linguista/internal/flow"
	"github.com/r-salas/linguista/internal/models"
)

// Context is everything a classifier may condition on for one turn.
type Context struct {
	// AvailableFlows lists every task flow the user can start.
	AvailableFlows []*flow.Flow
	// ActiveFlow is the flow owning the pending queue head, nil when idle.
	ActiveFlow *flow.Flow
	// ActiveSlot is the slot of a pending Ask at the queue head, if any.
	ActiveSlot *models.FlowSlot
	// SlotValues holds the active flow's currently filled slots.
	SlotValues map[string]string
	// Conversation is the recent history, oldest first.
	Conversation []models.Message
	// LatestMessage is the user utterance being classified.
	LatestMessage string
}

// Classifier converts one user utterance into structured commands.
type Classifier interface {
	Classify(ctx context.Context, c Context) ([]models.Command, error)
}
