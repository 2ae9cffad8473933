package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/r-salas/linguista/internal/classifier"
	"github.com/r-salas/linguista/internal/events"
	"github.com/r-salas/linguista/internal/flow"
	"github.com/r-salas/linguista/internal/models"
	"github.com/r-salas/linguista/internal/store"
)

// Bot is the turn controller: the single entry point for processing one
// user message against a session's persisted state.
//
// A Bot is safe to share across sessions, but turns within one session
// must be serialized by the caller — overlapping turns for the same
// session id race on the pending queue.
type Bot struct {
	tracker    store.Tracker
	classifier classifier.Classifier
	catalog    *flow.Catalog
	events     *events.Registry
	flows      *flowSet
	interp     *Interpreter
}

// New builds a Bot from the task flows. Flows tagged as overriding an
// event kind replace the built-in fallback flows instead of joining the
// catalog.
func New(tracker store.Tracker, cls classifier.Classifier, flows ...*flow.Flow) (*Bot, error) {
	var tasks, overrides []*flow.Flow
	for _, f := range flows {
		if f.Overrides != "" {
			overrides = append(overrides, f)
		} else {
			tasks = append(tasks, f)
		}
	}

	catalog, err := flow.NewCatalog(tasks...)
	if err != nil {
		return nil, err
	}
	registry := events.NewRegistry(overrides...)
	fs := &flowSet{catalog: catalog, events: registry}
	executor := NewExecutor(tracker, fs)

	return &Bot{
		tracker:    tracker,
		classifier: cls,
		catalog:    catalog,
		events:     registry,
		flows:      fs,
		interp:     NewInterpreter(tracker, fs, executor),
	}, nil
}

// ProcessTurn runs one turn and returns every output line in order.
func (b *Bot) ProcessTurn(ctx context.Context, sessionID, userText string) ([]string, error) {
	var lines []string
	err := b.StreamTurn(ctx, sessionID, userText, func(line string) error {
		lines = append(lines, line)
		return nil
	})
	return lines, err
}

// StreamTurn runs one turn, calling emit for each output line as it is
// produced. Each line is appended to the conversation history as an
// assistant message before being emitted, so a later Repeat command can
// replay it.
func (b *Bot) StreamTurn(ctx context.Context, sessionID, userText string, emit func(line string) error) error {
	queue, err := b.tracker.PendingQueue(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := b.validateQueue(queue); err != nil {
		return fmt.Errorf("session %s: %w", sessionID, err)
	}

	history, err := b.tracker.History(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := b.tracker.AppendMessage(ctx, sessionID, models.Message{Role: models.RoleUser, Content: userText}); err != nil {
		return err
	}

	st := &turnState{
		queue: queue,
		emit: func(line string) error {
			if err := b.tracker.AppendMessage(ctx, sessionID, models.Message{Role: models.RoleAssistant, Content: line}); err != nil {
				return err
			}
			return emit(line)
		},
	}

	active := b.interp.activeFlow(st)
	var activeSlot *models.FlowSlot
	if len(queue) > 0 {
		if ask, ok := queue[0].Action.(models.Ask); ok {
			slot := ask.Slot
			activeSlot = &slot
			st.requested = &requestedSlot{flow: queue[0].Flow, slot: slot.Name}
		}
	}

	commands, err := b.classify(ctx, sessionID, active, activeSlot, history, userText)
	if err != nil {
		return err
	}

	if err := b.interp.HandleTurn(ctx, sessionID, commands, history, st); err != nil {
		return err
	}

	return b.persist(ctx, sessionID, st)
}

// classify builds the render context and invokes the external
// classifier.
func (b *Bot) classify(ctx context.Context, sessionID string, active *flow.Flow, activeSlot *models.FlowSlot, history []models.Message, userText string) ([]models.Command, error) {
	cctx := classifier.Context{
		AvailableFlows: b.catalog.Flows(),
		ActiveFlow:     active,
		ActiveSlot:     activeSlot,
		Conversation:   history,
		LatestMessage:  userText,
	}
	if active != nil {
		values := make(map[string]string, len(active.Slots))
		for _, slot := range active.Slots {
			value, ok, err := b.tracker.SlotValue(ctx, sessionID, active.Name, slot.Name)
			if err != nil {
				return nil, err
			}
			if ok {
				values[slot.Name] = value
			}
		}
		cctx.SlotValues = values
	}

	commands, err := b.classifier.Classify(ctx, cctx)
	if err != nil {
		return nil, fmt.Errorf("classification failed: %w", err)
	}
	return commands, nil
}

// persist stores the turn's outcome. An empty queue concludes the
// session's active work: all per-flow slot values and continuations are
// purged with the queue record. Otherwise the queue is saved and, when
// blocked on an Ask, its prompt is emitted as the turn's final line.
func (b *Bot) persist(ctx context.Context, sessionID string, st *turnState) error {
	if len(st.queue) == 0 {
		for _, f := range b.catalog.Flows() {
			if err := b.tracker.DeleteSlotValues(ctx, sessionID, f.Name); err != nil {
				return err
			}
			if err := b.tracker.DeleteContinuations(ctx, sessionID, f.Name); err != nil {
				return err
			}
		}
		if err := b.tracker.DeletePendingQueue(ctx, sessionID); err != nil {
			return err
		}
		slog.Debug("Turn concluded, session state purged", "sessionID", sessionID)
		return nil
	}

	if err := b.tracker.SavePendingQueue(ctx, sessionID, st.queue); err != nil {
		return err
	}
	if ask, ok := st.queue[0].Action.(models.Ask); ok {
		if err := st.emit(ask.Question()); err != nil {
			return err
		}
	}
	slog.Debug("Turn paused with pending work", "sessionID", sessionID, "queued", len(st.queue))
	return nil
}

// validateQueue rejects persisted entries naming flows no longer in the
// combined flow set — a catalog/version mismatch that must surface
// rather than execute stale work.
func (b *Bot) validateQueue(queue []models.PendingQueueEntry) error {
	for _, entry := range queue {
		if _, ok := b.flows.flow(entry.Flow); !ok {
			return fmt.Errorf("persisted entry for flow %q: %w", entry.Flow, models.ErrUnknownFlow)
		}
	}
	return nil
}
