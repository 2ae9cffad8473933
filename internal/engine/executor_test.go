package engine

import (
	"context"
	"testing"

	"github.com/r-salas/linguista/internal/events"
	"github.com/r-salas/linguista/internal/flow"
	"github.com/r-salas/linguista/internal/models"
	"github.com/r-salas/linguista/internal/store"
)

func testFlowSet(t *testing.T, flows ...*flow.Flow) *flowSet {
	t.Helper()
	catalog, err := flow.NewCatalog(flows...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return &flowSet{catalog: catalog, events: events.NewRegistry()}
}

func collectState(queue ...models.PendingQueueEntry) (*turnState, *[]string) {
	var lines []string
	st := &turnState{
		queue: queue,
		emit: func(line string) error {
			lines = append(lines, line)
			return nil
		},
	}
	return st, &lines
}

func TestDrainEmptyQueueIsIdempotent(t *testing.T) {
	tracker := store.NewInMemoryTracker()
	ex := NewExecutor(tracker, testFlowSet(t))
	st, lines := collectState()

	for i := 0; i < 3; i++ {
		if err := ex.Drain(context.Background(), "s1", st); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if len(st.queue) != 0 || len(*lines) != 0 {
		t.Errorf("draining an empty queue should do nothing, queue=%#v lines=%#v", st.queue, *lines)
	}
}

func TestDrainHaltsOnUnfilledRequiredAsk(t *testing.T) {
	tracker := store.NewInMemoryTracker()
	ex := NewExecutor(tracker, testFlowSet(t))
	ask := models.Ask{Slot: models.NewSlot("amount", "Amount", models.TypeFloat), Prompt: "How much?"}
	st, lines := collectState(models.PendingQueueEntry{Action: ask, Flow: "transfer"})

	if err := ex.Drain(context.Background(), "s1", st); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*lines) != 0 {
		t.Errorf("the executor itself should emit nothing for a blocking ask, got %#v", *lines)
	}
	if len(st.queue) != 1 {
		t.Fatalf("queue = %#v, want the ask pushed back", st.queue)
	}
	if got, ok := st.queue[0].Action.(models.Ask); !ok || got.Slot.Name != "amount" {
		t.Errorf("queue head = %#v, want the same ask", st.queue[0].Action)
	}
}

func TestDrainSkipsFilledAsk(t *testing.T) {
	ctx := context.Background()
	tracker := store.NewInMemoryTracker()
	ex := NewExecutor(tracker, testFlowSet(t))
	if err := tracker.SetSlotValue(ctx, "s1", "transfer", "amount", "20"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ask := models.Ask{Slot: models.NewSlot("amount", "Amount", models.TypeFloat)}
	st, lines := collectState(
		models.PendingQueueEntry{Action: ask, Flow: "transfer"},
		models.PendingQueueEntry{Action: models.Reply{Message: "after"}, Flow: "transfer"},
	)
	if err := ex.Drain(ctx, "s1", st); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(st.queue) != 0 {
		t.Errorf("queue should drain past the filled ask, got %#v", st.queue)
	}
	if len(*lines) != 1 || (*lines)[0] != "after" {
		t.Errorf("lines = %#v, want [after]", *lines)
	}
}

func TestDrainSkipsUnfilledOptionalAsk(t *testing.T) {
	tracker := store.NewInMemoryTracker()
	ex := NewExecutor(tracker, testFlowSet(t))
	ask := models.Ask{Slot: models.NewSlot("note", "Note", models.TypeText).Optional()}
	st, _ := collectState(models.PendingQueueEntry{Action: ask, Flow: "transfer"})

	if err := ex.Drain(context.Background(), "s1", st); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(st.queue) != 0 {
		t.Errorf("optional unfilled ask should not block, queue=%#v", st.queue)
	}
}

func TestAskBeforeFillingForcesReprompt(t *testing.T) {
	ctx := context.Background()
	tracker := store.NewInMemoryTracker()
	ex := NewExecutor(tracker, testFlowSet(t))
	slot := models.NewSlot("confirmation", "Confirm", models.TypeBool).AlwaysAsk()
	if err := tracker.SetSlotValue(ctx, "s1", "transfer", "confirmation", "true"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Filled proactively, but not by answering this exact ask: still halts.
	st, _ := collectState(models.PendingQueueEntry{Action: models.Ask{Slot: slot}, Flow: "transfer"})
	if err := ex.Drain(ctx, "s1", st); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(st.queue) != 1 {
		t.Fatalf("ask_before_filling ask should halt even when filled, queue=%#v", st.queue)
	}

	// When this ask is the question the user just answered, it passes.
	st, _ = collectState(models.PendingQueueEntry{Action: models.Ask{Slot: slot}, Flow: "transfer"})
	st.requested = &requestedSlot{flow: "transfer", slot: "confirmation"}
	if err := ex.Drain(ctx, "s1", st); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(st.queue) != 0 {
		t.Errorf("answered ask should pass, queue=%#v", st.queue)
	}
}

func TestEndPurgesOnlyItsOwnFlow(t *testing.T) {
	tracker := store.NewInMemoryTracker()
	ex := NewExecutor(tracker, testFlowSet(t))
	st, lines := collectState(
		models.PendingQueueEntry{Action: models.End{}, Flow: "f"},
		models.PendingQueueEntry{Action: models.Reply{Message: "g1"}, Flow: "g"},
		models.PendingQueueEntry{Action: models.Reply{Message: "f1"}, Flow: "f"},
		models.PendingQueueEntry{Action: models.Reply{Message: "g2"}, Flow: "g"},
	)

	if err := ex.Drain(context.Background(), "s1", st); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*lines) != 2 || (*lines)[0] != "g1" || (*lines)[1] != "g2" {
		t.Errorf("lines = %#v, want g entries only, in order", *lines)
	}
}

func TestDrainRunsStepAndRecordsContinuations(t *testing.T) {
	ctx := context.Background()
	tracker := store.NewInMemoryTracker()
	amount := models.NewSlot("amount", "Amount", models.TypeFloat)
	recipient := models.NewSlot("recipient", "Recipient", models.TypeText)
	f := &flow.Flow{
		Name:  "transfer",
		Slots: []models.FlowSlot{amount, recipient},
		Steps: map[string]flow.StepFunc{
			flow.StartStep: func(ctx context.Context, rt *flow.Runtime) (models.Action, error) {
				return models.Seq(
					models.Reply{Message: "hi"},
					models.Ask{Slot: amount, Prompt: "How much?"},
					models.Ask{Slot: recipient, Prompt: "To whom?"},
					models.Step{Name: "finish"},
				), nil
			},
			"finish": func(ctx context.Context, rt *flow.Runtime) (models.Action, error) {
				return models.Reply{Message: "done"}, nil
			},
		},
	}
	ex := NewExecutor(tracker, testFlowSet(t, f))
	st, lines := collectState(startEntry("transfer"))

	if err := ex.Drain(ctx, "s1", st); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*lines) != 1 || (*lines)[0] != "hi" {
		t.Errorf("lines = %#v, want [hi]", *lines)
	}
	if len(st.queue) != 3 {
		t.Fatalf("queue = %#v, want ask/ask/step remaining", st.queue)
	}
	if ask, ok := st.queue[0].Action.(models.Ask); !ok || ask.Slot.Name != "amount" {
		t.Errorf("queue head = %#v, want Ask(amount)", st.queue[0].Action)
	}

	// Each ask's continuation is the actions queued after it.
	cont, ok, err := tracker.Continuation(ctx, "s1", "transfer", "amount")
	if err != nil || !ok {
		t.Fatalf("missing amount continuation: %v, %v", ok, err)
	}
	if len(cont) != 2 {
		t.Errorf("amount continuation = %#v, want ask(recipient)+step", cont)
	}
	cont, ok, err = tracker.Continuation(ctx, "s1", "transfer", "recipient")
	if err != nil || !ok {
		t.Fatalf("missing recipient continuation: %v, %v", ok, err)
	}
	if len(cont) != 1 {
		t.Errorf("recipient continuation = %#v, want the finish step only", cont)
	}
}

func TestDrainCallFlowUnknownIsFatal(t *testing.T) {
	tracker := store.NewInMemoryTracker()
	ex := NewExecutor(tracker, testFlowSet(t))
	st, _ := collectState(models.PendingQueueEntry{Action: models.CallFlow{Flow: "ghost"}, Flow: "transfer"})

	err := ex.Drain(context.Background(), "s1", st)
	if err == nil {
		t.Fatal("expected error for unknown CallFlow target")
	}
}

func TestDrainUnknownStepIsFatal(t *testing.T) {
	tracker := store.NewInMemoryTracker()
	f := &flow.Flow{
		Name: "transfer",
		Steps: map[string]flow.StepFunc{
			flow.StartStep: func(ctx context.Context, rt *flow.Runtime) (models.Action, error) {
				return nil, nil
			},
		},
	}
	ex := NewExecutor(tracker, testFlowSet(t, f))
	st, _ := collectState(models.PendingQueueEntry{Action: models.Step{Name: "vanished"}, Flow: "transfer"})

	if err := ex.Drain(context.Background(), "s1", st); err == nil {
		t.Fatal("expected error for unresolvable step")
	}
}

func TestDrainCallFlowResolvesEventFlows(t *testing.T) {
	tracker := store.NewInMemoryTracker()
	ex := NewExecutor(tracker, testFlowSet(t))
	st, lines := collectState(models.PendingQueueEntry{Action: models.CallFlow{Flow: "INTERNAL_COMPLETED"}, Flow: "transfer"})

	if err := ex.Drain(context.Background(), "s1", st); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*lines) != 1 || (*lines)[0] != "Is there anything else I can help you with?" {
		t.Errorf("lines = %#v, want the completed flow reply", *lines)
	}
}
