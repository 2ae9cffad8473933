package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/r-salas/linguista/internal/classifier"
	"github.com/r-salas/linguista/internal/flow"
	"github.com/r-salas/linguista/internal/models"
	"github.com/r-salas/linguista/internal/store"
)

// scriptedClassifier replays one prepared command list per turn.
type scriptedClassifier struct {
	turns [][]models.Command
	fail  error
	next  int
}

func (s *scriptedClassifier) Classify(ctx context.Context, c classifier.Context) ([]models.Command, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	if s.next >= len(s.turns) {
		return nil, fmt.Errorf("no scripted commands for turn %d", s.next)
	}
	commands := s.turns[s.next]
	s.next++
	return commands, nil
}

func transferFlow() *flow.Flow {
	amount := models.NewSlot("amount", "Amount of money to transfer", models.TypeFloat)
	recipient := models.NewSlot("recipient", "Recipient name", models.TypeText)
	return &flow.Flow{
		Name:        "transfer",
		Description: "Transfer money to a recipient",
		Slots:       []models.FlowSlot{amount, recipient},
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
}

func balanceFlow() *flow.Flow {
	return &flow.Flow{
		Name:        "balance",
		Description: "Get how much money you have",
		Steps: map[string]flow.StepFunc{
			flow.StartStep: func(ctx context.Context, rt *flow.Runtime) (models.Action, error) {
				return models.Reply{Message: "You have 1000 euros."}, nil
			},
		},
	}
}

func newTestBot(t *testing.T, cls classifier.Classifier, flows ...*flow.Flow) (*Bot, *store.InMemoryTracker) {
	t.Helper()
	tracker := store.NewInMemoryTracker()
	bot, err := New(tracker, cls, flows...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return bot, tracker
}

func assertLines(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("lines = %#v, want %#v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

const (
	cannotHandleReply = "I'm sorry, I cannot handle that request. Is there something else I can help you with?"
	correctionReply   = "Ok, I will update that."
	completedReply    = "Is there anything else I can help you with?"
	cancelReply       = "Okay, I will cancel the process."
	continueReply     = "Let's continue from where we left off."
)

func TestTransferConversation(t *testing.T) {
	ctx := context.Background()
	cls := &scriptedClassifier{turns: [][]models.Command{
		{models.StartFlow{Flow: "transfer"}},
		{models.SetSlot{Name: "amount", Value: "20"}},
		{models.SetSlot{Name: "amount", Value: "30"}},
		{models.SetSlot{Name: "recipient", Value: "Alice"}},
	}}
	bot, tracker := newTestBot(t, cls, transferFlow())
	const session = "s1"

	// Turn 1: start the flow, halt at the first question.
	lines, err := bot.ProcessTurn(ctx, session, "I want to transfer money")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertLines(t, lines, "hi", "How much?")
	queue, err := tracker.PendingQueue(ctx, session)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(queue) == 0 {
		t.Fatal("queue should be persisted")
	}
	if ask, ok := queue[0].Action.(models.Ask); !ok || ask.Slot.Name != "amount" || queue[0].Flow != "transfer" {
		t.Fatalf("queue head = %#v, want Ask(amount) for transfer", queue[0])
	}

	// Turn 2: answer, advance to the next question.
	lines, err = bot.ProcessTurn(ctx, session, "20 euros")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertLines(t, lines, "To whom?")
	if value, ok, _ := tracker.SlotValue(ctx, session, "transfer", "amount"); !ok || value != "20" {
		t.Errorf("amount = %q, %v, want 20", value, ok)
	}

	// Turn 3: correct the earlier answer; the queue rewinds to the
	// continuation captured when amount was first asked.
	lines, err = bot.ProcessTurn(ctx, session, "actually make it 30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertLines(t, lines, correctionReply, "To whom?")
	if value, ok, _ := tracker.SlotValue(ctx, session, "transfer", "amount"); !ok || value != "30" {
		t.Errorf("amount = %q, %v, want 30 after correction", value, ok)
	}

	// Turn 4: finish; completion clears every trace of per-flow state.
	lines, err = bot.ProcessTurn(ctx, session, "Alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertLines(t, lines, "done")
	if queue, _ := tracker.PendingQueue(ctx, session); len(queue) != 0 {
		t.Errorf("queue should be purged, got %#v", queue)
	}
	if _, ok, _ := tracker.SlotValue(ctx, session, "transfer", "amount"); ok {
		t.Error("slot values should be purged after completion")
	}
	if _, ok, _ := tracker.Continuation(ctx, session, "transfer", "amount"); ok {
		t.Error("continuations should be purged after completion")
	}

	// Every emitted line was recorded as an assistant message.
	history, err := tracker.History(ctx, session)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var assistant []string
	for _, msg := range history {
		if msg.Role == models.RoleAssistant {
			assistant = append(assistant, msg.Content)
		}
	}
	assertLines(t, assistant, "hi", "How much?", "To whom?", correctionReply, "To whom?", "done")
}

func TestEmptyCommandsWithNoPendingWork(t *testing.T) {
	ctx := context.Background()
	cls := &scriptedClassifier{turns: [][]models.Command{{}}}
	bot, tracker := newTestBot(t, cls, transferFlow())

	lines, err := bot.ProcessTurn(ctx, "s1", "blargh")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertLines(t, lines, cannotHandleReply)
	if queue, _ := tracker.PendingQueue(ctx, "s1"); len(queue) != 0 {
		t.Errorf("no state should persist, got %#v", queue)
	}
}

func TestEmptyCommandsRepromptPendingAsk(t *testing.T) {
	ctx := context.Background()
	cls := &scriptedClassifier{turns: [][]models.Command{
		{models.StartFlow{Flow: "transfer"}},
		{},
	}}
	bot, _ := newTestBot(t, cls, transferFlow())

	if _, err := bot.ProcessTurn(ctx, "s1", "transfer money"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines, err := bot.ProcessTurn(ctx, "s1", "mumble")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertLines(t, lines, cannotHandleReply, "How much?")
}

func TestCorrectionWithProactiveFillCompletes(t *testing.T) {
	ctx := context.Background()
	// One correction plus a first-time fill for the rewound question, in
	// either order: the rewind re-asks the recipient, finds it already
	// answered and runs through to completion.
	for _, commands := range [][]models.Command{
		{models.SetSlot{Name: "amount", Value: "30"}, models.SetSlot{Name: "recipient", Value: "Bob"}},
		{models.SetSlot{Name: "recipient", Value: "Bob"}, models.SetSlot{Name: "amount", Value: "30"}},
	} {
		cls := &scriptedClassifier{turns: [][]models.Command{
			{models.StartFlow{Flow: "transfer"}},
			{models.SetSlot{Name: "amount", Value: "20"}},
			commands,
		}}
		bot, tracker := newTestBot(t, cls, transferFlow())

		if _, err := bot.ProcessTurn(ctx, "s1", "transfer money"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := bot.ProcessTurn(ctx, "s1", "20"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		lines, err := bot.ProcessTurn(ctx, "s1", "make it 30 for Bob")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertLines(t, lines, correctionReply, "done")
		if queue, _ := tracker.PendingQueue(ctx, "s1"); len(queue) != 0 {
			t.Errorf("flow should have completed, queue=%#v", queue)
		}
	}
}

func transferConfirmFlow() *flow.Flow {
	amount := models.NewSlot("amount", "Amount of money to transfer", models.TypeFloat)
	recipient := models.NewSlot("recipient", "Recipient name", models.TypeText)
	confirmation := models.NewSlot("confirmation", "Confirm the transfer", models.TypeBool).AlwaysAsk()
	return &flow.Flow{
		Name:        "transfer",
		Description: "Transfer money to a recipient",
		Slots:       []models.FlowSlot{amount, recipient, confirmation},
		Steps: map[string]flow.StepFunc{
			flow.StartStep: func(ctx context.Context, rt *flow.Runtime) (models.Action, error) {
				return models.Seq(
					models.Ask{Slot: amount, Prompt: "How much?"},
					models.Ask{Slot: recipient, Prompt: "To whom?"},
					models.Ask{Slot: confirmation, Prompt: "Confirm?"},
					models.Step{Name: "finish"},
				), nil
			},
			"finish": func(ctx context.Context, rt *flow.Runtime) (models.Action, error) {
				return models.Reply{Message: "done"}, nil
			},
		},
	}
}

func TestBothSlotsCorrectedRewindsToEarliest(t *testing.T) {
	ctx := context.Background()
	// Both amount and recipient already hold values when both are
	// corrected in one turn; regardless of command order the queue must
	// rewind to the amount continuation. The recipient ask inside it is
	// already satisfied, so the drain halts at the confirmation ask.
	for _, commands := range [][]models.Command{
		{models.SetSlot{Name: "amount", Value: "40"}, models.SetSlot{Name: "recipient", Value: "Carol"}},
		{models.SetSlot{Name: "recipient", Value: "Carol"}, models.SetSlot{Name: "amount", Value: "40"}},
	} {
		cls := &scriptedClassifier{turns: [][]models.Command{
			{models.StartFlow{Flow: "transfer"}},
			{models.SetSlot{Name: "amount", Value: "20"}},
			{models.SetSlot{Name: "recipient", Value: "Bob"}},
			commands,
		}}
		bot, tracker := newTestBot(t, cls, transferConfirmFlow())

		if _, err := bot.ProcessTurn(ctx, "s1", "transfer money"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := bot.ProcessTurn(ctx, "s1", "20"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		lines, err := bot.ProcessTurn(ctx, "s1", "Bob")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertLines(t, lines, "Confirm?")

		lines, err = bot.ProcessTurn(ctx, "s1", "40 for Carol instead")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertLines(t, lines, correctionReply, "Confirm?")
		if value, ok, _ := tracker.SlotValue(ctx, "s1", "transfer", "amount"); !ok || value != "40" {
			t.Errorf("amount = %q, %v, want 40", value, ok)
		}
		if value, ok, _ := tracker.SlotValue(ctx, "s1", "transfer", "recipient"); !ok || value != "Carol" {
			t.Errorf("recipient = %q, %v, want Carol", value, ok)
		}
		queue, _ := tracker.PendingQueue(ctx, "s1")
		if len(queue) == 0 {
			t.Fatal("queue should be persisted")
		}
		if ask, ok := queue[0].Action.(models.Ask); !ok || ask.Slot.Name != "confirmation" {
			t.Fatalf("queue head = %#v, want Ask(confirmation)", queue[0].Action)
		}
	}
}

func TestStartFlowWhileActiveAnnouncesResume(t *testing.T) {
	ctx := context.Background()
	cls := &scriptedClassifier{turns: [][]models.Command{
		{models.StartFlow{Flow: "transfer"}},
		{models.StartFlow{Flow: "balance"}},
	}}
	bot, tracker := newTestBot(t, cls, transferFlow(), balanceFlow())

	if _, err := bot.ProcessTurn(ctx, "s1", "transfer money"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines, err := bot.ProcessTurn(ctx, "s1", "wait, how much money do I have?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The balance flow runs first, the resume notice plays, then the
	// interrupted transfer re-blocks on its pending question.
	assertLines(t, lines, "You have 1000 euros.", continueReply, "How much?")
	queue, _ := tracker.PendingQueue(ctx, "s1")
	if len(queue) == 0 || queue[0].Flow != "transfer" {
		t.Fatalf("queue = %#v, want the transfer ask back at the head", queue)
	}
}

func TestStartFlowUnknownDegradesToCannotHandle(t *testing.T) {
	ctx := context.Background()
	cls := &scriptedClassifier{turns: [][]models.Command{
		{models.StartFlow{Flow: "ghost"}},
	}}
	bot, _ := newTestBot(t, cls, transferFlow())

	lines, err := bot.ProcessTurn(ctx, "s1", "do the ghost thing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertLines(t, lines, cannotHandleReply, completedReply)
}

func TestCancelFlowPurgesActiveFlow(t *testing.T) {
	ctx := context.Background()
	cls := &scriptedClassifier{turns: [][]models.Command{
		{models.StartFlow{Flow: "transfer"}},
		{models.CancelFlow{}},
	}}
	bot, tracker := newTestBot(t, cls, transferFlow())

	if _, err := bot.ProcessTurn(ctx, "s1", "transfer money"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines, err := bot.ProcessTurn(ctx, "s1", "forget it")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Cancel announces, the End purges the transfer work, and the
	// completed flow queued at start time offers further help.
	assertLines(t, lines, cancelReply, completedReply)
	if queue, _ := tracker.PendingQueue(ctx, "s1"); len(queue) != 0 {
		t.Errorf("queue should be empty after cancel, got %#v", queue)
	}
}

func TestCancelRestartOfActiveFlowCancelsOut(t *testing.T) {
	ctx := context.Background()
	cls := &scriptedClassifier{turns: [][]models.Command{
		{models.StartFlow{Flow: "transfer"}},
		{models.StartFlow{Flow: "transfer"}, models.CancelFlow{}},
	}}
	bot, tracker := newTestBot(t, cls, transferFlow())

	if _, err := bot.ProcessTurn(ctx, "s1", "transfer money"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines, err := bot.ProcessTurn(ctx, "s1", "cancel and start over")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Both commands drop; the pending question is simply re-asked.
	assertLines(t, lines, "How much?")
	queue, _ := tracker.PendingQueue(ctx, "s1")
	if len(queue) == 0 || queue[0].Flow != "transfer" {
		t.Fatalf("queue = %#v, want the transfer ask untouched", queue)
	}
	if value, ok, _ := tracker.SlotValue(ctx, "s1", "transfer", "amount"); ok {
		t.Errorf("no slot should have been stored, got %q", value)
	}
}

func TestSetSlotWithoutActiveFlow(t *testing.T) {
	ctx := context.Background()
	cls := &scriptedClassifier{turns: [][]models.Command{
		{models.SetSlot{Name: "amount", Value: "20"}},
	}}
	bot, _ := newTestBot(t, cls, transferFlow())

	lines, err := bot.ProcessTurn(ctx, "s1", "20")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertLines(t, lines, cannotHandleReply)
}

func TestSetSlotUnknownSlotDegradesToCannotHandle(t *testing.T) {
	ctx := context.Background()
	cls := &scriptedClassifier{turns: [][]models.Command{
		{models.StartFlow{Flow: "transfer"}},
		{models.SetSlot{Name: "color", Value: "blue"}},
	}}
	bot, _ := newTestBot(t, cls, transferFlow())

	if _, err := bot.ProcessTurn(ctx, "s1", "transfer money"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines, err := bot.ProcessTurn(ctx, "s1", "blue")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertLines(t, lines, cannotHandleReply, "How much?")
}

func TestSetSlotBadCoercionDegradesToCannotHandle(t *testing.T) {
	ctx := context.Background()
	cls := &scriptedClassifier{turns: [][]models.Command{
		{models.StartFlow{Flow: "transfer"}},
		{models.SetSlot{Name: "amount", Value: "a bazillion"}},
	}}
	bot, tracker := newTestBot(t, cls, transferFlow())

	if _, err := bot.ProcessTurn(ctx, "s1", "transfer money"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines, err := bot.ProcessTurn(ctx, "s1", "a bazillion")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertLines(t, lines, cannotHandleReply, "How much?")
	if _, ok, _ := tracker.SlotValue(ctx, "s1", "transfer", "amount"); ok {
		t.Error("no value should be stored on failed coercion")
	}
}

func TestAmbiguousCategoricalPicksFirstMatch(t *testing.T) {
	ctx := context.Background()
	recipient := models.NewSlot("recipient", "Recipient name", models.Categorical("Anna", "Annabel"))
	f := &flow.Flow{
		Name:        "invite",
		Description: "Invite someone",
		Slots:       []models.FlowSlot{recipient},
		Steps: map[string]flow.StepFunc{
			flow.StartStep: func(ctx context.Context, rt *flow.Runtime) (models.Action, error) {
				return models.Seq(
					models.Ask{Slot: recipient, Prompt: "Who?"},
					models.Step{Name: "finish"},
				), nil
			},
			"finish": func(ctx context.Context, rt *flow.Runtime) (models.Action, error) {
				name, _, err := rt.SlotString(ctx, recipient)
				if err != nil {
					return nil, err
				}
				return models.Reply{Message: "Invited " + name}, nil
			},
		},
	}
	cls := &scriptedClassifier{turns: [][]models.Command{
		{models.StartFlow{Flow: "invite"}},
		{models.SetSlot{Name: "recipient", Value: "Ann"}},
	}}
	bot, _ := newTestBot(t, cls, f)

	if _, err := bot.ProcessTurn(ctx, "s1", "invite someone"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines, err := bot.ProcessTurn(ctx, "s1", "Ann")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertLines(t, lines, "Invited Anna", completedReply)
}

func TestChitChat(t *testing.T) {
	ctx := context.Background()
	cls := &scriptedClassifier{turns: [][]models.Command{
		{models.ChitChat{}},
	}}
	bot, _ := newTestBot(t, cls, transferFlow())

	lines, err := bot.ProcessTurn(ctx, "s1", "nice weather today")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertLines(t, lines,
		"I'm sorry, I'm not sure what you mean by that. Can you please rephrase your question?")
}

func TestClarifyPresentsSortedOptions(t *testing.T) {
	ctx := context.Background()
	cls := &scriptedClassifier{turns: [][]models.Command{
		{models.Clarify{Flows: []string{"transfer", "balance"}}},
	}}
	bot, _ := newTestBot(t, cls, transferFlow(), balanceFlow())

	lines, err := bot.ProcessTurn(ctx, "s1", "money stuff")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertLines(t, lines,
		"I'm not sure what you'd like to do. Did you mean: balance, transfer?")
}

func TestClarifyOptionsDoNotLeakIntoOtherSteps(t *testing.T) {
	ctx := context.Background()
	audit := &flow.Flow{
		Name:        "audit",
		Description: "Report how many clarify options a step can see",
		Steps: map[string]flow.StepFunc{
			flow.StartStep: func(ctx context.Context, rt *flow.Runtime) (models.Action, error) {
				return models.Reply{Message: fmt.Sprintf("visible options: %d", len(rt.ClarifyOptions()))}, nil
			},
		},
	}
	cls := &scriptedClassifier{turns: [][]models.Command{
		{models.Clarify{Flows: []string{"transfer", "balance"}}, models.StartFlow{Flow: "audit"}},
	}}
	bot, _ := newTestBot(t, cls, audit)

	// The audit flow's start runs before the clarify fallback drains;
	// only the clarify flow itself may see the candidate names.
	lines, err := bot.ProcessTurn(ctx, "s1", "money stuff, also run the audit")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertLines(t, lines,
		"visible options: 0",
		completedReply,
		"I'm not sure what you'd like to do. Did you mean: balance, transfer?")
}

func TestSkipQuestionReasserts(t *testing.T) {
	ctx := context.Background()
	cls := &scriptedClassifier{turns: [][]models.Command{
		{models.StartFlow{Flow: "transfer"}},
		{models.SkipQuestion{}},
	}}
	bot, _ := newTestBot(t, cls, transferFlow())

	if _, err := bot.ProcessTurn(ctx, "s1", "transfer money"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines, err := bot.ProcessTurn(ctx, "s1", "I'd rather not say")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) != 2 || lines[1] != "How much?" {
		t.Fatalf("lines = %#v, want the skip reply then the question again", lines)
	}
}

func TestRepeatReemitsTrailingReplies(t *testing.T) {
	ctx := context.Background()
	cls := &scriptedClassifier{turns: [][]models.Command{
		{models.StartFlow{Flow: "balance"}},
		{models.Repeat{}},
	}}
	bot, _ := newTestBot(t, cls, balanceFlow())

	lines, err := bot.ProcessTurn(ctx, "s1", "how much money do I have?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertLines(t, lines, "You have 1000 euros.", completedReply)

	lines, err = bot.ProcessTurn(ctx, "s1", "say that again")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertLines(t, lines, "You have 1000 euros.", completedReply)
}

func TestRepeatIsNoopWhenAskPending(t *testing.T) {
	ctx := context.Background()
	cls := &scriptedClassifier{turns: [][]models.Command{
		{models.StartFlow{Flow: "transfer"}},
		{models.Repeat{}},
	}}
	bot, _ := newTestBot(t, cls, transferFlow())

	if _, err := bot.ProcessTurn(ctx, "s1", "transfer money"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines, err := bot.ProcessTurn(ctx, "s1", "again?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The pending question is the repeat.
	assertLines(t, lines, "How much?")
}

func TestRepeatThenStartFlowKeepsSessionUsable(t *testing.T) {
	ctx := context.Background()
	cls := &scriptedClassifier{turns: [][]models.Command{
		{models.StartFlow{Flow: "balance"}},
		{models.Repeat{}, models.StartFlow{Flow: "transfer"}},
		{},
	}}
	bot, tracker := newTestBot(t, cls, transferFlow(), balanceFlow())
	const session = "s1"

	if _, err := bot.ProcessTurn(ctx, session, "how much money do I have?"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The repeated replies play first, then the new flow halts at its
	// question.
	lines, err := bot.ProcessTurn(ctx, session, "say that again, then transfer money")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertLines(t, lines, "You have 1000 euros.", completedReply, "hi", "How much?")

	// Repeated replies must never be persisted as queue entries without
	// an owning flow.
	queue, err := tracker.PendingQueue(ctx, session)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, entry := range queue {
		if entry.Flow == "" {
			t.Fatalf("persisted entry without owning flow: %#v", entry)
		}
	}

	// The next turn must still load and run.
	lines, err = bot.ProcessTurn(ctx, session, "blargh")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertLines(t, lines, cannotHandleReply, "How much?")
}

func TestRepeatWithNoHistoryCannotHandle(t *testing.T) {
	ctx := context.Background()
	cls := &scriptedClassifier{turns: [][]models.Command{
		{models.Repeat{}},
	}}
	bot, _ := newTestBot(t, cls, transferFlow())

	lines, err := bot.ProcessTurn(ctx, "s1", "what did you say?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertLines(t, lines, cannotHandleReply)
}

func TestClassifierFailurePropagates(t *testing.T) {
	ctx := context.Background()
	cls := &scriptedClassifier{fail: fmt.Errorf("model unavailable")}
	bot, _ := newTestBot(t, cls, transferFlow())

	if _, err := bot.ProcessTurn(ctx, "s1", "hello"); err == nil {
		t.Fatal("expected classifier failure to surface")
	}
}

func TestRehydrationUnknownFlowIsFatal(t *testing.T) {
	ctx := context.Background()
	cls := &scriptedClassifier{turns: [][]models.Command{{}}}
	bot, tracker := newTestBot(t, cls, transferFlow())

	stale := []models.PendingQueueEntry{
		{Action: models.Step{Name: "start"}, Flow: "retired_flow"},
	}
	if err := tracker.SavePendingQueue(ctx, "s1", stale); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := bot.ProcessTurn(ctx, "s1", "hello")
	if !errors.Is(err, models.ErrUnknownFlow) {
		t.Fatalf("error = %v, want ErrUnknownFlow", err)
	}
}

func TestOverrideFlowReplacesDefaultReply(t *testing.T) {
	ctx := context.Background()
	custom := &flow.Flow{
		Name:      "friendly_cannot_handle",
		Overrides: models.EventCannotHandle,
		Steps: map[string]flow.StepFunc{
			flow.StartStep: func(ctx context.Context, rt *flow.Runtime) (models.Action, error) {
				return models.Reply{Message: "No idea, sorry!"}, nil
			},
		},
	}
	cls := &scriptedClassifier{turns: [][]models.Command{{}}}
	bot, _ := newTestBot(t, cls, transferFlow(), custom)

	lines, err := bot.ProcessTurn(ctx, "s1", "blargh")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertLines(t, lines, "No idea, sorry!")
}
