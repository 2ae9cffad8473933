package classifier

import (
	"errors"
	"reflect"
	"testing"

	"github.com/r-salas/linguista/internal/models"
)

func TestParseCommands(t *testing.T) {
	response := `
StartFlow(transfer_money)
SetSlot(amount, 20 euros)
SetSlot(recipient, "Alice")
CancelFlow()
ChitChat()
Clarify(transfer_money, check_balance)
HumanHandoff()
Repeat()
SkipQuestion()
`
	commands, err := ParseCommands(response)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []models.Command{
		models.StartFlow{Flow: "transfer_money"},
		models.SetSlot{Name: "amount", Value: "20 euros"},
		models.SetSlot{Name: "recipient", Value: "Alice"},
		models.CancelFlow{},
		models.ChitChat{},
		models.Clarify{Flows: []string{"transfer_money", "check_balance"}},
		models.HumanHandoff{},
		models.Repeat{},
		models.SkipQuestion{},
	}
	if !reflect.DeepEqual(commands, want) {
		t.Errorf("ParseCommands = %#v, want %#v", commands, want)
	}
}

func TestParseCommandsEmptyResponse(t *testing.T) {
	commands, err := ParseCommands("\n\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(commands) != 0 {
		t.Errorf("expected no commands, got %#v", commands)
	}
}

func TestParseCommandsUnknownCommandIsFatal(t *testing.T) {
	_, err := ParseCommands("LaunchMissiles()")
	if !errors.Is(err, models.ErrUnknownCommandKind) {
		t.Fatalf("error = %v, want ErrUnknownCommandKind", err)
	}
}

func TestParseCommandsMalformedLineIsFatal(t *testing.T) {
	_, err := ParseCommands("SetSlot amount 20")
	if !errors.Is(err, models.ErrUnknownCommandKind) {
		t.Fatalf("error = %v, want ErrUnknownCommandKind", err)
	}
}

func TestParseCommandsMissingValueMarkers(t *testing.T) {
	for _, marker := range []string{"None", "null", "[missing]", "[Missing Information]", "undefined"} {
		commands, err := ParseCommands("SetSlot(amount, " + marker + ")")
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", marker, err)
		}
		set := commands[0].(models.SetSlot)
		if set.Value != "" {
			t.Errorf("marker %q should normalize to empty, got %q", marker, set.Value)
		}
	}
}

func TestParseCommandsSetSlotNeedsValue(t *testing.T) {
	_, err := ParseCommands("SetSlot(amount)")
	if !errors.Is(err, models.ErrUnknownCommandKind) {
		t.Fatalf("error = %v, want ErrUnknownCommandKind", err)
	}
}
