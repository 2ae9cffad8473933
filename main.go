package main

import (
	"context"
	"fmt"
	"log"

	"github.com/r-salas/linguista/internal/classifier"
	"github.com/r-salas/linguista/internal/engine"
	"github.com/r-salas/linguista/internal/flow"
	"github.com/r-salas/linguista/internal/models"
	"github.com/r-salas/linguista/internal/store"
)

// scripted replays a fixed command list per turn, standing in for the
// LLM classifier.
type scripted struct {
	turns [][]models.Command
	next  int
}

func (s *scripted) Classify(ctx context.Context, c classifier.Context) ([]models.Command, error) {
	if s.next >= len(s.turns) {
		return nil, nil
	}
	commands := s.turns[s.next]
	s.next++
	return commands, nil
}

// main runs a minimal offline conversation against a greeting flow, for
// demonstration only. The real CLI lives in cmd/linguista.
func main() {
	greet := &flow.Flow{
		Name:        "greet",
		Description: "Greet the user by name",
		Slots:       []models.FlowSlot{models.NewSlot("name", "Your name", models.TypeText)},
		Steps: map[string]flow.StepFunc{
			flow.StartStep: func(ctx context.Context, rt *flow.Runtime) (models.Action, error) {
				slot, _ := rt.Flow().Slot("name")
				return models.Seq(
					models.Ask{Slot: slot, Prompt: "What is your name?"},
					models.Step{Name: "hello"},
				), nil
			},
			"hello": func(ctx context.Context, rt *flow.Runtime) (models.Action, error) {
				slot, _ := rt.Flow().Slot("name")
				name, _, err := rt.SlotString(ctx, slot)
				if err != nil {
					return nil, err
				}
				return models.Reply{Message: "Hello, " + name + "!"}, nil
			},
		},
	}

	cls := &scripted{turns: [][]models.Command{
		{models.StartFlow{Flow: "greet"}},
		{models.SetSlot{Name: "name", Value: "Ada"}},
	}}

	bot, err := engine.New(store.NewInMemoryTracker(), cls, greet)
	if err != nil {
		log.Fatalf("failed to assemble bot: %v", err)
	}

	ctx := context.Background()
	for _, text := range []string{"hi there", "I'm Ada"} {
		fmt.Printf("USER: %s\n", text)
		lines, err := bot.ProcessTurn(ctx, "demo-session", text)
		if err != nil {
			log.Fatalf("turn failed: %v", err)
		}
		for _, line := range lines {
			fmt.Printf("BOT:  %s\n", line)
		}
	}
}
