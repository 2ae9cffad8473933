package main

import (
	"context"
	"fmt"

	"github.com/r-salas/linguista/internal/flow"
	"github.com/r-salas/linguista/internal/models"
)

// demoFlows returns the example task flows served by the CLI: a
// multi-step money transfer and a balance check that chains into it.
func demoFlows() []*flow.Flow {
	return []*flow.Flow{transferMoneyFlow(), checkBalanceFlow()}
}

func transferMoneyFlow() *flow.Flow {
	amount := models.NewSlot("amount", "Amount of money to transfer", models.TypeFloat)
	recipient := models.NewSlot("recipient", "Recipient name", models.Categorical("Alice", "Bob", "Charlie"))
	confirmation := models.NewSlot("transfer_confirmation", "Confirm the transfer", models.TypeBool).AlwaysAsk()

	return &flow.Flow{
		Name:        "transfer_money",
		Description: "Transfer money to a recipient",
		Slots:       []models.FlowSlot{amount, recipient, confirmation},
		Steps: map[string]flow.StepFunc{
			flow.StartStep: func(ctx context.Context, rt *flow.Runtime) (models.Action, error) {
				return models.Seq(
					models.Reply{Message: "Welcome to the money transfer service!"},
					models.Reply{Message: "Please follow the instructions to complete the transfer."},
					models.Step{Name: "ask_amount"},
				), nil
			},
			"ask_amount": func(ctx context.Context, rt *flow.Runtime) (models.Action, error) {
				return models.Seq(
					models.Ask{Slot: amount, Prompt: "How much money would you like to transfer?"},
					models.Step{Name: "validate_amount"},
				), nil
			},
			"validate_amount": func(ctx context.Context, rt *flow.Runtime) (models.Action, error) {
				value, ok, err := rt.SlotValue(ctx, amount)
				if err != nil {
					return nil, err
				}
				if !ok || value.(float64) <= 0 {
					if err := rt.ClearSlot(ctx, amount); err != nil {
						return nil, err
					}
					return models.Seq(
						models.Reply{Message: "Amount must be positive."},
						models.Step{Name: "ask_amount"},
					), nil
				}
				return models.Step{Name: "ask_recipient"}, nil
			},
			"ask_recipient": func(ctx context.Context, rt *flow.Runtime) (models.Action, error) {
				return models.Seq(
					models.Ask{Slot: recipient, Prompt: "Who would you like to transfer to?"},
					models.Step{Name: "ask_confirmation"},
				), nil
			},
			"ask_confirmation": func(ctx context.Context, rt *flow.Runtime) (models.Action, error) {
				amountValue, _, err := rt.SlotString(ctx, amount)
				if err != nil {
					return nil, err
				}
				recipientValue, _, err := rt.SlotString(ctx, recipient)
				if err != nil {
					return nil, err
				}
				prompt := fmt.Sprintf("Are you sure you want to transfer %s to %s?", amountValue, recipientValue)
				return models.Seq(
					models.Ask{Slot: confirmation, Prompt: prompt},
					models.Step{Name: "finish"},
				), nil
			},
			"finish": func(ctx context.Context, rt *flow.Runtime) (models.Action, error) {
				confirmed, ok, err := rt.SlotValue(ctx, confirmation)
				if err != nil {
					return nil, err
				}
				if ok && confirmed.(bool) {
					return models.Reply{Message: "Transfer completed."}, nil
				}
				return models.Reply{Message: "Transfer cancelled."}, nil
			},
		},
	}
}

func checkBalanceFlow() *flow.Flow {
	return &flow.Flow{
		Name:        "check_balance",
		Description: "Get how much money you have",
		Steps: map[string]flow.StepFunc{
			flow.StartStep: func(ctx context.Context, rt *flow.Runtime) (models.Action, error) {
				return models.Reply{Message: "You have 1000 euros."}, nil
			},
		},
	}
}
