package events

import (
	"context"
	"strings"

	"github.com/r-salas/linguista/internal/flow"
	"github.com/r-salas/linguista/internal/models"
)

// Reserved names of the built-in event flows.
const (
	NameCancel              = "INTERNAL_CANCEL_FLOW"
	NameCannotHandle        = "INTERNAL_CANNOT_HANDLE"
	NameChitChat            = "INTERNAL_CHITCHAT"
	NameClarify             = "INTERNAL_CLARIFY"
	NameHumanHandoff        = "INTERNAL_HUMAN_HANDOFF"
	NameCompleted           = "INTERNAL_COMPLETED"
	NameContinueInterrupted = "INTERNAL_CONTINUE_INTERRUPTED"
	NameCorrection          = "INTERNAL_CORRECTION"
	NameInternalError       = "INTERNAL_ERROR"
	NameSkipQuestion        = "INTERNAL_SKIP_QUESTION"
)

func defaultFlow(kind models.EventKind) *flow.Flow {
	switch kind {
	case models.EventCancel:
		return replyFlow(kind, NameCancel, "Cancel flow",
			"Okay, I will cancel the process.")
	case models.EventCannotHandle:
		return replyFlow(kind, NameCannotHandle, "Cannot handle flow",
			"I'm sorry, I cannot handle that request. Is there something else I can help you with?")
	case models.EventChitChat:
		return replyFlow(kind, NameChitChat, "Chitchat flow",
			"I'm sorry, I'm not sure what you mean by that. Can you please rephrase your question?")
	case models.EventClarify:
		return clarifyFlow()
	case models.EventHumanHandoff:
		return replyFlow(kind, NameHumanHandoff, "Human handoff flow",
			"I understand you want to be connected to a human agent, "+
				"but that's something I cannot help you with at the moment. "+
				"Is there something else I can help you with?")
	case models.EventCompleted:
		return replyFlow(kind, NameCompleted, "Completed flow",
			"Is there anything else I can help you with?")
	case models.EventContinueInterrupted:
		return replyFlow(kind, NameContinueInterrupted, "Continue interrupted flow",
			"Let's continue from where we left off.")
	case models.EventCorrection:
		return replyFlow(kind, NameCorrection, "Correction flow",
			"Ok, I will update that.")
	case models.EventInternalError:
		return replyFlow(kind, NameInternalError, "Internal error flow",
			"I'm sorry, I'm experiencing some technical difficulties. Please try again later.")
	case models.EventSkipQuestion:
		return replyFlow(kind, NameSkipQuestion, "Skip question flow",
			"I'm here to provide you with the best assistance, and in order to do so, I kindly request that "+
				"we complete this step together. Your input is essential for a seamless experience!")
	default:
		return replyFlow(models.EventInternalError, NameInternalError, "Internal error flow",
			"I'm sorry, I'm experiencing some technical difficulties. Please try again later.")
	}
}

func replyFlow(kind models.EventKind, name, description, message string) *flow.Flow {
	return &flow.Flow{
		Name:        name,
		Description: description,
		Overrides:   kind,
		Steps: map[string]flow.StepFunc{
			flow.StartStep: func(ctx context.Context, rt *flow.Runtime) (models.Action, error) {
				return models.Reply{Message: message}, nil
			},
		},
	}
}

// clarifyFlow presents the candidate flow names carried by the clarify
// command, falling back to a generic rephrase request when none were
// supplied.
func clarifyFlow() *flow.Flow {
	return &flow.Flow{
		Name:        NameClarify,
		Description: "Clarify flow",
		Overrides:   models.EventClarify,
		Steps: map[string]flow.StepFunc{
			flow.StartStep: func(ctx context.Context, rt *flow.Runtime) (models.Action, error) {
				options := rt.ClarifyOptions()
				if len(options) == 0 {
					return models.Reply{
						Message: "I'm sorry, I'm not sure what you mean by that. Can you please rephrase your question?",
					}, nil
				}
				return models.Reply{
					Message: "I'm not sure what you'd like to do. Did you mean: " + strings.Join(options, ", ") + "?",
				}, nil
			},
		},
	}
}
