package models

// Command is a structured instruction derived from classifying one user
// utterance. The set of variants is closed; the command parser rejects
// anything outside it.
type Command interface {
	isCommand()
}

// SetSlot fills a slot of the currently active flow with a raw value.
// The raw value still needs coercion against the slot's declared type.
type SetSlot struct {
	Name  string
	Value string
}

// StartFlow starts the named flow, interrupting the active one if any.
type StartFlow struct {
	Flow string
}

// CancelFlow cancels the currently active flow.
type CancelFlow struct{}

// ChitChat marks an utterance that is small talk rather than task input.
type ChitChat struct{}

// Clarify reports that the utterance matched several flows and carries
// the candidate flow names for the fallback flow to present.
type Clarify struct {
	Flows []string
}

// HumanHandoff reports that the user asked for a human agent.
type HumanHandoff struct{}

// Repeat asks the engine to re-emit the previous turn's replies.
type Repeat struct{}

// SkipQuestion reports that the user refused to answer the pending ask.
type SkipQuestion struct{}

func (SetSlot) isCommand()      {}
func (StartFlow) isCommand()    {}
func (CancelFlow) isCommand()   {}
func (ChitChat) isCommand()     {}
func (Clarify) isCommand()      {}
func (HumanHandoff) isCommand() {}
func (Repeat) isCommand()       {}
func (SkipQuestion) isCommand() {}

// EventKind names one of the reserved fallback behaviors. Each kind maps
// to a flow in the event registry; callers may override any of them.
type EventKind string

const (
	EventCancel              EventKind = "cancel"
	EventCannotHandle        EventKind = "cannot_handle"
	EventChitChat            EventKind = "chitchat"
	EventClarify             EventKind = "clarify"
	EventHumanHandoff        EventKind = "human_handoff"
	EventCompleted           EventKind = "completed"
	EventContinueInterrupted EventKind = "continue_interrupted"
	EventCorrection          EventKind = "correction"
	EventInternalError       EventKind = "internal_error"
	EventSkipQuestion        EventKind = "skip_question"
)

// EventKinds lists every reserved event kind.
func EventKinds() []EventKind {
	return []EventKind{
		EventCancel,
		EventCannotHandle,
		EventChitChat,
		EventClarify,
		EventHumanHandoff,
		EventCompleted,
		EventContinueInterrupted,
		EventCorrection,
		EventInternalError,
		EventSkipQuestion,
	}
}
