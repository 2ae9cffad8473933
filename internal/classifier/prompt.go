package classifier

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/r-salas/linguista/internal/models"
)

// historyWindow caps how many conversation turns the prompt includes.
const historyWindow = 20

const commandPromptTemplate = `Your task is to analyze the current conversation context and generate a list of commands to start or advance the user's tasks.

These are the available tasks:
{{range .AvailableFlows}}* {{.Name}}: {{.Description}}
{{- range .Slots}}
    - slot "{{.Name}}" ({{.Type}}): {{.Description}}{{if .AllowedValues}} — allowed values: {{.AllowedValues}}{{end}}
{{- end}}
{{end}}
These are the commands you can emit, one per line:
* StartFlow(task_name) - start a task
* SetSlot(slot_name, value) - fill a slot with a value the user provided
* CancelFlow() - cancel the current task
* ChitChat() - the message is small talk, not task input
* Clarify(task_a, task_b) - the message matches several tasks
* HumanHandoff() - the user asks for a human agent
* Repeat() - the user asks to repeat the last answer
* SkipQuestion() - the user refuses to answer the current question
{{if .ActiveFlow}}
The user is currently on the task "{{.ActiveFlow}}".
{{- if .ActiveSlot}}
The user is being asked for the slot "{{.ActiveSlot}}" ({{.ActiveSlotDescription}}).
{{- end}}
{{- if .SlotValues}}
Slots already filled for the current task:
{{- range .SlotValues}}
    - {{.Name}}: {{.Value}}
{{- end}}
{{- end}}
{{else}}
The user is not currently on any task.
{{end}}
This is the conversation so far:
{{.Conversation}}

Emit only commands, one per line, with no extra commentary.`

var promptTemplate = template.Must(template.New("commands").Parse(commandPromptTemplate))

type promptFlow struct {
	Name        string
	Description string
	Slots       []promptSlot
}

type promptSlot struct {
	Name          string
	Description   string
	Type          string
	AllowedValues string
}

type promptSlotValue struct {
	Name  string
	Value string
}

type promptData struct {
	AvailableFlows        []promptFlow
	ActiveFlow            string
	ActiveSlot            string
	ActiveSlotDescription string
	SlotValues            []promptSlotValue
	Conversation          string
}

func promptTypeName(t models.SlotType) string {
	switch t.Kind {
	case models.SlotInt, models.SlotFloat:
		return "number"
	case models.SlotBool:
		return "boolean"
	case models.SlotCategorical:
		return "categorical"
	default:
		return "text"
	}
}

// RenderPrompt renders the command classification prompt for one turn.
func RenderPrompt(c Context) (string, error) {
	data := promptData{}
	for _, f := range c.AvailableFlows {
		pf := promptFlow{Name: f.Name, Description: f.Description}
		for _, slot := range f.Slots {
			pf.Slots = append(pf.Slots, promptSlot{
				Name:          slot.Name,
				Description:   slot.Description,
				Type:          promptTypeName(slot.Type),
				AllowedValues: strings.Join(slot.Type.Categories, ", "),
			})
		}
		data.AvailableFlows = append(data.AvailableFlows, pf)
	}

	if c.ActiveFlow != nil {
		data.ActiveFlow = c.ActiveFlow.Name
		for _, slot := range c.ActiveFlow.Slots {
			if value, ok := c.SlotValues[slot.Name]; ok {
				data.SlotValues = append(data.SlotValues, promptSlotValue{Name: slot.Name, Value: value})
			}
		}
	}
	if c.ActiveSlot != nil {
		data.ActiveSlot = c.ActiveSlot.Name
		data.ActiveSlotDescription = c.ActiveSlot.Description
	}

	data.Conversation = renderConversation(c.Conversation, c.LatestMessage)

	var b strings.Builder
	if err := promptTemplate.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render command prompt: %w", err)
	}
	return b.String(), nil
}

func renderConversation(history []models.Message, latest string) string {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	var lines []string
	for _, msg := range history {
		speaker := "AI"
		if msg.Role == models.RoleUser {
			speaker = "USER"
		}
		lines = append(lines, speaker+": "+msg.Content)
	}
	lines = append(lines, "USER: "+strings.ReplaceAll(latest, "\n", " "))
	return strings.Join(lines, "\n")
}
