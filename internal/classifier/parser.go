package classifier

import (
	"fmt"
	"strings"

	"github.com/r-salas/linguista/internal/models"
)

// missingValueMarkers are placeholder values models emit for slots the
// user did not actually provide. They normalize to an empty value, which
// the engine treats as a failed coercion.
var missingValueMarkers = map[string]bool{
	"[missing information]": true,
	"[missing]":             true,
	"none":                  true,
	"undefined":             true,
	"null":                  true,
}

// ParseCommands parses a classifier response into the command list, one
// command per line. A line outside the closed command set is a protocol
// error — the engine never silently ignores it.
func ParseCommands(response string) ([]models.Command, error) {
	var commands []models.Command
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cmd, err := parseCommandLine(line)
		if err != nil {
			return nil, err
		}
		commands = append(commands, cmd)
	}
	return commands, nil
}

func parseCommandLine(line string) (models.Command, error) {
	open := strings.Index(line, "(")
	close := strings.LastIndex(line, ")")
	if open < 0 || close < open {
		return nil, fmt.Errorf("malformed command line %q: %w", line, models.ErrUnknownCommandKind)
	}
	name := strings.TrimSpace(line[:open])
	args := splitArgs(line[open+1 : close])

	switch name {
	case "SetSlot":
		if len(args) < 2 {
			return nil, fmt.Errorf("SetSlot needs a slot name and a value in %q: %w", line, models.ErrUnknownCommandKind)
		}
		value := strings.Join(args[1:], ", ")
		if missingValueMarkers[strings.ToLower(value)] {
			value = ""
		}
		return models.SetSlot{Name: args[0], Value: value}, nil
	case "StartFlow":
		if len(args) != 1 || args[0] == "" {
			return nil, fmt.Errorf("StartFlow needs a flow name in %q: %w", line, models.ErrUnknownCommandKind)
		}
		return models.StartFlow{Flow: args[0]}, nil
	case "CancelFlow":
		return models.CancelFlow{}, nil
	case "ChitChat":
		return models.ChitChat{}, nil
	case "Clarify":
		return models.Clarify{Flows: args}, nil
	case "HumanHandoff":
		return models.HumanHandoff{}, nil
	case "Repeat":
		return models.Repeat{}, nil
	case "SkipQuestion":
		return models.SkipQuestion{}, nil
	default:
		return nil, fmt.Errorf("command %q: %w", name, models.ErrUnknownCommandKind)
	}
}

// splitArgs splits a command argument list on commas, trimming spaces
// and surrounding quotes. Empty argument lists yield nil.
func splitArgs(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	args := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		part = strings.Trim(part, `"'`)
		args = append(args, part)
	}
	return args
}
